package moderation

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sujalbistaa/whispr/internal/apperr"
	"github.com/sujalbistaa/whispr/internal/metrics"
	"github.com/sujalbistaa/whispr/internal/models"
)

// Verdict is the outcome of moderating a confession that passed the local
// checks.
type Verdict struct {
	Text           string
	Status         models.Status
	Classification Classification
}

// Pipeline runs submitted confessions through the PII filter, validation
// and the toxicity classifier, in that order.
type Pipeline struct {
	classifier Classifier
	timeout    time.Duration
}

// NewPipeline returns a pipeline using classifier, each call bounded by timeout.
func NewPipeline(classifier Classifier, timeout time.Duration) *Pipeline {
	if classifier == nil {
		classifier = Passthrough{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Pipeline{classifier: classifier, timeout: timeout}
}

// Moderate stops at the first failing step. Anything that gets through is
// held as pending for a human; the classifier only annotates.
func (p *Pipeline) Moderate(ctx context.Context, text string) (Verdict, error) {
	clean := Normalize(text)

	if submittedPII(text, clean) {
		metrics.ModerationOutcomesTotal.WithLabelValues("pii").Inc()
		return Verdict{}, apperr.New(apperr.KindContainsPII,
			"Confession appears to contain personal information. Please remove it.")
	}

	// Bounds apply to what is stored, after markup is removed.
	if err := ValidateConfession(clean); err != nil {
		metrics.ModerationOutcomesTotal.WithLabelValues("invalid").Inc()
		return Verdict{}, err
	}

	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	result, err := p.classifier.Classify(cctx, clean)
	metrics.ModerationLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ModerationOutcomesTotal.WithLabelValues("service_error").Inc()
		log.Error().Err(err).Msg("moderation: toxicity classification failed")
		return Verdict{}, apperr.Wrap(apperr.KindModerationService,
			"We could not check your confession right now. Please try again.", err)
	}

	if result.IsToxic {
		metrics.ModerationOutcomesTotal.WithLabelValues("flagged").Inc()
	} else {
		metrics.ModerationOutcomesTotal.WithLabelValues("clean").Inc()
	}
	log.Info().
		Bool("is_toxic", result.IsToxic).
		Float64("toxicity_score", result.Score).
		Msg("moderation: confession classified")

	return Verdict{
		Text:           clean,
		Status:         models.StatusPending,
		Classification: result,
	}, nil
}
