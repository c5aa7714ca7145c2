package board

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/sujalbistaa/whispr/internal/apperr"
	"github.com/sujalbistaa/whispr/internal/logging"
	"github.com/sujalbistaa/whispr/internal/metrics"
	"github.com/sujalbistaa/whispr/internal/models"
)

// SubmitConfession stores a new confession for review. The caller must be
// an activated, unbanned identity outside its posting cooldown, and the text
// must pass moderation.
func (s *Service) SubmitConfession(ctx context.Context, anonHash, text string) (*models.Confession, error) {
	if err := s.gate.CheckWriter(ctx, anonHash, "confessions"); err != nil {
		return nil, err
	}
	if err := s.gate.CheckPostCooldown(ctx, anonHash); err != nil {
		return nil, err
	}

	verdict, err := s.moderator.Moderate(ctx, text)
	if err != nil {
		return nil, err
	}

	confession := &models.Confession{
		Text:          verdict.Text,
		AnonHash:      anonHash,
		Status:        verdict.Status,
		IsToxic:       verdict.Classification.IsToxic,
		ToxicityScore: verdict.Classification.Score,
		CreatedAt:     s.now(),
	}
	if err := s.db.WithContext(ctx).Create(confession).Error; err != nil {
		log.Error().Err(err).Str("anon_hash", logging.ShortHash(anonHash)).Msg("board: failed to store confession")
		return nil, apperr.Database("Failed to submit confession. Database error.", err)
	}

	metrics.ConfessionsSubmittedTotal.Inc()
	log.Info().
		Str("confession_id", confession.ID).
		Str("status", string(confession.Status)).
		Float64("toxicity_score", confession.ToxicityScore).
		Msg("board: confession submitted")

	if confession.Status == models.StatusApproved {
		s.notifier.Publish(Event{Type: EventConfessionApproved, ConfessionID: confession.ID})
	}
	return confession, nil
}
