package board

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/sujalbistaa/whispr/internal/apperr"
	"github.com/sujalbistaa/whispr/internal/db"
	"github.com/sujalbistaa/whispr/internal/identity"
	"github.com/sujalbistaa/whispr/internal/interaction"
	"github.com/sujalbistaa/whispr/internal/metrics"
	"github.com/sujalbistaa/whispr/internal/models"
)

// maxInteractionAttempts bounds how often a toggle is retried after losing
// a race against another request from the same user.
const maxInteractionAttempts = 3

// errConcurrentWrite marks a compare-and-swap miss inside the toggle
// transaction.
var errConcurrentWrite = errors.New("interaction row changed concurrently")

// InteractionResult is the state after a toggle, as the server sees it.
type InteractionResult struct {
	ConfessionID string            `json:"confessionId"`
	State        interaction.State `json:"state"`
	Likes        int               `json:"likes"`
	Dislikes     int               `json:"dislikes"`
}

// SetInteraction presses like or dislike on a confession for userHash.
// Pressing the active reaction removes it; pressing the other swaps it.
func (s *Service) SetInteraction(ctx context.Context, confessionID, userHash string, desired models.InteractionType) (*InteractionResult, error) {
	if err := identity.RequireIdentity(userHash); err != nil {
		return nil, apperr.New(apperr.KindNotAuthenticated, "User not authenticated.")
	}
	if desired != models.InteractionLike && desired != models.InteractionDislike {
		return nil, apperr.New(apperr.KindValidation, "Unknown interaction type.")
	}

	var lastErr error
	for attempt := 0; attempt < maxInteractionAttempts; attempt++ {
		result, err := s.toggleOnce(ctx, confessionID, userHash, desired)
		if err == nil {
			metrics.InteractionsTotal.WithLabelValues(string(result.State)).Inc()
			if result.visibleToAll {
				likes, dislikes := result.Likes, result.Dislikes
				s.notifier.Publish(Event{Type: EventCounts, ConfessionID: confessionID, Likes: &likes, Dislikes: &dislikes})
			}
			return &result.InteractionResult, nil
		}
		if !errors.Is(err, errConcurrentWrite) {
			return nil, err
		}
		metrics.InteractionRetriesTotal.Inc()
		lastErr = err
	}

	log.Warn().Err(lastErr).Str("confession_id", confessionID).Msg("board: interaction retries exhausted")
	return nil, apperr.Database("Your reaction could not be saved. Please try again.", lastErr)
}

type toggleResult struct {
	InteractionResult
	visibleToAll bool
}

// toggleOnce runs one attempt. Row writes are conditional on the state read
// at the start, so a concurrent change surfaces as errConcurrentWrite and
// the transaction rolls back without touching the counters.
func (s *Service) toggleOnce(ctx context.Context, confessionID, userHash string, desired models.InteractionType) (toggleResult, error) {
	var out toggleResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		confession, err := s.loadVisibleConfession(tx, confessionID, userHash)
		if err != nil {
			return err
		}

		var existing models.PostInteraction
		var current interaction.State
		err = tx.Where("confession_id = ? AND user_anon_hash = ?", confessionID, userHash).Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			current = interaction.StateNone
		case err != nil:
			return apperr.Database("Database error fetching interaction.", err)
		default:
			current = interaction.FromType(&existing.InteractionType)
		}

		next, delta, err := interaction.Transition(current, desired)
		if err != nil {
			return apperr.Wrap(apperr.KindValidation, "Unknown interaction type.", err)
		}

		switch {
		case current == interaction.StateNone:
			row := models.PostInteraction{
				ConfessionID:    confessionID,
				UserAnonHash:    userHash,
				InteractionType: desired,
				CreatedAt:       s.now(),
			}
			if err := tx.Create(&row).Error; err != nil {
				if db.IsUniqueViolation(err) {
					return errConcurrentWrite
				}
				return apperr.Database("Database error on new interaction.", err)
			}
		case next == interaction.StateNone:
			res := tx.Where("id = ? AND interaction_type = ?", existing.ID, existing.InteractionType).
				Delete(&models.PostInteraction{})
			if res.Error != nil {
				return apperr.Database("Database error deleting interaction.", res.Error)
			}
			if res.RowsAffected == 0 {
				return errConcurrentWrite
			}
		default:
			res := tx.Model(&models.PostInteraction{}).
				Where("id = ? AND interaction_type = ?", existing.ID, existing.InteractionType).
				Update("interaction_type", desired)
			if res.Error != nil {
				return apperr.Database("Database error updating interaction.", res.Error)
			}
			if res.RowsAffected == 0 {
				return errConcurrentWrite
			}
		}

		updates := map[string]any{}
		if delta.Likes != 0 {
			updates["likes"] = gorm.Expr("likes + ?", delta.Likes)
		}
		if delta.Dislikes != 0 {
			updates["dislikes"] = gorm.Expr("dislikes + ?", delta.Dislikes)
		}
		if err := tx.Model(&models.Confession{}).Where("id = ?", confessionID).Updates(updates).Error; err != nil {
			return apperr.Database("Database error updating counts.", err)
		}

		var counts models.Confession
		if err := tx.Select("likes", "dislikes").Where("id = ?", confessionID).Take(&counts).Error; err != nil {
			return apperr.Database("Database error reading counts.", err)
		}

		out = toggleResult{
			InteractionResult: InteractionResult{
				ConfessionID: confessionID,
				State:        next,
				Likes:        counts.Likes,
				Dislikes:     counts.Dislikes,
			},
			visibleToAll: confession.Status == models.StatusApproved,
		}
		return nil
	})
	return out, err
}
