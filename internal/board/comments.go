package board

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/sujalbistaa/whispr/internal/apperr"
	"github.com/sujalbistaa/whispr/internal/metrics"
	"github.com/sujalbistaa/whispr/internal/models"
	"github.com/sujalbistaa/whispr/internal/moderation"
)

// AddComment posts a comment on a confession the caller can see, optionally
// as a reply to another comment on the same confession.
func (s *Service) AddComment(ctx context.Context, confessionID, anonHash, text string, parentID *string) (*models.Comment, error) {
	if err := s.gate.CheckWriter(ctx, anonHash, "comments"); err != nil {
		return nil, err
	}
	clean, err := moderation.CheckComment(text)
	if err != nil {
		return nil, err
	}
	if parentID != nil && strings.TrimSpace(*parentID) == "" {
		parentID = nil
	}

	var comment *models.Comment
	var public bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		confession, err := s.loadVisibleConfession(tx, confessionID, anonHash)
		if err != nil {
			return err
		}

		if parentID != nil {
			var parent models.Comment
			err := tx.Select("id").
				Where("id = ? AND confession_id = ?", *parentID, confessionID).
				Take(&parent).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.New(apperr.KindNotFound, "Parent comment not found.")
			}
			if err != nil {
				return apperr.Database("Failed to load parent comment.", err)
			}
		}

		comment = &models.Comment{
			Text:         clean,
			AnonHash:     anonHash,
			ConfessionID: confessionID,
			ParentID:     parentID,
			IsAuthor:     confession.AnonHash == anonHash,
			CreatedAt:    s.now(),
		}
		if err := tx.Create(comment).Error; err != nil {
			return apperr.Database("Failed to add comment. Database error.", err)
		}
		public = confession.Status == models.StatusApproved
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.CommentsTotal.Inc()
	log.Info().
		Str("comment_id", comment.ID).
		Str("confession_id", confessionID).
		Bool("reply", parentID != nil).
		Msg("board: comment added")
	if public {
		s.notifier.Publish(Event{Type: EventComment, ConfessionID: confessionID})
	}
	return comment, nil
}
