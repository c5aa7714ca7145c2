package board

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/sujalbistaa/whispr/internal/apperr"
	"github.com/sujalbistaa/whispr/internal/db"
	"github.com/sujalbistaa/whispr/internal/logging"
	"github.com/sujalbistaa/whispr/internal/metrics"
	"github.com/sujalbistaa/whispr/internal/models"
)

// Command is an admin action. The set is closed: only the types in this
// file implement it.
type Command interface {
	action() string
}

// Approve publishes a confession.
type Approve struct{ ConfessionID string }

// Reject hides a confession from everyone but its author.
type Reject struct{ ConfessionID string }

// DeleteConfession removes a confession with its comments, reactions and reports.
type DeleteConfession struct{ ConfessionID string }

// DeleteComment removes a comment and every reply beneath it.
type DeleteComment struct{ CommentID string }

// Ban blocks an identity from submitting and commenting.
type Ban struct{ AnonHash string }

// Dismiss closes a report without acting on the content.
type Dismiss struct{ ReportID uint }

func (Approve) action() string          { return "approve" }
func (Reject) action() string           { return "reject" }
func (DeleteConfession) action() string { return "delete_confession" }
func (DeleteComment) action() string    { return "delete_comment" }
func (Ban) action() string              { return "ban" }
func (Dismiss) action() string          { return "dismiss_report" }

// Dispatch runs cmd and returns the message to show the admin.
func (s *Service) Dispatch(ctx context.Context, cmd Command) (string, error) {
	var (
		msg string
		err error
	)
	switch c := cmd.(type) {
	case Approve:
		msg, err = s.setStatus(ctx, c.ConfessionID, models.StatusApproved)
	case Reject:
		msg, err = s.setStatus(ctx, c.ConfessionID, models.StatusRejected)
	case DeleteConfession:
		msg, err = s.deleteConfession(ctx, c.ConfessionID)
	case DeleteComment:
		msg, err = s.deleteComment(ctx, c.CommentID)
	case Ban:
		msg, err = s.banUser(ctx, c.AnonHash)
	case Dismiss:
		err = s.DismissReport(ctx, c.ReportID)
		msg = "Report dismissed."
	default:
		return "", apperr.New(apperr.KindValidation, "Unknown admin action.")
	}
	if err != nil {
		log.Warn().Err(err).Str("action", cmd.action()).Msg("admin: action failed")
		return "", err
	}

	metrics.AdminActionsTotal.WithLabelValues(cmd.action()).Inc()
	log.Info().Str("action", cmd.action()).Msg("admin: action applied")
	return msg, nil
}

func (s *Service) setStatus(ctx context.Context, id string, status models.Status) (string, error) {
	var before models.Confession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id", "status").Where("id = ?", id).Take(&before).Error; err != nil {
			return notFoundOr(err, "Confession not found.", "Failed to update status.")
		}
		return tx.Model(&models.Confession{}).Where("id = ?", id).Update("status", status).Error
	})
	if err != nil {
		if apperr.KindOf(err) != apperr.KindUnknown {
			return "", err
		}
		return "", apperr.Database("Failed to update status.", err)
	}

	switch {
	case status == models.StatusApproved && before.Status != models.StatusApproved:
		s.notifier.Publish(Event{Type: EventConfessionApproved, ConfessionID: id})
	case status != models.StatusApproved && before.Status == models.StatusApproved:
		s.notifier.Publish(Event{Type: EventConfessionRemoved, ConfessionID: id})
	}
	if status == models.StatusApproved {
		return "Confession approved.", nil
	}
	return "Confession rejected.", nil
}

func (s *Service) deleteConfession(ctx context.Context, id string) (string, error) {
	var wasPublic bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Confession
		if err := tx.Select("id", "status").Where("id = ?", id).Take(&c).Error; err != nil {
			return notFoundOr(err, "Confession not found.", "Failed to delete confession.")
		}
		wasPublic = c.Status == models.StatusApproved

		commentIDs := tx.Model(&models.Comment{}).Select("id").Where("confession_id = ?", id)
		if err := tx.Where("content_type = ? AND content_id IN (?)", models.ContentComment, commentIDs).
			Delete(&models.Report{}).Error; err != nil {
			return apperr.Database("Failed to delete confession.", err)
		}
		steps := []struct {
			model any
			where string
			args  []any
		}{
			{&models.Report{}, "content_type = ? AND content_id = ?", []any{models.ContentConfession, id}},
			{&models.PostInteraction{}, "confession_id = ?", []any{id}},
			{&models.Comment{}, "confession_id = ?", []any{id}},
			{&models.Confession{}, "id = ?", []any{id}},
		}
		for _, st := range steps {
			if err := tx.Where(st.where, st.args...).Delete(st.model).Error; err != nil {
				return apperr.Database("Failed to delete confession.", err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if wasPublic {
		s.notifier.Publish(Event{Type: EventConfessionRemoved, ConfessionID: id})
	}
	return "Confession deleted.", nil
}

func (s *Service) deleteComment(ctx context.Context, id string) (string, error) {
	var confession models.Confession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var root models.Comment
		if err := tx.Select("id", "confession_id").Where("id = ?", id).Take(&root).Error; err != nil {
			return notFoundOr(err, "Comment not found.", "Failed to delete comment.")
		}

		// Collect the reply subtree level by level.
		doomed := []string{root.ID}
		frontier := []string{root.ID}
		for len(frontier) > 0 {
			var children []string
			if err := tx.Model(&models.Comment{}).Where("parent_id IN ?", frontier).Pluck("id", &children).Error; err != nil {
				return apperr.Database("Failed to delete comment.", err)
			}
			doomed = append(doomed, children...)
			frontier = children
		}

		if err := tx.Where("content_type = ? AND content_id IN ?", models.ContentComment, doomed).
			Delete(&models.Report{}).Error; err != nil {
			return apperr.Database("Failed to delete comment.", err)
		}
		if err := tx.Where("id IN ?", doomed).Delete(&models.Comment{}).Error; err != nil {
			return apperr.Database("Failed to delete comment.", err)
		}
		if err := tx.Select("id", "status").Where("id = ?", root.ConfessionID).Take(&confession).Error; err != nil {
			return apperr.Database("Failed to delete comment.", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if confession.Status == models.StatusApproved {
		s.notifier.Publish(Event{Type: EventComment, ConfessionID: confession.ID})
	}
	return "Comment deleted.", nil
}

func (s *Service) banUser(ctx context.Context, anonHash string) (string, error) {
	anonHash = strings.TrimSpace(anonHash)
	if anonHash == "" {
		return "", apperr.New(apperr.KindValidation, "An identity to ban is required.")
	}
	ban := models.BannedUser{AnonHash: anonHash, CreatedAt: s.now()}
	if err := s.db.WithContext(ctx).Create(&ban).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return "", apperr.Wrap(apperr.KindAlreadyBanned, "User is already banned.", err)
		}
		return "", apperr.Database("Failed to ban user.", err)
	}
	prefix := anonHash
	if len(prefix) > 6 {
		prefix = prefix[:6]
	}
	log.Info().Str("anon_hash", logging.ShortHash(anonHash)).Msg("admin: identity banned")
	return fmt.Sprintf("User %s... has been banned.", prefix), nil
}

func notFoundOr(err error, notFound, failed string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.New(apperr.KindNotFound, notFound)
	}
	return apperr.Database(failed, err)
}
