package board

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/sujalbistaa/whispr/internal/apperr"
	"github.com/sujalbistaa/whispr/internal/db"
	"github.com/sujalbistaa/whispr/internal/identity"
	"github.com/sujalbistaa/whispr/internal/logging"
	"github.com/sujalbistaa/whispr/internal/metrics"
	"github.com/sujalbistaa/whispr/internal/models"
)

// Report flags content for review. A reported confession goes back to
// pending and leaves the public feed; a reported comment stays visible and
// only shows up in the admin report queue.
func (s *Service) Report(ctx context.Context, contentID string, contentType models.ContentType, reporterHash string) error {
	if identity.RequireIdentity(reporterHash) != nil {
		return apperr.New(apperr.KindNotAuthenticated, "You must be logged in to report content.")
	}
	if contentType != models.ContentConfession && contentType != models.ContentComment {
		return apperr.New(apperr.KindValidation, "Unknown content type.")
	}

	var hidden bool
	var confessionID string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch contentType {
		case models.ContentConfession:
			c, err := s.loadVisibleConfession(tx, contentID, reporterHash)
			if err != nil {
				return err
			}
			confessionID = c.ID
			hidden = c.Status == models.StatusApproved
		case models.ContentComment:
			var comment models.Comment
			err := tx.Where("id = ?", contentID).Take(&comment).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.New(apperr.KindNotFound, "Comment not found.")
			}
			if err != nil {
				return apperr.Database("Failed to load comment.", err)
			}
			if _, err := s.loadVisibleConfession(tx, comment.ConfessionID, reporterHash); err != nil {
				return apperr.New(apperr.KindNotFound, "Comment not found.")
			}
		}

		report := models.Report{
			ContentID:        contentID,
			ContentType:      contentType,
			ReporterAnonHash: reporterHash,
			Status:           models.ReportPending,
			CreatedAt:        s.now(),
		}
		if err := tx.Create(&report).Error; err != nil {
			if db.IsUniqueViolation(err) {
				return apperr.Wrap(apperr.KindDuplicateReport, "You have already reported this content.", err)
			}
			return apperr.Database("Failed to submit report. Database error.", err)
		}

		if contentType == models.ContentConfession {
			if err := tx.Model(&models.Confession{}).
				Where("id = ?", contentID).
				Update("status", models.StatusPending).Error; err != nil {
				return apperr.Database("Failed to submit report. Database error.", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.ReportsTotal.WithLabelValues(string(contentType)).Inc()
	log.Info().
		Str("content_id", contentID).
		Str("content_type", string(contentType)).
		Str("reporter", logging.ShortHash(reporterHash)).
		Msg("board: content reported")
	if hidden {
		s.notifier.Publish(Event{Type: EventConfessionRemoved, ConfessionID: confessionID})
	}
	return nil
}

// ReportView is a report row joined with a preview of what it points at.
type ReportView struct {
	models.Report
	ContentText  string `json:"contentText"`
	ConfessionID string `json:"confessionId"`
	ReportCount  int64  `json:"reportCount"`
}

// ListReports returns reports newest first, optionally filtered by status.
func (s *Service) ListReports(ctx context.Context, status models.ReportStatus) ([]ReportView, error) {
	q := s.db.WithContext(ctx).Model(&models.Report{})
	switch status {
	case "":
	case models.ReportPending, models.ReportDismissed:
		q = q.Where("status = ?", status)
	default:
		return nil, apperr.New(apperr.KindValidation, "Unknown report status.")
	}

	var reports []models.Report
	if err := q.Order("created_at desc").Find(&reports).Error; err != nil {
		return nil, apperr.Database("Failed to load reports.", err)
	}

	var confessionIDs, commentIDs []string
	perContent := make(map[string]int64)
	for _, r := range reports {
		perContent[r.ContentID]++
		if r.ContentType == models.ContentConfession {
			confessionIDs = append(confessionIDs, r.ContentID)
		} else {
			commentIDs = append(commentIDs, r.ContentID)
		}
	}

	texts := make(map[string]string)
	parents := make(map[string]string)
	if len(confessionIDs) > 0 {
		var rows []models.Confession
		if err := s.db.WithContext(ctx).Select("id", "text").Where("id IN ?", confessionIDs).Find(&rows).Error; err != nil {
			return nil, apperr.Database("Failed to load reports.", err)
		}
		for _, c := range rows {
			texts[c.ID] = c.Text
			parents[c.ID] = c.ID
		}
	}
	if len(commentIDs) > 0 {
		var rows []models.Comment
		if err := s.db.WithContext(ctx).Select("id", "text", "confession_id").Where("id IN ?", commentIDs).Find(&rows).Error; err != nil {
			return nil, apperr.Database("Failed to load reports.", err)
		}
		for _, c := range rows {
			texts[c.ID] = c.Text
			parents[c.ID] = c.ConfessionID
		}
	}

	views := make([]ReportView, len(reports))
	for i, r := range reports {
		views[i] = ReportView{
			Report:       r,
			ContentText:  texts[r.ContentID],
			ConfessionID: parents[r.ContentID],
			ReportCount:  perContent[r.ContentID],
		}
	}
	return views, nil
}

// DismissReport marks a report as handled without touching the content.
func (s *Service) DismissReport(ctx context.Context, reportID uint) error {
	res := s.db.WithContext(ctx).Model(&models.Report{}).
		Where("id = ?", reportID).
		Update("status", models.ReportDismissed)
	if res.Error != nil {
		return apperr.Database("Failed to dismiss report.", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.KindNotFound, "Report not found.")
	}
	return nil
}
