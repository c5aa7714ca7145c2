package board

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/sujalbistaa/whispr/internal/apperr"
	"github.com/sujalbistaa/whispr/internal/models"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// Page selects a window of the feed, newest first.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) normalized() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// CommentView is a comment with its replies nested beneath it.
type CommentView struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	CreatedAt time.Time      `json:"createdAt"`
	ParentID  *string        `json:"parentId,omitempty"`
	IsAuthor  bool           `json:"isAuthor"`
	IsMine    bool           `json:"isMine"`
	AnonHash  string         `json:"anonHash,omitempty"`
	Replies   []*CommentView `json:"replies"`
}

// ConfessionView is a confession as one viewer sees it.
type ConfessionView struct {
	ID              string                  `json:"id"`
	Text            string                  `json:"text"`
	CreatedAt       time.Time               `json:"createdAt"`
	Status          models.Status           `json:"status"`
	Likes           int                     `json:"likes"`
	Dislikes        int                     `json:"dislikes"`
	IsMine          bool                    `json:"isMine"`
	UserInteraction *models.InteractionType `json:"userInteraction"`
	CommentCount    int                     `json:"commentCount"`
	Comments        []*CommentView          `json:"comments"`
}

// AdminConfessionView adds the fields only the review screen needs.
type AdminConfessionView struct {
	ConfessionView
	AnonHash      string  `json:"anonHash"`
	IsToxic       bool    `json:"isToxic"`
	ToxicityScore float64 `json:"toxicityScore"`
	ReportCount   int64   `json:"reportCount"`
}

// visibleTo reports whether viewer may see c: approved confessions are
// public, everything else only to its author.
func visibleTo(c *models.Confession, viewer string) bool {
	return c.Status == models.StatusApproved || (viewer != "" && c.AnonHash == viewer)
}

// ListConfessions returns the feed for viewer: every approved confession plus
// the viewer's own regardless of status. viewer may be empty.
func (s *Service) ListConfessions(ctx context.Context, viewer string, page Page) ([]ConfessionView, error) {
	page = page.normalized()

	q := s.db.WithContext(ctx).Model(&models.Confession{})
	if viewer != "" {
		q = q.Where("status = ? OR anon_hash = ?", models.StatusApproved, viewer)
	} else {
		q = q.Where("status = ?", models.StatusApproved)
	}

	var rows []models.Confession
	if err := q.Order("created_at desc").Limit(page.Limit).Offset(page.Offset).Find(&rows).Error; err != nil {
		return nil, apperr.Database("Failed to load confessions.", fmt.Errorf("list confessions: %w", err))
	}
	if len(rows) == 0 {
		return []ConfessionView{}, nil
	}

	ids := make([]string, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}

	var comments []models.Comment
	var interactions []models.PostInteraction

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.db.WithContext(gctx).
			Where("confession_id IN ?", ids).
			Order("created_at asc").
			Find(&comments).Error
	})
	if viewer != "" {
		g.Go(func() error {
			return s.db.WithContext(gctx).
				Where("user_anon_hash = ? AND confession_id IN ?", viewer, ids).
				Find(&interactions).Error
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperr.Database("Failed to load confessions.", fmt.Errorf("load feed details: %w", err))
	}

	mine := make(map[string]models.InteractionType, len(interactions))
	for _, pi := range interactions {
		mine[pi.ConfessionID] = pi.InteractionType
	}
	trees, counts := buildCommentTrees(comments, viewer, false)

	views := make([]ConfessionView, len(rows))
	for i := range rows {
		views[i] = toView(&rows[i], viewer, trees[rows[i].ID], counts[rows[i].ID])
		if t, ok := mine[rows[i].ID]; ok {
			views[i].UserInteraction = &t
		}
	}
	return views, nil
}

// GetConfession returns one confession if viewer may see it.
func (s *Service) GetConfession(ctx context.Context, viewer, id string) (*ConfessionView, error) {
	c, err := s.loadVisibleConfession(s.db.WithContext(ctx), id, viewer)
	if err != nil {
		return nil, err
	}

	var comments []models.Comment
	if err := s.db.WithContext(ctx).Where("confession_id = ?", id).Order("created_at asc").Find(&comments).Error; err != nil {
		return nil, apperr.Database("Failed to load confession.", err)
	}
	trees, counts := buildCommentTrees(comments, viewer, false)
	view := toView(c, viewer, trees[id], counts[id])

	if viewer != "" {
		var pi models.PostInteraction
		err := s.db.WithContext(ctx).Where("confession_id = ? AND user_anon_hash = ?", id, viewer).Take(&pi).Error
		if err == nil {
			view.UserInteraction = &pi.InteractionType
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Database("Failed to load confession.", err)
		}
	}
	return &view, nil
}

// AdminListConfessions returns every confession, newest first, optionally
// filtered by status.
func (s *Service) AdminListConfessions(ctx context.Context, status models.Status, page Page) ([]AdminConfessionView, error) {
	page = page.normalized()

	q := s.db.WithContext(ctx).Model(&models.Confession{})
	if status != "" {
		if !status.Valid() {
			return nil, apperr.New(apperr.KindValidation, "Unknown status filter.")
		}
		q = q.Where("status = ?", status)
	}

	var rows []models.Confession
	if err := q.Order("created_at desc").Limit(page.Limit).Offset(page.Offset).Find(&rows).Error; err != nil {
		return nil, apperr.Database("Failed to load confessions for review.", err)
	}
	if len(rows) == 0 {
		return []AdminConfessionView{}, nil
	}

	ids := make([]string, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}

	var comments []models.Comment
	type reportCount struct {
		ContentID string
		N         int64
	}
	var reportCounts []reportCount

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.db.WithContext(gctx).Where("confession_id IN ?", ids).Order("created_at asc").Find(&comments).Error
	})
	g.Go(func() error {
		return s.db.WithContext(gctx).Model(&models.Report{}).
			Select("content_id, count(*) as n").
			Where("content_type = ? AND status = ? AND content_id IN ?", models.ContentConfession, models.ReportPending, ids).
			Group("content_id").
			Scan(&reportCounts).Error
	})
	if err := g.Wait(); err != nil {
		return nil, apperr.Database("Failed to load confessions for review.", err)
	}

	reports := make(map[string]int64, len(reportCounts))
	for _, rc := range reportCounts {
		reports[rc.ContentID] = rc.N
	}
	trees, counts := buildCommentTrees(comments, "", true)

	views := make([]AdminConfessionView, len(rows))
	for i := range rows {
		c := &rows[i]
		views[i] = AdminConfessionView{
			ConfessionView: toView(c, "", trees[c.ID], counts[c.ID]),
			AnonHash:       c.AnonHash,
			IsToxic:        c.IsToxic,
			ToxicityScore:  c.ToxicityScore,
			ReportCount:    reports[c.ID],
		}
	}
	return views, nil
}

func toView(c *models.Confession, viewer string, comments []*CommentView, count int) ConfessionView {
	if comments == nil {
		comments = []*CommentView{}
	}
	return ConfessionView{
		ID:           c.ID,
		Text:         c.Text,
		CreatedAt:    c.CreatedAt,
		Status:       c.Status,
		Likes:        c.Likes,
		Dislikes:     c.Dislikes,
		IsMine:       viewer != "" && c.AnonHash == viewer,
		CommentCount: count,
		Comments:     comments,
	}
}

// buildCommentTrees groups comments per confession and nests replies under
// their parents. comments must be ordered oldest first; that order is kept
// at every level. A reply whose parent is missing is shown top-level.
func buildCommentTrees(comments []models.Comment, viewer string, withHashes bool) (map[string][]*CommentView, map[string]int) {
	nodes := make(map[string]*CommentView, len(comments))
	for i := range comments {
		c := &comments[i]
		v := &CommentView{
			ID:        c.ID,
			Text:      c.Text,
			CreatedAt: c.CreatedAt,
			ParentID:  c.ParentID,
			IsAuthor:  c.IsAuthor,
			IsMine:    viewer != "" && c.AnonHash == viewer,
			Replies:   []*CommentView{},
		}
		if withHashes {
			v.AnonHash = c.AnonHash
		}
		nodes[c.ID] = v
	}

	trees := make(map[string][]*CommentView)
	counts := make(map[string]int)
	for i := range comments {
		c := &comments[i]
		v := nodes[c.ID]
		counts[c.ConfessionID]++
		if c.ParentID != nil {
			if parent, ok := nodes[*c.ParentID]; ok {
				parent.Replies = append(parent.Replies, v)
				continue
			}
		}
		trees[c.ConfessionID] = append(trees[c.ConfessionID], v)
	}
	return trees, counts
}

// loadVisibleConfession fetches id and hides it from viewers who may not see it.
func (s *Service) loadVisibleConfession(tx *gorm.DB, id, viewer string) (*models.Confession, error) {
	var c models.Confession
	err := tx.Where("id = ?", id).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "Confession not found.")
	}
	if err != nil {
		return nil, apperr.Database("Failed to load confession.", err)
	}
	if !visibleTo(&c, viewer) {
		return nil, apperr.New(apperr.KindNotFound, "Confession not found.")
	}
	return &c, nil
}
