// Package board implements the confession board: the feed, submissions,
// reactions, comments, reports and the admin review workflow.
package board

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/sujalbistaa/whispr/internal/identity"
	"github.com/sujalbistaa/whispr/internal/moderation"
)

// Moderator checks confession text before it is stored.
type Moderator interface {
	Moderate(ctx context.Context, text string) (moderation.Verdict, error)
}

// Service is the board's entry point. It holds no mutable state of its own;
// everything lives in the database.
type Service struct {
	db        *gorm.DB
	gate      *identity.Gate
	moderator Moderator
	notifier  Notifier
	now       func() time.Time
}

// NewService wires the board to its store, identity gate and moderator.
// notifier may be nil.
func NewService(database *gorm.DB, gate *identity.Gate, moderator Moderator, notifier Notifier) *Service {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Service{
		db:        database,
		gate:      gate,
		moderator: moderator,
		notifier:  notifier,
		now:       gate.Now,
	}
}

// Gate exposes the identity gate for the HTTP layer's activation endpoint.
func (s *Service) Gate() *identity.Gate { return s.gate }

// Ping checks the database connection.
func (s *Service) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
