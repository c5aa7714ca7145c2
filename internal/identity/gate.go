// Package identity issues pseudonymous identities and enforces the per-identity
// write limits: bans and the posting cooldown.
package identity

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/sujalbistaa/whispr/internal/apperr"
	"github.com/sujalbistaa/whispr/internal/db"
	"github.com/sujalbistaa/whispr/internal/logging"
	"github.com/sujalbistaa/whispr/internal/metrics"
	"github.com/sujalbistaa/whispr/internal/models"
)

// DefaultCooldown is the minimum time between two confessions by one identity.
const DefaultCooldown = 10 * time.Minute

var errAddressTaken = apperr.New(apperr.KindAddressAlreadyActivated,
	"This IP address has already been used to activate an account.")

// Gate validates activation keys and guards write operations.
type Gate struct {
	db            *gorm.DB
	activationKey string
	cooldown      time.Duration
	now           func() time.Time
}

// Option customizes a Gate.
type Option func(*Gate)

// WithCooldown overrides DefaultCooldown.
func WithCooldown(d time.Duration) Option {
	return func(g *Gate) { g.cooldown = d }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// NewGate returns a gate that accepts activationKey.
func NewGate(database *gorm.DB, activationKey string, opts ...Option) *Gate {
	g := &Gate{
		db:            database,
		activationKey: activationKey,
		cooldown:      DefaultCooldown,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Activate exchanges the shared key for a new identity. One identity may be
// minted per network address.
func (g *Gate) Activate(ctx context.Context, key, networkAddress, userAgent string) (*models.Activation, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		metrics.ActivationsTotal.WithLabelValues("invalid").Inc()
		return nil, apperr.New(apperr.KindValidation, "Activation key is required.")
	}
	if subtle.ConstantTimeCompare([]byte(key), []byte(g.activationKey)) != 1 {
		metrics.ActivationsTotal.WithLabelValues("invalid_key").Inc()
		return nil, apperr.New(apperr.KindInvalidKey, "Invalid activation key.")
	}

	networkAddress = strings.TrimSpace(networkAddress)
	if networkAddress == "" {
		metrics.ActivationsTotal.WithLabelValues("invalid").Inc()
		return nil, apperr.New(apperr.KindValidation, "Could not determine your network address.")
	}

	var existing int64
	if err := g.db.WithContext(ctx).Model(&models.Activation{}).
		Where("ip_address = ?", networkAddress).Count(&existing).Error; err != nil {
		log.Error().Err(err).Msg("identity: failed to look up activation")
		return nil, apperr.Database("Could not save activation details. Please try again.", err)
	}
	if existing > 0 {
		metrics.ActivationsTotal.WithLabelValues("address_taken").Inc()
		return nil, errAddressTaken
	}

	activation := &models.Activation{
		AnonHash:  uuid.NewString(),
		IPAddress: networkAddress,
		UserAgent: truncate(userAgent, 512),
		CreatedAt: g.now(),
	}
	if err := g.db.WithContext(ctx).Create(activation).Error; err != nil {
		// A concurrent activation from the same address won the insert.
		if db.IsUniqueViolation(err) {
			metrics.ActivationsTotal.WithLabelValues("address_taken").Inc()
			return nil, errAddressTaken
		}
		log.Error().Err(err).Msg("identity: failed to save activation")
		return nil, apperr.Database("Could not save activation details. Please try again.", err)
	}

	metrics.ActivationsTotal.WithLabelValues("ok").Inc()
	log.Info().Str("anon_hash", logging.ShortHash(activation.AnonHash)).Msg("identity: account activated")
	return activation, nil
}

// RequireIdentity fails with NotAuthenticated for an empty identity.
func RequireIdentity(anonHash string) error {
	if strings.TrimSpace(anonHash) == "" {
		return apperr.New(apperr.KindNotAuthenticated, "User not authenticated. Please activate your account.")
	}
	return nil
}

// IsBanned reports whether anonHash is in the ban set.
func (g *Gate) IsBanned(ctx context.Context, anonHash string) (bool, error) {
	var count int64
	if err := g.db.WithContext(ctx).Model(&models.BannedUser{}).
		Where("anon_hash = ?", anonHash).Count(&count).Error; err != nil {
		return false, apperr.Database("Could not verify your account. Please try again.", err)
	}
	return count > 0, nil
}

// CheckWriter runs the checks every write starts with: an identity must be
// present and not banned. what names the blocked action in the message.
func (g *Gate) CheckWriter(ctx context.Context, anonHash, what string) error {
	if err := RequireIdentity(anonHash); err != nil {
		return err
	}
	banned, err := g.IsBanned(ctx, anonHash)
	if err != nil {
		return err
	}
	if banned {
		return apperr.New(apperr.KindBanned, "You are banned from posting "+what+".")
	}
	return nil
}

// CheckPostCooldown returns nil when anonHash may post now, or a RateLimited
// error carrying the remaining wait. Only the most recent confession counts.
func (g *Gate) CheckPostCooldown(ctx context.Context, anonHash string) error {
	if g.cooldown <= 0 {
		return nil
	}

	var last models.Confession
	err := g.db.WithContext(ctx).
		Select("created_at").
		Where("anon_hash = ?", anonHash).
		Order("created_at desc").
		Take(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return apperr.Database("Could not verify your posting limit. Please try again.", err)
	}

	elapsed := g.now().Sub(last.CreatedAt)
	if elapsed < g.cooldown {
		return apperr.RateLimited(g.cooldown - elapsed)
	}
	return nil
}

// Cooldown returns the configured window.
func (g *Gate) Cooldown() time.Duration { return g.cooldown }

// Now returns the gate's clock reading.
func (g *Gate) Now() time.Time { return g.now() }

// truncate caps s at n bytes without splitting a multi-byte character.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
