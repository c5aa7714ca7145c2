package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds every setting the server reads at startup.
type Config struct {
	Port        string
	DatabaseURL string
	CORSOrigin  string

	// TrustedProxies lists the peers (IPs or CIDRs) whose forwarding
	// headers are believed. Empty means the socket peer is the client.
	TrustedProxies []string

	ActivationKey  string
	AdminSecretKey string
	SessionSecret  string
	SecureCookies  bool

	LogLevel  string
	LogFormat string

	ModerationAPIKey  string
	ModerationAPIURL  string
	ModerationModel   string
	ModerationTimeout time.Duration

	RequestTimeout time.Duration
	PostCooldown   time.Duration
}

// Load reads a .env file if one exists, then the process environment.
// Environment variables always win over .env values.
func Load(envFiles ...string) (*Config, error) {
	// A missing .env is normal in production, where variables are set directly.
	_ = godotenv.Load(envFiles...)

	vp := viper.New()
	vp.AutomaticEnv()

	vp.SetDefault("PORT", "8080")
	vp.SetDefault("DATABASE_URL", "sqlite://whispr.db")
	vp.SetDefault("CORS_ORIGIN", "*")
	vp.SetDefault("SECURE_COOKIES", false)
	vp.SetDefault("LOG_LEVEL", "info")
	vp.SetDefault("LOG_FORMAT", "json")
	vp.SetDefault("MODERATION_API_URL", "https://api.openai.com/v1/chat/completions")
	vp.SetDefault("MODERATION_MODEL", "gpt-4o-mini")
	vp.SetDefault("MODERATION_TIMEOUT", "10s")
	vp.SetDefault("REQUEST_TIMEOUT", "10s")
	vp.SetDefault("POST_COOLDOWN", "10m")

	cfg := &Config{
		Port:              vp.GetString("PORT"),
		DatabaseURL:       vp.GetString("DATABASE_URL"),
		CORSOrigin:        vp.GetString("CORS_ORIGIN"),
		TrustedProxies:    splitList(vp.GetString("TRUSTED_PROXIES")),
		ActivationKey:     vp.GetString("ACTIVATION_KEY"),
		AdminSecretKey:    vp.GetString("ADMIN_SECRET_KEY"),
		SessionSecret:     vp.GetString("SESSION_SECRET"),
		SecureCookies:     vp.GetBool("SECURE_COOKIES"),
		LogLevel:          vp.GetString("LOG_LEVEL"),
		LogFormat:         vp.GetString("LOG_FORMAT"),
		ModerationAPIKey:  vp.GetString("MODERATION_API_KEY"),
		ModerationAPIURL:  vp.GetString("MODERATION_API_URL"),
		ModerationModel:   vp.GetString("MODERATION_MODEL"),
		ModerationTimeout: vp.GetDuration("MODERATION_TIMEOUT"),
		RequestTimeout:    vp.GetDuration("REQUEST_TIMEOUT"),
		PostCooldown:      vp.GetDuration("POST_COOLDOWN"),
	}

	// The session secret signs admin cookies. Falling back to the admin key
	// keeps single-secret development setups working; Validate refuses it
	// once SECURE_COOKIES is on.
	if cfg.SessionSecret == "" && cfg.AdminSecretKey != "" {
		log.Warn().Msg("SESSION_SECRET not set, signing admin sessions with ADMIN_SECRET_KEY")
		cfg.SessionSecret = cfg.AdminSecretKey
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fails closed on missing secrets.
func (c *Config) Validate() error {
	if c.AdminSecretKey == "" {
		return errors.New("ADMIN_SECRET_KEY environment variable not set")
	}
	if c.ActivationKey == "" {
		return errors.New("ACTIVATION_KEY environment variable not set")
	}
	if c.ModerationTimeout <= 0 || c.RequestTimeout <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if c.PostCooldown < 0 {
		return errors.New("POST_COOLDOWN must not be negative")
	}
	if c.SecureCookies && c.SessionSecret == c.AdminSecretKey {
		return errors.New("SESSION_SECRET must be set and differ from ADMIN_SECRET_KEY when SECURE_COOKIES is on")
	}
	for _, p := range c.TrustedProxies {
		if net.ParseIP(p) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(p); err != nil {
			return fmt.Errorf("TRUSTED_PROXIES: %q is not an IP or CIDR", p)
		}
	}
	return nil
}

// splitList parses a comma-separated setting, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
