package http

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/sujalbistaa/whispr/internal/board"
	"github.com/sujalbistaa/whispr/internal/config"
	"github.com/sujalbistaa/whispr/internal/models"
	"github.com/sujalbistaa/whispr/internal/ws"
)

// SetupRoutes configures all application routes and middleware. Background
// housekeeping started here stops when ctx is done.
func SetupRoutes(ctx context.Context, router *gin.Engine, cfg *config.Config, svc *board.Service, hub *ws.Hub) error {
	// Forwarding headers are only honoured from configured proxies; every
	// other caller is identified by its socket address.
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}

	// --- Dependencies ---
	env := &Env{
		Board:          svc,
		AdminSecretKey: cfg.AdminSecretKey,
		SessionSecret:  []byte(cfg.SessionSecret),
		SecureCookies:  cfg.SecureCookies,
	}

	// --- Middleware ---
	router.Use(RequestLogger())
	router.Use(gin.Recovery())
	router.Use(SecurityHeadersMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.CORSOrigin},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: cfg.CORSOrigin != "*",
		MaxAge:           12 * time.Hour,
	}))

	// --- Rate Limiter Setup ---
	sensitive := NewIPRateLimiter(rate.Limit(rateLimitRPS), rateLimitBurst)
	writes := NewIPRateLimiter(rate.Limit(writeRateRPS), writeRateBurst)
	go sensitive.Cleanup(ctx, 10*time.Minute)
	go writes.Cleanup(ctx, 10*time.Minute)
	limitWrites := RateLimitMiddleware(writes)

	// --- API Routes ---
	api := router.Group("/api", RequestTimeout(cfg.RequestTimeout))
	{
		api.POST("/activate", RateLimitMiddleware(sensitive), env.Activate)

		api.GET("/confessions", env.GetConfessions)
		api.GET("/confessions/:id", env.GetConfession)
		api.POST("/confessions", limitWrites, env.CreateConfession)
		api.POST("/confessions/:id/like", limitWrites, env.interact(models.InteractionLike))
		api.POST("/confessions/:id/dislike", limitWrites, env.interact(models.InteractionDislike))
		api.POST("/confessions/:id/comments", limitWrites, env.CreateComment)
		api.POST("/confessions/:id/report", limitWrites, env.report(models.ContentConfession))
		api.POST("/comments/:id/report", limitWrites, env.report(models.ContentComment))

		api.POST("/admin/login", RateLimitMiddleware(sensitive), env.AdminLogin)
		api.POST("/admin/logout", env.AdminLogout)

		admin := api.Group("/admin", AdminAuthMiddleware(env.SessionSecret))
		{
			admin.GET("/confessions", env.AdminConfessions)
			admin.GET("/reports", env.AdminReports)
			admin.POST("/confessions/:id/approve", env.command(approveCmd))
			admin.POST("/confessions/:id/reject", env.command(rejectCmd))
			admin.DELETE("/confessions/:id", env.command(deleteConfessionCmd))
			admin.DELETE("/comments/:id", env.command(deleteCommentCmd))
			admin.POST("/bans", env.command(banCmd))
			admin.POST("/reports/:id/dismiss", env.command(dismissCmd))
		}
	}

	// --- Service Routes ---
	router.GET("/healthz", env.Healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", func(c *gin.Context) {
		ws.ServeWs(hub, c.Writer, c.Request)
	})
	return nil
}
