// Package httpapi wires the HTTP transport (Gin) to the chat services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, idempotency, and rate limiting.
//
// Two route families with different postures are mounted under the API base:
//   - /chat/*  public visitor endpoints, wildcard CORS, no auth
//   - /admin/* dashboard endpoints, origin allowlist, JWT gate
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-livechat-backend/internal/cache"
	"github.com/tbourn/go-livechat-backend/internal/chatapi"
	"github.com/tbourn/go-livechat-backend/internal/config"
	"github.com/tbourn/go-livechat-backend/internal/http/handlers"
	"github.com/tbourn/go-livechat-backend/internal/http/middleware"
	"github.com/tbourn/go-livechat-backend/internal/repo"
	"github.com/tbourn/go-livechat-backend/internal/services"
	"github.com/tbourn/go-livechat-backend/internal/widget"
)

// configCacheItems bounds the in-process config cache.
const configCacheItems = 4096

// Runtime holds what RegisterRoutes started in the background.
type Runtime struct {
	analytics *services.AsyncAnalytics
	messages  *services.MessageService
	responder *services.AutoResponder
	cache     cache.Store
}

// Drain waits for background store writes and bot replies. Call it after
// the server stopped accepting requests.
func (rt *Runtime) Drain() {
	if rt == nil {
		return
	}
	if rt.responder != nil {
		rt.responder.Wait()
	}
	if rt.messages != nil {
		rt.messages.Wait()
	}
	if rt.analytics != nil {
		rt.analytics.Wait()
	}
}

// Close releases the cache connection, if any.
func (rt *Runtime) Close() error {
	if rt == nil {
		return nil
	}
	if r, ok := rt.cache.(*cache.Redis); ok {
		return r.Close()
	}
	return nil
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter and gzip
//  6. Metrics
//  7. Security headers
//
// CORS, auth, the Idempotency-Key validator and rate limiting are applied
// per route group, in that order: validator errors carry the group's CORS
// headers, and a replay is marked before the limiter can count it.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) (*Runtime, error) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
		CrossOrigin:  true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/ready", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			handlers.Fail(c, http.StatusServiceUnavailable, handlers.ErrCodeInternal, "store unavailable")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/cache
	var store cache.Store = cache.Noop{}
	if cfg.Cache.TTL > 0 {
		s, err := cache.New(cfg.Cache.RedisURL, configCacheItems)
		if err != nil {
			return nil, fmt.Errorf("config cache: %w", err)
		}
		store = s
	}

	analytics := &services.AsyncAnalytics{DB: db}
	configs := &services.ConfigService{DB: db, Cache: store, CacheTTL: cfg.Cache.TTL}
	sessions := &services.SessionService{DB: db, Configs: configs, Analytics: analytics}
	msgs := &services.MessageService{
		DB:              db,
		Analytics:       analytics,
		MaxContentRunes: cfg.Widget.MaxMessageRune,
	}
	rt := &Runtime{analytics: analytics, messages: msgs, cache: store}
	if cfg.AutoResponder.Enabled {
		rt.responder = &services.AutoResponder{DB: db, Poster: msgs, Threshold: cfg.AutoResponder.Threshold}
		msgs.Responder = rt.responder
	}

	h := handlers.New(handlers.Deps{
		Configs:        configs,
		Sessions:       sessions,
		Messages:       msgs,
		Canned:         &services.CannedService{DB: db},
		Analytics:      &services.AnalyticsService{DB: db},
		DB:             db,
		IdempotencyTTL: cfg.IdempotencyTTL,
		Script: widget.ScriptOptions{
			Strategy:     widget.Strategy(cfg.Widget.Strategy),
			PollInterval: cfg.Widget.PollInterval,
			StoreURL:     cfg.Widget.StoreRESTURL,
			AnonKey:      cfg.Widget.StoreAnonKey,
		},
		APIBasePath:  apiPath(cfg.APIBasePath),
		ScriptMaxAge: cfg.Widget.ScriptMaxAge,
	})

	// Token-bucket limiter per admin/IP, shared through Redis when the
	// config cache already runs on it.
	var limiter middleware.Limiter
	if rc, ok := store.(*cache.Redis); ok {
		limiter = middleware.NewRedisRateLimiter(rc.Client(), cfg.RateRPS, cfg.RateBurst)
	} else {
		limiter = middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	}
	rateLimit := middleware.RateLimit(limiter, middleware.KeyByUserOrIP())

	idempotency := middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{Scope: handlers.MessageScope},
		func(ctx context.Context, sessionID, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, sessionID, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	)

	api := groupWithPrefix(r, cfg.APIBasePath)

	// The script is fetched cross-site by <script> tags; it carries the
	// visitor CORS posture but is not rate limited.
	r.GET(chatapi.PathWidget, middleware.ChatCORS(), h.WidgetScript)
	if cfg.APIBasePath != "" && cfg.APIBasePath != "/" {
		api.GET(chatapi.PathWidget, middleware.ChatCORS(), h.WidgetScript)
	}

	chat := api.Group("/chat", middleware.ChatCORS(), idempotency, rateLimit)
	{
		chat.GET("/config", h.GetConfig)
		chat.POST("/session", h.StartSession)
		chat.POST("/message", h.PostMessage)
		chat.GET("/messages", h.ListMessages)
		chat.GET("/debug", h.Debug)
		preflight(chat, "/config", "/session", "/message", "/messages", "/debug")
	}

	// AdminCORS answers preflights before AdminAuth runs.
	admin := api.Group("/admin",
		middleware.AdminCORS(cfg.CORS.AllowedOrigins),
		middleware.AdminAuth(cfg.AdminJWTSecret),
		idempotency,
		rateLimit,
	)
	{
		admin.GET("/config", h.GetAdminConfig)
		admin.PUT("/config", h.UpdateAdminConfig)

		admin.GET("/sessions", h.ListSessions)
		admin.PATCH("/sessions/:id", h.UpdateSession)
		admin.DELETE("/sessions/:id", h.DeleteSession)
		admin.GET("/sessions/:id/messages", h.ListSessionMessages)
		admin.POST("/sessions/:id/messages", h.ReplyToSession)
		admin.POST("/sessions/:id/read", h.MarkSessionRead)

		admin.GET("/responses", h.ListCanned)
		admin.POST("/responses", h.CreateCanned)
		admin.DELETE("/responses/:id", h.DeleteCanned)

		admin.GET("/analytics", h.GetAnalytics)
		preflight(admin, "/config", "/sessions", "/sessions/:id", "/sessions/:id/messages",
			"/sessions/:id/read", "/responses", "/responses/:id", "/analytics")
	}

	return rt, nil
}

// preflight registers OPTIONS on each path so the group's CORS middleware
// sees the request. A non-preflight OPTIONS gets an empty 204.
func preflight(g *gin.RouterGroup, paths ...string) {
	for _, p := range paths {
		g.OPTIONS(p, func(c *gin.Context) { c.Status(http.StatusNoContent) })
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

// apiPath is the base the widget appends to its own origin.
func apiPath(prefix string) string {
	if prefix == "/" {
		return ""
	}
	return prefix
}
