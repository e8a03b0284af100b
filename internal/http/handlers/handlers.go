// Package handlers wiring.
//
// Handlers depend on small service interfaces so tests can swap in stubs;
// production wiring passes the concrete services from internal/services.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-livechat-backend/internal/domain"
	"github.com/tbourn/go-livechat-backend/internal/http/middleware"
	"github.com/tbourn/go-livechat-backend/internal/services"
	"github.com/tbourn/go-livechat-backend/internal/utils"
	"github.com/tbourn/go-livechat-backend/internal/widget"
)

//
// Service contracts (context-aware)
//

// ConfigService resolves public widget configs and edits an admin's config.
type ConfigService interface {
	Resolve(ctx context.Context, chatbotID string) (domain.PublicConfig, error)
	EnsureForAdmin(ctx context.Context, adminID string) (*domain.ChatbotConfig, error)
	Update(ctx context.Context, adminID string, patch services.ConfigPatch) (*domain.ChatbotConfig, error)
}

// SessionService starts visitor sessions and serves the admin session list.
type SessionService interface {
	Start(ctx context.Context, in services.StartSessionInput) (*domain.Session, error)
	ListPage(ctx context.Context, adminID, status string, page, pageSize int) ([]domain.Session, int64, error)
	Get(ctx context.Context, adminID, sessionID string) (*domain.Session, error)
	SetStatus(ctx context.Context, adminID, sessionID, status string) (*domain.Session, error)
	Delete(ctx context.Context, adminID, sessionID string) error
}

// MessageService is the message channel.
type MessageService interface {
	Send(ctx context.Context, in services.SendInput) (*domain.Message, error)
	FetchNewSince(ctx context.Context, sessionID, afterID string) ([]domain.Message, error)
	ListForAdmin(ctx context.Context, adminID, sessionID string, page, pageSize int) ([]domain.Message, int64, error)
	Reply(ctx context.Context, adminID, sessionID, content string) (*domain.Message, error)
	MarkRead(ctx context.Context, adminID, sessionID string) (int64, error)
}

// CannedService manages saved replies.
type CannedService interface {
	List(ctx context.Context, adminID string) ([]domain.CannedResponse, error)
	Create(ctx context.Context, adminID string, in services.CannedInput) (*domain.CannedResponse, error)
	Delete(ctx context.Context, adminID, id string) error
}

// AnalyticsService aggregates dashboard analytics.
type AnalyticsService interface {
	Summary(ctx context.Context, adminID string, now time.Time) (*services.AnalyticsSummary, error)
}

//
// Handler wiring
//

// Deps lists what New needs. DB is optional: without it ETags, idempotent
// replays and the debug endpoint are disabled.
type Deps struct {
	Configs   ConfigService
	Sessions  SessionService
	Messages  MessageService
	Canned    CannedService
	Analytics AnalyticsService

	DB             *gorm.DB
	IdempotencyTTL time.Duration

	// Script renders widget.js; APIBasePath is injected into it.
	Script      widget.ScriptOptions
	APIBasePath string
	// ScriptMaxAge 0 serves widget.js with no-cache.
	ScriptMaxAge time.Duration
}

// Handlers groups the chat, widget and admin endpoints.
type Handlers struct {
	configs   ConfigService
	sessions  SessionService
	messages  MessageService
	canned    CannedService
	analytics AnalyticsService

	db      *gorm.DB
	idemTTL time.Duration

	script       widget.ScriptOptions
	scriptMaxAge time.Duration

	now func() time.Time
}

// New constructs Handlers from d.
func New(d Deps) *Handlers {
	ttl := d.IdempotencyTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	script := d.Script
	if script.APIPath == "" {
		script.APIPath = d.APIBasePath
	}
	return &Handlers{
		configs:      d.Configs,
		sessions:     d.Sessions,
		messages:     d.Messages,
		canned:       d.Canned,
		analytics:    d.Analytics,
		db:           d.DB,
		idemTTL:      ttl,
		script:       script,
		scriptMaxAge: d.ScriptMaxAge,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// adminID returns the admin authenticated by middleware.AdminAuth.
func adminID(c *gin.Context) string { return middleware.AdminID(c) }

//
// Pagination
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := utils.TotalPages(total, pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination reads page and page_size from the query.
func clampPagination(c *gin.Context, defaultPageSize int) (page, pageSize int) {
	return utils.PageParams(c.Query("page"), c.Query("page_size"), defaultPageSize)
}

// notModified sets a weak ETag built from parts and reports whether the
// client's If-None-Match already matches it.
func notModified(c *gin.Context, kind, scope string, count int64, last *time.Time) bool {
	var ts int64
	if last != nil {
		ts = last.UnixNano()
	}
	etag := fmt.Sprintf(`W/"%s:%s:%d:%d"`, kind, scope, count, ts)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}
