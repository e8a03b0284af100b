package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-livechat-backend/internal/http/middleware"
	"github.com/tbourn/go-livechat-backend/internal/repo"
	"github.com/tbourn/go-livechat-backend/internal/services"
)

const envSecret = "handlers-test-secret"

// env is a chat backend on an in-memory store with the admin gate in front
// of /admin.
type env struct {
	r         *gin.Engine
	db        *gorm.DB
	h         *Handlers
	analytics *services.AsyncAnalytics
	chatbotID string
}

func newEnv(t *testing.T, name string) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	analytics := &services.AsyncAnalytics{DB: db}
	configs := &services.ConfigService{DB: db}
	msgs := &services.MessageService{DB: db, Analytics: analytics, MaxContentRunes: 200}
	h := New(Deps{
		Configs:     configs,
		Sessions:    &services.SessionService{DB: db, Configs: configs, Analytics: analytics},
		Messages:    msgs,
		Canned:      &services.CannedService{DB: db},
		Analytics:   &services.AnalyticsService{DB: db},
		DB:          db,
		APIBasePath: "/api",
	})

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.IdempotencyValidator(middleware.IdempotencyOptions{Scope: MessageScope}, nil))
	chat := r.Group("/api/chat")
	chat.GET("/config", h.GetConfig)
	chat.POST("/session", h.StartSession)
	chat.POST("/message", h.PostMessage)
	chat.GET("/messages", h.ListMessages)
	chat.GET("/debug", h.Debug)
	r.GET("/widget.js", h.WidgetScript)

	admin := r.Group("/api/admin", middleware.AdminAuth(envSecret))
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

	cfg, err := configs.EnsureForAdmin(context.Background(), "admin-1")
	if err != nil {
		t.Fatalf("seed config: %v", err)
	}
	e := &env{r: r, db: db, h: h, analytics: analytics, chatbotID: cfg.ID}
	t.Cleanup(analytics.Wait)
	t.Cleanup(msgs.Wait)
	return e
}

func (e *env) token(t *testing.T, sub string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(envSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func (e *env) do(method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func (e *env) admin(t *testing.T, method, path string, body any, sub string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(method, path, body, map[string]string{"Authorization": "Bearer " + e.token(t, sub)})
}

// startSession opens a visitor session on the seeded chatbot.
func (e *env) startSession(t *testing.T) string {
	t.Helper()
	s, err := (&services.SessionService{DB: e.db}).Start(context.Background(), services.StartSessionInput{ChatbotID: e.chatbotID, VisitorName: "Jane"})
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	return s.ID
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func wantStatus(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status=%d want %d body=%s", w.Code, status, w.Body.String())
	}
}
