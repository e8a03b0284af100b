// Package services – SessionService
//
// SessionService establishes visitor sessions and exposes the admin-side
// session operations (listing, close/reopen, delete). Starting a session
// resolves the chatbot's owning admin first so the session row carries the
// denormalized admin id.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-livechat-backend/internal/domain"
	"github.com/tbourn/go-livechat-backend/internal/observability"
	"github.com/tbourn/go-livechat-backend/internal/repo"
)

// StartSessionInput is what a visitor (or the request around it) supplies.
type StartSessionInput struct {
	ChatbotID    string
	VisitorName  string
	VisitorEmail string
	UserAgent    string
	Referrer     string
}

// SessionService manages visitor sessions.
type SessionService struct {
	DB        *gorm.DB
	Configs   *ConfigService
	Analytics AnalyticsSink
}

const (
	maxNameRunes     = 255
	maxEmailRunes    = 255
	maxUserAgentRune = 512
	maxReferrerRunes = 2048
)

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) > n {
		return string([]rune(s)[:n])
	}
	return s
}

func (s *SessionService) owner(ctx context.Context, chatbotID string) (string, error) {
	if s.Configs != nil {
		return s.Configs.Owner(ctx, chatbotID)
	}
	if strings.TrimSpace(chatbotID) == "" {
		return "", ErrMissingChatbotID
	}
	adminID, err := repo.ConfigOwner(ctx, s.DB, chatbotID)
	if errors.Is(err, repo.ErrNotFound) {
		return "", ErrChatbotNotFound
	}
	return adminID, err
}

// Start creates an active session for the chatbot. A store write failure is
// returned wrapped so operators can read the store's diagnostic.
func (s *SessionService) Start(ctx context.Context, in StartSessionInput) (*domain.Session, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "Start",
		trace.WithAttributes(attribute.String("chatbot.id", in.ChatbotID)),
	)
	defer span.End()

	chatbotID := strings.TrimSpace(in.ChatbotID)
	if chatbotID == "" {
		return nil, ErrMissingChatbotID
	}
	adminID, err := s.owner(ctx, chatbotID)
	if err != nil {
		return nil, err
	}

	name := clip(strings.TrimSpace(in.VisitorName), maxNameRunes)
	if name == "" {
		name = domain.DefaultVisitorName
	}
	sess := &domain.Session{
		AdminID:      adminID,
		ChatbotID:    chatbotID,
		VisitorName:  name,
		VisitorEmail: strPtr(clip(strings.TrimSpace(in.VisitorEmail), maxEmailRunes)),
		Status:       domain.SessionActive,
		Metadata: domain.SessionMetadata{
			UserAgent: clip(in.UserAgent, maxUserAgentRune),
			Referrer:  clip(in.Referrer, maxReferrerRunes),
		},
	}
	if err := repo.CreateSession(ctx, s.DB, sess); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("create session: %w", err)
	}
	observability.SessionsStarted.Inc()

	if s.Analytics != nil {
		s.Analytics.Emit(ctx, domain.AnalyticsEvent{
			AdminID:   adminID,
			ChatbotID: strPtr(chatbotID),
			SessionID: strPtr(sess.ID),
			EventType: domain.EventSessionStarted,
			EventData: domain.EventData{"visitor_name": sess.VisitorName},
		})
	}
	return sess, nil
}

// ListPage returns a page of the admin's sessions, most recent activity
// first. status "" lists every session.
func (s *SessionService) ListPage(ctx context.Context, adminID, status string, page, pageSize int) ([]domain.Session, int64, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("admin.id", adminID),
			attribute.String("status", status),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if status != "" && !domain.ValidStatus(status) {
		return nil, 0, ErrInvalidStatus
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountSessions(ctx, s.DB, adminID, status)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Session{}, 0, nil
	}
	items, err := repo.ListSessionsPage(ctx, s.DB, adminID, status, offset, pageSize)
	return items, total, err
}

// Get returns one of the admin's sessions.
func (s *SessionService) Get(ctx context.Context, adminID, sessionID string) (*domain.Session, error) {
	sess, err := repo.GetSessionForAdmin(ctx, s.DB, sessionID, adminID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	return sess, err
}

// SetStatus closes or reopens a session.
func (s *SessionService) SetStatus(ctx context.Context, adminID, sessionID, status string) (*domain.Session, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "SetStatus",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("status", status),
		),
	)
	defer span.End()

	if !domain.ValidStatus(status) {
		return nil, ErrInvalidStatus
	}
	if err := repo.UpdateSessionStatus(ctx, s.DB, sessionID, adminID, status); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return s.Get(ctx, adminID, sessionID)
}

// Delete removes a session and its messages.
func (s *SessionService) Delete(ctx context.Context, adminID, sessionID string) error {
	err := repo.DeleteSession(ctx, s.DB, sessionID, adminID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}
