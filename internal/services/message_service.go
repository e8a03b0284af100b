// Package services – MessageService
//
// MessageService is the message channel shared by visitors, admins and the
// auto-responder. Send validates and stores one immutable message, then
// performs the best-effort side effects: the session activity bump, the
// message_sent analytics event and, for visitor messages, the auto-responder
// hook. FetchNewSince implements the polling read used by the widget.
//
// Observability: public methods are OpenTelemetry-instrumented with session
// identifiers as span attributes.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/tbourn/go-livechat-backend/internal/domain"
	"github.com/tbourn/go-livechat-backend/internal/observability"
	"github.com/tbourn/go-livechat-backend/internal/repo"
)

// PollPageSize caps a single FetchNewSince result.
const PollPageSize = 50

// SendInput is one message to store. Sender defaults to visitor.
type SendInput struct {
	SessionID string
	Content   string
	Sender    string
}

// MessageObserver is notified after a visitor message has been stored.
type MessageObserver interface {
	Observe(ctx context.Context, adminID string, m domain.Message)
}

// MessageService stores and reads chat messages.
type MessageService struct {
	DB        *gorm.DB
	Analytics AnalyticsSink
	Responder MessageObserver

	// MaxContentRunes rejects longer content; 0 disables the check.
	MaxContentRunes int
	// PageSize caps polling reads; defaults to PollPageSize.
	PageSize int
	// ActivityTimeout bounds the detached last-activity write; defaults to 5s.
	ActivityTimeout time.Duration

	bumps sync.WaitGroup
}

// sanitizeContent normalizes line endings and Unicode form, then trims.
func sanitizeContent(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(norm.NFC.String(s))
}

// Send stores a message in the session and returns it.
func (s *MessageService) Send(ctx context.Context, in SendInput) (*domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("session.id", in.SessionID),
			attribute.String("sender", in.Sender),
		),
	)
	defer span.End()

	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, ErrMissingSessionID
	}
	content := sanitizeContent(in.Content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if s.MaxContentRunes > 0 && utf8.RuneCountInString(content) > s.MaxContentRunes {
		return nil, ErrContentTooLong
	}
	sender := strings.TrimSpace(in.Sender)
	if sender == "" {
		sender = domain.SenderVisitor
	}
	if !domain.ValidSender(sender) {
		return nil, ErrInvalidSenderRole
	}

	adminID, err := repo.SessionOwner(ctx, s.DB, sessionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("resolve session: %w", err)
	}

	m, err := repo.CreateMessage(ctx, s.DB, sessionID, adminID, sender, content)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("create message: %w", err)
	}
	observability.MessagesSent.WithLabelValues(sender).Inc()

	s.touch(ctx, sessionID, m.CreatedAt)

	if s.Analytics != nil {
		s.Analytics.Emit(ctx, domain.AnalyticsEvent{
			AdminID:   adminID,
			SessionID: strPtr(sessionID),
			EventType: domain.EventMessageSent,
			EventData: domain.EventData{
				"sender_type":    sender,
				"message_length": utf8.RuneCountInString(content),
			},
		})
	}
	if s.Responder != nil && sender == domain.SenderVisitor {
		s.Responder.Observe(ctx, adminID, *m)
	}
	return m, nil
}

// touch bumps the session's last activity off the request path. A failure
// only degrades the admin list order and is logged.
func (s *MessageService) touch(ctx context.Context, sessionID string, at time.Time) {
	timeout := s.ActivityTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	bg := context.WithoutCancel(ctx)

	s.bumps.Add(1)
	go func() {
		defer s.bumps.Done()
		wctx, cancel := context.WithTimeout(bg, timeout)
		defer cancel()
		if err := repo.TouchSession(wctx, s.DB, sessionID, at); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("session activity bump failed")
		}
	}()
}

// Wait blocks until pending activity bumps have finished.
func (s *MessageService) Wait() { s.bumps.Wait() }

// FetchNewSince returns up to PageSize messages strictly after afterID in
// (created_at, id) order. An empty afterID reads from the start of the
// session. An afterID that does not resolve yields an empty list.
func (s *MessageService) FetchNewSince(ctx context.Context, sessionID, afterID string) ([]domain.Message, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "FetchNewSince",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("after", afterID),
		),
	)
	defer span.End()

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrMissingSessionID
	}
	limit := s.PageSize
	if limit <= 0 {
		limit = PollPageSize
	}

	var (
		out []domain.Message
		err error
	)
	if afterID = strings.TrimSpace(afterID); afterID == "" {
		out, err = repo.ListMessages(ctx, s.DB, sessionID, limit)
	} else {
		out, err = repo.ListMessagesAfter(ctx, s.DB, sessionID, afterID, limit)
	}
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Message{}
	}
	return out, nil
}

// ListForAdmin returns a page of a session's messages after checking the
// session belongs to adminID.
func (s *MessageService) ListForAdmin(ctx context.Context, adminID, sessionID string, page, pageSize int) ([]domain.Message, int64, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "ListForAdmin",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = PollPageSize
	}
	offset := (page - 1) * pageSize

	if _, err := repo.GetSessionForAdmin(ctx, s.DB, sessionID, adminID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, 0, ErrSessionNotFound
		}
		return nil, 0, err
	}

	total, err := repo.CountMessages(ctx, s.DB, sessionID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	items, err := repo.ListMessagesPage(ctx, s.DB, sessionID, offset, pageSize)
	return items, total, err
}

// Reply stores an admin message in one of the admin's sessions.
func (s *MessageService) Reply(ctx context.Context, adminID, sessionID, content string) (*domain.Message, error) {
	owner, err := repo.SessionOwner(ctx, s.DB, sessionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if owner != adminID {
		return nil, ErrSessionNotFound
	}
	return s.Send(ctx, SendInput{SessionID: sessionID, Content: content, Sender: domain.SenderAdmin})
}

// MarkRead flags the visitor's messages in the session as read by the admin.
func (s *MessageService) MarkRead(ctx context.Context, adminID, sessionID string) (int64, error) {
	if _, err := repo.GetSessionForAdmin(ctx, s.DB, sessionID, adminID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return 0, ErrSessionNotFound
		}
		return 0, err
	}
	return repo.MarkRead(ctx, s.DB, sessionID, domain.SenderVisitor)
}
