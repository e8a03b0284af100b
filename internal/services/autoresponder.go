package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-livechat-backend/internal/domain"
	"github.com/tbourn/go-livechat-backend/internal/observability"
	"github.com/tbourn/go-livechat-backend/internal/repo"
	"github.com/tbourn/go-livechat-backend/internal/search"
)

// Poster stores a message; satisfied by *MessageService.
type Poster interface {
	Send(ctx context.Context, in SendInput) (*domain.Message, error)
}

// AutoResponder answers visitor messages with the admin's best matching
// canned response, posted as a bot message. It runs after the visitor's
// message is stored and never delays or fails the send.
type AutoResponder struct {
	DB        *gorm.DB
	Poster    Poster
	Threshold float64       // minimum similarity, defaults to 0.32
	Timeout   time.Duration // per reply, defaults to 10s

	wg sync.WaitGroup
}

// Observe implements MessageObserver.
func (a *AutoResponder) Observe(ctx context.Context, adminID string, m domain.Message) {
	if m.SenderType != domain.SenderVisitor {
		return
	}
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	bg := context.WithoutCancel(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Warn().Interface("panic", r).Str("session_id", m.SessionID).Msg("auto-responder panicked")
			}
		}()
		rctx, cancel := context.WithTimeout(bg, timeout)
		defer cancel()
		if _, err := a.Reply(rctx, adminID, m); err != nil {
			log.Warn().Err(err).Str("session_id", m.SessionID).Msg("auto-responder failed")
		}
	}()
}

// Reply matches m against the admin's canned responses and posts the best
// one when it clears the threshold. It returns nil when nothing matched.
func (a *AutoResponder) Reply(ctx context.Context, adminID string, m domain.Message) (*domain.Message, error) {
	tr := otel.Tracer("services/AutoResponder")
	ctx, span := tr.Start(ctx, "Reply",
		trace.WithAttributes(
			attribute.String("session.id", m.SessionID),
			attribute.String("admin.id", adminID),
		),
	)
	defer span.End()

	canned, err := repo.ListCanned(ctx, a.DB, adminID)
	if err != nil || len(canned) == 0 {
		return nil, err
	}

	docs := make([]search.Document, 0, len(canned))
	byID := make(map[string]string, len(canned))
	for _, c := range canned {
		docs = append(docs, search.Document{ID: c.ID, Text: c.Title + "\n" + c.Content})
		byID[c.ID] = c.Content
	}
	idx := search.NewIndex(docs, search.WithStopwords(search.EnglishStopwords))

	hits := idx.TopK(m.Content, 1)
	if len(hits) == 0 {
		return nil, nil
	}
	thr := a.Threshold
	if thr <= 0 {
		thr = 0.32
	}
	span.SetAttributes(attribute.Float64("match.score", hits[0].Score))
	if hits[0].Score < thr {
		return nil, nil
	}

	reply, err := a.Poster.Send(ctx, SendInput{
		SessionID: m.SessionID,
		Content:   strings.TrimSpace(byID[hits[0].ID]),
		Sender:    domain.SenderBot,
	})
	if err != nil {
		return nil, err
	}
	observability.AutoReplies.Inc()
	return reply, nil
}

// Wait blocks until in-flight replies have finished.
func (a *AutoResponder) Wait() { a.wg.Wait() }
