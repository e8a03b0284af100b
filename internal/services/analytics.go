// Package services – analytics emission
//
// AsyncAnalytics writes AnalyticsEvent rows off the request path. Emission is
// fire-and-forget: the caller never waits and a failed write is only logged
// and counted, so the visitor-facing chat flow is unaffected by analytics
// outages.
package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-livechat-backend/internal/domain"
	"github.com/tbourn/go-livechat-backend/internal/observability"
	"github.com/tbourn/go-livechat-backend/internal/repo"
)

// AnalyticsSink receives best-effort analytics events.
type AnalyticsSink interface {
	Emit(ctx context.Context, ev domain.AnalyticsEvent)
}

// AsyncAnalytics persists events on a background goroutine.
type AsyncAnalytics struct {
	DB      *gorm.DB
	Timeout time.Duration // per write; defaults to 5s

	wg sync.WaitGroup
}

// Emit schedules ev for insertion and returns immediately. The request
// context is detached so a finished request does not cancel the write.
func (a *AsyncAnalytics) Emit(ctx context.Context, ev domain.AnalyticsEvent) {
	if a == nil || a.DB == nil {
		return
	}
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	bg := context.WithoutCancel(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				observability.AnalyticsDropped.WithLabelValues(ev.EventType).Inc()
				log.Warn().Interface("panic", r).Str("event", ev.EventType).Msg("analytics emit panicked")
			}
		}()

		wctx, cancel := context.WithTimeout(bg, timeout)
		defer cancel()
		if err := repo.CreateEvent(wctx, a.DB, &ev); err != nil {
			observability.AnalyticsDropped.WithLabelValues(ev.EventType).Inc()
			log.Warn().Err(err).Str("event", ev.EventType).Str("admin_id", ev.AdminID).Msg("analytics write failed")
		}
	}()
}

// Wait blocks until all scheduled writes have finished. Used on shutdown
// and in tests.
func (a *AsyncAnalytics) Wait() { a.wg.Wait() }

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
