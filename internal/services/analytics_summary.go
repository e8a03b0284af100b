package services

import (
	"context"
	"math"
	"net/url"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-livechat-backend/internal/domain"
	"github.com/tbourn/go-livechat-backend/internal/repo"
)

// DailyPoint is one day of the 30-day activity series.
type DailyPoint struct {
	Date     string `json:"date"`
	Sessions int    `json:"sessions"`
	Messages int    `json:"messages"`
}

// LabeledValue is a percentage bucket.
type LabeledValue struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

// PageCount is a referrer path with its share of sessions.
type PageCount struct {
	Page    string `json:"page"`
	Count   int    `json:"count"`
	Percent int    `json:"percent"`
}

// AnalyticsSummary is the admin dashboard aggregate.
type AnalyticsSummary struct {
	TotalSessions            int64          `json:"total_sessions"`
	TotalMessages            int64          `json:"total_messages"`
	ActiveSessions           int64          `json:"active_sessions"`
	SessionsChange           int            `json:"sessions_change"`
	MessagesChange           int            `json:"messages_change"`
	AvgResponseTimeMinutes   float64        `json:"avg_response_time"`
	ResponseTimeDistribution []LabeledValue `json:"response_time_distribution"`
	DailyData                []DailyPoint   `json:"daily_data"`
	PeakHours                []LabeledValue `json:"peak_hours"`
	TopPages                 []PageCount    `json:"top_pages"`
}

// AnalyticsService computes dashboard aggregates from sessions and messages.
type AnalyticsService struct {
	DB *gorm.DB
}

const day = 24 * time.Hour

// Summary aggregates the activity of adminID relative to now. Hour buckets
// and day keys are computed in UTC.
func (s *AnalyticsService) Summary(ctx context.Context, adminID string, now time.Time) (*AnalyticsSummary, error) {
	tr := otel.Tracer("services/AnalyticsService")
	ctx, span := tr.Start(ctx, "Summary",
		trace.WithAttributes(attribute.String("admin.id", adminID)),
	)
	defer span.End()

	now = now.UTC()
	d7, d14, d30 := now.Add(-7*day), now.Add(-14*day), now.Add(-30*day)
	never := time.Time{}
	future := now.Add(time.Hour)

	out := &AnalyticsSummary{}
	var err error
	if out.TotalSessions, err = repo.CountSessionsBetween(ctx, s.DB, adminID, never, future); err != nil {
		return nil, err
	}
	if out.TotalMessages, err = repo.CountMessagesBetween(ctx, s.DB, adminID, never, future); err != nil {
		return nil, err
	}
	if out.ActiveSessions, err = repo.CountActiveSessions(ctx, s.DB, adminID); err != nil {
		return nil, err
	}

	curS, err := repo.CountSessionsBetween(ctx, s.DB, adminID, d7, future)
	if err != nil {
		return nil, err
	}
	prevS, err := repo.CountSessionsBetween(ctx, s.DB, adminID, d14, d7)
	if err != nil {
		return nil, err
	}
	curM, err := repo.CountMessagesBetween(ctx, s.DB, adminID, d7, future)
	if err != nil {
		return nil, err
	}
	prevM, err := repo.CountMessagesBetween(ctx, s.DB, adminID, d14, d7)
	if err != nil {
		return nil, err
	}
	out.SessionsChange = percentChange(curS, prevS)
	out.MessagesChange = percentChange(curM, prevM)

	sessions, err := repo.ListSessionPointsSince(ctx, s.DB, adminID, d30)
	if err != nil {
		return nil, err
	}
	messages, err := repo.ListMessagePointsSince(ctx, s.DB, adminID, d30)
	if err != nil {
		return nil, err
	}
	allSessions, err := repo.ListSessionPointsSince(ctx, s.DB, adminID, never)
	if err != nil {
		return nil, err
	}

	out.DailyData = dailySeries(now, sessions, messages)
	out.AvgResponseTimeMinutes, out.ResponseTimeDistribution = responseTimes(messages)
	out.PeakHours = peakHours(sessions)
	out.TopPages = topPages(allSessions, 5)
	return out, nil
}

// round half up, the way dashboards usually present percentages.
func round(x float64) int { return int(math.Floor(x + 0.5)) }

func percentChange(cur, prev int64) int {
	switch {
	case prev > 0:
		return round(float64(cur-prev) / float64(prev) * 100)
	case cur > 0:
		return 100
	default:
		return 0
	}
}

func dailySeries(now time.Time, sessions []repo.SessionPoint, messages []repo.MessagePoint) []DailyPoint {
	out := make([]DailyPoint, 30)
	idx := make(map[string]int, 30)
	for i := 29; i >= 0; i-- {
		k := now.Add(-time.Duration(i) * day).Format(time.DateOnly)
		out[29-i] = DailyPoint{Date: k}
		idx[k] = 29 - i
	}
	for _, p := range sessions {
		if j, ok := idx[p.CreatedAt.UTC().Format(time.DateOnly)]; ok {
			out[j].Sessions++
		}
	}
	for _, p := range messages {
		if j, ok := idx[p.CreatedAt.UTC().Format(time.DateOnly)]; ok {
			out[j].Messages++
		}
	}
	return out
}

// responseTimes measures admin replies that directly follow a visitor
// message in the same session. messages must be grouped by session and
// ordered chronologically within each group.
func responseTimes(messages []repo.MessagePoint) (float64, []LabeledValue) {
	var buckets [4]int
	var total time.Duration
	n := 0
	for i := 1; i < len(messages); i++ {
		prev, cur := messages[i-1], messages[i]
		if prev.SessionID != cur.SessionID {
			continue
		}
		if cur.SenderType != domain.SenderAdmin || prev.SenderType != domain.SenderVisitor {
			continue
		}
		diff := cur.CreatedAt.Sub(prev.CreatedAt)
		total += diff
		n++
		switch m := diff.Minutes(); {
		case m < 1:
			buckets[0]++
		case m < 5:
			buckets[1]++
		case m < 30:
			buckets[2]++
		default:
			buckets[3]++
		}
	}

	labels := [4]string{"Under 1 min", "1-5 mins", "5-30 mins", "Over 30 mins"}
	dist := make([]LabeledValue, 4)
	for i := range labels {
		dist[i].Label = labels[i]
		if n > 0 {
			dist[i].Value = round(float64(buckets[i]) / float64(n) * 100)
		}
	}
	if n == 0 {
		return 0, dist
	}
	avg := total.Minutes() / float64(n)
	return math.Floor(avg*10+0.5) / 10, dist
}

func peakHours(sessions []repo.SessionPoint) []LabeledValue {
	out := []LabeledValue{
		{Label: "6 AM - 12 PM"},
		{Label: "12 PM - 6 PM"},
		{Label: "6 PM - 12 AM"},
		{Label: "12 AM - 6 AM"},
	}
	for _, p := range sessions {
		switch h := p.CreatedAt.UTC().Hour(); {
		case h >= 6 && h < 12:
			out[0].Value++
		case h >= 12 && h < 18:
			out[1].Value++
		case h >= 18:
			out[2].Value++
		default:
			out[3].Value++
		}
	}
	if len(sessions) > 0 {
		for i := range out {
			out[i].Value = round(float64(out[i].Value) / float64(len(sessions)) * 100)
		}
	}
	return out
}

// referrerPage reduces an absolute referrer to its path; anything that is
// not an absolute URL is counted verbatim.
func referrerPage(ref string) string {
	u, err := url.Parse(ref)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ref
	}
	if u.Path == "" {
		return "/"
	}
	return u.Path
}

func topPages(sessions []repo.SessionPoint, limit int) []PageCount {
	counts := map[string]int{}
	total := 0
	for _, p := range sessions {
		if p.Metadata.Referrer == "" {
			continue
		}
		counts[referrerPage(p.Metadata.Referrer)]++
		total++
	}
	out := make([]PageCount, 0, len(counts))
	for page, c := range counts {
		out = append(out, PageCount{Page: page, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Page < out[j].Page
	})
	if len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Percent = round(float64(out[i].Count) / float64(total) * 100)
	}
	return out
}
