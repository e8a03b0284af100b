package widget

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// restStub mimics the subset of a PostgREST endpoint the direct strategy uses.
type restStub struct {
	t *testing.T

	mu       sync.Mutex
	sessions []sessionRow
	messages []messageRow
	patches  int
	events   []eventRow
	eventErr bool
	ors      []string
	clock    time.Time
}

func (s *restStub) recorded() ([]eventRow, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]eventRow(nil), s.events...), s.patches
}

func (s *restStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	assert.Equal(s.t, "anon-key", r.Header.Get("apikey"))
	assert.Equal(s.t, "Bearer anon-key", r.Header.Get("Authorization"))
	if r.Method == http.MethodPost {
		assert.Equal(s.t, "return=representation", r.Header.Get("Prefer"))
	}
	q := r.URL.Query()
	write := func(status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}

	switch {
	case r.URL.Path == "/rest/v1/chatbot_configs" && r.Method == http.MethodGet:
		if q.Get("id") != "eq.abc123" {
			write(http.StatusOK, []any{})
			return
		}
		row := configRow{Config: acme(), ID: "abc123", AdminID: "admin-1"}
		write(http.StatusOK, []configRow{row})

	case r.URL.Path == "/rest/v1/chat_sessions" && r.Method == http.MethodPost:
		var row sessionRow
		require.NoError(s.t, json.NewDecoder(r.Body).Decode(&row))
		s.sessions = append(s.sessions, row)
		write(http.StatusCreated, []sessionRow{row})

	case r.URL.Path == "/rest/v1/chat_sessions" && r.Method == http.MethodPatch:
		s.patches++
		w.WriteHeader(http.StatusNoContent)

	case r.URL.Path == "/rest/v1/chat_sessions" && r.Method == http.MethodGet:
		out := []map[string]string{}
		for _, row := range s.sessions {
			if "eq."+row.ID == q.Get("id") {
				out = append(out, map[string]string{"admin_id": row.AdminID, "chatbot_id": row.ChatbotID})
			}
		}
		write(http.StatusOK, out)

	case r.URL.Path == "/rest/v1/analytics_events" && r.Method == http.MethodPost:
		if s.eventErr {
			write(http.StatusInternalServerError, map[string]string{"message": "events table unavailable"})
			return
		}
		var ev eventRow
		require.NoError(s.t, json.NewDecoder(r.Body).Decode(&ev))
		s.events = append(s.events, ev)
		write(http.StatusCreated, []eventRow{ev})

	case r.URL.Path == "/rest/v1/chat_messages" && r.Method == http.MethodPost:
		var row messageRow
		require.NoError(s.t, json.NewDecoder(r.Body).Decode(&row))
		for _, m := range s.messages {
			if m.ID == row.ID {
				write(http.StatusConflict, map[string]string{"message": "duplicate key value violates unique constraint"})
				return
			}
		}
		s.clock = s.clock.Add(time.Second)
		ts := s.clock
		row.CreatedAt = &ts
		s.messages = append(s.messages, row)
		write(http.StatusCreated, []messageRow{row})

	case r.URL.Path == "/rest/v1/chat_messages" && r.Method == http.MethodGet:
		out := []messageRow{}
		if id := q.Get("id"); id != "" {
			for _, m := range s.messages {
				if "eq."+m.ID == id {
					out = append(out, m)
				}
			}
			write(http.StatusOK, out)
			return
		}
		assert.Equal(s.t, "created_at.asc,id.asc", q.Get("order"))
		start := 0
		if or := q.Get("or"); or != "" {
			s.ors = append(s.ors, or)
			after := strings.TrimSuffix(or[strings.LastIndex(or, "id.gt.")+len("id.gt."):], "))")
			for i, m := range s.messages {
				if m.ID == after {
					start = i + 1
				}
			}
		}
		for _, m := range s.messages[start:] {
			if "eq."+m.SessionID == q.Get("session_id") {
				out = append(out, m)
			}
		}
		write(http.StatusOK, out)

	default:
		http.NotFound(w, r)
	}
}

func newDirect(t *testing.T) (*DirectTransport, *restStub) {
	t.Helper()
	stub := &restStub{t: t, clock: t0}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	d := NewDirectTransport(srv.URL+"/", "anon-key", srv.Client())
	d.now = func() time.Time { return t0 }
	t.Cleanup(d.Wait)
	return d, stub
}

func TestDirectTransport_SessionAndMessages(t *testing.T) {
	d, stub := newDirect(t)
	ctx := context.Background()

	cfg, err := d.ResolveConfig(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "Acme Support", cfg.WidgetTitle)

	sid, err := d.StartSession(ctx, "abc123", Visitor{Name: "Jane"})
	require.NoError(t, err)
	require.Len(t, stub.sessions, 1)
	row := stub.sessions[0]
	assert.Equal(t, sid, row.ID)
	assert.Equal(t, "admin-1", row.AdminID)
	assert.Equal(t, "active", row.Status)
	assert.Nil(t, row.VisitorEmail)
	assert.NotEmpty(t, row.VisitorID)

	key := uuid.NewString()
	first, err := d.Send(ctx, sid, "Hello", key)
	require.NoError(t, err)
	assert.Equal(t, key, first.MessageID)

	again, err := d.Send(ctx, sid, "Hello", key)
	require.NoError(t, err, "a conflicting retry counts as stored")
	assert.Equal(t, first, again)
	d.Wait()
	assert.Len(t, stub.messages, 1)
	assert.Equal(t, "admin-1", stub.messages[0].AdminID)
	_, patches := stub.recorded()
	assert.Equal(t, 2, patches)

	second, err := d.Send(ctx, sid, "Anyone?", "not-a-uuid")
	require.NoError(t, err)
	assert.Equal(t, messageID("not-a-uuid"), second.MessageID)

	all, err := d.FetchNewSince(ctx, sid, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, key, all[0].ID)

	next, err := d.FetchNewSince(ctx, sid, key)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, second.MessageID, next[0].ID)
	require.Len(t, stub.ors, 1)
	assert.Contains(t, stub.ors[0], "created_at.gt.")

	gone, err := d.FetchNewSince(ctx, sid, uuid.NewString())
	require.NoError(t, err)
	assert.NotNil(t, gone)
	assert.Empty(t, gone)
}

func TestDirectTransport_StartSessionResolvesOwner(t *testing.T) {
	d, stub := newDirect(t)

	sid, err := d.StartSession(context.Background(), "abc123", Visitor{Email: "jane@example.com"})
	require.NoError(t, err)
	assert.NotEmpty(t, sid)
	require.Len(t, stub.sessions, 1)
	assert.Equal(t, DefaultVisitorName, stub.sessions[0].VisitorName)
	require.NotNil(t, stub.sessions[0].VisitorEmail)
	assert.Equal(t, "jane@example.com", *stub.sessions[0].VisitorEmail)
}

func TestDirectTransport_RecordsPageAndAnalytics(t *testing.T) {
	d, stub := newDirect(t)
	d.Page = PageContext{UserAgent: "Mozilla/5.0", Referrer: "https://shop.example/pricing"}
	ctx := context.Background()

	sid, err := d.StartSession(ctx, "abc123", Visitor{Name: "Jane"})
	require.NoError(t, err)
	key := uuid.NewString()
	_, err = d.Send(ctx, sid, "héllo", key)
	require.NoError(t, err)
	_, err = d.Send(ctx, sid, "héllo", key)
	require.NoError(t, err)
	d.Wait()

	require.Len(t, stub.sessions, 1)
	assert.Equal(t, d.Page, stub.sessions[0].Metadata)

	events, _ := stub.recorded()
	require.Len(t, events, 2, "a replayed send records no second event")
	started, sent := events[0], events[1]
	assert.Equal(t, "session_started", started.EventType)
	assert.Equal(t, "admin-1", started.AdminID)
	assert.Equal(t, sid, started.SessionID)
	require.NotNil(t, started.ChatbotID)
	assert.Equal(t, "abc123", *started.ChatbotID)

	assert.Equal(t, "message_sent", sent.EventType)
	assert.Equal(t, sid, sent.SessionID)
	assert.Equal(t, "visitor", sent.EventData["sender_type"])
	assert.EqualValues(t, 5, sent.EventData["message_length"])
	assert.NotContains(t, sent.EventData, "content")
}

func TestDirectTransport_AnalyticsFailureIsSwallowed(t *testing.T) {
	d, stub := newDirect(t)
	stub.eventErr = true
	ctx := context.Background()

	sid, err := d.StartSession(ctx, "abc123", Visitor{Name: "Jane"})
	require.NoError(t, err)
	res, err := d.Send(ctx, sid, "Hello", uuid.NewString())
	require.NoError(t, err)
	assert.NotEmpty(t, res.MessageID)
	d.Wait()

	events, patches := stub.recorded()
	assert.Empty(t, events)
	assert.Equal(t, 1, patches)
}

func TestNewDirectTransport_AcceptsRESTPath(t *testing.T) {
	stub := &restStub{t: t, clock: t0}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	for _, u := range []string{srv.URL, srv.URL + "/", srv.URL + "/rest/v1", srv.URL + "/rest/v1/"} {
		d := NewDirectTransport(u, "anon-key", srv.Client())
		cfg, err := d.ResolveConfig(context.Background(), "abc123")
		require.NoError(t, err, u)
		assert.Equal(t, "Acme Support", cfg.WidgetTitle, u)
	}
}

func TestDirectTransport_Errors(t *testing.T) {
	d, _ := newDirect(t)
	ctx := context.Background()

	_, err := d.ResolveConfig(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = d.ResolveConfig(ctx, "")
	assert.ErrorIs(t, err, ErrBadRequest)

	_, err = d.Send(ctx, "unknown-session", "hi", "k")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = d.FetchNewSince(ctx, "", "")
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestMessageID_Deterministic(t *testing.T) {
	assert.Equal(t, messageID("abc"), messageID("abc"))
	assert.NotEqual(t, messageID("abc"), messageID("abd"))
	u := uuid.NewString()
	assert.Equal(t, u, messageID(u))
	assert.NotEqual(t, messageID(""), messageID(""))
}
