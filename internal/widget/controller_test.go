package widget

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-livechat-backend/internal/chatapi"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	ctl   *Controller
	tr    *fakeTransport
	view  *MemoryView
	sched *manualScheduler
	now   time.Time
	keys  int
}

func newHarness(t *testing.T, chatbotID string, tr *fakeTransport, mod ...func(*Options)) *harness {
	t.Helper()
	h := &harness{tr: tr, view: &MemoryView{}, sched: &manualScheduler{}, now: t0}
	tr.now = t0
	opts := Options{
		ChatbotID:   chatbotID,
		Transport:   tr,
		View:        h.view,
		Scheduler:   h.sched,
		SendBackoff: time.Millisecond,
		Now:         func() time.Time { return h.now },
		NewKey: func() string {
			h.keys++
			return fmt.Sprintf("k%d", h.keys)
		},
	}
	for _, m := range mod {
		m(&opts)
	}
	h.ctl = New(opts)
	t.Cleanup(h.ctl.Unmount)
	return h
}

func (h *harness) at(d time.Duration) {
	h.now = t0.Add(d)
	h.tr.mu.Lock()
	h.tr.now = h.now
	h.tr.mu.Unlock()
}

// chatting boots, opens and starts session s1.
func (h *harness) chatting(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.ctl.Boot(ctx))
	require.NoError(t, h.ctl.Open())
	require.NoError(t, h.ctl.SubmitPreChat(ctx, "Jane", ""))
	_, ok := h.sched.RunNext()
	require.True(t, ok, "first poll must be scheduled")
}

func ids(es []Entry) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.ID
	}
	return out
}

func acme() chatapi.Config {
	return chatapi.Config{
		WidgetTitle:     "Acme Support",
		WelcomeMessage:  "Hi!",
		PrimaryColor:    "#ff0000",
		Position:        "bottom-left",
		PlaceholderText: "Ask away",
	}
}

func TestController_HappyPath(t *testing.T) {
	tr := &fakeTransport{cfg: acme(), sessionID: "s1"}
	h := newHarness(t, "abc123", tr)
	ctx := context.Background()

	require.NoError(t, h.ctl.Boot(ctx))
	snap := h.view.Snapshot()
	assert.True(t, snap.Launcher)
	assert.Equal(t, "Acme Support", snap.Config.WidgetTitle)
	assert.Equal(t, Closed, h.ctl.State().Phase)
	assert.False(t, snap.Open)

	require.NoError(t, h.ctl.Open())
	snap = h.view.Snapshot()
	assert.True(t, snap.Open)
	assert.Equal(t, PanePreChat, snap.Pane)
	assert.Equal(t, PreChat, h.ctl.State().Phase)

	require.NoError(t, h.ctl.SubmitPreChat(ctx, " Jane ", ""))
	require.Equal(t, []Visitor{{Name: "Jane"}}, tr.starts)
	st := h.ctl.State()
	assert.Equal(t, "s1", st.SessionID)
	assert.Equal(t, Chatting, st.Phase)
	assert.True(t, h.ctl.Polling())

	snap = h.view.Snapshot()
	assert.Equal(t, PaneThread, snap.Pane)
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, WelcomeID("s1"), snap.Entries[0].ID)
	assert.Equal(t, "Hi!", snap.Entries[0].Content)
	assert.Equal(t, "bot", snap.Entries[0].Sender)

	d, ok := h.sched.RunNext()
	require.True(t, ok)
	assert.Equal(t, time.Duration(0), d)

	h.at(time.Second)
	require.NoError(t, h.ctl.Send(ctx, "Hello"))
	assert.Equal(t, []sendCall{{"s1", "Hello", "k1"}}, tr.sent())

	tr.add(chatapi.Message{ID: "m-bot", Content: "How can I help?", SenderType: "bot", CreatedAt: t0.Add(2 * time.Second)})
	d, ok = h.sched.RunNext()
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, d)

	snap = h.view.Snapshot()
	assert.Equal(t, []string{"welcome:s1", "local:k1", "m-bot"}, ids(snap.Entries))
	assert.True(t, snap.Entries[1].Local)

	st = h.ctl.State()
	assert.Equal(t, "m-bot", st.Cursor)
	assert.Contains(t, st.Known, "srv-k1")
	assert.Equal(t, 1, h.sched.Pending())
}

func TestController_MissingChatbotID(t *testing.T) {
	tr := &fakeTransport{cfg: acme()}
	h := newHarness(t, "  ", tr)

	err := h.ctl.Boot(context.Background())
	require.ErrorIs(t, err, ErrMissingChatbotID)
	assert.Equal(t, Unrecoverable, h.ctl.State().Phase)
	assert.ErrorIs(t, h.ctl.Open(), ErrNotReady)

	h.ctl.Unmount()
	assert.Zero(t, tr.calls())
	assert.Equal(t, Snapshot{}, h.view.Snapshot())
}

func TestController_ConfigFailureUsesDefaults(t *testing.T) {
	tr := &fakeTransport{cfgErr: fmt.Errorf("%w: status 500", ErrUpstream)}
	h := newHarness(t, "abc123", tr)

	require.NoError(t, h.ctl.Boot(context.Background()))
	snap := h.view.Snapshot()
	assert.True(t, snap.Launcher)
	assert.Equal(t, DefaultConfig(), snap.Config)
	assert.Equal(t, Closed, h.ctl.State().Phase)
}

func TestController_SlowConfigRendersDefaultsThenApplies(t *testing.T) {
	gate := make(chan struct{})
	tr := &fakeTransport{cfg: acme(), cfgGate: gate}
	h := newHarness(t, "abc123", tr, func(o *Options) { o.ConfigTimeout = 10 * time.Millisecond })

	require.NoError(t, h.ctl.Boot(context.Background()))
	assert.Equal(t, DefaultConfig(), h.view.Snapshot().Config)
	assert.True(t, h.view.Snapshot().Launcher)

	close(gate)
	require.Eventually(t, func() bool {
		return h.view.Snapshot().Config.WidgetTitle == "Acme Support"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, Closed, h.ctl.State().Phase)
}

func TestController_ApplyConfigIdempotent(t *testing.T) {
	h := newHarness(t, "abc123", &fakeTransport{cfg: DefaultConfig()})
	require.NoError(t, h.ctl.Boot(context.Background()))

	h.ctl.ApplyConfig(acme())
	first := h.view.Snapshot()
	h.ctl.ApplyConfig(acme())
	assert.Equal(t, first, h.view.Snapshot())
	assert.Equal(t, acme(), h.ctl.State().Config)
}

func TestController_WhitespaceSendIsDropped(t *testing.T) {
	tr := &fakeTransport{cfg: acme(), sessionID: "s1"}
	h := newHarness(t, "abc123", tr)
	h.chatting(t)
	before := len(h.view.Snapshot().Entries)

	assert.ErrorIs(t, h.ctl.Send(context.Background(), " \n\t "), ErrEmptyMessage)
	assert.Empty(t, tr.sent())
	assert.Len(t, h.view.Snapshot().Entries, before)
}

func TestController_SendBeforeSession(t *testing.T) {
	tr := &fakeTransport{cfg: acme(), sessionID: "s1"}
	h := newHarness(t, "abc123", tr)
	require.NoError(t, h.ctl.Boot(context.Background()))

	assert.ErrorIs(t, h.ctl.Send(context.Background(), "hello"), ErrNotChatting)
	assert.Empty(t, tr.sent())
}

func TestController_SendRetriesWithSameKey(t *testing.T) {
	tr := &fakeTransport{cfg: acme(), sessionID: "s1"}
	tr.sendErrs = []error{fmt.Errorf("%w: status 503", ErrUpstream), nil}
	h := newHarness(t, "abc123", tr)
	h.chatting(t)

	require.NoError(t, h.ctl.Send(context.Background(), "Hello"))
	sends := tr.sent()
	require.Len(t, sends, 2)
	assert.Equal(t, sends[0], sends[1])

	// the optimistic line is shown once regardless of retries
	n := 0
	for _, e := range h.view.Snapshot().Entries {
		if e.Sender == "visitor" {
			n++
		}
	}
	assert.Equal(t, 1, n)
}

func TestController_SendStopsOnBadRequest(t *testing.T) {
	tr := &fakeTransport{cfg: acme(), sessionID: "s1"}
	tr.sendErrs = []error{fmt.Errorf("%w: content too long", ErrBadRequest)}
	h := newHarness(t, "abc123", tr)
	h.chatting(t)

	err := h.ctl.Send(context.Background(), "Hello")
	assert.ErrorIs(t, err, ErrBadRequest)
	assert.Len(t, tr.sent(), 1)
	assert.Contains(t, ids(h.view.Snapshot().Entries), "local:k1")
}

func TestController_SendGivesUpAfterAttempts(t *testing.T) {
	tr := &fakeTransport{cfg: acme(), sessionID: "s1"}
	boom := fmt.Errorf("%w: down", ErrUpstream)
	tr.sendErrs = []error{boom, boom, boom, boom}
	h := newHarness(t, "abc123", tr)
	h.chatting(t)

	assert.ErrorIs(t, h.ctl.Send(context.Background(), "Hello"), ErrUpstream)
	assert.Len(t, tr.sent(), 3)
}

func TestController_PollOrdersByCreatedAt(t *testing.T) {
	tr := &fakeTransport{cfg: acme(), sessionID: "s1"}
	h := newHarness(t, "abc123", tr)
	h.chatting(t)

	h.at(5 * time.Second)
	require.NoError(t, h.ctl.Send(context.Background(), "late local"))

	tr.add(chatapi.Message{ID: "a1", Content: "earlier", SenderType: "admin", CreatedAt: t0.Add(3 * time.Second)})
	tr.add(chatapi.Message{ID: "a2", Content: "tie", SenderType: "admin", CreatedAt: t0.Add(5 * time.Second)})
	h.sched.RunNext()

	assert.Equal(t, []string{"welcome:s1", "a1", "local:k1", "a2"}, ids(h.view.Snapshot().Entries))
}

func TestController_OrderingIgnoresVisitorClock(t *testing.T) {
	tr := &fakeTransport{cfg: acme(), sessionID: "s1"}
	h := newHarness(t, "abc123", tr)
	h.now = t0.Add(11 * time.Second)
	h.chatting(t)

	// The store's clock is ten seconds behind the visitor's.
	tr.mu.Lock()
	tr.now = t0.Add(time.Second)
	tr.mu.Unlock()
	require.NoError(t, h.ctl.Send(context.Background(), "hello"))

	tr.add(chatapi.Message{ID: "a1", Content: "hi, how can I help?", SenderType: "admin", CreatedAt: t0.Add(5 * time.Second)})
	h.sched.RunNext()

	assert.Equal(t, []string{"welcome:s1", "local:k1", "a1"}, ids(h.view.Snapshot().Entries))
}

func TestController_ReplyPolledBeforeConfirmationStaysBelow(t *testing.T) {
	tr := &fakeTransport{cfg: acme(), sessionID: "s1"}
	h := newHarness(t, "abc123", tr)
	h.chatting(t)

	gate := make(chan struct{})
	slow := &gatedSend{fakeTransport: tr, gate: gate}
	h.ctl.opts.Transport = slow

	done := make(chan error, 1)
	go func() { done <- h.ctl.Send(context.Background(), "hello") }()
	require.Eventually(t, func() bool {
		return len(h.view.Snapshot().Entries) == 2
	}, time.Second, time.Millisecond)

	tr.add(chatapi.Message{ID: "a1", Content: "hi", SenderType: "admin", CreatedAt: t0.Add(2 * time.Second)})
	h.sched.RunNext()

	h.at(9 * time.Second)
	close(gate)
	require.NoError(t, <-done)

	tr.add(chatapi.Message{ID: "a2", Content: "anything else?", SenderType: "admin", CreatedAt: t0.Add(3 * time.Second)})
	h.sched.RunNext()

	assert.Equal(t, []string{"welcome:s1", "local:k1", "a1", "a2"}, ids(h.view.Snapshot().Entries))
}

func TestController_PollDedupes(t *testing.T) {
	tr := &fakeTransport{cfg: acme(), sessionID: "s1", ignoreCursor: true}
	h := newHarness(t, "abc123", tr)
	h.chatting(t)

	tr.add(chatapi.Message{ID: "b1", Content: "one", SenderType: "bot", CreatedAt: t0.Add(time.Second)})
	h.sched.RunNext()
	h.sched.RunNext()
	h.sched.RunNext()

	assert.Equal(t, []string{"welcome:s1", "b1"}, ids(h.view.Snapshot().Entries))
	assert.Equal(t, "b1", h.ctl.State().Cursor)
}

func TestController_PollRecoversAfterFailure(t *testing.T) {
	tr := &fakeTransport{cfg: acme(), sessionID: "s1"}
	h := newHarness(t, "abc123", tr)
	h.chatting(t)

	tr.add(chatapi.Message{ID: "b1", Content: "one", SenderType: "bot", CreatedAt: t0.Add(time.Second)})
	tr.mu.Lock()
	tr.fetchErr = fmt.Errorf("%w: status 502", ErrUpstream)
	tr.mu.Unlock()

	h.sched.RunNext()
	assert.Len(t, h.view.Snapshot().Entries, 1)
	assert.Empty(t, h.ctl.State().Cursor)
	assert.True(t, h.ctl.Polling())
	assert.Equal(t, 1, h.sched.Pending())

	tr.mu.Lock()
	tr.fetchErr = nil
	tr.mu.Unlock()
	h.sched.RunNext()
	assert.Equal(t, []string{"welcome:s1", "b1"}, ids(h.view.Snapshot().Entries))
}

func TestController_ClosedWindowBuffers(t *testing.T) {
	tr := &fakeTransport{cfg: acme(), sessionID: "s1"}
	h := newHarness(t, "abc123", tr)
	h.chatting(t)

	h.ctl.Close()
	assert.False(t, h.view.Snapshot().Open)
	assert.True(t, h.ctl.Polling())

	tr.add(chatapi.Message{ID: "a1", Content: "are you there?", SenderType: "admin", CreatedAt: t0.Add(time.Minute)})
	h.sched.RunNext()
	assert.Len(t, h.view.Snapshot().Entries, 1)
	assert.Len(t, h.ctl.State().Pending, 1)

	require.NoError(t, h.ctl.Open())
	snap := h.view.Snapshot()
	assert.Equal(t, PaneThread, snap.Pane)
	assert.Equal(t, []string{"welcome:s1", "a1"}, ids(snap.Entries))
	assert.Empty(t, h.ctl.State().Pending)
	assert.Len(t, tr.starts, 1, "pre-chat is asked once per mount")
}

func TestController_SubmitPreChatFailureOffersRetry(t *testing.T) {
	tr := &fakeTransport{cfg: acme(), sessionID: "s1", startErr: fmt.Errorf("%w: status 500", ErrUpstream)}
	h := newHarness(t, "abc123", tr)
	ctx := context.Background()
	require.NoError(t, h.ctl.Boot(ctx))
	require.NoError(t, h.ctl.Open())

	err := h.ctl.SubmitPreChat(ctx, "", "jane@example.com")
	require.ErrorIs(t, err, ErrUpstream)
	assert.NotEmpty(t, h.view.Snapshot().Retry)
	assert.Equal(t, PreChat, h.ctl.State().Phase)
	assert.False(t, h.ctl.Polling())

	tr.mu.Lock()
	tr.startErr = nil
	tr.mu.Unlock()
	require.NoError(t, h.ctl.SubmitPreChat(ctx, "", "jane@example.com"))
	assert.Empty(t, h.view.Snapshot().Retry)
	assert.Equal(t, Visitor{Name: DefaultVisitorName, Email: "jane@example.com"}, tr.starts[1])
}

func TestController_SubmitPreChatSingleFlight(t *testing.T) {
	gate := make(chan struct{})
	tr := &fakeTransport{cfg: acme(), sessionID: "s1", startGate: gate}
	h := newHarness(t, "abc123", tr)
	ctx := context.Background()
	require.NoError(t, h.ctl.Boot(ctx))
	require.NoError(t, h.ctl.Open())

	done := make(chan error, 1)
	go func() { done <- h.ctl.SubmitPreChat(ctx, "Jane", "") }()
	require.Eventually(t, func() bool { return h.ctl.State().Starting }, time.Second, time.Millisecond)

	assert.ErrorIs(t, h.ctl.SubmitPreChat(ctx, "Jane", ""), ErrSessionPending)
	close(gate)
	require.NoError(t, <-done)

	tr.mu.Lock()
	starts := len(tr.starts)
	tr.mu.Unlock()
	assert.Equal(t, 1, starts)
	assert.NoError(t, h.ctl.SubmitPreChat(ctx, "Jane", ""), "a live session makes resubmits no-ops")
}

func TestController_EmptyWelcomeIsSkipped(t *testing.T) {
	cfg := acme()
	cfg.WelcomeMessage = "   "
	h := newHarness(t, "abc123", &fakeTransport{cfg: cfg, sessionID: "s1"})
	h.chatting(t)
	assert.Empty(t, h.view.Snapshot().Entries)
}

func TestController_UnmountStopsPolling(t *testing.T) {
	tr := &fakeTransport{cfg: acme(), sessionID: "s1"}
	h := newHarness(t, "abc123", tr)
	h.chatting(t)
	require.Equal(t, 1, h.sched.Pending())

	h.ctl.Unmount()
	assert.False(t, h.ctl.Polling())
	assert.Zero(t, h.sched.Pending())
	assert.True(t, h.view.Snapshot().Torn)

	tr.mu.Lock()
	fetches := len(tr.fetches)
	tr.mu.Unlock()
	_, ran := h.sched.RunNext()
	assert.False(t, ran)
	assert.Len(t, tr.fetches, fetches)
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "pre-chat", PreChat.String())
	assert.Equal(t, "unrecoverable", Unrecoverable.String())
	assert.Equal(t, "phase(42)", Phase(42).String())
}
