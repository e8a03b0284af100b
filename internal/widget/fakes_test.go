package widget

import (
	"context"
	"sync"
	"time"

	"github.com/tbourn/go-livechat-backend/internal/chatapi"
)

// manualScheduler queues callbacks until the test runs them.
type manualScheduler struct {
	mu    sync.Mutex
	queue []*scheduled
}

type scheduled struct {
	d        time.Duration
	f        func()
	canceled bool
	fired    bool
}

func (m *manualScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &scheduled{d: d, f: f}
	m.queue = append(m.queue, s)
	return func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		if s.canceled || s.fired {
			return false
		}
		s.canceled = true
		return true
	}
}

// RunNext fires the oldest live callback and reports its delay.
func (m *manualScheduler) RunNext() (time.Duration, bool) {
	m.mu.Lock()
	for len(m.queue) > 0 {
		s := m.queue[0]
		m.queue = m.queue[1:]
		if s.canceled {
			continue
		}
		s.fired = true
		m.mu.Unlock()
		s.f()
		return s.d, true
	}
	m.mu.Unlock()
	return 0, false
}

func (m *manualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.queue {
		if !s.canceled {
			n++
		}
	}
	return n
}

type sendCall struct {
	SessionID, Content, Key string
}

// fakeTransport is an in-memory store behind the Transport interface.
type fakeTransport struct {
	mu sync.Mutex

	cfg       chatapi.Config
	cfgErr    error
	cfgGate   chan struct{}
	cfgCalls  int
	sessionID string
	startErr  error
	startGate chan struct{}
	starts    []Visitor

	sendErrs []error
	sends    []sendCall
	now      time.Time

	msgs         []chatapi.Message
	fetchErr     error
	ignoreCursor bool
	fetches      []string
}

func (f *fakeTransport) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfgCalls + len(f.starts) + len(f.sends) + len(f.fetches)
}

func (f *fakeTransport) ResolveConfig(ctx context.Context, _ string) (chatapi.Config, error) {
	f.mu.Lock()
	f.cfgCalls++
	gate := f.cfgGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg, f.cfgErr
}

func (f *fakeTransport) StartSession(ctx context.Context, _ string, v Visitor) (string, error) {
	f.mu.Lock()
	f.starts = append(f.starts, v)
	gate := f.startGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return "", f.startErr
	}
	return f.sessionID, nil
}

func (f *fakeTransport) Send(_ context.Context, sid, content, key string) (chatapi.SendMessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sendCall{sid, content, key})
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return chatapi.SendMessageResponse{}, err
		}
	}
	id := "srv-" + key
	for _, m := range f.msgs {
		if m.ID == id {
			return chatapi.SendMessageResponse{MessageID: id, CreatedAt: m.CreatedAt}, nil
		}
	}
	m := chatapi.Message{ID: id, Content: content, SenderType: "visitor", CreatedAt: f.now}
	f.msgs = append(f.msgs, m)
	return chatapi.SendMessageResponse{MessageID: id, CreatedAt: m.CreatedAt}, nil
}

func (f *fakeTransport) FetchNewSince(_ context.Context, _ string, after string) ([]chatapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, after)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	start := 0
	if after != "" && !f.ignoreCursor {
		start = -1
		for i, m := range f.msgs {
			if m.ID == after {
				start = i + 1
			}
		}
		if start < 0 {
			return []chatapi.Message{}, nil
		}
	}
	out := append([]chatapi.Message{}, f.msgs[start:]...)
	if len(out) > chatapi.MaxPollPage {
		out = out[:chatapi.MaxPollPage]
	}
	return out, nil
}

func (f *fakeTransport) add(m chatapi.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, m)
}

func (f *fakeTransport) sent() []sendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sendCall(nil), f.sends...)
}

// gatedSend holds every Send until gate is closed.
type gatedSend struct {
	*fakeTransport
	gate chan struct{}
}

func (g *gatedSend) Send(ctx context.Context, sid, content, key string) (chatapi.SendMessageResponse, error) {
	<-g.gate
	return g.fakeTransport.Send(ctx, sid, content, key)
}
