// Package widget is the visitor-side chat runtime: one Controller per
// mounted widget drives config resolution, the pre-chat gate, session
// establishment, optimistic sends and the poll loop against a Transport.
// The same state machine ships to browsers as widget.js (see RenderScript).
package widget

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-livechat-backend/internal/chatapi"
)

// Phase is the controller's lifecycle position.
type Phase int

const (
	Booting Phase = iota
	Closed
	PreChat
	Chatting
	Unrecoverable
)

func (p Phase) String() string {
	switch p {
	case Booting:
		return "booting"
	case Closed:
		return "closed"
	case PreChat:
		return "pre-chat"
	case Chatting:
		return "chatting"
	case Unrecoverable:
		return "unrecoverable"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

const (
	welcomePrefix = "welcome:"
	localPrefix   = "local:"
	senderVisitor = "visitor"
	senderBot     = "bot"
)

// WelcomeID is the synthetic id of the welcome line for a session. It is
// never stored, so polls cannot echo it back.
func WelcomeID(sessionID string) string { return welcomePrefix + sessionID }

// Options configures a Controller.
type Options struct {
	ChatbotID string
	Transport Transport
	View      View

	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration
	Scheduler    Scheduler
	Logger       *zerolog.Logger

	// ConfigTimeout > 0 renders defaults when the config is slower than
	// this and re-applies the real one when it arrives.
	ConfigTimeout time.Duration

	// SendAttempts bounds silent retries of one send (default 3), spaced
	// by SendBackoff (default 1s).
	SendAttempts int
	SendBackoff  time.Duration

	Now    func() time.Time
	NewKey func() string
}

// State is the controller's in-memory projection. It is rebuilt from
// scratch on every mount; nothing persists across reloads.
type State struct {
	Phase     Phase
	Config    chatapi.Config
	SessionID string
	Visitor   Visitor
	// Cursor is the id of the newest polled message.
	Cursor   string
	Known    map[string]struct{}
	Thread   []Entry
	Pending  []Entry // arrived while the window was closed
	Starting bool
}

// Controller owns one widget mount. Methods are safe for concurrent use;
// network calls run without the lock held.
type Controller struct {
	opts   Options
	log    zerolog.Logger
	poller *Poller

	mu        sync.Mutex
	st        State
	seq       uint64
	unmounted bool
}

// New builds a controller in the Booting phase.
func New(opts Options) *Controller {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Scheduler == nil {
		opts.Scheduler = RealScheduler
	}
	if opts.SendAttempts <= 0 {
		opts.SendAttempts = 3
	}
	if opts.SendBackoff <= 0 {
		opts.SendBackoff = time.Second
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewKey == nil {
		opts.NewKey = func() string { return uuid.Must(uuid.NewV7()).String() }
	}
	lg := zerolog.Nop()
	if opts.Logger != nil {
		lg = *opts.Logger
	}
	lg = lg.With().Str("chatbot_id", opts.ChatbotID).Logger()

	c := &Controller{
		opts: opts,
		log:  lg,
		st:   State{Phase: Booting, Known: make(map[string]struct{})},
	}
	c.poller = NewPoller(opts.PollInterval, opts.Scheduler, c.pollTick)
	c.poller.onPanic = func(r any) { c.log.Error().Interface("panic", r).Msg("poll tick panicked") }
	return c
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.st
	st.Known = make(map[string]struct{}, len(c.st.Known))
	for k := range c.st.Known {
		st.Known[k] = struct{}{}
	}
	st.Thread = append([]Entry(nil), c.st.Thread...)
	st.Pending = append([]Entry(nil), c.st.Pending...)
	return st
}

// Boot resolves the config and renders the launcher. Without a chatbot id
// the controller goes Unrecoverable and touches neither view nor network.
// Config failures fall back to DefaultConfig and are not returned.
func (c *Controller) Boot(ctx context.Context) error {
	c.mu.Lock()
	if c.st.Phase != Booting {
		c.mu.Unlock()
		return nil
	}
	if strings.TrimSpace(c.opts.ChatbotID) == "" {
		c.st.Phase = Unrecoverable
		c.mu.Unlock()
		return ErrMissingChatbotID
	}
	c.mu.Unlock()

	if c.opts.ConfigTimeout <= 0 {
		cfg := c.resolve(ctx)
		c.mu.Lock()
		c.enterClosed(cfg)
		c.mu.Unlock()
		return nil
	}

	done := make(chan chatapi.Config, 1)
	go func() { done <- c.resolve(ctx) }()

	timer := time.NewTimer(c.opts.ConfigTimeout)
	defer timer.Stop()
	select {
	case cfg := <-done:
		c.mu.Lock()
		c.enterClosed(cfg)
		c.mu.Unlock()
	case <-timer.C:
		c.mu.Lock()
		c.enterClosed(DefaultConfig())
		c.mu.Unlock()
		go func() {
			cfg := <-done
			c.mu.Lock()
			defer c.mu.Unlock()
			if !c.unmounted {
				c.applyConfig(cfg)
			}
		}()
	case <-ctx.Done():
		c.mu.Lock()
		c.enterClosed(DefaultConfig())
		c.mu.Unlock()
	}
	return nil
}

func (c *Controller) resolve(ctx context.Context) chatapi.Config {
	cfg, err := c.opts.Transport.ResolveConfig(ctx, c.opts.ChatbotID)
	if err != nil {
		c.log.Warn().Err(err).Msg("config unavailable; using defaults")
		return DefaultConfig()
	}
	return cfg
}

// enterClosed requires c.mu.
func (c *Controller) enterClosed(cfg chatapi.Config) {
	if c.unmounted {
		return
	}
	c.applyConfig(cfg)
	c.opts.View.ShowLauncher()
	c.st.Phase = Closed
}

// applyConfig replaces the config wholesale. Requires c.mu.
func (c *Controller) applyConfig(cfg chatapi.Config) {
	c.st.Config = cfg
	c.opts.View.ApplyConfig(cfg)
}

// ApplyConfig re-applies a config, for instance after an admin edit.
func (c *Controller) ApplyConfig(cfg chatapi.Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unmounted || c.st.Phase == Unrecoverable {
		return
	}
	c.applyConfig(cfg)
}

// Open shows the window. Pre-chat is asked once per mount: after a session
// exists, reopening goes straight to the thread with buffered lines flushed.
func (c *Controller) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.st.Phase {
	case Booting, Unrecoverable:
		return ErrNotReady
	case PreChat, Chatting:
		return nil
	}
	c.opts.View.SetOpen(true)
	if c.st.SessionID == "" {
		c.st.Phase = PreChat
		c.opts.View.ShowPreChat()
		return nil
	}
	c.st.Phase = Chatting
	c.opts.View.ShowThread()
	pending := c.st.Pending
	c.st.Pending = nil
	for _, e := range pending {
		c.render(e)
	}
	c.opts.View.ScrollToBottom()
	return nil
}

// Close hides the window. The session and the poll loop carry on.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st.Phase != PreChat && c.st.Phase != Chatting {
		return
	}
	c.st.Phase = Closed
	c.opts.View.SetOpen(false)
}

// SubmitPreChat starts the session. Only one start may be in flight; on
// failure the controller stays in pre-chat and offers a retry.
func (c *Controller) SubmitPreChat(ctx context.Context, name, email string) error {
	c.mu.Lock()
	if c.st.SessionID != "" {
		c.mu.Unlock()
		return nil
	}
	if c.st.Starting {
		c.mu.Unlock()
		return ErrSessionPending
	}
	if c.st.Phase != PreChat {
		c.mu.Unlock()
		return ErrNotReady
	}
	v := Visitor{Name: strings.TrimSpace(name), Email: strings.TrimSpace(email)}
	if v.Name == "" {
		v.Name = DefaultVisitorName
	}
	c.st.Starting = true
	c.st.Visitor = v
	c.mu.Unlock()

	sid, err := c.opts.Transport.StartSession(ctx, c.opts.ChatbotID, v)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.st.Starting = false
	if c.unmounted {
		return nil
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("session start failed")
		c.opts.View.ShowRetry("Could not start the chat. Please try again.")
		return err
	}

	c.st.SessionID = sid
	c.log = c.log.With().Str("session_id", sid).Logger()
	if c.st.Phase == PreChat {
		c.st.Phase = Chatting
		c.opts.View.ShowThread()
	}
	if w := strings.TrimSpace(c.st.Config.WelcomeMessage); w != "" {
		c.place(Entry{
			ID:        WelcomeID(sid),
			Content:   w,
			Sender:    senderBot,
			CreatedAt: c.opts.Now(),
			at:        c.tail(),
		})
	}
	c.poller.Start(context.WithoutCancel(ctx))
	return nil
}

// Send renders text immediately, then stores it, retrying quietly with the
// same idempotency key. Store failures are logged and returned to the
// caller but never shown in the view.
func (c *Controller) Send(ctx context.Context, text string) error {
	content := strings.TrimSpace(text)
	if content == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if c.st.Phase != Chatting || c.st.SessionID == "" {
		c.mu.Unlock()
		return ErrNotChatting
	}
	sid := c.st.SessionID
	key := c.opts.NewKey()
	c.place(Entry{
		ID:        localPrefix + key,
		Content:   content,
		Sender:    senderVisitor,
		CreatedAt: c.opts.Now(),
		Local:     true,
		at:        c.tail(),
	})
	lg := c.log
	c.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= c.opts.SendAttempts; attempt++ {
		res, err := c.opts.Transport.Send(ctx, sid, content, key)
		if err == nil {
			c.mu.Lock()
			c.st.Known[res.MessageID] = struct{}{}
			c.confirm(localPrefix+key, res.CreatedAt)
			c.mu.Unlock()
			return nil
		}
		lastErr = err
		lg.Warn().Err(err).Int("attempt", attempt).Msg("send failed")
		if errors.Is(err, ErrBadRequest) || errors.Is(err, ErrNotFound) {
			break
		}
		if attempt < c.opts.SendAttempts && !c.sleep(ctx, c.opts.SendBackoff) {
			lastErr = ctx.Err()
			break
		}
	}
	return lastErr
}

func (c *Controller) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// pollTick fetches past the cursor. Failures are logged and left for the
// next tick.
func (c *Controller) pollTick(ctx context.Context) {
	c.mu.Lock()
	sid, cursor := c.st.SessionID, c.st.Cursor
	c.mu.Unlock()
	if sid == "" {
		return
	}

	msgs, err := c.opts.Transport.FetchNewSince(ctx, sid, cursor)
	if err != nil {
		if ctx.Err() == nil {
			c.log.Warn().Err(err).Msg("poll failed")
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unmounted || c.st.Cursor != cursor {
		return
	}
	for _, m := range msgs {
		c.st.Cursor = m.ID
		// The visitor's own lines are shown from the optimistic copy only.
		if m.SenderType == senderVisitor {
			c.st.Known[m.ID] = struct{}{}
			continue
		}
		c.place(Entry{ID: m.ID, Content: m.Content, Sender: m.SenderType, CreatedAt: m.CreatedAt, at: m.CreatedAt})
	}
}

// place records e and renders it, or buffers it while the window is closed.
// Requires c.mu.
func (c *Controller) place(e Entry) {
	if _, seen := c.st.Known[e.ID]; seen {
		return
	}
	c.st.Known[e.ID] = struct{}{}
	c.seq++
	e.seq = c.seq
	if c.st.Phase != Chatting {
		c.st.Pending = append(c.st.Pending, e)
		return
	}
	c.render(e)
	c.opts.View.ScrollToBottom()
}

// tail is the newest ordering key placed so far, zero for an empty thread.
// Requires c.mu.
func (c *Controller) tail() time.Time {
	var t time.Time
	for _, es := range [][]Entry{c.st.Thread, c.st.Pending} {
		for _, e := range es {
			if e.at.After(t) {
				t = e.at
			}
		}
	}
	return t
}

// confirm moves the ordering key of a local line to the server's
// created_at, clamped between its neighbours so nothing already rendered
// moves. Later server lines then sort against the store's clock.
// Requires c.mu.
func (c *Controller) confirm(id string, at time.Time) {
	if at.IsZero() {
		return
	}
	th := c.st.Thread
	for i := range th {
		if th[i].ID != id {
			continue
		}
		if i > 0 && at.Before(th[i-1].at) {
			at = th[i-1].at
		}
		if i+1 < len(th) && at.After(th[i+1].at) {
			at = th[i+1].at
		}
		th[i].at = at
		return
	}
}

// render inserts e after every entry not newer than it, so rendered lines
// never move and ties keep arrival order. Requires c.mu.
func (c *Controller) render(e Entry) {
	i := sort.Search(len(c.st.Thread), func(i int) bool {
		return c.st.Thread[i].at.After(e.at)
	})
	c.st.Thread = append(c.st.Thread, Entry{})
	copy(c.st.Thread[i+1:], c.st.Thread[i:])
	c.st.Thread[i] = e
	c.opts.View.Insert(i, e)
}

// Unmount stops polling and removes the widget. No session close is sent.
func (c *Controller) Unmount() {
	c.poller.Stop()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unmounted {
		return
	}
	c.unmounted = true
	if c.st.Phase != Unrecoverable {
		c.opts.View.Teardown()
	}
}

// Polling reports whether the poll loop is running.
func (c *Controller) Polling() bool { return c.poller.Running() }
