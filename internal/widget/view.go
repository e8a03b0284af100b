package widget

import (
	"sync"
	"time"

	"github.com/tbourn/go-livechat-backend/internal/chatapi"
)

// Entry is one rendered line of the thread.
type Entry struct {
	ID        string
	Content   string
	Sender    string
	CreatedAt time.Time
	// Local marks an optimistic visitor line rendered before the store
	// confirmed it.
	Local bool

	// at orders the thread. Server lines use their created_at; local and
	// welcome lines take the newest key already placed, so the visitor's
	// clock never decides where a line goes.
	at  time.Time
	seq uint64
}

// View is the rendering surface. The controller calls it with its own lock
// held, so implementations must not call back into the controller.
type View interface {
	// ApplyConfig replaces the whole appearance; applying the same config
	// twice leaves the view unchanged.
	ApplyConfig(cfg chatapi.Config)
	ShowLauncher()
	SetOpen(open bool)
	ShowPreChat()
	// ShowRetry offers another session start attempt.
	ShowRetry(reason string)
	ShowThread()
	// Insert places e at index; existing entries keep their relative order.
	Insert(index int, e Entry)
	ScrollToBottom()
	Teardown()
}

// Pane is what MemoryView currently shows inside the window.
type Pane int

const (
	PaneNone Pane = iota
	PanePreChat
	PaneThread
)

// MemoryView keeps the rendered state in memory. It backs tests and the
// headless visitor client.
type MemoryView struct {
	mu       sync.Mutex
	config   chatapi.Config
	launcher bool
	open     bool
	pane     Pane
	retry    string
	entries  []Entry
	scrolls  int
	torn     bool

	// OnInsert, when set, is called for each inserted entry.
	OnInsert func(e Entry)
}

func (v *MemoryView) ApplyConfig(cfg chatapi.Config) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.config = cfg
}

func (v *MemoryView) ShowLauncher() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.launcher = true
}

func (v *MemoryView) SetOpen(open bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.open = open
}

func (v *MemoryView) ShowPreChat() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pane = PanePreChat
}

func (v *MemoryView) ShowRetry(reason string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.retry = reason
}

func (v *MemoryView) ShowThread() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pane = PaneThread
	v.retry = ""
}

func (v *MemoryView) Insert(index int, e Entry) {
	v.mu.Lock()
	if index < 0 || index > len(v.entries) {
		index = len(v.entries)
	}
	v.entries = append(v.entries, Entry{})
	copy(v.entries[index+1:], v.entries[index:])
	v.entries[index] = e
	hook := v.OnInsert
	v.mu.Unlock()
	if hook != nil {
		hook(e)
	}
}

func (v *MemoryView) ScrollToBottom() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.scrolls++
}

func (v *MemoryView) Teardown() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.torn = true
	v.launcher = false
	v.open = false
}

// Snapshot is a copy of everything MemoryView shows.
type Snapshot struct {
	Config   chatapi.Config
	Launcher bool
	Open     bool
	Pane     Pane
	Retry    string
	Entries  []Entry
	Scrolls  int
	Torn     bool
}

func (v *MemoryView) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return Snapshot{
		Config:   v.config,
		Launcher: v.launcher,
		Open:     v.open,
		Pane:     v.pane,
		Retry:    v.retry,
		Entries:  append([]Entry(nil), v.entries...),
		Scrolls:  v.scrolls,
		Torn:     v.torn,
	}
}
