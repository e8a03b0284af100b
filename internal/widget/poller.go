package widget

import (
	"context"
	"sync"
	"time"
)

// Scheduler runs f once after d. The returned stop cancels a pending run.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type timerScheduler struct{}

func (timerScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// RealScheduler is backed by time.AfterFunc.
var RealScheduler Scheduler = timerScheduler{}

// Poller is a cancellable repeating task. Each tick is scheduled only after
// the previous one returned, so ticks never overlap.
type Poller struct {
	interval time.Duration
	sched    Scheduler
	tick     func(context.Context)
	onPanic  func(any)

	mu      sync.Mutex
	running bool
	gen     uint64
	stop    func() bool
	cancel  context.CancelFunc
}

// NewPoller builds a stopped poller. A nil scheduler means RealScheduler.
func NewPoller(interval time.Duration, sched Scheduler, tick func(context.Context)) *Poller {
	if sched == nil {
		sched = RealScheduler
	}
	return &Poller{interval: interval, sched: sched, tick: tick}
}

// Start runs the first tick right away (through the scheduler) and keeps
// going until Stop or until ctx is done. Starting a running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.running = true
	p.gen++
	p.cancel = cancel
	gen := p.gen
	p.stop = p.sched.AfterFunc(0, func() { p.run(ctx, gen) })
}

// Stop cancels the pending tick and the context of one in flight. It does
// not wait for an in-flight tick to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.running = false
	p.gen++
	if p.stop != nil {
		p.stop()
		p.stop = nil
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// Running reports whether the poller is started.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) current(gen uint64) bool {
	return p.running && p.gen == gen
}

func (p *Poller) run(ctx context.Context, gen uint64) {
	p.mu.Lock()
	live := p.current(gen)
	p.mu.Unlock()
	if !live {
		return
	}
	if ctx.Err() != nil {
		p.Stop()
		return
	}

	p.safeTick(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current(gen) && ctx.Err() == nil {
		p.stop = p.sched.AfterFunc(p.interval, func() { p.run(ctx, gen) })
	}
}

func (p *Poller) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil && p.onPanic != nil {
			p.onPanic(r)
		}
	}()
	p.tick(ctx)
}
