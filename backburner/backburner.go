// Package backburner runs opaque work items on a small fixed pool of
// background goroutines so latency-sensitive call paths (LocalKV's row
// dispatch in particular) never block waiting for deferred work, per
// spec §4.7. Each worker owns a consumer/producer pair of queues that
// are swapped under a short-held lock, and a set of registered polling
// functions that run once per swap cycle.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package backburner

import (
	"sync"
	"time"

	"github.com/sandialabs/faodel-sub003/cmn/atomic"
	"github.com/sandialabs/faodel-sub003/cmn/nlog"
)

// WorkFunc is one unit of deferred work. The returned int is unused by
// the pool itself; it exists so a work item and a polling function can
// share the same signature.
type WorkFunc func() int

// PollFunc is run once per worker swap cycle. Returning nonzero keeps
// it registered for the next cycle; returning zero unregisters it.
type PollFunc func() int

// WakeupMode selects how an idle worker waits for new work.
type WakeupMode int

const (
	// WakeupSpin busy-polls with no sleep between empty cycles. Lowest
	// latency, highest CPU use.
	WakeupSpin WakeupMode = iota
	// WakeupSleep sleeps a fixed interval between empty cycles.
	WakeupSleep
	// WakeupPipe blocks on a channel send/receive instead of polling;
	// AddWork wakes the worker immediately.
	WakeupPipe
)

// pipeFallbackPeriod bounds how long a WakeupPipe worker can block on
// an empty channel before re-checking for shutdown.
const pipeFallbackPeriod = 200 * time.Millisecond

// Config controls pool construction (spec §4.7).
type Config struct {
	WorkerCount  int
	Wakeup       WakeupMode
	SleepPeriod  time.Duration // used when Wakeup == WakeupSleep
}

// DefaultConfig matches the original's default of one worker, spin
// polling disabled in favor of a short sleep to avoid pegging a core.
func DefaultConfig() Config {
	return Config{WorkerCount: 1, Wakeup: WakeupSleep, SleepPeriod: time.Millisecond}
}

// Pool is the process-wide background worker pool. Constructed once at
// bootstrap and held behind a dependency-injected handle (spec §9: no
// ambient globals).
type Pool struct {
	cfg     Config
	workers []*worker
	next    atomic.Uint64 // round-robins AddWork across workers
	started bool
}

// New constructs a Pool with cfg.WorkerCount workers, none yet running.
// Call RegisterPollingFunction as needed, then Start.
func New(cfg Config) *Pool {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	p := &Pool{cfg: cfg}
	p.workers = make([]*worker, cfg.WorkerCount)
	for i := range p.workers {
		p.workers[i] = newWorker(i, cfg)
	}
	return p
}

// RegisterPollingFunction installs fn under name on every worker. Must
// be called before Start (spec: "Call before Start").
func (p *Pool) RegisterPollingFunction(name string, fn PollFunc) {
	for _, w := range p.workers {
		w.registerPoll(name, fn)
	}
}

// DisablePollingFunction removes a previously registered polling
// function by name from every worker.
func (p *Pool) DisablePollingFunction(name string) {
	for _, w := range p.workers {
		w.disablePoll(name)
	}
}

// Start launches every worker's server goroutine.
func (p *Pool) Start() {
	if p.started {
		return
	}
	p.started = true
	for _, w := range p.workers {
		w.start()
	}
	nlog.Infof("backburner: started %d worker(s), wakeup=%v", len(p.workers), p.cfg.Wakeup)
}

// Finish signals every worker to exit and waits for them to drain.
func (p *Pool) Finish() {
	if !p.started {
		return
	}
	for _, w := range p.workers {
		w.stop()
	}
	p.started = false
}

// AddWork enqueues a single item on a round-robin-selected worker.
func (p *Pool) AddWork(work WorkFunc) {
	w := p.workers[p.next.Inc()%uint64(len(p.workers))]
	w.addWork(work)
}

// AddWorkBatch enqueues a batch of items on a single round-robin-selected
// worker, preserving their relative order -- the shape LocalKV's
// Dispatch needs when it hands off a row's waiter notifications.
func (p *Pool) AddWorkBatch(work []WorkFunc) {
	if len(work) == 0 {
		return
	}
	w := p.workers[p.next.Inc()%uint64(len(p.workers))]
	w.addWorkBatch(work)
}

// AddWorkTagged pins work to a specific worker index (mod worker
// count), for callers that need ordering relative to other work they
// have already pinned to the same tag.
func (p *Pool) AddWorkTagged(tag uint32, work WorkFunc) {
	w := p.workers[uint64(tag)%uint64(len(p.workers))]
	w.addWork(work)
}

type worker struct {
	id  int
	cfg Config

	mu            sync.Mutex
	consumer      []WorkFunc
	producer      []WorkFunc
	pollFns       map[string]PollFunc

	wake chan struct{}
	done chan struct{}
}

func newWorker(id int, cfg Config) *worker {
	return &worker{
		id:      id,
		cfg:     cfg,
		pollFns: make(map[string]PollFunc),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (w *worker) registerPoll(name string, fn PollFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pollFns[name] = fn
}

func (w *worker) disablePoll(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.pollFns, name)
}

func (w *worker) addWork(work WorkFunc) {
	w.mu.Lock()
	w.producer = append(w.producer, work)
	w.mu.Unlock()
	w.signal()
}

func (w *worker) addWorkBatch(work []WorkFunc) {
	w.mu.Lock()
	w.producer = append(w.producer, work...)
	w.mu.Unlock()
	w.signal()
}

func (w *worker) signal() {
	if w.cfg.Wakeup != WakeupPipe {
		return
	}
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *worker) start() { go w.server() }

func (w *worker) stop() { close(w.done) }

// swap exchanges the producer queue for an empty one and returns what
// was consumed, holding the lock only long enough to swap pointers --
// the worker never runs user closures under the lock.
func (w *worker) swap() []WorkFunc {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.producer) == 0 {
		return nil
	}
	batch := w.producer
	w.producer = nil
	return batch
}

func (w *worker) runPollingFunctions() {
	w.mu.Lock()
	fns := make(map[string]PollFunc, len(w.pollFns))
	for k, v := range w.pollFns {
		fns[k] = v
	}
	w.mu.Unlock()

	for name, fn := range fns {
		if fn() == 0 {
			w.disablePoll(name)
		}
	}
}

func (w *worker) server() {
	for {
		select {
		case <-w.done:
			w.drainOnExit()
			return
		default:
		}

		batch := w.swap()
		for _, work := range batch {
			func() {
				defer func() {
					if r := recover(); r != nil {
						nlog.Errorf("backburner: worker %d: work item panicked: %v", w.id, r)
					}
				}()
				work()
			}()
		}
		w.runPollingFunctions()

		if len(batch) > 0 {
			continue // more work may already be queued, don't sleep
		}

		switch w.cfg.Wakeup {
		case WakeupSpin:
			// no sleep
		case WakeupPipe:
			select {
			case <-w.wake:
			case <-w.done:
				w.drainOnExit()
				return
			case <-time.After(pipeFallbackPeriod): // bounds wait so Finish is noticed promptly
			}
		default: // WakeupSleep
			select {
			case <-time.After(w.cfg.SleepPeriod):
			case <-w.done:
				w.drainOnExit()
				return
			}
		}
	}
}

// drainOnExit runs one last swap so work queued just before Finish
// isn't silently dropped.
func (w *worker) drainOnExit() {
	batch := w.swap()
	for _, work := range batch {
		work()
	}
}
