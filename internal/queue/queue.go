package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/agent-storefront/internal/model"
	"github.com/fairyhunter13/agent-storefront/internal/obs"
)

type key struct{ store, product string }

func keyOf(p model.Patch) key { return key{p.StoreID, p.ProductID} }

type entry struct {
	patch   model.Patch
	touched time.Time
}

// Queue buffers product patches, folding edits to the same product into one
// write. An entry is released once it has seen no edits for the quiet
// period. At most one patch per product is handed to workers at a time.
type Queue struct {
	mu           sync.Mutex
	quiet        time.Duration
	now          func() time.Time
	pending      map[key]*entry
	order        []key
	inflight     map[key]model.Patch
	force        bool
	notify       chan struct{}
	out          chan model.Patch
	shuttingDown atomic.Bool

	enqueued  atomic.Uint64
	coalesced atomic.Uint64
	processed atomic.Uint64
}

// New creates a Queue with a buffered output channel.
func New(outBuffer int, quiet time.Duration) *Queue {
	if outBuffer <= 0 {
		outBuffer = 64
	}
	return &Queue{
		quiet:    quiet,
		now:      time.Now,
		pending:  make(map[key]*entry),
		inflight: make(map[key]model.Patch),
		notify:   make(chan struct{}, 1),
		out:      make(chan model.Patch, outBuffer),
	}
}

// Start runs the broker loop.
func (q *Queue) Start(ctx context.Context, highWatermark int) {
	go q.broker(ctx, highWatermark)
}

// broker moves settled entries to the output channel.
func (q *Queue) broker(ctx context.Context, highWatermark int) {
	tick := 50 * time.Millisecond
	if q.quiet > 0 && q.quiet < tick {
		tick = q.quiet
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		q.flushOnce()
		if highWatermark > 0 {
			if sz := q.BacklogSize(); sz > highWatermark {
				obs.Logger.Warn("patch_backlog_high", "backlog_size", sz, "high_watermark", highWatermark)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-q.notify:
		case <-ticker.C:
		}
	}
}

// flushOnce releases entries that are quiet (or forced) and not in flight,
// keeping FIFO order for everything it holds back.
func (q *Queue) flushOnce() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.order) == 0 {
		q.force = false
		return
	}
	now := q.now()
	rest := make([]key, 0, len(q.order))
	for _, k := range q.order {
		e := q.pending[k]
		_, busy := q.inflight[k]
		settled := q.force || now.Sub(e.touched) >= q.quiet
		if busy || !settled || len(q.out) == cap(q.out) {
			rest = append(rest, k)
			continue
		}
		delete(q.pending, k)
		q.inflight[k] = e.patch
		q.out <- e.patch
	}
	q.order = rest
	if len(q.order) == 0 {
		q.force = false
	}
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Enqueue adds p to the buffer, merging it into a pending patch for the same
// product when there is one. It never blocks.
func (q *Queue) Enqueue(p model.Patch) bool {
	if q.shuttingDown.Load() {
		return false
	}
	q.enqueued.Add(1)
	k := keyOf(p)
	q.mu.Lock()
	if e, ok := q.pending[k]; ok {
		e.patch = e.patch.Merge(p)
		e.touched = q.now()
		q.coalesced.Add(1)
	} else {
		q.pending[k] = &entry{patch: p, touched: q.now()}
		q.order = append(q.order, k)
	}
	q.mu.Unlock()
	q.wake()
	return true
}

// Pending returns every edit for a product that the repository may not hold
// yet: the patch a worker is writing merged with the one still buffered.
func (q *Queue) Pending(storeID, productID string) (model.Patch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	k := key{storeID, productID}
	p, busy := q.inflight[k]
	e, buffered := q.pending[k]
	switch {
	case busy && buffered:
		return p.Merge(e.patch), true
	case busy:
		return p, true
	case buffered:
		return e.patch, true
	}
	return model.Patch{}, false
}

// Out exposes the output channel of patches.
func (q *Queue) Out() <-chan model.Patch { return q.out }

// Done marks a released patch as written and lets the next one for the same
// product through.
func (q *Queue) Done(p model.Patch) {
	q.mu.Lock()
	delete(q.inflight, keyOf(p))
	q.mu.Unlock()
	q.processed.Add(1)
	q.wake()
}

// Flush releases every pending entry without waiting for the quiet period.
func (q *Queue) Flush() {
	q.mu.Lock()
	q.force = true
	q.mu.Unlock()
	q.wake()
}

// BacklogSize returns the number of products with unreleased edits.
func (q *Queue) BacklogSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// QueueDepth returns pending plus released-but-unfinished patches.
func (q *Queue) QueueDepth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) + len(q.inflight)
}

// Metrics returns counters and sizes for observability.
func (q *Queue) Metrics() (enq, merged, proc uint64, backlog, depth int) {
	enq = q.enqueued.Load()
	merged = q.coalesced.Load()
	proc = q.processed.Load()
	q.mu.Lock()
	backlog = len(q.pending)
	depth = backlog + len(q.inflight)
	q.mu.Unlock()
	return enq, merged, proc, backlog, depth
}

// CloseIntake disallows future enqueues.
func (q *Queue) CloseIntake() { q.shuttingDown.Store(true) }

// IsShuttingDown reports if intake has been closed.
func (q *Queue) IsShuttingDown() bool { return q.shuttingDown.Load() }
