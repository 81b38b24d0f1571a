// Package queue implements the batched product write buffer and the worker
// pool that flushes it into the repository.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fairyhunter13/agent-storefront/internal/config"
	"github.com/fairyhunter13/agent-storefront/internal/model"
	"github.com/fairyhunter13/agent-storefront/internal/obs"
	"github.com/fairyhunter13/agent-storefront/internal/store"
)

// Manager coordinates workers writing buffered patches and scaling.
type Manager struct {
	cfg    config.Config
	q      *Queue
	st     store.Repository
	seq    *Sequencer
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	workerCancels []context.CancelFunc
}

// NewManager constructs a Manager with the given config, queue, and repository.
func NewManager(cfg config.Config, q *Queue, st store.Repository) *Manager {
	return &Manager{cfg: cfg, q: q, st: st, seq: NewSequencer()}
}

// Start begins processing and autoscaling in the background.
func (m *Manager) Start(parent context.Context) {
	m.ctx, m.cancel = context.WithCancel(parent)
	m.q.Start(m.ctx, m.cfg.QueueHighWatermark)
	m.addWorkers(m.cfg.InitialWorkerCount)
	go m.scaler()
}

// Stop cancels background routines and stops workers.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Lock()
	for _, c := range m.workerCancels {
		c()
	}
	m.workerCancels = nil
	m.mu.Unlock()
}

// scaler adjusts worker count based on backlog and configuration.
func (m *Manager) scaler() {
	t := time.NewTicker(m.cfg.ScaleInterval)
	defer t.Stop()
	idleTicks := 0
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-t.C:
			backlog := m.q.BacklogSize()
			wc := m.WorkerCount()
			if backlog > wc*m.cfg.ScaleUpBacklogPerWorker && wc < m.cfg.WorkerMax {
				m.addWorkers(1)
				idleTicks = 0
				continue
			}
			if backlog == 0 {
				idleTicks++
				if idleTicks >= m.cfg.ScaleDownIdleTicks && wc > m.cfg.WorkerMin {
					m.removeWorkers(1)
					idleTicks = 0
				}
			} else {
				idleTicks = 0
			}
		}
	}
}

// addWorkers spawns n workers.
func (m *Manager) addWorkers(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		wctx, cancel := context.WithCancel(m.ctx)
		m.workerCancels = append(m.workerCancels, cancel)
		go m.worker(wctx)
	}
	obs.Logger.Info("workers_scaled", "worker_count", len(m.workerCancels))
}

// removeWorkers stops up to n workers.
func (m *Manager) removeWorkers(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > len(m.workerCancels) {
		n = len(m.workerCancels)
	}
	for i := 0; i < n; i++ {
		c := m.workerCancels[len(m.workerCancels)-1]
		m.workerCancels = m.workerCancels[:len(m.workerCancels)-1]
		c()
	}
	obs.Logger.Info("workers_scaled", "worker_count", len(m.workerCancels))
}

// worker writes released patches into the repository. A write in progress
// finishes even when the worker is scaled away.
func (m *Manager) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-m.q.Out():
			m.write(p)
			m.q.Done(p)
		}
	}
}

func (m *Manager) write(p model.Patch) {
	applied, err := m.st.ApplyPatch(m.ctx, p)
	switch {
	case errors.Is(err, store.ErrNotFound):
		obs.Logger.Warn("patch_dropped", "store_id", p.StoreID, "product_id", p.ProductID, "reason", "product not found")
	case err != nil:
		obs.Logger.Error("patch_failed", "store_id", p.StoreID, "product_id", p.ProductID, "sequence", p.Sequence, "error", err)
	case !applied:
		obs.Logger.Warn("patch_stale", "store_id", p.StoreID, "product_id", p.ProductID, "sequence", p.Sequence)
	default:
		obs.Logger.Debug("patch_applied", "store_id", p.StoreID, "product_id", p.ProductID, "sequence", p.Sequence)
	}
}

// Enqueue stamps p with the next sequence number and buffers it. ok is false
// once intake is closed.
func (m *Manager) Enqueue(p model.Patch) (seq uint64, ok bool) {
	if m.q.IsShuttingDown() {
		return 0, false
	}
	p.Sequence = m.seq.Next()
	return p.Sequence, m.q.Enqueue(p)
}

// Pending returns the edits for a product that are buffered or still
// being written.
func (m *Manager) Pending(storeID, productID string) (model.Patch, bool) {
	return m.q.Pending(storeID, productID)
}

// BacklogSize returns products with unreleased edits.
func (m *Manager) BacklogSize() int { return m.q.BacklogSize() }

// QueueDepth returns pending plus in-flight patches.
func (m *Manager) QueueDepth() int { return m.q.QueueDepth() }

// WorkerCount returns the current number of workers.
func (m *Manager) WorkerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workerCancels)
}

// IsShuttingDown reports whether new enqueues are rejected.
func (m *Manager) IsShuttingDown() bool { return m.q.IsShuttingDown() }

// CloseIntake disallows future enqueues.
func (m *Manager) CloseIntake() { m.q.CloseIntake() }

// QueueMetrics exposes the underlying queue metrics.
func (m *Manager) QueueMetrics() (enq, merged, proc uint64, backlog, depth int) {
	return m.q.Metrics()
}

// DrainUntil flushes the buffer and blocks until every patch is written or
// ctx is done.
func (m *Manager) DrainUntil(ctx context.Context) bool {
	for {
		m.q.Flush()
		enq, merged, proc, backlog, depth := m.q.Metrics()
		if backlog == 0 && depth == 0 && enq == merged+proc {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
}
