// Package events records storefront feed reads by external agents.
package events

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"strings"
	"sync"

	"github.com/fairyhunter13/agent-storefront/internal/model"
	"github.com/fairyhunter13/agent-storefront/internal/obs"
)

var (
	visitsRecorded   = expvar.NewInt("visits_recorded")
	visitsDropped    = expvar.NewInt("visits_dropped")
	visitsFailed     = expvar.NewInt("visits_failed")
	visitsSinkFailed = expvar.NewInt("visits_sink_failed")
)

// Sink receives visits. store.Repository satisfies it.
type Sink interface {
	RecordVisit(ctx context.Context, v model.Visit) error
}

// SinkError is one failed sink inside a Multi.
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string { return e.Sink + ": " + e.Err.Error() }

func (e *SinkError) Unwrap() error { return e.Err }

// MultiError reports which sinks of a Multi failed for one visit.
type MultiError struct {
	Failed []*SinkError
	Total  int
}

func (e *MultiError) Error() string {
	parts := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("%d of %d sinks failed: %s", len(e.Failed), e.Total, strings.Join(parts, "; "))
}

func (e *MultiError) Unwrap() []error {
	out := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		out[i] = f
	}
	return out
}

// Sinks names the failed sinks.
func (e *MultiError) Sinks() []string {
	out := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		out[i] = f.Sink
	}
	return out
}

// Partial reports whether at least one sink still recorded the visit.
func (e *MultiError) Partial() bool { return len(e.Failed) < e.Total }

// Multi fans a visit out to every sink. Failures come back as a *MultiError
// naming each failed sink.
type Multi []Sink

func (m Multi) RecordVisit(ctx context.Context, v model.Visit) error {
	var failed []*SinkError
	for _, s := range m {
		if err := s.RecordVisit(ctx, v); err != nil {
			failed = append(failed, &SinkError{Sink: sinkName(s), Err: err})
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &MultiError{Failed: failed, Total: len(m)}
}

func sinkName(s Sink) string {
	if n, ok := s.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}

// Async decouples request handling from visit persistence. RecordVisit never
// blocks: when the buffer is full the visit is dropped and counted.
type Async struct {
	next Sink
	in   chan model.Visit
	wg   sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewAsync starts a background writer in front of next.
func NewAsync(next Sink, buffer int) *Async {
	if buffer <= 0 {
		buffer = 1
	}
	a := &Async{next: next, in: make(chan model.Visit, buffer)}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *Async) run() {
	defer a.wg.Done()
	for v := range a.in {
		err := a.next.RecordVisit(context.Background(), v)
		var me *MultiError
		switch {
		case err == nil:
			visitsRecorded.Add(1)
		case errors.As(err, &me) && me.Partial():
			visitsRecorded.Add(1)
			visitsSinkFailed.Add(int64(len(me.Failed)))
			obs.Logger.Warn("visit_sink_failed", "store_id", v.StoreID, "agent", v.Agent, "sinks", me.Sinks(), "error", err)
		default:
			visitsFailed.Add(1)
			obs.Logger.Error("visit_record_failed", "store_id", v.StoreID, "agent", v.Agent, "error", err)
		}
	}
}

func (a *Async) RecordVisit(_ context.Context, v model.Visit) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil
	}
	select {
	case a.in <- v:
	default:
		visitsDropped.Add(1)
		obs.Logger.Warn("visit_dropped", "store_id", v.StoreID, "agent", v.Agent, "buffer", cap(a.in))
	}
	return nil
}

// Close stops intake and waits until buffered visits are written or ctx is
// done.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.in)
	}
	a.mu.Unlock()
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
