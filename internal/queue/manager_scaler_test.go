package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fairyhunter13/agent-storefront/internal/config"
	"github.com/fairyhunter13/agent-storefront/internal/model"
)

func TestManagerScaler_UpAndDown(t *testing.T) {
	// Configure aggressive scaling
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("WORKER_MIN", "1")
	t.Setenv("WORKER_MAX", "3")
	t.Setenv("WORKER_COUNT", "1")
	t.Setenv("SCALE_INTERVAL_MS", "50")
	t.Setenv("SCALE_UP_BACKLOG_PER_WORKER", "1")
	t.Setenv("SCALE_DOWN_IDLE_TICKS", "1")
	t.Setenv("FLUSH_QUIET_MS", "5000")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	ids := make([]string, 50)
	for i := range ids {
		ids[i] = fmt.Sprintf("scale-%d", i)
	}
	st := seeded(t, ids...)
	mgr := NewManager(cfg, New(8, cfg.FlushQuiet), st)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)

	// Distinct products so the backlog does not coalesce away
	for _, id := range ids {
		_, _ = mgr.Enqueue(model.Patch{StoreID: "s1", ProductID: id, BoostScore: boost(5)})
	}

	// Wait until worker count increases
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if wc := mgr.WorkerCount(); wc > 1 {
			break
		}
		time.Sleep(25 * time.Millisecond)
	}
	if wc := mgr.WorkerCount(); wc <= 1 {
		t.Fatalf("expected scale up, worker_count=%d", wc)
	}

	// Wait for drain
	ctxDrain, cancelDrain := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancelDrain()
	if ok := mgr.DrainUntil(ctxDrain); !ok {
		t.Fatalf("drain timeout")
	}
	// Allow scaler to tick and scale down to min
	deadline2 := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline2) {
		if wc := mgr.WorkerCount(); wc == cfg.WorkerMin {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if wc := mgr.WorkerCount(); wc != cfg.WorkerMin {
		t.Fatalf("expected scale down to %d, got %d", cfg.WorkerMin, wc)
	}
}
