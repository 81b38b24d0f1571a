package events

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/agent-storefront/internal/model"
)

// DefaultStreamMaxLen caps the visit stream; trimming is approximate.
const DefaultStreamMaxLen = 100_000

// RedisSink appends visits to a Redis stream for downstream consumers.
type RedisSink struct {
	rdb    *goredis.Client
	stream string
	maxLen int64
}

// NewRedisSink connects to addr and verifies the connection.
func NewRedisSink(ctx context.Context, addr, stream string) (*RedisSink, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}
	if stream == "" {
		stream = "storefront:visits"
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisSink{rdb: rdb, stream: stream, maxLen: DefaultStreamMaxLen}, nil
}

func (s *RedisSink) RecordVisit(ctx context.Context, v model.Visit) error {
	err := s.rdb.XAdd(ctx, &goredis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"id":         v.ID,
			"store_id":   v.StoreID,
			"agent":      v.Agent,
			"format":     v.Format,
			"user_agent": v.UserAgent,
			"visited_at": v.VisitedAt.UTC().Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

// Name identifies the sink in logs.
func (s *RedisSink) Name() string { return "redis:" + s.stream }

func (s *RedisSink) Close() error { return s.rdb.Close() }
