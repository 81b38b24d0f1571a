// Package obs contains observability utilities such as logging.
package obs

import (
	"strings"

	"go.uber.org/zap"
)

// Log is a structured logger taking alternating key/value pairs.
type Log struct {
	s *zap.SugaredLogger
}

// Logger is the global structured logger used by the service. It discards
// everything until InitLogger is called.
var Logger = &Log{s: zap.NewNop().Sugar()}

// InitLogger replaces Logger. mode "development" (or "dev") logs human
// readable lines at debug level; anything else logs JSON at info level.
func InitLogger(mode string) error {
	var cfg zap.Config
	switch strings.ToLower(mode) {
	case "dev", "development":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
		cfg.Sampling = nil
	}
	z, err := cfg.Build()
	if err != nil {
		return err
	}
	Logger = &Log{s: z.Sugar()}
	return nil
}

// New wraps an existing zap logger, mostly for tests.
func New(z *zap.Logger) *Log { return &Log{s: z.Sugar()} }

func (l *Log) Debug(msg string, kv ...any) { l.s.Debugw(msg, redact(kv)...) }
func (l *Log) Info(msg string, kv ...any)  { l.s.Infow(msg, redact(kv)...) }
func (l *Log) Warn(msg string, kv ...any)  { l.s.Warnw(msg, redact(kv)...) }
func (l *Log) Error(msg string, kv ...any) { l.s.Errorw(msg, redact(kv)...) }

// With returns a child logger carrying kv on every entry.
func (l *Log) With(kv ...any) *Log { return &Log{s: l.s.With(redact(kv)...)} }

// Sync flushes buffered entries.
func (l *Log) Sync() { _ = l.s.Sync() }

func redact(kv []any) []any {
	copied := false
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok || !sensitive(k) {
			continue
		}
		if !copied {
			kv = append([]any(nil), kv...)
			copied = true
		}
		kv[i+1] = "[REDACTED]"
	}
	return kv
}

func sensitive(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "token") || strings.Contains(k, "authorization") ||
		strings.Contains(k, "secret") || strings.Contains(k, "password")
}
