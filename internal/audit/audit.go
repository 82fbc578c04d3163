// Package audit records one row per proxied request for operators. Nothing
// in the request path reads the rows back.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Record is the outcome of one proxy request.
type Record struct {
	At         time.Time
	Provider   string
	MediaID    string
	MediaType  string
	TargetURL  string
	Branch     string
	Status     int
	Removed    int
	DurationMS int64
	Error      string
}

// Sink persists records. Implementations must be safe for concurrent use.
type Sink interface {
	Write(ctx context.Context, rec Record) error
	Close() error
}

// Config selects a registered backend.
type Config struct {
	Kind string
	DSN  string
}

type factory func(ctx context.Context, cfg Config) (Sink, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register makes a backend available under kind. Backend packages call it
// from init; registering a kind twice panics.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("audit: Register called with empty kind")
	}
	if f == nil {
		panic("audit: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("audit: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// Open constructs the sink for cfg.Kind. An empty kind yields Nop.
func Open(ctx context.Context, cfg Config) (Sink, error) {
	if cfg.Kind == "" {
		return Nop{}, nil
	}
	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()
	if f == nil {
		return nil, fmt.Errorf("unsupported audit.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// Nop drops every record.
type Nop struct{}

func (Nop) Write(context.Context, Record) error { return nil }
func (Nop) Close() error                        { return nil }

// Columns is the shared column order used by the SQL backends.
var Columns = []string{
	"at", "provider", "media_id", "media_type", "target_url",
	"branch", "status", "removed", "duration_ms", "error",
}

// Values returns rec in Columns order. Timestamps are RFC3339Nano UTC text
// so every backend round-trips them the same way.
func (rec Record) Values() []any {
	return []any{
		rec.At.UTC().Format(time.RFC3339Nano),
		rec.Provider, rec.MediaID, rec.MediaType, rec.TargetURL,
		rec.Branch, rec.Status, rec.Removed, rec.DurationMS, rec.Error,
	}
}
