package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"embedproxy/internal/audit"
)

func TestWriteAppendsRows(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.db")

	sink, err := audit.Open(ctx, audit.Config{Kind: "sqlite", DSN: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s := sink.(*Sink)
	defer func() { _ = s.Close() }()

	recs := []audit.Record{
		{At: time.Now(), Provider: "vidsrc-to", MediaID: "550", MediaType: "movie", Branch: "frame", Status: 200, Removed: 4, DurationMS: 12},
		{At: time.Now(), Provider: "vidsrc-me", MediaID: "1", MediaType: "tv", Status: 500, Error: "upstream timeout"},
	}
	for _, r := range recs {
		if err := s.Write(ctx, r); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM proxy_audit`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("rows = %d, want 2", n)
	}

	var provider, errText string
	var status int
	row := s.db.QueryRowContext(ctx, `SELECT provider, status, error FROM proxy_audit WHERE status = 500`)
	if err := row.Scan(&provider, &status, &errText); err != nil {
		t.Fatal(err)
	}
	if provider != "vidsrc-me" || errText != "upstream timeout" {
		t.Fatalf("row = %s %d %q", provider, status, errText)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.db")
	for i := 0; i < 2; i++ {
		s, err := Open(ctx, path)
		if err != nil {
			t.Fatalf("Open #%d: %v", i, err)
		}
		if err := s.Close(); err != nil {
			t.Fatal(err)
		}
	}
}
