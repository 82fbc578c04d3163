package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"embedproxy/internal/audit"
)

func TestInsertSQL(t *testing.T) {
	q := insertSQL()
	if !strings.Contains(q, "$1::timestamptz") || !strings.Contains(q, "$10)") {
		t.Fatalf("insert = %s", q)
	}
}

func TestOpenRequiresDSN(t *testing.T) {
	if _, err := Open(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

// Runs only when EMBEDPROXY_TEST_PG_DSN points at a disposable database.
func TestWriteLive(t *testing.T) {
	dsn := os.Getenv("EMBEDPROXY_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("EMBEDPROXY_TEST_PG_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = s.Close() }()

	if err := s.Write(ctx, audit.Record{At: time.Now(), Provider: "vidsrc", MediaID: "7", MediaType: "movie", Status: 200}); err != nil {
		t.Fatalf("Write: %v", err)
	}
}
