// Package sqlite stores audit records in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"embedproxy/internal/audit"
)

const schema = `CREATE TABLE IF NOT EXISTS proxy_audit (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	at          TEXT NOT NULL,
	provider    TEXT NOT NULL,
	media_id    TEXT NOT NULL,
	media_type  TEXT NOT NULL,
	target_url  TEXT NOT NULL,
	branch      TEXT NOT NULL,
	status      INTEGER NOT NULL,
	removed     INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	error       TEXT NOT NULL
)`

type Sink struct {
	db     *sql.DB
	insert string
}

func init() {
	audit.Register("sqlite", func(ctx context.Context, cfg audit.Config) (audit.Sink, error) {
		s, err := Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

// Open creates the database file and table if needed.
func Open(ctx context.Context, dsn string) (*Sink, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit sqlite: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit sqlite: schema: %w", err)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(audit.Columns)), ",")
	return &Sink{
		db:     db,
		insert: "INSERT INTO proxy_audit (" + strings.Join(audit.Columns, ",") + ") VALUES (" + placeholders + ")",
	}, nil
}

func (s *Sink) Write(ctx context.Context, rec audit.Record) error {
	if _, err := s.db.ExecContext(ctx, s.insert, rec.Values()...); err != nil {
		return fmt.Errorf("audit sqlite: insert: %w", err)
	}
	return nil
}

func (s *Sink) Close() error { return s.db.Close() }

var _ audit.Sink = (*Sink)(nil)
