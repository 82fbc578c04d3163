// Package postgres stores audit records through a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"embedproxy/internal/audit"
)

const schema = `CREATE TABLE IF NOT EXISTS proxy_audit (
	id          BIGSERIAL PRIMARY KEY,
	at          TIMESTAMPTZ NOT NULL,
	provider    TEXT NOT NULL,
	media_id    TEXT NOT NULL,
	media_type  TEXT NOT NULL,
	target_url  TEXT NOT NULL,
	branch      TEXT NOT NULL,
	status      INTEGER NOT NULL,
	removed     INTEGER NOT NULL,
	duration_ms BIGINT NOT NULL,
	error       TEXT NOT NULL
)`

type Sink struct {
	pool   *pgxpool.Pool
	insert string
}

func init() {
	audit.Register("postgres", func(ctx context.Context, cfg audit.Config) (audit.Sink, error) {
		s, err := Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

// insertSQL builds the parameterized insert. at arrives as RFC3339 text and
// is cast on the server.
func insertSQL() string {
	ph := make([]string, len(audit.Columns))
	for i := range audit.Columns {
		ph[i] = "$" + strconv.Itoa(i+1)
	}
	ph[0] += "::timestamptz"
	return "INSERT INTO proxy_audit (" + strings.Join(audit.Columns, ",") + ") VALUES (" + strings.Join(ph, ",") + ")"
}

// Open connects, pings and ensures the table exists.
func Open(ctx context.Context, dsn string) (*Sink, error) {
	if dsn == "" {
		return nil, errors.New("audit postgres: dsn is required")
	}
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("audit postgres: parse dsn: %w", err)
	}
	config.MaxConns = 4
	config.MinConns = 0

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("audit postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit postgres: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit postgres: schema: %w", err)
	}
	return &Sink{pool: pool, insert: insertSQL()}, nil
}

func (s *Sink) Write(ctx context.Context, rec audit.Record) error {
	if _, err := s.pool.Exec(ctx, s.insert, rec.Values()...); err != nil {
		return fmt.Errorf("audit postgres: insert: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	s.pool.Close()
	return nil
}

var _ audit.Sink = (*Sink)(nil)
