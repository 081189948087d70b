// Package sqlstore holds the relational projection of harvested channels:
// connection setup, schema, the document-to-table migrator and the
// read-only query executor.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"ytharvest/internal/metrics"
	"ytharvest/internal/retry"
)

// Supported database/sql driver names.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// ErrUnsupportedDriver is returned by Open for drivers other than pgx and sqlite.
var ErrUnsupportedDriver = errors.New("sqlstore: unsupported driver")

// Store wraps the relational database. It is constructed once per process
// and passed to the migrator and executor.
type Store struct {
	db      *sql.DB
	driver  string
	metrics *metrics.Metrics
}

// Open connects to dsn and pings it, retrying with backoff per cfg.
func Open(ctx context.Context, driver, dsn string, cfg retry.Config) (*Store, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// single writer; also keeps an in-memory database on one connection
		db.SetMaxOpenConns(1)
	}

	err = retry.Do(ctx, cfg, nil, func(ctx context.Context) error {
		return db.PingContext(ctx)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: connect %s: %w", driver, err)
	}

	return New(db, driver), nil
}

// New wraps an open database handle.
func New(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// WithMetrics sets the collectors used for migrations and query failures.
func (s *Store) WithMetrics(m *metrics.Metrics) *Store {
	s.metrics = m
	return s
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Driver returns the driver name the store was opened with.
func (s *Store) Driver() string { return s.driver }

func (s *Store) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
