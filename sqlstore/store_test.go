package sqlstore

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytharvest/internal/retry"
)

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "root@/youtube", retry.Config{})
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.EnsureSchema(context.Background()))

	for _, table := range []string{"channel_data", "playlist", "comments"} {
		n := count(t, store, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table)
		assert.Equal(t, int64(1), n, table)
	}
}

func TestRebind(t *testing.T) {
	tests := []struct {
		driver string
		in     string
		want   string
	}{
		{DriverSQLite, "a = ? AND b = ?", "a = ? AND b = ?"},
		{DriverPostgres, "a = ? AND b = ?", "a = $1 AND b = $2"},
		{DriverPostgres, "SELECT 1", "SELECT 1"},
	}
	for _, tt := range tests {
		t.Run(tt.driver+" "+tt.in, func(t *testing.T) {
			s := &Store{driver: tt.driver}
			if got := s.rebind(tt.in); got != tt.want {
				t.Errorf("rebind(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExecute(t *testing.T) {
	store, _ := newTestStore(t)
	docs := newDocs(t)
	ctx := context.Background()
	_, err := NewMigrator(store, docs).Migrate(ctx, "youtube", storeAggregate(t, docs, exampleAggregate(2400000)))
	require.NoError(t, err)

	rows := store.Execute(ctx, `SELECT playlist_title, COUNT(*) AS videos FROM playlist GROUP BY playlist_title ORDER BY playlist_title`)
	require.Len(t, rows, 2)
	assert.Equal(t, Row{"playlist_title": "Talks", "videos": int64(1)}, rows[0])
	assert.Equal(t, Row{"playlist_title": "Tutorials", "videos": int64(3)}, rows[1])
}

func TestExecuteNoRows(t *testing.T) {
	store, _ := newTestStore(t)
	rows := store.Execute(context.Background(), `SELECT * FROM channel_data`)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestExecuteDivisionByZeroOnSQLite(t *testing.T) {
	store, m := newTestStore(t)
	rows := store.Execute(context.Background(), `SELECT 1/0 AS ratio`)
	assert.Equal(t, []Row{{"ratio": nil}}, rows)
	assert.Zero(t, testutil.ToFloat64(m.QueryFailures))
}

func TestExecuteFailureReturnsEmpty(t *testing.T) {
	store, m := newTestStore(t)
	ctx := context.Background()

	// SQLite evaluates 1/0 to NULL, so SELECT 1/0 succeeds here; it only
	// fails on postgres.
	tests := []struct {
		name  string
		query string
	}{
		{"missing table", `SELECT * FROM no_such_table`},
		{"syntax error", `SELEC 1`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := store.Execute(ctx, tt.query)
			assert.NotNil(t, rows)
			assert.Empty(t, rows)
		})
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.QueryFailures))

	// the connection is released after failures
	rows := store.Execute(ctx, `SELECT 1 AS one`)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0]["one"])
}
