// Package testutil provides helpers shared by the package tests.
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/tabula/dialect"
	"github.com/syssam/tabula/dialect/sql"
	"github.com/syssam/tabula/dialect/sql/schema"
	"github.com/syssam/tabula/model"
	tschema "github.com/syssam/tabula/schema"
)

// NewTestLogger returns a logger writing every record to t.Log.
func NewTestLogger(t testing.TB) *slog.Logger {
	return slog.New(slog.NewTextHandler(logWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type logWriter struct{ t testing.TB }

func (w logWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

var dbSeq atomic.Int64

// OpenSQLite opens a private in-memory SQLite database with foreign keys
// enforced. It is closed when the test ends.
func OpenSQLite(t testing.TB, opts ...sql.Option) *sql.Driver {
	t.Helper()
	dsn := fmt.Sprintf("file:tabula%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", dbSeq.Add(1))
	drv, err := sql.Open(dialect.SQLite, dsn, append([]sql.Option{sql.WithLogger(NewTestLogger(t))}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = drv.Close() })
	return drv
}

// CreateSchema creates the tables of every entity of reg.
func CreateSchema(t testing.TB, drv *sql.Driver, reg *tschema.Registry) {
	t.Helper()
	descs, err := reg.Descriptors()
	require.NoError(t, err)
	gen, err := schema.New(drv, reg)
	require.NoError(t, err)
	stmts, err := schema.Statements(gen, descs)
	require.NoError(t, err)
	require.NoError(t, schema.Exec(context.Background(), drv, stmts))
}

// NewClient returns a client over a fresh SQLite database holding the
// tables of reg.
func NewClient(t testing.TB, reg *tschema.Registry, opts ...model.Option) *model.Client {
	t.Helper()
	drv := OpenSQLite(t)
	CreateSchema(t, drv, reg)
	return model.NewClient(reg, drv, append([]model.Option{model.WithLogger(NewTestLogger(t))}, opts...)...)
}
