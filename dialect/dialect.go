package dialect

import "context"

// Dialect names.
const (
	MySQL    = "mysql"
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// Row is one result row keyed by column name. Values are the raw driver
// representation; decoding to typed values is done by the field type casts.
type Row map[string]any

// Escaper turns values and names into SQL-safe text for the dialect.
type Escaper interface {
	// Esc returns s as a quoted string literal.
	Esc(s string) string
	// EscBytes returns b as a binary literal.
	EscBytes(b []byte) string
	// Qn returns name as a quoted identifier.
	Qn(name string) string
}

// Conn is a single logical database connection. Statements are complete SQL
// text: values are inlined with Esc and names with Qn.
type Conn interface {
	Escaper

	// Dialect returns the dialect name of the connection.
	Dialect() string
	// Prefix returns the prefix prepended to every table name.
	Prefix() string

	// Select runs a query and returns all of its rows.
	Select(ctx context.Context, query string) ([]Row, error)
	// Execute runs a statement and returns the number of affected rows.
	Execute(ctx context.Context, query string) (int64, error)
	// LastInsertID returns the id generated by the last insert.
	LastInsertID(ctx context.Context) (int64, error)

	// Begin starts a connection scoped transaction. Every statement issued
	// on the connection until Commit or Rollback runs inside it.
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error
	// InTx reports whether a transaction is in progress.
	InTx() bool

	// ServerInfo returns the server version string.
	ServerInfo(ctx context.Context) (string, error)
	Close() error
}
