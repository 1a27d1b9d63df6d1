package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/dialect"
	"github.com/syssam/tabula/dialect/sql/sqlgraph"
	"github.com/syssam/tabula/schema/field"
)

// ExecQuerier wraps the standard Exec and Query methods. It is implemented
// by *sql.DB and *sql.Tx.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Driver is a dialect.Conn implementation for SQL based databases.
//
// It models one logical connection: a transaction started with Begin is
// used by every statement until Commit or Rollback.
type Driver struct {
	db      *sql.DB
	dialect string
	prefix  string
	logger  *slog.Logger
	casts   map[field.Type]field.Cast

	mu        sync.Mutex
	tx        *sql.Tx
	lastID    int64
	lastQuery string
}

// Option configures a Driver.
type Option func(*Driver)

// WithPrefix sets the prefix prepended to table names.
func WithPrefix(prefix string) Option {
	return func(d *Driver) { d.prefix = prefix }
}

// WithLogger sets the logger used for statement and error logs.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// driverNames maps dialect names, and the pgx alias, to database/sql driver names.
var driverNames = map[string]struct{ driver, dialect string }{
	dialect.MySQL:    {"mysql", dialect.MySQL},
	dialect.Postgres: {"postgres", dialect.Postgres},
	"pgx":            {"pgx", dialect.Postgres},
	dialect.SQLite:   {"sqlite", dialect.SQLite},
	"sqlite3":        {"sqlite", dialect.SQLite},
}

// Open opens a connection for the given dialect. "pgx" selects the pgx
// driver for PostgreSQL. The matching driver package must be imported by
// the program.
//
// The pool is limited to one open connection.
func Open(name, source string, opts ...Option) (*Driver, error) {
	n, ok := driverNames[name]
	if !ok {
		return nil, fmt.Errorf("dialect/sql: unsupported dialect %q", name)
	}
	if n.dialect == dialect.MySQL {
		cfg, err := mysql.ParseDSN(source)
		if err != nil {
			return nil, fmt.Errorf("dialect/sql: parsing mysql dsn: %w", err)
		}
		cfg.ParseTime = true
		source = cfg.FormatDSN()
	}
	db, err := sql.Open(n.driver, source)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return OpenDB(n.dialect, db, opts...), nil
}

// OpenDB wraps the given database/sql.DB with a Driver.
func OpenDB(name string, db *sql.DB, opts ...Option) *Driver {
	d := &Driver{
		db:      db,
		dialect: name,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.casts = Casts(name)
	return d
}

// DB returns the underlying *sql.DB instance.
func (d *Driver) DB() *sql.DB { return d.db }

// Dialect implements dialect.Conn.
func (d *Driver) Dialect() string { return d.dialect }

// Prefix implements dialect.Conn.
func (d *Driver) Prefix() string { return d.prefix }

// Cast returns the type cast of the column type for the dialect.
func (d *Driver) Cast(t field.Type) field.Cast {
	if c, ok := d.casts[t]; ok {
		return c
	}
	return stringCast
}

// LastQuery returns the last statement sent to the server.
func (d *Driver) LastQuery() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastQuery
}

func (d *Driver) conn(query string) ExecQuerier {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastQuery = query
	if d.tx != nil {
		return d.tx
	}
	return d.db
}

// Select implements dialect.Conn.
func (d *Driver) Select(ctx context.Context, query string) ([]dialect.Row, error) {
	d.logger.DebugContext(ctx, "select", "query", query)
	rows, err := d.conn(query).QueryContext(ctx, query)
	if err != nil {
		return nil, d.wrap(ctx, "select", query, err)
	}
	defer rows.Close()
	columns, err := rows.Columns()
	if err != nil {
		return nil, d.wrap(ctx, "select", query, err)
	}
	var out []dialect.Row
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, d.wrap(ctx, "select", query, err)
		}
		row := make(dialect.Row, len(columns))
		for i, c := range columns {
			row[c] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, d.wrap(ctx, "select", query, err)
	}
	return out, nil
}

// Execute implements dialect.Conn.
func (d *Driver) Execute(ctx context.Context, query string) (int64, error) {
	d.logger.DebugContext(ctx, "execute", "query", query)
	res, err := d.conn(query).ExecContext(ctx, query)
	if err != nil {
		return 0, d.wrap(ctx, "execute", query, err)
	}
	if d.dialect != dialect.Postgres {
		if id, err := res.LastInsertId(); err == nil && id > 0 {
			d.mu.Lock()
			d.lastID = id
			d.mu.Unlock()
		}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// LastInsertID implements dialect.Conn. PostgreSQL reads lastval() of the
// session, other dialects report the id of the last insert statement.
func (d *Driver) LastInsertID(ctx context.Context) (int64, error) {
	if d.dialect == dialect.Postgres {
		rows, err := d.Select(ctx, "SELECT lastval() AS lastval")
		if err != nil {
			return 0, err
		}
		if len(rows) != 1 {
			return 0, fmt.Errorf("dialect/sql: lastval returned %d rows", len(rows))
		}
		v, err := intFromDB(rows[0]["lastval"])
		if err != nil {
			return 0, err
		}
		return v.(int64), nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastID, nil
}

// Begin implements dialect.Conn.
func (d *Driver) Begin(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tx != nil {
		return tabula.ErrTxStarted
	}
	d.lastQuery = "BEGIN"
	d.logger.DebugContext(ctx, "begin transaction")
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return tabula.NewQueryError("begin", "BEGIN", err)
	}
	d.tx = tx
	return nil
}

// Commit implements dialect.Conn.
func (d *Driver) Commit() error {
	return d.finish("COMMIT", (*sql.Tx).Commit)
}

// Rollback implements dialect.Conn.
func (d *Driver) Rollback() error {
	return d.finish("ROLLBACK", (*sql.Tx).Rollback)
}

func (d *Driver) finish(stmt string, fn func(*sql.Tx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tx == nil {
		return tabula.ErrTxNotStarted
	}
	tx := d.tx
	d.tx = nil
	d.lastQuery = stmt
	d.logger.Debug(strings.ToLower(stmt) + " transaction")
	if err := fn(tx); err != nil {
		return tabula.NewQueryError(strings.ToLower(stmt), stmt, err)
	}
	return nil
}

// InTx implements dialect.Conn.
func (d *Driver) InTx() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tx != nil
}

// ServerInfo implements dialect.Conn.
func (d *Driver) ServerInfo(ctx context.Context) (string, error) {
	q := "SELECT version() AS version"
	if d.dialect == dialect.SQLite {
		q = "SELECT sqlite_version() AS version"
	}
	rows, err := d.Select(ctx, q)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", nil
	}
	return fmt.Sprint(textFromDB(rows[0]["version"])), nil
}

// Close rolls back a pending transaction and closes the connection.
func (d *Driver) Close() error {
	d.mu.Lock()
	tx := d.tx
	d.tx = nil
	d.mu.Unlock()
	var err error
	if tx != nil {
		err = tx.Rollback()
	}
	return errors.Join(err, d.db.Close())
}

// Esc implements dialect.Escaper.
func (d *Driver) Esc(s string) string {
	switch d.dialect {
	case dialect.Postgres:
		return pq.QuoteLiteral(s)
	case dialect.MySQL:
		return "'" + escapeStringValue(s) + "'"
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// EscBytes implements dialect.Escaper.
func (d *Driver) EscBytes(b []byte) string {
	if d.dialect == dialect.Postgres {
		return fmt.Sprintf(`'\x%x'::bytea`, b)
	}
	return fmt.Sprintf("X'%x'", b)
}

// Qn implements dialect.Escaper.
func (d *Driver) Qn(name string) string {
	switch d.dialect {
	case dialect.Postgres:
		return pq.QuoteIdentifier(name)
	case dialect.MySQL:
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// escapeStringValue escapes a string value for MySQL literals.
// It escapes both single quotes (by doubling) and backslashes.
func escapeStringValue(s string) string {
	if !strings.ContainsAny(s, `'\`) {
		return s
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "'", "''")
	return s
}

// wrap turns a driver error into a QueryError carrying the query, and into a
// ConstraintError when a constraint was violated.
func (d *Driver) wrap(ctx context.Context, op, query string, err error) error {
	d.logger.ErrorContext(ctx, "query failed", "op", op, "query", query, "error", err)
	qerr := tabula.NewQueryError(op, query, err)
	if kind := sqlgraph.ConstraintKind(err); kind != "" {
		return tabula.NewConstraintError(kind+" constraint violated", qerr)
	}
	return qerr
}

// SQL formats a statement, escaping every argument as a literal of the
// connection dialect. Arguments are formatted with %s.
//
//	sql.SQL(conn, "code_name=%s AND application=%s", code, app)
func SQL(esc dialect.Escaper, format string, args ...any) string {
	quoted := make([]any, len(args))
	for i, a := range args {
		quoted[i] = Literal(esc, a)
	}
	return fmt.Sprintf(format, quoted...)
}

// Literal returns v as a SQL literal.
func Literal(esc dialect.Escaper, v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case string:
		return esc.Esc(v)
	case []byte:
		return esc.EscBytes(v)
	case bool:
		return boolLiteral(esc, v)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(v)
	case float32, float64:
		return formatFloat(v)
	}
	return esc.Esc(fmt.Sprint(v))
}

// EQ returns the condition column = v, with column quoted as an identifier
// and v as a literal.
func EQ(esc dialect.Escaper, column string, v any) string {
	return esc.Qn(column) + "=" + Literal(esc, v)
}

// And joins conditions with AND.
func And(conds ...string) string {
	return strings.Join(conds, " AND ")
}

var _ dialect.Conn = (*Driver)(nil)
