// Package sql implements dialect.Conn on top of database/sql for PostgreSQL,
// MySQL and SQLite.
//
// A Driver is one logical connection. Statements are plain strings built by
// the model layer, with every value escaped by the Driver itself:
//
//	drv, err := sql.Open(dialect.Postgres, "postgres://localhost/app?sslmode=disable",
//	    sql.WithPrefix("app_"),
//	)
//	if err != nil {
//	    return err
//	}
//	defer drv.Close()
//
//	rows, err := drv.Select(ctx, sql.SQL(drv, "SELECT * FROM users WHERE name=%s", name))
//
// # Transactions
//
// Begin starts a transaction used by every following statement until Commit
// or Rollback. Transactions do not nest: Begin inside a transaction returns
// tabula.ErrTxStarted, and Commit or Rollback without one returns
// tabula.ErrTxNotStarted.
//
// # Type casts
//
// Cast returns the conversion of a column type between its in-memory value
// and its database representation. FromDB decodes a scanned value, ToDB
// writes an escaped SQL literal.
//
// # Statistics and debugging
//
// StatsDriver counts statements and reports slow ones, DebugDriver keeps
// every statement in a buffer:
//
//	dbg := sql.NewDebugDriver(drv)
//	client := model.NewClient(reg, dbg)
//	...
//	fmt.Println(dbg.Queries())
package sql
