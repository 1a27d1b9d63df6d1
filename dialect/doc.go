// Package dialect defines the backend contract shared by every database
// dialect supported by tabula.
//
// # Supported Dialects
//
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//	dialect.SQLite   = "sqlite"
//
// # Conn Interface
//
// Conn is one logical connection. Statements are plain SQL text built by the
// model layer; all literal and identifier escaping goes through the Escaper
// methods of the connection so that no caller concatenates raw input:
//
//	q := fmt.Sprintf("SELECT * FROM %s WHERE %s=%s",
//	    conn.Qn(conn.Prefix()+"todo_item"), conn.Qn("item"), conn.Esc(input))
//	rows, err := conn.Select(ctx, q)
//
// Transactions are connection scoped. Begin fails with tabula.ErrTxStarted
// when a transaction is already in progress.
//
// # Sub-packages
//
//   - dialect/sql: database/sql backed Conn implementation and type casts
//   - dialect/sql/schema: DDL generation per dialect
//   - dialect/sql/sqlgraph: constraint error classification
package dialect
