// Package field is the registry of column types understood by tabula.
//
// Every column of an entity is described by a Descriptor built with the
// fluent builders of this package:
//
//	field.Sequence("id")
//	field.Varchar("item").Size(250).Required()
//	field.Boolean("completed").Default(false)
//	field.ForeignKey("list", "Todo_List").RelateName("items")
//	field.ManyToMany("tags", "Tag").Blank()
//
// # Types
//
// The set of types is closed: sequence, varchar, boolean, integer, float,
// text, html, date, datetime, time, foreignkey, manytomany, password, email,
// file, blob and compressed.
//
// # In-memory values
//
// Values held by entities use one Go type per column type:
//
//	sequence, integer, foreignkey             int64
//	varchar, text, html, password, email,
//	file, time                                string
//	boolean                                   bool
//	float                                     float64
//	date, datetime                            time.Time
//	manytomany                                []int64
//	blob, compressed                          []byte
//
// Coerce converts loosely typed input (form strings, JSON numbers) into that
// representation and Validate applies the type validators.
package field
