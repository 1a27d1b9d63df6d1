package sql

import (
	"fmt"
	"strconv"
	"time"

	"github.com/syssam/tabula/dialect"
	"github.com/syssam/tabula/schema/field"
)

// Casts returns the type cast table of a dialect. Dialect specific literal
// syntax (booleans, binary strings) is produced by the Escaper handed to ToDB,
// so the table only depends on the dialect through it.
func Casts(string) map[field.Type]field.Cast {
	intCast := field.Cast{FromDB: intFromDB, ToDB: intToDB}
	casts := map[field.Type]field.Cast{
		field.TypeSequence:   intCast,
		field.TypeInteger:    intCast,
		field.TypeForeignKey: intCast,
		field.TypeBoolean:    {FromDB: boolFromDB, ToDB: boolToDB},
		field.TypeFloat:      {FromDB: floatFromDB, ToDB: floatToDB},
		field.TypeDate:       {FromDB: timeFromDB(field.TypeDate), ToDB: timeToDB(field.DateLayout)},
		field.TypeDatetime:   {FromDB: timeFromDB(field.TypeDatetime), ToDB: timeToDB(field.DatetimeLayout)},
		field.TypeTime:       {FromDB: clockFromDB, ToDB: stringCast.ToDB},
		field.TypeBlob:       {FromDB: bytesFromDB, ToDB: bytesToDB},
		field.TypeCompressed: {FromDB: compressedFromDB, ToDB: compressedToDB},
		field.TypeManyToMany: {FromDB: func(v any) (any, error) { return v, nil }, ToDB: stringCast.ToDB},
	}
	for _, t := range []field.Type{field.TypeVarchar, field.TypeText, field.TypeHTML, field.TypePassword, field.TypeEmail, field.TypeFile} {
		casts[t] = stringCast
	}
	return casts
}

var stringCast = field.Cast{
	FromDB: func(v any) (any, error) { return textFromDB(v), nil },
	ToDB: func(v any, esc dialect.Escaper) (string, error) {
		if v == nil {
			return "NULL", nil
		}
		s, ok := v.(string)
		if !ok {
			s = fmt.Sprint(v)
		}
		return esc.Esc(s), nil
	},
}

func textFromDB(v any) any {
	switch v := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(v)
	case string:
		return v
	}
	return fmt.Sprint(v)
}

func intFromDB(v any) (any, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	}
	return nil, fmt.Errorf("dialect/sql: cannot decode %T as integer", v)
}

func intToDB(v any, _ dialect.Escaper) (string, error) {
	if v == nil {
		return "NULL", nil
	}
	n, err := field.Coerce(&field.Descriptor{Type: field.TypeInteger}, v)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.(int64), 10), nil
}

func boolFromDB(v any) (any, error) {
	switch v := v.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case []byte:
		return boolFromDB(string(v))
	case string:
		switch v {
		case "t", "true", "1", "TRUE", "y":
			return true, nil
		}
		return false, nil
	}
	return nil, fmt.Errorf("dialect/sql: cannot decode %T as boolean", v)
}

func boolToDB(v any, esc dialect.Escaper) (string, error) {
	if v == nil {
		return "NULL", nil
	}
	b, _ := field.Coerce(&field.Descriptor{Type: field.TypeBoolean}, v)
	return boolLiteral(esc, b.(bool)), nil
}

// boolLiteral writes TRUE/FALSE for PostgreSQL and 1/0 elsewhere.
func boolLiteral(esc dialect.Escaper, b bool) string {
	if c, ok := esc.(interface{ Dialect() string }); ok && c.Dialect() == dialect.Postgres {
		if b {
			return "TRUE"
		}
		return "FALSE"
	}
	if b {
		return "1"
	}
	return "0"
}

func floatFromDB(v any) (any, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case []byte:
		return strconv.ParseFloat(string(v), 64)
	case string:
		return strconv.ParseFloat(v, 64)
	}
	return nil, fmt.Errorf("dialect/sql: cannot decode %T as float", v)
}

func floatToDB(v any, _ dialect.Escaper) (string, error) {
	if v == nil {
		return "NULL", nil
	}
	f, err := field.Coerce(&field.Descriptor{Type: field.TypeFloat}, v)
	if err != nil {
		return "", err
	}
	return formatFloat(f), nil
}

// formatFloat writes a float as a plain decimal literal, without exponent.
func formatFloat(v any) string {
	switch f := v.(type) {
	case float32:
		return strconv.FormatFloat(float64(f), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func timeFromDB(t field.Type) func(any) (any, error) {
	return func(v any) (any, error) {
		if v == nil {
			return nil, nil
		}
		return field.Coerce(&field.Descriptor{Type: t}, v)
	}
}

func timeToDB(layout string) func(any, dialect.Escaper) (string, error) {
	return func(v any, esc dialect.Escaper) (string, error) {
		if v == nil {
			return "NULL", nil
		}
		t, ok := v.(time.Time)
		if !ok {
			return "", fmt.Errorf("dialect/sql: cannot encode %T as time", v)
		}
		return esc.Esc(t.UTC().Format(layout)), nil
	}
}

func clockFromDB(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return field.Coerce(&field.Descriptor{Type: field.TypeTime}, v)
}

func bytesFromDB(v any) (any, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return nil, fmt.Errorf("dialect/sql: cannot decode %T as bytes", v)
}

func bytesToDB(v any, esc dialect.Escaper) (string, error) {
	switch v := v.(type) {
	case nil:
		return "NULL", nil
	case []byte:
		return esc.EscBytes(v), nil
	case string:
		return esc.EscBytes([]byte(v)), nil
	}
	return "", fmt.Errorf("dialect/sql: cannot encode %T as bytes", v)
}

func compressedFromDB(v any) (any, error) {
	b, err := bytesFromDB(v)
	if err != nil || b == nil {
		return b, err
	}
	if len(b.([]byte)) == 0 {
		return []byte{}, nil
	}
	return field.Inflate(b.([]byte))
}

func compressedToDB(v any, esc dialect.Escaper) (string, error) {
	if v == nil {
		return "NULL", nil
	}
	raw, err := field.Coerce(&field.Descriptor{Type: field.TypeCompressed}, v)
	if err != nil {
		return "", err
	}
	z, err := field.Deflate(raw.([]byte))
	if err != nil {
		return "", err
	}
	return esc.EscBytes(z), nil
}
