package field

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Layouts used by date and datetime columns.
const (
	DateLayout     = "2006-01-02"
	DatetimeLayout = "2006-01-02 15:04:05"
	TimeLayout     = "15:04:05"
)

// MinPasswordLen is the minimum length of a password input.
const MinPasswordLen = 6

// ErrEmpty is returned for blank input on a required column.
var ErrEmpty = errors.New("value must not be empty")

var (
	emailRe = regexp.MustCompile(`(?i)^[A-Z0-9._%-][+A-Z0-9._%-]*@(?:[A-Z0-9-]+\.)+[A-Z]{2,63}$`)
	urlRe   = regexp.MustCompile(`(?i)^(http|https|ftp|gopher)://((25[0-5]|2[0-4]\d|[0-1]?\d?\d)(\.(25[0-5]|2[0-4]\d|[0-1]?\d?\d)){3}|([a-z0-9.\-]+))`)
)

var datetimeLayouts = []string{
	time.RFC3339Nano,
	DatetimeLayout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	DateLayout,
}

// Validate checks an input value for the column and returns it converted to
// the in-memory representation of the column type.
func Validate(d *Descriptor, v any) (any, error) {
	if isBlank(v) {
		if d.Required && d.Type != TypeBoolean {
			return nil, ErrEmpty
		}
		return blankValue(d), nil
	}
	cv, err := Coerce(d, v)
	if err != nil {
		return nil, err
	}
	if err := check(d, cv); err != nil {
		return nil, err
	}
	for _, fn := range d.Validators {
		if err := fn(cv); err != nil {
			return nil, err
		}
	}
	return cv, nil
}

func blankValue(d *Descriptor) any {
	switch {
	case d.Type == TypeBoolean:
		return false
	case d.Type == TypeManyToMany:
		return []int64{}
	case d.Nullable:
		return nil
	case d.Type.IsString():
		return ""
	}
	return d.Zero()
}

func check(d *Descriptor, v any) error {
	switch d.Type {
	case TypeVarchar, TypeEmail, TypeFile, TypeText, TypeHTML:
		if s, _ := v.(string); d.Size > 0 && utf8.RuneCountInString(s) > d.Size {
			return fmt.Errorf("value must not be more than %d characters long", d.Size)
		}
		if d.Type == TypeEmail {
			return ValidateEmail(v)
		}
	case TypePassword:
		if s, _ := v.(string); utf8.RuneCountInString(s) < MinPasswordLen {
			return fmt.Errorf("password must be at least %d characters long", MinPasswordLen)
		}
	}
	return nil
}

// ValidateEmail reports an error when v is not a valid email address.
func ValidateEmail(v any) error {
	s, _ := v.(string)
	if !emailRe.MatchString(s) {
		return fmt.Errorf("email address %q is not valid", s)
	}
	return nil
}

// ValidateURL reports an error when v is not an http, https, ftp or gopher URL.
// Only the structure is checked.
func ValidateURL(v any) error {
	s, _ := v.(string)
	if !urlRe.MatchString(s) {
		return fmt.Errorf("URL %q is not valid", s)
	}
	return nil
}

// Coerce converts v into the in-memory representation of the column type.
// nil is returned unchanged.
func Coerce(d *Descriptor, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch d.Type {
	case TypeSequence, TypeInteger, TypeForeignKey:
		return toInt64(v)
	case TypeBoolean:
		return toBool(v), nil
	case TypeFloat:
		return toFloat64(v)
	case TypeDate:
		return toTime(v, []string{DateLayout}, "date %q is not valid")
	case TypeDatetime:
		return toTime(v, datetimeLayouts, "date and time %q are not valid")
	case TypeTime:
		return toClock(v)
	case TypeManyToMany:
		return toIDs(v)
	case TypeBlob, TypeCompressed:
		switch v := v.(type) {
		case []byte:
			return v, nil
		case string:
			return []byte(v), nil
		}
		return nil, fmt.Errorf("field: unexpected %T for %s column %q", v, d.Type, d.Name)
	}
	switch v := v.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	}
	return fmt.Sprint(v), nil
}

func isBlank(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []byte:
		return len(v) == 0
	case []any:
		return len(v) == 0
	case []int64:
		return len(v) == 0
	case []int:
		return len(v) == 0
	case []string:
		return len(v) == 0
	}
	return false
}

var errInteger = errors.New("value must be an integer")

func toInt64(v any) (int64, error) {
	switch v := v.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, errInteger
		}
		return int64(v), nil
	case float32:
		return floatToInt(float64(v))
	case float64:
		return floatToInt(v)
	case json.Number:
		return toInt64(string(v))
	case []byte:
		return toInt64(string(v))
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, errInteger
		}
		return n, nil
	}
	return 0, errInteger
}

func floatToInt(f float64) (int64, error) {
	if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, errInteger
	}
	return int64(f), nil
}

func toBool(v any) bool {
	switch v := v.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "on", "y", "yes", "1", "true", "t":
			return true
		}
		return false
	case []byte:
		return toBool(string(v))
	}
	n, err := toInt64(v)
	return err == nil && n != 0
}

func toFloat64(v any) (float64, error) {
	switch v := v.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case json.Number:
		return toFloat64(string(v))
	case []byte:
		return toFloat64(string(v))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, errors.New("value must be a number")
		}
		return f, nil
	}
	n, err := toInt64(v)
	if err != nil {
		return 0, errors.New("value must be a number")
	}
	return float64(n), nil
}

func toTime(v any, layouts []string, msg string) (time.Time, error) {
	switch v := v.(type) {
	case time.Time:
		return v.UTC(), nil
	case []byte:
		return toTime(string(v), layouts, msg)
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range layouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf(msg, v)
	}
	return time.Time{}, fmt.Errorf(msg, fmt.Sprint(v))
}

func toClock(v any) (string, error) {
	switch v := v.(type) {
	case time.Time:
		return v.Format(TimeLayout), nil
	case []byte:
		return toClock(string(v))
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range []string{TimeLayout, "15:04"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.Format(TimeLayout), nil
			}
		}
		return "", fmt.Errorf("time %q is not valid", v)
	}
	return "", fmt.Errorf("time %q is not valid", fmt.Sprint(v))
}

func toIDs(v any) ([]int64, error) {
	var items []any
	switch v := v.(type) {
	case []int64:
		return dedupe(v), nil
	case []int:
		for _, n := range v {
			items = append(items, n)
		}
	case []string:
		for _, s := range v {
			items = append(items, s)
		}
	case []any:
		items = v
	default:
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		return []int64{n}, nil
	}
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		n, err := toInt64(item)
		if err != nil {
			return nil, err
		}
		ids = append(ids, n)
	}
	return dedupe(ids), nil
}

// dedupe drops repeated ids, keeping the first occurrence.
func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
