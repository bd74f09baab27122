// Package typeconv holds the six-type data model shared by the metadata
// catalog, the versioned cell store, and the view materializer: the
// DataType enum, the name of the physical value table backing each type,
// and the coercion rules applied on write.
package typeconv

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/russellromney/synthdb/internal/dberr"
)

// DataType is one of the six physical value types a logical column can
// declare. Booleans and JSON are carried alongside the four primitive
// types named by the catalog design; see DESIGN.md for why both are kept
// rather than narrowing to four.
type DataType string

const (
	Text      DataType = "text"
	Integer   DataType = "integer"
	Real      DataType = "real"
	Boolean   DataType = "boolean"
	JSON      DataType = "json"
	Timestamp DataType = "timestamp"
)

// All lists every supported DataType in a stable order, used by the
// schema installer to create one value table per type and by the
// metadata store's reserved-name set and hard table delete.
var All = []DataType{Text, Integer, Real, Boolean, JSON, Timestamp}

// Valid reports whether s names a supported DataType.
func Valid(s string) bool {
	switch DataType(s) {
	case Text, Integer, Real, Boolean, JSON, Timestamp:
		return true
	}
	return false
}

// ValueTable returns the physical table name holding values of type t,
// e.g. "integer_values" for Integer.
func (t DataType) ValueTable() string {
	return string(t) + "_values"
}

// TimestampLayout is the on-disk timestamp format: millisecond precision,
// exactly three fractional digits, no timezone suffix. Callers are
// expected to produce UTC values.
const TimestampLayout = "2006-01-02 15:04:05.000"

// Now returns the current instant formatted at millisecond precision, the
// same value new cell versions stamp into created_at.
func Now() string {
	return time.Now().UTC().Format(TimestampLayout)
}

// FormatTimestamp renders t at millisecond precision in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a stored timestamp string, trying the canonical
// layout first and then a handful of related layouts the way the
// original tooling's parser did (bare seconds, RFC3339).
func ParseTimestamp(s string) (time.Time, error) {
	layouts := []string{
		TimestampLayout,
		"2006-01-02 15:04:05",
		time.RFC3339,
		time.RFC3339Nano,
	}
	var lastErr error
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, dberr.Wrapf(dberr.ErrTypeCoercion, lastErr, "parsing timestamp %q", s)
}

// Coerce converts an arbitrary Go value into the representation the
// physical value table for t expects: booleans as 0/1 integers, JSON
// values as already-marshaled strings, timestamps as formatted strings.
// It mirrors the coercion step of the versioned cell store's upsert path.
//
// forced is true only when the caller supplied an explicit force_type
// (spec §4.4.6): that is the sole sanctioned path from a non-string
// scalar into text. Without it, a non-string value into Text/JSON raises
// ErrTypeCoercion rather than being silently stringified (spec §9:
// "'Smart' type coercion that stringifies arbitrary objects" is the
// pattern requiring re-architecture).
func Coerce(t DataType, value any, forced bool) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch t {
	case Text, JSON:
		switch v := value.(type) {
		case string:
			return v, nil
		default:
			if !forced {
				return nil, dberr.New(dberr.ErrTypeCoercion, "cannot coerce %T to %s without force_type", value, t)
			}
			switch v.(type) {
			case int, int64, float64, bool:
				return fmt.Sprintf("%v", v), nil
			default:
				return nil, dberr.New(dberr.ErrTypeCoercion, "cannot coerce %T to %s", value, t)
			}
		}
	case Integer:
		switch v := value.(type) {
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		case float64:
			if v != math.Trunc(v) {
				return nil, dberr.New(dberr.ErrTypeCoercion, "cannot coerce fractional %v to integer", v)
			}
			return int64(v), nil
		case string:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, dberr.Wrapf(dberr.ErrTypeCoercion, err, "coercing %q to integer", v)
			}
			return n, nil
		case bool:
			if v {
				return int64(1), nil
			}
			return int64(0), nil
		default:
			return nil, dberr.New(dberr.ErrTypeCoercion, "cannot coerce %T to integer", value)
		}
	case Real:
		switch v := value.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case string:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, dberr.Wrapf(dberr.ErrTypeCoercion, err, "coercing %q to real", v)
			}
			return f, nil
		default:
			return nil, dberr.New(dberr.ErrTypeCoercion, "cannot coerce %T to real", value)
		}
	case Boolean:
		switch v := value.(type) {
		case bool:
			if v {
				return int64(1), nil
			}
			return int64(0), nil
		case int:
			return int64(boolToInt(v != 0)), nil
		case int64:
			return int64(boolToInt(v != 0)), nil
		default:
			return nil, dberr.New(dberr.ErrTypeCoercion, "cannot coerce %T to boolean", value)
		}
	case Timestamp:
		switch v := value.(type) {
		case time.Time:
			return FormatTimestamp(v), nil
		case string:
			t, err := ParseTimestamp(v)
			if err != nil {
				return nil, err
			}
			return FormatTimestamp(t), nil
		default:
			return nil, dberr.New(dberr.ErrTypeCoercion, "cannot coerce %T to timestamp", value)
		}
	default:
		return nil, dberr.New(dberr.ErrUnknownType, "%s", t)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// DisplayBoolean renders a stored 0/1 integer as the 'true'/'false'
// string literal the view materializer's CASE expression produces, used
// by callers that read raw values back out of boolean_values directly.
func DisplayBoolean(v int64) string {
	if v != 0 {
		return "true"
	}
	return "false"
}
