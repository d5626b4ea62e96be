package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// IndexType identifies how the values extracted by an index are coerced and stored
type IndexType string

const (
	IndexTypeText      IndexType = "text"
	IndexTypeNumeric   IndexType = "numeric"
	IndexTypeInteger   IndexType = "integer"
	IndexTypeFloat     IndexType = "float"
	IndexTypeDateTime  IndexType = "datetime"
	IndexTypeDate      IndexType = "date"
	IndexTypeTimestamp IndexType = "timestamp"
	IndexTypeBoolean   IndexType = "boolean"
	IndexTypeNone      IndexType = "none"
)

// AllIndexTypes returns every supported index type
func AllIndexTypes() []IndexType {
	return []IndexType{
		IndexTypeText,
		IndexTypeNumeric,
		IndexTypeInteger,
		IndexTypeFloat,
		IndexTypeDateTime,
		IndexTypeDate,
		IndexTypeTimestamp,
		IndexTypeBoolean,
		IndexTypeNone,
	}
}

// ParseIndexType parses a type name case-insensitively. An empty name means text.
func ParseIndexType(name string) (IndexType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return IndexTypeText, nil
	}
	t := IndexType(name)
	if !t.IsValid() {
		return "", fmt.Errorf("%w: unknown index type %q", ErrInvalidInput, name)
	}
	return t, nil
}

// IsValid returns true if the type is one of the supported index types
func (t IndexType) IsValid() bool {
	for _, known := range AllIndexTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// family groups types whose stored values can be compared with each other
func (t IndexType) family() string {
	switch t {
	case IndexTypeNumeric, IndexTypeInteger, IndexTypeFloat:
		return "number"
	case IndexTypeDateTime, IndexTypeDate, IndexTypeTimestamp:
		return "time"
	default:
		return string(t)
	}
}

// Comparable reports whether values of the two types can be compared.
// Values of the none type carry no information and compare with nothing.
func Comparable(a, b IndexType) bool {
	if a == IndexTypeNone || b == IndexTypeNone {
		return false
	}
	return a.family() == b.family()
}

// IndexValue is a typed index key. Exactly one of the payload fields is
// meaningful, selected by Type.
type IndexValue struct {
	Type IndexType

	text    string
	number  float64
	integer int64
	time    time.Time
	boolean bool
}

// TextValue creates a text value
func TextValue(s string) IndexValue {
	return IndexValue{Type: IndexTypeText, text: s}
}

// NumericValue creates an arbitrary precision decimal value. The canonical
// decimal text is kept so that storage does not round through float64.
func NumericValue(decimal string, f float64) IndexValue {
	return IndexValue{Type: IndexTypeNumeric, text: decimal, number: f}
}

// IntegerValue creates an integer value
func IntegerValue(i int64) IndexValue {
	return IndexValue{Type: IndexTypeInteger, integer: i, number: float64(i)}
}

// FloatValue creates a float value
func FloatValue(f float64) IndexValue {
	return IndexValue{Type: IndexTypeFloat, number: f}
}

// TimeValue creates a datetime, date or timestamp value, normalised to UTC
func TimeValue(t IndexType, tm time.Time) IndexValue {
	tm = tm.UTC()
	if t == IndexTypeDate {
		tm = time.Date(tm.Year(), tm.Month(), tm.Day(), 0, 0, 0, 0, time.UTC)
	}
	return IndexValue{Type: t, time: tm}
}

// BoolValue creates a boolean value
func BoolValue(b bool) IndexValue {
	return IndexValue{Type: IndexTypeBoolean, boolean: b}
}

// NoneValue creates the information-free key of the none type
func NoneValue() IndexValue {
	return IndexValue{Type: IndexTypeNone}
}

// Text returns the payload of a text value
func (v IndexValue) Text() string { return v.text }

// Float returns the payload of a numeric, integer or float value
func (v IndexValue) Float() float64 { return v.number }

// Int returns the payload of an integer value
func (v IndexValue) Int() int64 { return v.integer }

// Time returns the payload of a datetime, date or timestamp value
func (v IndexValue) Time() time.Time { return v.time }

// Bool returns the payload of a boolean value
func (v IndexValue) Bool() bool { return v.boolean }

// Native returns the value as a plain Go value suitable for a SQL driver argument
func (v IndexValue) Native() any {
	switch v.Type {
	case IndexTypeText:
		return v.text
	case IndexTypeNumeric:
		return v.text
	case IndexTypeInteger:
		return v.integer
	case IndexTypeFloat:
		return v.number
	case IndexTypeDateTime, IndexTypeTimestamp, IndexTypeDate:
		return v.time
	case IndexTypeBoolean:
		return v.boolean
	default:
		return nil
	}
}

// String renders the value the way it is shown in query results
func (v IndexValue) String() string {
	switch v.Type {
	case IndexTypeText, IndexTypeNumeric:
		return v.text
	case IndexTypeInteger:
		return strconv.FormatInt(v.integer, 10)
	case IndexTypeFloat:
		return strconv.FormatFloat(v.number, 'g', -1, 64)
	case IndexTypeDate:
		return v.time.Format("2006-01-02")
	case IndexTypeDateTime, IndexTypeTimestamp:
		return v.time.Format("2006-01-02T15:04:05.999999999")
	case IndexTypeBoolean:
		return strconv.FormatBool(v.boolean)
	default:
		return ""
	}
}

// MarshalJSON encodes the value as its natural JSON form
func (v IndexValue) MarshalJSON() ([]byte, error) {
	switch v.Type {
	case IndexTypeInteger:
		return json.Marshal(v.integer)
	case IndexTypeFloat:
		return json.Marshal(v.number)
	case IndexTypeBoolean:
		return json.Marshal(v.boolean)
	case IndexTypeNone, "":
		return []byte("null"), nil
	default:
		return json.Marshal(v.String())
	}
}

// Equal reports whether two values carry the same type and payload
func (v IndexValue) Equal(o IndexValue) bool {
	if v.Type != o.Type {
		return false
	}
	switch v.Type {
	case IndexTypeDateTime, IndexTypeDate, IndexTypeTimestamp:
		return v.time.Equal(o.time)
	case IndexTypeNumeric:
		return v.number == o.number
	default:
		return v == o
	}
}

// ParseIndexValue coerces the string content of an XML node to the index type.
// Content that cannot be coerced returns ErrValueSkipped; the caller drops it.
func ParseIndexValue(t IndexType, raw string, options string) (IndexValue, error) {
	switch t {
	case IndexTypeText:
		return TextValue(raw), nil
	case IndexTypeNumeric:
		s := strings.TrimSpace(raw)
		f, err := parseFiniteFloat(s)
		if err != nil {
			return IndexValue{}, skipped(t, raw)
		}
		return NumericValue(s, f), nil
	case IndexTypeInteger:
		i, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return IndexValue{}, skipped(t, raw)
		}
		return IntegerValue(i), nil
	case IndexTypeFloat:
		f, err := parseFiniteFloat(strings.TrimSpace(raw))
		if err != nil {
			return IndexValue{}, skipped(t, raw)
		}
		return FloatValue(f), nil
	case IndexTypeDateTime:
		tm, err := ParseDateTime(raw, options)
		if err != nil {
			return IndexValue{}, skipped(t, raw)
		}
		return TimeValue(t, tm), nil
	case IndexTypeDate:
		tm, err := ParseDate(raw, options)
		if err != nil {
			return IndexValue{}, skipped(t, raw)
		}
		return TimeValue(t, tm), nil
	case IndexTypeTimestamp:
		tm, err := ParseTimestamp(raw)
		if err != nil {
			tm, err = ParseDateTime(raw, options)
		}
		if err != nil {
			return IndexValue{}, skipped(t, raw)
		}
		return TimeValue(t, tm), nil
	case IndexTypeBoolean:
		return BoolValue(parseBool(raw)), nil
	case IndexTypeNone:
		return NoneValue(), nil
	default:
		return IndexValue{}, fmt.Errorf("%w: unknown index type %q", ErrInvalidInput, t)
	}
}

// ParseLiteral converts a query literal to a value comparable with keys of
// the given index type. Datetime literals are always auto-detected; an index's
// custom format applies to document content only.
func ParseLiteral(t IndexType, literal string) (IndexValue, error) {
	if t == IndexTypeNone {
		return IndexValue{}, fmt.Errorf("%w: cannot compare %q with an index of type none", ErrInvalidInput, literal)
	}
	v, err := ParseIndexValue(t, literal, "")
	if err != nil {
		return IndexValue{}, fmt.Errorf("%w: %q is not a valid %s value", ErrInvalidInput, literal, t)
	}
	return v, nil
}

// ParseTimestamp parses a Unix epoch given as a decimal number of seconds
func ParseTimestamp(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	f, err := parseFiniteFloat(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid timestamp %q", ErrInvalidInput, raw)
	}

	// plain decimals are split textually to keep nanosecond precision
	if intPart, frac, ok := strings.Cut(strings.TrimLeft(s, "+-"), "."); isDigits(intPart) && (!ok || frac == "" || isDigits(frac)) {
		sec, err := strconv.ParseInt(intPart, 10, 64)
		if err == nil {
			if len(frac) > 9 {
				frac = frac[:9]
			}
			nsec := int64(0)
			if frac != "" {
				nsec, _ = strconv.ParseInt(frac+strings.Repeat("0", 9-len(frac)), 10, 64)
			}
			if strings.HasPrefix(s, "-") {
				sec, nsec = -sec, -nsec
			}
			return time.Unix(sec, nsec).UTC(), nil
		}
	}

	sec := math.Floor(f)
	nsec := math.Round((f - sec) * 1e9)
	return time.Unix(int64(sec), int64(nsec)).UTC(), nil
}

// Compare applies a relational operator to two values of comparable types.
// Boolean values support equality operators only.
func Compare(op Operator, left, right IndexValue) (bool, error) {
	if !Comparable(left.Type, right.Type) {
		return false, fmt.Errorf("%w: cannot compare %s with %s", ErrInvalidInput, left.Type, right.Type)
	}
	if left.Type == IndexTypeBoolean && op != OpEq && op != OpNe {
		return false, fmt.Errorf("%w: operator %s is not defined for boolean values", ErrInvalidInput, op)
	}

	c := compareValues(left, right)
	switch op {
	case OpEq:
		return c == 0, nil
	case OpNe:
		return c != 0, nil
	case OpLt:
		return c < 0, nil
	case OpLe:
		return c <= 0, nil
	case OpGt:
		return c > 0, nil
	case OpGe:
		return c >= 0, nil
	default:
		return false, fmt.Errorf("%w: unknown operator %q", ErrInvalidInput, op)
	}
}

// CompareOrder orders two values of comparable types: -1, 0 or +1
func CompareOrder(left, right IndexValue) int {
	return compareValues(left, right)
}

func compareValues(left, right IndexValue) int {
	switch left.Type.family() {
	case "number":
		return cmp3(left.number, right.number)
	case "time":
		switch {
		case left.time.Before(right.time):
			return -1
		case left.time.After(right.time):
			return 1
		}
		return 0
	case "boolean":
		if left.boolean == right.boolean {
			return 0
		}
		if !left.boolean {
			return -1
		}
		return 1
	default:
		return strings.Compare(left.text, right.text)
	}
}

func cmp3(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func parseFiniteFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite number %q", s)
	}
	return f, nil
}

// parseBool is deliberately permissive: only "false" and "0" (any case) and
// the empty string are false.
func parseBool(raw string) bool {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "", "false", "0":
		return false
	}
	return true
}

func skipped(t IndexType, raw string) error {
	return fmt.Errorf("%w: %q is not a valid %s value", ErrValueSkipped, raw, t)
}
