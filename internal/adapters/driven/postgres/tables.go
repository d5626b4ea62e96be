package postgres

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/custodia-labs/xmlcat/internal/core/domain"
)

// elementTables lists every element table once, in a stable order
var elementTables = []string{
	"idx_text",
	"idx_numeric",
	"idx_integer",
	"idx_float",
	"idx_datetime",
	"idx_date",
	"idx_boolean",
	"idx_none",
}

// storageType is the type whose Go representation a table's keyval scans into
var storageType = map[string]domain.IndexType{
	"idx_text":     domain.IndexTypeText,
	"idx_numeric":  domain.IndexTypeNumeric,
	"idx_integer":  domain.IndexTypeInteger,
	"idx_float":    domain.IndexTypeFloat,
	"idx_datetime": domain.IndexTypeDateTime,
	"idx_date":     domain.IndexTypeDate,
	"idx_boolean":  domain.IndexTypeBoolean,
	"idx_none":     domain.IndexTypeNone,
}

// elementTable returns the table holding the elements of an index type
func elementTable(t domain.IndexType) (string, error) {
	switch t {
	case domain.IndexTypeText:
		return "idx_text", nil
	case domain.IndexTypeNumeric:
		return "idx_numeric", nil
	case domain.IndexTypeInteger:
		return "idx_integer", nil
	case domain.IndexTypeFloat:
		return "idx_float", nil
	case domain.IndexTypeDateTime, domain.IndexTypeTimestamp:
		return "idx_datetime", nil
	case domain.IndexTypeDate:
		return "idx_date", nil
	case domain.IndexTypeBoolean:
		return "idx_boolean", nil
	case domain.IndexTypeNone:
		return "idx_none", nil
	}
	return "", fmt.Errorf("%w: unknown index type %q", domain.ErrInvalidInput, t)
}

// keyArg converts a key to a driver argument for its table's keyval column
func keyArg(v domain.IndexValue) any {
	if v.Type == domain.IndexTypeNone {
		return nil
	}
	return v.Native()
}

// keyScanner reads a keyval column of an index type back into an IndexValue
type keyScanner struct {
	typ domain.IndexType

	text    sql.NullString
	integer sql.NullInt64
	float   sql.NullFloat64
	time    sql.NullTime
	boolean sql.NullBool
}

func newKeyScanner(t domain.IndexType) *keyScanner {
	return &keyScanner{typ: t}
}

// dest returns the Scan destination for the keyval column
func (k *keyScanner) dest() any {
	switch k.typ {
	case domain.IndexTypeInteger:
		return &k.integer
	case domain.IndexTypeFloat:
		return &k.float
	case domain.IndexTypeDateTime, domain.IndexTypeTimestamp, domain.IndexTypeDate:
		return &k.time
	case domain.IndexTypeBoolean:
		return &k.boolean
	default:
		return &k.text
	}
}

// value returns the scanned key; ok is false for a NULL keyval
func (k *keyScanner) value() (domain.IndexValue, bool) {
	switch k.typ {
	case domain.IndexTypeText:
		return domain.TextValue(k.text.String), k.text.Valid
	case domain.IndexTypeNumeric:
		if !k.text.Valid {
			return domain.IndexValue{}, false
		}
		f, err := strconv.ParseFloat(k.text.String, 64)
		if err != nil {
			return domain.IndexValue{}, false
		}
		return domain.NumericValue(k.text.String, f), true
	case domain.IndexTypeInteger:
		return domain.IntegerValue(k.integer.Int64), k.integer.Valid
	case domain.IndexTypeFloat:
		return domain.FloatValue(k.float.Float64), k.float.Valid
	case domain.IndexTypeDateTime, domain.IndexTypeTimestamp, domain.IndexTypeDate:
		return domain.TimeValue(k.typ, k.time.Time), k.time.Valid
	case domain.IndexTypeBoolean:
		return domain.BoolValue(k.boolean.Bool), k.boolean.Valid
	}
	return domain.NoneValue(), k.text.Valid
}

// keyColumn selects the keyval of alias. The always-NULL keyval of idx_none
// reads as an empty string so that presence survives aggregation.
func keyColumn(table, alias string) string {
	if table == "idx_none" {
		return "COALESCE(" + alias + ".keyval, '')"
	}
	return alias + ".keyval"
}
