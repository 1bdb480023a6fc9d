// Package coerce converts raw cell edits into schema-declared types and
// defines the canonical string serialization used for CSV snapshots.
//
// Coercion is deliberately permissive: editor cells must never block on bad
// input, so a number that fails to parse becomes NaN and anything that is
// not the literal "true" becomes false. Flagging bad cells is the UI's job.
package coerce

import (
	"math"
	"strconv"
	"strings"

	"github.com/mensah/datashelf/internal/schema"
)

// Value converts a raw string edit into the declared field type.
func Value(raw string, t schema.FieldType) any {
	switch t {
	case schema.TypeNumber:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	case schema.TypeBoolean:
		return strings.ToLower(raw) == "true"
	case schema.TypeArray:
		// Lossy by design: values containing commas do not round-trip.
		if raw == "" {
			return []string{}
		}
		return strings.Split(raw, ",")
	default:
		return raw
	}
}

// Canonical renders a stored payload value as its canonical cell string.
// This is the serialization used for CSV snapshot columns.
func Canonical(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		if math.IsNaN(val) {
			return "NaN"
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return Canonical(float64(val))
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case []string:
		return strings.Join(val, ",")
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = Canonical(item)
		}
		return strings.Join(parts, ",")
	default:
		return ""
	}
}

// Infer classifies a natively-typed imported value (from a CSV or JSON file)
// into a field type by inspecting its representation. Import inference looks
// at the first encountered value of each column.
func Infer(v any) schema.FieldType {
	switch v.(type) {
	case bool:
		return schema.TypeBoolean
	case float64, float32, int, int64:
		return schema.TypeNumber
	case []any, []string:
		return schema.TypeArray
	default:
		return schema.TypeString
	}
}
