// Package simplify converts structured property values into plain value trees
// that a schemaless document store can hold: strings, numbers, booleans, times,
// []any and map[string]any.
package simplify

import (
	"fmt"
	"math"
	"time"

	"github.com/Chichichkin/docsink/internal/logging"
)

// TypeKey carries a Structure's type tag in the simplified mapping.
const TypeKey = "$type"

// Simplify returns the plain representation of v. It never fails: scalars
// that are not primitives are converted to their display string.
func Simplify(v logging.PropertyValue) any {
	switch t := v.(type) {
	case nil:
		return nil
	case logging.Scalar:
		return scalar(t.Value)
	case logging.Sequence:
		out := make([]any, len(t.Elements))
		for i, e := range t.Elements {
			out[i] = Simplify(e)
		}
		return out
	case logging.Structure:
		out := make(map[string]any, len(t.Properties)+1)
		for _, p := range t.Properties {
			out[p.Name] = Simplify(p.Value)
		}
		if t.TypeTag != "" {
			if _, taken := out[TypeKey]; !taken {
				out[TypeKey] = t.TypeTag
			}
		}
		return out
	case logging.Dictionary:
		out := make(map[string]any, len(t.Entries))
		for _, e := range t.Entries {
			out[keyString(e.Key.Value)] = Simplify(e.Value)
		}
		return out
	default:
		return fmt.Sprint(v)
	}
}

// Properties simplifies a whole property set. A nil or empty input yields an
// empty, non-nil map.
func Properties(props map[string]logging.PropertyValue) map[string]any {
	out := make(map[string]any, len(props))
	for name, v := range props {
		out[name] = Simplify(v)
	}
	return out
}

func scalar(v any) any {
	switch t := v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, uintptr,
		time.Time, time.Duration:
		return v
	case float32:
		if finite(float64(t)) {
			return v
		}
	case float64:
		if finite(t) {
			return v
		}
	}
	return fmt.Sprint(v)
}

// finite excludes NaN and infinities, which JSON cannot encode.
func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func keyString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
