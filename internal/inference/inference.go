// Package inference implements add_columns' type inference (spec §9):
// given a sample value (or a slice of samples), pick the DataType a new
// column should declare when the caller didn't name one explicitly.
package inference

import (
	"time"

	"github.com/russellromney/synthdb/internal/typeconv"
)

// specificity orders types from most to least specific for the
// majority-vote tie-break: timestamp > real > integer > text.
var specificity = map[typeconv.DataType]int{
	typeconv.Timestamp: 3,
	typeconv.Real:      2,
	typeconv.Integer:   1,
	typeconv.Text:      0,
}

// InferOne classifies a single sample value: an integer literal infers
// integer, a floating literal infers real, a time.Time infers timestamp,
// a bool infers boolean, anything else (including date-like strings)
// infers text — spec §9 is
// explicit that strings that merely look like dates stay text unless the
// caller declares timestamp.
func InferOne(sample any) typeconv.DataType {
	switch sample.(type) {
	case int, int32, int64:
		return typeconv.Integer
	case float32, float64:
		return typeconv.Real
	case time.Time:
		return typeconv.Timestamp
	case bool:
		return typeconv.Boolean
	default:
		return typeconv.Text
	}
}

// InferMany classifies a column from a slice of sampled values: null
// samples are ignored, then the most specific type that appears in
// >50% of the non-null samples wins; otherwise the most specific type
// that appeared at all wins (spec §9's "majority voting (>50%) falling
// back to the most specific type that appeared").
func InferMany(samples []any) typeconv.DataType {
	counts := map[typeconv.DataType]int{}
	total := 0
	for _, s := range samples {
		if s == nil {
			continue
		}
		counts[InferOne(s)]++
		total++
	}
	if total == 0 {
		return typeconv.Text
	}

	var best typeconv.DataType
	bestSpecificity := -1
	for t, n := range counts {
		if n*2 > total && specificity[t] > bestSpecificity {
			best = t
			bestSpecificity = specificity[t]
		}
	}
	if bestSpecificity >= 0 {
		return best
	}

	bestSpecificity = -1
	for t := range counts {
		if specificity[t] > bestSpecificity {
			best = t
			bestSpecificity = specificity[t]
		}
	}
	return best
}

// ResolveTypeOrSample implements add_columns' per-name input: the
// caller's value is either a type name string (e.g. "text") naming the
// declared type directly, or an arbitrary sample value to infer from.
func ResolveTypeOrSample(value any) typeconv.DataType {
	if s, ok := value.(string); ok && typeconv.Valid(s) {
		return typeconv.DataType(s)
	}
	return InferOne(value)
}
