package inference

import (
	"testing"
	"time"

	"github.com/russellromney/synthdb/internal/typeconv"
)

func TestInferOne(t *testing.T) {
	cases := []struct {
		in   any
		want typeconv.DataType
	}{
		{25, typeconv.Integer},
		{98.5, typeconv.Real},
		{"2023-12-25", typeconv.Text}, // date-like strings stay text (spec §9)
		{time.Now(), typeconv.Timestamp},
		{true, typeconv.Boolean},
	}
	for _, c := range cases {
		if got := InferOne(c.in); got != c.want {
			t.Errorf("InferOne(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestInferManyMajorityVote(t *testing.T) {
	samples := []any{1, 2, 3, "x"} // 3/4 integer > 50%
	if got := InferMany(samples); got != typeconv.Integer {
		t.Errorf("InferMany = %v, want integer", got)
	}
}

func TestInferManyFallsBackToMostSpecific(t *testing.T) {
	// No type reaches >50%: two integers, two reals, one text.
	samples := []any{1, 2, 1.5, 2.5, "x"}
	if got := InferMany(samples); got != typeconv.Real {
		t.Errorf("InferMany = %v, want real (most specific of the tied types)", got)
	}
}

func TestInferManySkipsNulls(t *testing.T) {
	samples := []any{nil, nil, 1}
	if got := InferMany(samples); got != typeconv.Integer {
		t.Errorf("InferMany = %v, want integer", got)
	}
}

func TestInferManyEmptyDefaultsText(t *testing.T) {
	if got := InferMany(nil); got != typeconv.Text {
		t.Errorf("InferMany(nil) = %v, want text", got)
	}
}

func TestResolveTypeOrSample(t *testing.T) {
	if got := ResolveTypeOrSample("integer"); got != typeconv.Integer {
		t.Errorf("expected type-name string to name its type directly, got %v", got)
	}
	if got := ResolveTypeOrSample(42); got != typeconv.Integer {
		t.Errorf("expected sample inference, got %v", got)
	}
}
