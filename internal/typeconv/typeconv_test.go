package typeconv

import (
	"errors"
	"testing"
	"time"

	"github.com/russellromney/synthdb/internal/dberr"
)

func TestCoerceInteger(t *testing.T) {
	cases := []struct {
		in      any
		want    int64
		wantErr bool
	}{
		{42, 42, false},
		{int64(7), 7, false},
		{"123", 123, false},
		{"12.5", 0, true},
		{"abc", 0, true},
		{3.0, 3, false},
		{3.7, 0, true},
	}
	for _, c := range cases {
		got, err := Coerce(Integer, c.in, false)
		if c.wantErr {
			if err == nil {
				t.Errorf("Coerce(Integer, %v) = %v, want error", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Coerce(Integer, %v) unexpected error: %v", c.in, err)
		}
		if got.(int64) != c.want {
			t.Errorf("Coerce(Integer, %v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestCoerceReal(t *testing.T) {
	got, err := Coerce(Real, 5, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.(float64) != 5.0 {
		t.Errorf("got %v, want 5.0", got)
	}

	if _, err := Coerce(Real, "not-a-number", false); !errors.Is(err, dberr.ErrTypeCoercion) {
		t.Errorf("expected ErrTypeCoercion, got %v", err)
	}
}

func TestCoerceTimestampRoundTrip(t *testing.T) {
	now := time.Date(2023, 12, 25, 10, 0, 0, 0, time.UTC)
	got, err := Coerce(Timestamp, now, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "2023-12-25 10:00:00.000"
	if got != want {
		t.Errorf("Coerce(Timestamp, %v) = %q, want %q", now, got, want)
	}
}

func TestCoerceBoolean(t *testing.T) {
	got, err := Coerce(Boolean, true, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.(int64) != 1 {
		t.Errorf("got %v, want 1", got)
	}
}

func TestCoerceNilPassesThrough(t *testing.T) {
	got, err := Coerce(Text, nil, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("got %v, want nil", got)
	}
}

func TestCoerceTextRejectsUnforcedScalar(t *testing.T) {
	if _, err := Coerce(Text, 42, false); !errors.Is(err, dberr.ErrTypeCoercion) {
		t.Errorf("expected ErrTypeCoercion for unforced numeric-to-text, got %v", err)
	}
}

func TestCoerceTextAllowsForcedScalar(t *testing.T) {
	got, err := Coerce(Text, 42, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "42" {
		t.Errorf("got %v, want \"42\"", got)
	}
}

func TestDisplayBoolean(t *testing.T) {
	if DisplayBoolean(1) != "true" {
		t.Errorf("DisplayBoolean(1) != true")
	}
	if DisplayBoolean(0) != "false" {
		t.Errorf("DisplayBoolean(0) != false")
	}
}

func TestValidAndValueTable(t *testing.T) {
	if !Valid("integer") {
		t.Error("expected integer to be valid")
	}
	if Valid("nonsense") {
		t.Error("expected nonsense to be invalid")
	}
	if Integer.ValueTable() != "integer_values" {
		t.Errorf("got %q", Integer.ValueTable())
	}
}
