package model

import (
	"reflect"
	"testing"
)

func TestDenseRoundTrip(t *testing.T) {
	rows := [][]float64{{1, 2, 3}, {4, 5, 6}}
	m := Dense(rows)
	if m == nil {
		t.Fatal("expected a matrix")
	}
	r, c := m.Dims()
	if r != 2 || c != 3 {
		t.Fatalf("expected 2x3, got %dx%d", r, c)
	}
	if got := RowsOf(m); !reflect.DeepEqual(got, rows) {
		t.Fatalf("round trip mismatch: %v", got)
	}
}

func TestDenseEmptyInput(t *testing.T) {
	if Dense(nil) != nil {
		t.Fatal("expected nil for empty input")
	}
	if Dense([][]float64{}) != nil {
		t.Fatal("expected nil for zero rows")
	}
}

func TestRowSums(t *testing.T) {
	m := Dense([][]float64{{1, 2}, {3, 4}})
	if got := RowSums(m); !reflect.DeepEqual(got, []float64{3, 7}) {
		t.Fatalf("expected row sums [3 7], got=%v", got)
	}
}
