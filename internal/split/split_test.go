package split

import (
	"errors"
	"math"
	"testing"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

func TestOverlapCorrectionCompleteDepth(t *testing.T) {
	f, err := OverlapCorrection(0.9, []float64{1, 1, 1})
	if err != nil {
		t.Fatalf("overlap correction: %v", err)
	}
	for i := 0; i < f.Rows(); i++ {
		if f.Split[i] != 0.9 || f.Complement[i] != 0.1 || f.Overlap[i] != 0 {
			t.Fatalf("expected exact (0.9, 0.1, 0) at row %d, got (%g, %g, %g)", i, f.Split[i], f.Complement[i], f.Overlap[i])
		}
	}
}

func TestOverlapCorrectionReducesCompleteRowsIndividually(t *testing.T) {
	f, err := OverlapCorrection(0.9, []float64{1, 0.5, 1})
	if err != nil {
		t.Fatalf("overlap correction: %v", err)
	}
	for _, i := range []int{0, 2} {
		if f.Split[i] != 0.9 || f.Complement[i] != 0.1 || f.Overlap[i] != 0 {
			t.Fatalf("expected exact (0.9, 0.1, 0) for complete row %d, got (%g, %g, %g)", i, f.Split[i], f.Complement[i], f.Overlap[i])
		}
	}
	if f.Overlap[1] <= 0 {
		t.Fatalf("expected positive overlap for the subsampled row, got=%g", f.Overlap[1])
	}
	if total := f.Split[1] + f.Complement[1] - f.Overlap[1]; math.Abs(total-1) > 1e-12 {
		t.Fatalf("expected mass conservation on the subsampled row, got=%.15f", total)
	}
}

func TestOverlapCorrectionConservesMass(t *testing.T) {
	ratios := []float64{0.05, 0.2, 0.45, 0.7, 0.99, 1}
	for _, nominal := range []float64{0.1, 0.5, 0.9} {
		f, err := OverlapCorrection(nominal, ratios)
		if err != nil {
			t.Fatalf("overlap correction at nominal %g: %v", nominal, err)
		}
		for i := range ratios {
			total := f.Split[i] + f.Complement[i] - f.Overlap[i]
			if math.Abs(total-1) > 1e-12 {
				t.Fatalf("expected split+complement-overlap == 1 at row %d, got=%.15f", i, total)
			}
		}
	}
}

func TestOverlapCorrectionOverlapBounds(t *testing.T) {
	ratios := []float64{0.05, 0.1, 0.25, 0.5}
	for _, nominal := range []float64{0.2, 0.5, 0.9} {
		f, err := OverlapCorrection(nominal, ratios)
		if err != nil {
			t.Fatalf("overlap correction at nominal %g: %v", nominal, err)
		}
		for i := range ratios {
			if f.Overlap[i] < 0 {
				t.Fatalf("expected non-negative overlap at row %d, got=%g", i, f.Overlap[i])
			}
			if f.Overlap[i] >= f.Split[i] || f.Overlap[i] >= f.Complement[i] {
				t.Fatalf("expected overlap below both fractions at row %d, got (%g, %g, %g)", i, f.Split[i], f.Complement[i], f.Overlap[i])
			}
		}
	}
}

func TestOverlapCorrectionDomainErrors(t *testing.T) {
	cases := []struct {
		name    string
		nominal float64
		ratios  []float64
	}{
		{"zero split", 0, []float64{1}},
		{"unit split", 1, []float64{1}},
		{"empty ratios", 0.5, nil},
		{"zero ratio", 0.5, []float64{0.5, 0}},
		{"ratio above one", 0.5, []float64{1.5}},
	}
	for _, tc := range cases {
		_, err := OverlapCorrection(tc.nominal, tc.ratios)
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		var domainErr *DomainError
		if !errors.As(err, &domainErr) {
			t.Fatalf("%s: expected domain error, got %T: %v", tc.name, err, err)
		}
	}
}

func TestSplitMoleculesPartitionsExactly(t *testing.T) {
	counts := mat.NewDense(3, 4, []float64{
		5, 0, 12, 3,
		0, 0, 0, 0,
		100, 1, 7, 42,
	})
	f, err := OverlapCorrection(0.7, []float64{1, 1, 1})
	if err != nil {
		t.Fatalf("overlap correction: %v", err)
	}

	x, y, err := SplitMolecules(counts, f, rand.NewSource(11))
	if err != nil {
		t.Fatalf("split molecules: %v", err)
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			xv, yv := x.At(i, j), y.At(i, j)
			if xv < 0 || yv < 0 || xv != math.Trunc(xv) || yv != math.Trunc(yv) {
				t.Fatalf("expected non-negative integer partitions at (%d, %d), got x=%g y=%g", i, j, xv, yv)
			}
			if xv+yv != counts.At(i, j) {
				t.Fatalf("expected x+y to equal counts at (%d, %d): %g + %g != %g", i, j, xv, yv, counts.At(i, j))
			}
		}
	}
}

func TestSplitMoleculesDeterministicForSeed(t *testing.T) {
	counts := mat.NewDense(2, 3, []float64{10, 20, 30, 5, 0, 15})
	f, err := OverlapCorrection(0.5, []float64{1, 1})
	if err != nil {
		t.Fatalf("overlap correction: %v", err)
	}

	x1, _, err := SplitMolecules(counts, f, rand.NewSource(7))
	if err != nil {
		t.Fatalf("first split: %v", err)
	}
	x2, _, err := SplitMolecules(counts, f, rand.NewSource(7))
	if err != nil {
		t.Fatalf("second split: %v", err)
	}
	if !mat.Equal(x1, x2) {
		t.Fatal("expected identical draws for identical seeds")
	}
}

func TestSplitMoleculesRejectsInvalidInput(t *testing.T) {
	counts := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	f, err := OverlapCorrection(0.5, []float64{1, 1})
	if err != nil {
		t.Fatalf("overlap correction: %v", err)
	}

	if _, _, err := SplitMolecules(counts, f, nil); err == nil {
		t.Fatal("expected error for nil random source")
	}

	short, err := OverlapCorrection(0.5, []float64{1})
	if err != nil {
		t.Fatalf("overlap correction: %v", err)
	}
	if _, _, err := SplitMolecules(counts, short, rand.NewSource(1)); err == nil {
		t.Fatal("expected error for fraction row mismatch")
	}

	negative := mat.NewDense(2, 2, []float64{1, -2, 3, 4})
	if _, _, err := SplitMolecules(negative, f, rand.NewSource(1)); err == nil {
		t.Fatal("expected error for negative counts")
	}

	fractional := mat.NewDense(2, 2, []float64{1, 2.5, 3, 4})
	if _, _, err := SplitMolecules(fractional, f, rand.NewSource(1)); err == nil {
		t.Fatal("expected error for fractional counts")
	}
}

func TestDomainErrorMessage(t *testing.T) {
	err := &DomainError{Param: "data split", Reason: "must be in (0, 1), got=2"}
	if got := err.Error(); got != "data split: must be in (0, 1), got=2" {
		t.Fatalf("unexpected error message: %q", got)
	}
}
