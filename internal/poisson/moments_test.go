package poisson

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestExpectedSqrtMasksNonPositiveMeans(t *testing.T) {
	if got := ExpectedSqrt(0); got != 0 {
		t.Fatalf("expected exact zero for zero mean, got=%g", got)
	}
	if got := ExpectedSqrt(-0.5); got != 0 {
		t.Fatalf("expected exact zero for negative mean, got=%g", got)
	}
}

func TestExpectedSqrtAtUnitMean(t *testing.T) {
	// Long-sum reference for E[sqrt(X)], X ~ Poisson(1).
	const want = 0.77319266
	got := ExpectedSqrt(1)
	if math.Abs(got-want) > 1e-6 {
		t.Fatalf("expected %g at mean 1, got=%g", want, got)
	}
}

func TestExpectedSqrtBranchGapAtCutoff(t *testing.T) {
	below := ExpectedSqrt(TaylorCutoff - 1e-9)
	above := ExpectedSqrt(TaylorCutoff)
	if gap := math.Abs(above - below); gap > 2.5e-2 {
		t.Fatalf("expected branch gap at cutoff below 2.5e-2, got=%g", gap)
	}
}

func TestExpectedSqrtBoundedBySqrtMean(t *testing.T) {
	for _, m := range []float64{0.01, 0.1, 0.5, 1, 2, 3.9, 4, 5, 10, 100, 1e4} {
		got := ExpectedSqrt(m)
		if got <= 0 {
			t.Fatalf("expected positive value at mean %g, got=%g", m, got)
		}
		if got >= math.Sqrt(m)+1e-4 {
			t.Fatalf("expected value below sqrt(mean) at mean %g, got=%g", m, got)
		}
	}
}

func TestExpectedSqrtMonotonicWithinBranches(t *testing.T) {
	prev := ExpectedSqrt(0.01)
	for m := 0.02; m < TaylorCutoff; m += 0.01 {
		got := ExpectedSqrt(m)
		if got < prev {
			t.Fatalf("expected non-decreasing values below cutoff, got %g after %g at mean %g", got, prev, m)
		}
		prev = got
	}
	prev = ExpectedSqrt(TaylorCutoff)
	for m := TaylorCutoff + 0.1; m < 100; m += 0.1 {
		got := ExpectedSqrt(m)
		if got < prev {
			t.Fatalf("expected non-decreasing values above cutoff, got %g after %g at mean %g", got, prev, m)
		}
		prev = got
	}
}

func TestExpectedSqrtDense(t *testing.T) {
	in := mat.NewDense(2, 3, []float64{0, 1, 4, 9, -2, 0.5})
	out := ExpectedSqrtDense(in)
	r, c := out.Dims()
	if r != 2 || c != 3 {
		t.Fatalf("expected 2x3 output, got %dx%d", r, c)
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if got, want := out.At(i, j), ExpectedSqrt(in.At(i, j)); got != want {
				t.Fatalf("expected elementwise transform at (%d, %d): want=%g got=%g", i, j, want, got)
			}
		}
	}
}

func TestConvertExpectationsEqualFractions(t *testing.T) {
	in := mat.NewDense(1, 3, []float64{0.5, 1.2, 2.0})
	out, err := ConvertExpectations(in, []float64{0.5}, []float64{0.5})
	if err != nil {
		t.Fatalf("convert expectations: %v", err)
	}
	for j := 0; j < 3; j++ {
		v := in.At(0, j)
		if got, want := out.At(0, j), ExpectedSqrt(v*v); got != want {
			t.Fatalf("expected identity rescale at column %d: want=%g got=%g", j, want, got)
		}
	}
}

func TestConvertExpectationsScalesByComplementRatio(t *testing.T) {
	in := mat.NewDense(1, 1, []float64{2})
	out, err := ConvertExpectations(in, []float64{0.8}, []float64{0.2})
	if err != nil {
		t.Fatalf("convert expectations: %v", err)
	}
	if got, want := out.At(0, 0), ExpectedSqrt(4*0.25); got != want {
		t.Fatalf("expected rescale to quarter depth: want=%g got=%g", want, got)
	}
}

func TestConvertExpectationsBroadcastsScalarFractions(t *testing.T) {
	in := mat.NewDense(3, 2, []float64{1, 2, 0.5, 1.5, 2.5, 0})
	perRow, err := ConvertExpectations(in, []float64{0.9, 0.9, 0.9}, []float64{0.1, 0.1, 0.1})
	if err != nil {
		t.Fatalf("per-row convert: %v", err)
	}
	broadcast, err := ConvertExpectations(in, []float64{0.9}, []float64{0.1})
	if err != nil {
		t.Fatalf("broadcast convert: %v", err)
	}
	if !mat.Equal(perRow, broadcast) {
		t.Fatal("expected a length-1 fraction to broadcast over rows")
	}
}

func TestConvertExpectationsRejectsBadArguments(t *testing.T) {
	in := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	if _, err := ConvertExpectations(in, []float64{0.5}, []float64{0.5, 0.5}); err == nil {
		t.Fatal("expected error for mismatched fraction lengths")
	}
	if _, err := ConvertExpectations(in, []float64{0.5, 0}, []float64{0.5, 0.5}); err == nil {
		t.Fatal("expected error for non-positive split fraction")
	}
}
