// Package poisson provides expected-value transforms between Poisson count
// expectations and the variance-stabilized square-root scale.
package poisson

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// TaylorCutoff is the mean at which ExpectedSqrt switches from the truncated
// Taylor series to the asymptotic expansion. The two branches disagree by
// about 2.4e-2 at the cutoff; no smoothing is applied across it.
const TaylorCutoff = 4.0

const (
	taylorTerms = 15
	meanEpsilon = 1e-8
)

// ExpectedSqrt returns E[sqrt(X)] for X ~ Poisson(mean).
//
// A mean of zero (or below, which can arise from floating-point noise in
// rescaled reconstructions) is masked to an exact zero. Means under
// TaylorCutoff use a 15-term Taylor expansion of the probability-weighted
// square roots; larger means use the delta-method expansion
// sqrt(m) - m^(-1/2)/8 + m^(-3/2)/16.
func ExpectedSqrt(mean float64) float64 {
	if mean <= 0 {
		return 0
	}
	m := mean + meanEpsilon
	if m < TaylorCutoff {
		sum := 0.0
		term := 1.0 // m^k / k!
		for k := 0; k < taylorTerms; k++ {
			if k > 0 {
				term *= m / float64(k)
			}
			sum += term * math.Sqrt(float64(k))
		}
		return sum * math.Exp(-m)
	}
	return math.Sqrt(m) - math.Pow(m, -0.5)/8 + math.Pow(m, -1.5)/16
}

// ExpectedSqrtDense applies ExpectedSqrt elementwise.
func ExpectedSqrtDense(m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, ExpectedSqrt(m.At(i, j)))
		}
	}
	return out
}

// ConvertExpectations rescales a square-root-scale reconstruction obtained
// under per-row split fractions into the expected square-root-scale values
// under the complementary fractions: the squared reconstruction is scaled by
// complement/split to estimate the mean at the new depth, then mapped back
// through ExpectedSqrt. A length-1 fraction slice broadcasts over all rows.
func ConvertExpectations(sqrtVals mat.Matrix, split, complement []float64) (*mat.Dense, error) {
	r, c := sqrtVals.Dims()
	if (len(split) != r && len(split) != 1) || (len(complement) != r && len(complement) != 1) {
		return nil, fmt.Errorf("fraction length mismatch: rows=%d split=%d complement=%d", r, len(split), len(complement))
	}
	at := func(vals []float64, i int) float64 {
		if len(vals) == 1 {
			return vals[0]
		}
		return vals[i]
	}
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		s := at(split, i)
		if s <= 0 {
			return nil, fmt.Errorf("split fraction must be positive at row %d, got=%g", i, s)
		}
		ratio := at(complement, i) / s
		for j := 0; j < c; j++ {
			v := sqrtVals.At(i, j)
			out.Set(i, j, ExpectedSqrt(v*v*ratio))
		}
	}
	return out, nil
}
