// Package split plans and draws binomial-thinning partitions of molecular
// count matrices for self-supervised cross-validation.
package split

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DomainError reports an argument outside its valid domain. Splitting fails
// fast on it; no partial result is returned.
type DomainError struct {
	Param  string
	Reason string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Param, e.Reason)
}

// Fractions holds per-row overlap-adjusted thinning probabilities.
//
// Split is the effective probability that an observed molecule lands in
// partition X. Complement is the probability mass attributed to partition Y,
// and Overlap the expected mass shared between the two when the observed
// counts are themselves a subsample of a larger latent total. The three
// always satisfy Split + Complement - Overlap == 1 per row.
type Fractions struct {
	Split      []float64
	Complement []float64
	Overlap    []float64
}

// Rows returns the number of rows the fractions were planned for.
func (f Fractions) Rows() int { return len(f.Split) }

// OverlapCorrection computes the achievable split probabilities for a nominal
// split fraction when each row's observed total is only a depthRatio fraction
// of the latent molecule count.
//
// A row at depth ratio exactly 1 has complete observed counts, so its two
// partitions are exact complements and the row reduces to
// (nominal, 1-nominal, 0). Any other row's partitions are modeled as
// independent subsamples of the latent molecules at rates nominal*r and
// (1-nominal)*r; renormalizing by the mass observed in either partition gives
// the corrected fractions and their shared overlap. The reduction is applied
// per row, so a complete row keeps zero overlap regardless of its neighbors.
func OverlapCorrection(nominal float64, depthRatio []float64) (Fractions, error) {
	if !(nominal > 0 && nominal < 1) {
		return Fractions{}, &DomainError{Param: "data split", Reason: fmt.Sprintf("must be in (0, 1), got=%g", nominal)}
	}
	if len(depthRatio) == 0 {
		return Fractions{}, &DomainError{Param: "depth ratio", Reason: "must not be empty"}
	}
	for i, r := range depthRatio {
		if r <= 0 || r > 1 {
			return Fractions{}, &DomainError{Param: "depth ratio", Reason: fmt.Sprintf("must be in (0, 1] at row %d, got=%g", i, r)}
		}
	}

	n := len(depthRatio)
	f := Fractions{
		Split:      make([]float64, n),
		Complement: make([]float64, n),
		Overlap:    make([]float64, n),
	}
	for i, r := range depthRatio {
		if r == 1 {
			f.Split[i] = nominal
			f.Complement[i] = 1 - nominal
			continue
		}
		p := nominal * r
		q := (1 - nominal) * r
		observed := p + q - p*q
		f.Split[i] = p / observed
		f.Complement[i] = q / observed
		f.Overlap[i] = p * q / observed
	}
	return f, nil
}

// SplitMolecules partitions an observed count matrix by binomial thinning:
// X_ij ~ Binomial(counts_ij, Split_i) and Y = counts - X exactly, so that
// X + Y == counts entrywise and no molecule is dropped or counted twice.
//
// The overlap term never alters the draw; it only changes how the two
// partitions' expectations are interpreted when reconstructions are rescaled.
func SplitMolecules(counts mat.Matrix, fractions Fractions, src rand.Source) (x, y *mat.Dense, err error) {
	rows, cols := counts.Dims()
	if fractions.Rows() != rows {
		return nil, nil, &DomainError{Param: "fractions", Reason: fmt.Sprintf("planned for %d rows, counts have %d", fractions.Rows(), rows)}
	}
	if src == nil {
		return nil, nil, &DomainError{Param: "random source", Reason: "must not be nil"}
	}
	for i, p := range fractions.Split {
		if !(p > 0 && p < 1) {
			return nil, nil, &DomainError{Param: "split fraction", Reason: fmt.Sprintf("must be in (0, 1) at row %d, got=%g", i, p)}
		}
		if ov := fractions.Overlap[i]; ov < 0 || ov >= p {
			return nil, nil, &DomainError{Param: "overlap", Reason: fmt.Sprintf("must be in [0, split) at row %d, got=%g", i, ov)}
		}
	}

	x = mat.NewDense(rows, cols, nil)
	y = mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		bin := distuv.Binomial{P: fractions.Split[i], Src: src}
		for j := 0; j < cols; j++ {
			c := counts.At(i, j)
			if c < 0 || c != math.Trunc(c) {
				return nil, nil, &DomainError{Param: "counts", Reason: fmt.Sprintf("must be non-negative integers, got=%g at (%d, %d)", c, i, j)}
			}
			if c == 0 {
				continue
			}
			bin.N = c
			drawn := bin.Rand()
			x.Set(i, j, drawn)
			y.Set(i, j, c-drawn)
		}
	}
	return x, y, nil
}
