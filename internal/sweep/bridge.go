package sweep

import (
	"gonum.org/v1/gonum/mat"

	"github.com/czbiohub/molecular-cross-validation/internal/poisson"
	"github.com/czbiohub/molecular-cross-validation/internal/split"
)

// Bridge rescales a reconstruction computed on the training partition into
// the expectation scale of the held-out partition, using the fractions
// planned for the split.
type Bridge struct {
	fractions split.Fractions
}

// NewBridge wraps overlap-adjusted fractions for reuse across trials.
func NewBridge(fractions split.Fractions) Bridge {
	return Bridge{fractions: fractions}
}

// Rescale maps a square-root-scale reconstruction from the training
// partition's depth to the held-out partition's.
func (b Bridge) Rescale(recon mat.Matrix) (*mat.Dense, error) {
	return poisson.ConvertExpectations(recon, b.fractions.Split, b.fractions.Complement)
}
