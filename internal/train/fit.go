package train

import (
	"context"
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/czbiohub/molecular-cross-validation/internal/sweep"
)

// AutoencoderFit adapts the plateau-trained linear autoencoder into a sweep
// FitFunc. The seed keeps every (trial, rank) fit reproducible; the row
// split, weight initialization and epoch shuffling all derive from it.
func AutoencoderFit(ctx context.Context, cfg Config, seed uint64) sweep.FitFunc {
	return func(data *mat.Dense, k int) (*mat.Dense, error) {
		rows, _ := data.Dims()
		src := rand.NewSource(seed + uint64(k))

		trainRows, valRows, err := SplitRows(rows, 0, src)
		if err != nil {
			return nil, err
		}
		model, err := NewLinearAutoencoder(data, k, src)
		if err != nil {
			return nil, err
		}
		if _, err := TrainUntilPlateau(ctx, model, trainRows, valRows, cfg, src); err != nil {
			return nil, fmt.Errorf("autoencoder fit at k=%d: %w", k, err)
		}
		return model.Reconstruction(), nil
	}
}
