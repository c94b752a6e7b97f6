package train

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// LinearAutoencoder is a rank-k linear encoder/decoder trained by gradient
// descent on mean squared reconstruction error. At convergence it spans the
// same subspace as a rank-k PCA, which makes it the iterative counterpart of
// the closed-form fit in the sweep package.
type LinearAutoencoder struct {
	data   *mat.Dense
	genes  int
	rank   int
	params []float64
}

// NewLinearAutoencoder initializes encoder and decoder weights at small
// gaussian values scaled by 1/genes.
func NewLinearAutoencoder(data *mat.Dense, rank int, src rand.Source) (*LinearAutoencoder, error) {
	if data == nil {
		return nil, fmt.Errorf("data matrix is required")
	}
	_, genes := data.Dims()
	if rank < 1 || rank > genes {
		return nil, fmt.Errorf("rank must be in [1, %d], got=%d", genes, rank)
	}

	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	scale := 1 / float64(genes)
	params := make([]float64, 2*genes*rank)
	for i := range params {
		params[i] = normal.Rand() * scale
	}
	return &LinearAutoencoder{data: data, genes: genes, rank: rank, params: params}, nil
}

// Params returns the flat parameter vector: encoder weights (genes x rank)
// followed by decoder weights (rank x genes). The training loop mutates it
// in place.
func (a *LinearAutoencoder) Params() []float64 { return a.params }

func (a *LinearAutoencoder) encoder() *mat.Dense {
	return mat.NewDense(a.genes, a.rank, a.params[:a.genes*a.rank])
}

func (a *LinearAutoencoder) decoder() *mat.Dense {
	return mat.NewDense(a.rank, a.genes, a.params[a.genes*a.rank:])
}

func (a *LinearAutoencoder) batch(rows []int) *mat.Dense {
	b := mat.NewDense(len(rows), a.genes, nil)
	for i, row := range rows {
		b.SetRow(i, a.data.RawRowView(row))
	}
	return b
}

// Loss returns the mean squared reconstruction error over the given rows.
func (a *LinearAutoencoder) Loss(rows []int) float64 {
	b := a.batch(rows)
	recon := a.reconstruct(b)
	sum := 0.0
	r, c := b.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			d := recon.At(i, j) - b.At(i, j)
			sum += d * d
		}
	}
	return sum / float64(r*c)
}

// LossAndGrad evaluates the loss on the given rows and writes the gradient
// of both weight blocks into grad.
func (a *LinearAutoencoder) LossAndGrad(rows []int, grad []float64) float64 {
	b := a.batch(rows)
	enc := a.encoder()
	dec := a.decoder()
	r, c := b.Dims()

	var hidden mat.Dense
	hidden.Mul(b, enc)
	var recon mat.Dense
	recon.Mul(&hidden, dec)

	// dLoss/dRecon = 2 (recon - batch) / (rows * genes)
	dRecon := mat.NewDense(r, c, nil)
	norm := 2 / float64(r*c)
	sum := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			d := recon.At(i, j) - b.At(i, j)
			sum += d * d
			dRecon.Set(i, j, d*norm)
		}
	}

	gradEnc := mat.NewDense(a.genes, a.rank, grad[:a.genes*a.rank])
	gradDec := mat.NewDense(a.rank, a.genes, grad[a.genes*a.rank:])
	gradDec.Mul(hidden.T(), dRecon)
	var dHidden mat.Dense
	dHidden.Mul(dRecon, dec.T())
	gradEnc.Mul(b.T(), &dHidden)

	return sum / float64(r*c)
}

// Reconstruction returns the autoencoder's reconstruction of the full data
// matrix at the current parameters.
func (a *LinearAutoencoder) Reconstruction() *mat.Dense {
	return a.reconstruct(a.data)
}

func (a *LinearAutoencoder) reconstruct(b *mat.Dense) *mat.Dense {
	var hidden mat.Dense
	hidden.Mul(b, a.encoder())
	var recon mat.Dense
	recon.Mul(&hidden, a.decoder())
	return &recon
}
