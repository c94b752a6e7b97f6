package sweep

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// PCAFit returns a closed-form FitFunc: a thin SVD of the training matrix
// truncated to the top k singular values, reconstructed as U_k S_k V_k^T.
// Each call factorizes from scratch, so calls are independent across ranks
// and trials.
func PCAFit() FitFunc {
	return func(train *mat.Dense, k int) (*mat.Dense, error) {
		if k < 1 {
			return nil, errors.New("rank must be >= 1")
		}

		var svd mat.SVD
		if ok := svd.Factorize(train, mat.SVDThin); !ok {
			return nil, errors.New("svd factorization did not converge")
		}

		var u, v mat.Dense
		svd.UTo(&u)
		svd.VTo(&v)
		values := svd.Values(nil)
		if k > len(values) {
			k = len(values)
		}

		rows, cols := train.Dims()
		us := mat.NewDense(rows, k, nil)
		us.Mul(u.Slice(0, rows, 0, k), mat.NewDiagDense(k, values[:k]))

		recon := mat.NewDense(rows, cols, nil)
		recon.Mul(us, v.Slice(0, cols, 0, k).T())
		return recon, nil
	}
}
