package model

import "gonum.org/v1/gonum/mat"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Dataset is the input artifact for a sweep run: an observed molecule count
// matrix plus the ground truth it was generated from, when known.
type Dataset struct {
	VersionedRecord
	ID    string `json:"id"`
	Name  string `json:"name"`
	Seed  int64  `json:"seed"`
	Cells int    `json:"cells"`
	Genes int    `json:"genes"`
	// TrueMeans holds per-cell relative abundances over genes. Each row sums
	// to 1.
	TrueMeans [][]float64 `json:"true_means"`
	// TrueCounts is the latent total number of molecules per cell. Observed
	// counts are a subsample of these totals, so each row sum of Counts is at
	// most the matching entry here.
	TrueCounts []float64 `json:"true_counts"`
	// ExpectedSqrtHalf is E[sqrt] of the counts expected at a 0.5 split,
	// carried for downstream diagnostics.
	ExpectedSqrtHalf [][]float64 `json:"expected_sqrt_half,omitempty"`
	// Counts is the observed UMI matrix, cells x genes, integer-valued.
	Counts [][]float64 `json:"counts"`
}

// SweepResult aggregates the losses of one sweep run. It is written once by
// the sweep controller and immutable afterwards. Loss matrices are indexed
// trial x parameter.
type SweepResult struct {
	VersionedRecord
	RunID         string      `json:"run_id"`
	Dataset       string      `json:"dataset"`
	Method        string      `json:"method"`
	Loss          string      `json:"loss"`
	Normalization string      `json:"normalization"`
	Seed          uint64      `json:"seed"`
	DataSplit     float64     `json:"data_split"`
	ParamRange    []int       `json:"param_range"`
	RecLoss       [][]float64 `json:"rec_loss"`
	MCVLoss       [][]float64 `json:"mcv_loss"`
	GT0Loss       []float64   `json:"gt0_loss"`
	GT1Loss       [][]float64 `json:"gt1_loss"`
}

// LossCurves holds the per-epoch diagnostics of one iterative model fit.
type LossCurves struct {
	VersionedRecord
	RunID     string    `json:"run_id"`
	TrainLoss []float64 `json:"train_loss"`
	ValLoss   []float64 `json:"val_loss"`
}

// Dense converts row-major slices into a gonum matrix. Rows must be
// rectangular; an empty input yields nil.
func Dense(rows [][]float64) *mat.Dense {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil
	}
	out := mat.NewDense(len(rows), len(rows[0]), nil)
	for i, row := range rows {
		out.SetRow(i, row)
	}
	return out
}

// RowsOf converts a gonum matrix back into row-major slices.
func RowsOf(m mat.Matrix) [][]float64 {
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := 0; i < r; i++ {
		row := make([]float64, c)
		for j := 0; j < c; j++ {
			row[j] = m.At(i, j)
		}
		out[i] = row
	}
	return out
}

// RowSums returns the per-row totals of m.
func RowSums(m mat.Matrix) []float64 {
	r, c := m.Dims()
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		sum := 0.0
		for j := 0; j < c; j++ {
			sum += m.At(i, j)
		}
		out[i] = sum
	}
	return out
}
