// Package sweep drives self-supervised evaluation of reconstruction methods
// on molecular count data: it splits the observed counts into two partitions
// by binomial thinning, fits a model on one partition across a range of
// ranks, and scores each fit against the held-out partition and against the
// ground truth when available.
package sweep

import (
	"context"
	"fmt"
	"math"
	"sync"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"github.com/czbiohub/molecular-cross-validation/internal/model"
	"github.com/czbiohub/molecular-cross-validation/internal/poisson"
	"github.com/czbiohub/molecular-cross-validation/internal/split"
)

// FitFunc fits a model of the given rank to a square-root-scale training
// matrix and returns its reconstruction at the same shape. Calls must be
// independent: no state may carry over between ranks or trials.
type FitFunc func(train *mat.Dense, k int) (*mat.Dense, error)

// Config controls one sweep run.
type Config struct {
	// RunID labels the resulting artifact.
	RunID string
	// Method names the fitted model in the artifact, e.g. "pca".
	Method string
	// DataSplit is the nominal fraction of molecules assigned to the
	// training partition.
	DataSplit float64
	// Trials is the number of independent resampling repetitions.
	Trials int
	// ParamRange is the swept model ranks, strictly increasing.
	ParamRange []int
	// Workers bounds trial parallelism. Zero or one runs trials serially.
	Workers int
	// Seed is the run-level seed. Trial t draws from its own stream seeded
	// Seed+1+t, so results do not depend on worker scheduling.
	Seed uint64
}

func (cfg Config) validate() error {
	if cfg.Trials < 1 {
		return fmt.Errorf("trials must be >= 1, got=%d", cfg.Trials)
	}
	if len(cfg.ParamRange) == 0 {
		return fmt.Errorf("param range must not be empty")
	}
	prev := 0
	for _, k := range cfg.ParamRange {
		if k <= prev {
			return fmt.Errorf("param range must be strictly increasing, got=%v", cfg.ParamRange)
		}
		prev = k
	}
	return nil
}

// RankRange returns the ranks 1..maxK.
func RankRange(maxK int) []int {
	ks := make([]int, 0, maxK)
	for k := 1; k <= maxK; k++ {
		ks = append(ks, k)
	}
	return ks
}

// Run executes a full sweep and returns the aggregated loss artifact.
//
// The ground-truth pass fits the full (unsplit) counts once per rank and
// scores against the expected square roots of the true means. Each trial
// then draws a fresh split, fits every rank on the training partition, and
// records the training reconstruction loss, the cross-validated loss against
// the held-out partition, and the ground-truth loss at the held-out split
// depth. All losses are mean squared error over matrix entries.
func Run(ctx context.Context, ds model.Dataset, cfg Config, fit FitFunc) (model.SweepResult, error) {
	if fit == nil {
		return model.SweepResult{}, fmt.Errorf("fit function is required")
	}
	if err := cfg.validate(); err != nil {
		return model.SweepResult{}, err
	}

	counts := model.Dense(ds.Counts)
	trueMeans := model.Dense(ds.TrueMeans)
	if counts == nil || trueMeans == nil {
		return model.SweepResult{}, fmt.Errorf("dataset %s has no counts or true means", ds.Name)
	}
	rows, cols := counts.Dims()
	if mr, mc := trueMeans.Dims(); mr != rows || mc != cols {
		return model.SweepResult{}, fmt.Errorf("true means shape (%d, %d) does not match counts (%d, %d)", mr, mc, rows, cols)
	}
	if len(ds.TrueCounts) != rows {
		return model.SweepResult{}, fmt.Errorf("true counts length %d does not match %d cells", len(ds.TrueCounts), rows)
	}

	observed := model.RowSums(counts)
	depthRatio := make([]float64, rows)
	for i := range depthRatio {
		if ds.TrueCounts[i] <= 0 {
			return model.SweepResult{}, fmt.Errorf("true count must be positive at row %d, got=%g", i, ds.TrueCounts[i])
		}
		depthRatio[i] = observed[i] / ds.TrueCounts[i]
	}

	fractions, err := split.OverlapCorrection(cfg.DataSplit, depthRatio)
	if err != nil {
		return model.SweepResult{}, err
	}
	bridge := NewBridge(fractions)

	// Expected sqrt-scale values of the true signal at full depth and at the
	// held-out partition's depth.
	expMeans := poisson.ExpectedSqrtDense(scaleRows(trueMeans, observed))
	heldOutDepth := make([]float64, rows)
	for i := range heldOutDepth {
		heldOutDepth[i] = fractions.Complement[i] * observed[i]
	}
	expSplitMeans := poisson.ExpectedSqrtDense(scaleRows(trueMeans, heldOutDepth))

	ks := cfg.ParamRange
	gt0 := make([]float64, len(ks))
	sqrtFull := sqrtDense(counts)
	for j, k := range ks {
		if err := ctx.Err(); err != nil {
			return model.SweepResult{}, err
		}
		recon, err := fit(sqrtFull, k)
		if err != nil {
			return model.SweepResult{}, fmt.Errorf("ground-truth fit at k=%d: %w", k, err)
		}
		gt0[j] = MeanSquaredError(expMeans, recon)
	}

	rec := lossMatrix(cfg.Trials, len(ks))
	mcv := lossMatrix(cfg.Trials, len(ks))
	gt1 := lossMatrix(cfg.Trials, len(ks))

	if err := runTrials(ctx, cfg, counts, fractions, bridge, expSplitMeans, fit, rec, mcv, gt1); err != nil {
		return model.SweepResult{}, err
	}

	return model.SweepResult{
		VersionedRecord: model.VersionedRecord{SchemaVersion: 1, CodecVersion: 1},
		RunID:           cfg.RunID,
		Dataset:         ds.Name,
		Method:          cfg.Method,
		Loss:            "mse",
		Normalization:   "sqrt",
		Seed:            cfg.Seed,
		DataSplit:       cfg.DataSplit,
		ParamRange:      append([]int(nil), ks...),
		RecLoss:         rec,
		MCVLoss:         mcv,
		GT0Loss:         gt0,
		GT1Loss:         gt1,
	}, nil
}

// runTrials fans the resampling repetitions out over a bounded worker pool.
// Each trial owns its random stream and writes a disjoint row of every loss
// matrix, so no locking is needed beyond the pool itself.
func runTrials(ctx context.Context, cfg Config, counts *mat.Dense, fractions split.Fractions, bridge Bridge, expSplitMeans *mat.Dense, fit FitFunc, rec, mcv, gt1 [][]float64) error {
	type result struct {
		trial int
		err   error
	}

	workerCount := cfg.Workers
	if workerCount < 1 {
		workerCount = 1
	}
	if workerCount > cfg.Trials {
		workerCount = cfg.Trials
	}

	jobs := make(chan int)
	results := make(chan result, cfg.Trials)

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for trial := range jobs {
				if err := ctx.Err(); err != nil {
					results <- result{trial: trial, err: err}
					continue
				}
				err := runTrial(cfg, trial, counts, fractions, bridge, expSplitMeans, fit, rec[trial], mcv[trial], gt1[trial])
				results <- result{trial: trial, err: err}
			}
		}()
	}

	for trial := 0; trial < cfg.Trials; trial++ {
		jobs <- trial
	}
	close(jobs)
	wg.Wait()
	close(results)

	for res := range results {
		if res.err != nil {
			return fmt.Errorf("trial %d: %w", res.trial, res.err)
		}
	}
	return nil
}

func runTrial(cfg Config, trial int, counts *mat.Dense, fractions split.Fractions, bridge Bridge, expSplitMeans *mat.Dense, fit FitFunc, rec, mcv, gt1 []float64) error {
	src := rand.NewSource(cfg.Seed + 1 + uint64(trial))
	x, y, err := split.SplitMolecules(counts, fractions, src)
	if err != nil {
		return err
	}

	sx := sqrtDense(x)
	sy := sqrtDense(y)
	for j, k := range cfg.ParamRange {
		recon, err := fit(sx, k)
		if err != nil {
			return fmt.Errorf("fit at k=%d: %w", k, err)
		}
		converted, err := bridge.Rescale(recon)
		if err != nil {
			return err
		}
		rec[j] = MeanSquaredError(sx, recon)
		mcv[j] = MeanSquaredError(sy, converted)
		gt1[j] = MeanSquaredError(expSplitMeans, converted)
	}
	return nil
}

// MeanSquaredError averages the squared elementwise difference of two
// equally shaped matrices.
func MeanSquaredError(a, b mat.Matrix) float64 {
	r, c := a.Dims()
	sum := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			d := a.At(i, j) - b.At(i, j)
			sum += d * d
		}
	}
	return sum / float64(r*c)
}

func sqrtDense(m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, math.Sqrt(m.At(i, j)))
		}
	}
	return out
}

func scaleRows(m mat.Matrix, scale []float64) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, m.At(i, j)*scale[i])
		}
	}
	return out
}

func lossMatrix(trials, params int) [][]float64 {
	out := make([][]float64, trials)
	for i := range out {
		out[i] = make([]float64, params)
	}
	return out
}
