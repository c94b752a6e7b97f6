// Package train drives iterative model fits with a cyclical learning-rate
// schedule and plateau detection on a held-back validation slice.
package train

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/rand"
)

// Model is an iteratively trained reconstruction model. Its parameters live
// in a flat vector that the training loop updates in place.
type Model interface {
	// Params returns the parameter vector. The loop mutates it directly.
	Params() []float64
	// Loss evaluates the objective on the given data rows without touching
	// gradients or parameters.
	Loss(rows []int) float64
	// LossAndGrad evaluates the objective on the given data rows and writes
	// the parameter gradient into grad, which has len(Params()).
	LossAndGrad(rows []int, grad []float64) float64
}

// Defaults for Config fields left at zero.
const (
	DefaultClipNorm  = 100.0
	DefaultMinCycles = 3
	DefaultThreshold = 0.01
	DefaultMaxEpochs = 500
	DefaultCycleLen  = 10
	DefaultBaseLR    = 0.1
)

// Config controls TrainUntilPlateau.
type Config struct {
	// BatchSize is the minibatch size; zero means full-batch epochs.
	BatchSize int
	// ClipNorm bounds the global gradient norm per step.
	ClipNorm float64
	// MinCycles is the number of learning-rate cycles to complete before the
	// plateau rule may stop training.
	MinCycles int
	// Threshold is the relative validation-loss improvement required to keep
	// training past MinCycles. Must be in [0, 1).
	Threshold float64
	// MaxEpochs caps the total epoch count. Zero means DefaultMaxEpochs;
	// lifting the cap entirely requires Unbounded.
	MaxEpochs int
	// Unbounded opts in to running without an epoch ceiling, restoring the
	// liveness risk of a never-satisfied plateau rule.
	Unbounded bool

	// BaseLR, EtaMin, CycleLen and CycleMult configure the cosine schedule.
	BaseLR    float64
	EtaMin    float64
	CycleLen  int
	CycleMult float64
}

// Result holds the per-epoch loss sequences and the terminal loop state.
type Result struct {
	TrainLoss []float64
	ValLoss   []float64
	Epochs    int
	Cycles    int
	// Converged is false when the epoch ceiling stopped training before the
	// plateau rule did.
	Converged bool
}

// TrainUntilPlateau trains m until the validation loss stops improving
// across learning-rate cycles.
//
// Every epoch runs one shuffled minibatch pass over trainRows with SGD and
// global gradient-norm clipping, then one evaluation pass over valRows. The
// plateau rule is checked only at cycle boundaries: an improvement of more
// than Threshold (relative, sign-aware for negative losses) over the best
// validation loss keeps training; otherwise the loop stops once MinCycles
// cycles have elapsed.
func TrainUntilPlateau(ctx context.Context, m Model, trainRows, valRows []int, cfg Config, src rand.Source) (Result, error) {
	if m == nil {
		return Result{}, errors.New("model is required")
	}
	if src == nil {
		return Result{}, errors.New("random source is required")
	}
	if len(trainRows) == 0 || len(valRows) == 0 {
		return Result{}, errors.New("training and validation rows must not be empty")
	}
	if cfg.Threshold < 0 || cfg.Threshold >= 1 {
		return Result{}, fmt.Errorf("threshold must be in [0, 1), got=%g", cfg.Threshold)
	}

	clipNorm := cfg.ClipNorm
	if clipNorm <= 0 {
		clipNorm = DefaultClipNorm
	}
	minCycles := cfg.MinCycles
	if minCycles <= 0 {
		minCycles = DefaultMinCycles
	}
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	maxEpochs := cfg.MaxEpochs
	if maxEpochs <= 0 {
		maxEpochs = DefaultMaxEpochs
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 || batchSize > len(trainRows) {
		batchSize = len(trainRows)
	}
	baseLR := cfg.BaseLR
	if baseLR <= 0 {
		baseLR = DefaultBaseLR
	}
	cycleLen := cfg.CycleLen
	if cycleLen <= 0 {
		cycleLen = DefaultCycleLen
	}

	scheduler := NewCosineWithRestarts(baseLR, cfg.EtaMin, cycleLen, cfg.CycleMult)
	rng := rand.New(src)
	params := m.Params()
	grad := make([]float64, len(params))
	shuffled := append([]int(nil), trainRows...)

	var res Result
	relEpsilon := 1 - threshold
	negEpsilon := 1 + threshold
	best := math.Inf(1)

	for epoch := 0; ; epoch++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if !cfg.Unbounded && epoch >= maxEpochs {
			return res, nil
		}

		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		lr := scheduler.LR()
		epochLoss := 0.0
		batches := 0
		for start := 0; start < len(shuffled); start += batchSize {
			end := start + batchSize
			if end > len(shuffled) {
				end = len(shuffled)
			}
			epochLoss += m.LossAndGrad(shuffled[start:end], grad)
			clipGradNorm(grad, clipNorm)
			for i := range params {
				params[i] -= lr * grad[i]
			}
			batches++
		}
		res.TrainLoss = append(res.TrainLoss, epochLoss/float64(batches))

		valLoss := evaluate(m, valRows, batchSize)
		res.ValLoss = append(res.ValLoss, valLoss)
		res.Epochs = epoch + 1

		scheduler.Step()
		if !scheduler.StartingCycle() {
			continue
		}
		res.Cycles++

		switch {
		case valLoss >= 0 && valLoss < best*relEpsilon:
			best = valLoss
		case valLoss < 0 && valLoss < best*negEpsilon:
			best = valLoss
		case res.Cycles >= minCycles:
			res.Converged = true
			return res, nil
		}
	}
}

// evaluate averages the model loss over minibatches of rows, with no
// parameter updates.
func evaluate(m Model, rows []int, batchSize int) float64 {
	if batchSize > len(rows) {
		batchSize = len(rows)
	}
	total := 0.0
	batches := 0
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		total += m.Loss(rows[start:end])
		batches++
	}
	return total / float64(batches)
}

func clipGradNorm(grad []float64, maxNorm float64) {
	sum := 0.0
	for _, g := range grad {
		sum += g * g
	}
	norm := math.Sqrt(sum)
	if norm <= maxNorm || norm == 0 {
		return
	}
	scale := maxNorm / norm
	for i := range grad {
		grad[i] *= scale
	}
}

// SplitRows randomly partitions n row indices into training and validation
// sets. A non-positive trainFrac uses the 0.875 default.
func SplitRows(n int, trainFrac float64, src rand.Source) (trainRows, valRows []int, err error) {
	if n < 2 {
		return nil, nil, fmt.Errorf("need at least 2 rows to split, got=%d", n)
	}
	if trainFrac <= 0 {
		trainFrac = 0.875
	}
	if trainFrac >= 1 {
		return nil, nil, fmt.Errorf("train fraction must be below 1, got=%g", trainFrac)
	}

	perm := rand.New(src).Perm(n)
	nTrain := int(trainFrac * float64(n))
	if nTrain < 1 {
		nTrain = 1
	}
	if nTrain >= n {
		nTrain = n - 1
	}
	return perm[:nTrain], perm[nTrain:], nil
}
