// Package simulate generates synthetic class-structured molecular count
// datasets for evaluating denoising methods against known ground truth.
package simulate

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/czbiohub/molecular-cross-validation/internal/model"
	"github.com/czbiohub/molecular-cross-validation/internal/poisson"
)

// Config describes a simulated dataset: latent class structure projected
// through a gene program matrix, with log-normal library sizes and Poisson
// molecule counts.
type Config struct {
	Name          string
	Seed          int64
	Classes       int
	Latent        int
	CellsPerClass int
	Genes         int

	// ProgramScale is the stddev of program-matrix entries; zero means
	// 1/sqrt(Genes).
	ProgramScale float64
	// ClassScale is the stddev of class-center coordinates; zero means
	// 1/sqrt(Latent).
	ClassScale float64
	// LibraryLoc and LibraryScale parameterize the log-normal library size;
	// a zero LibraryLoc means log(0.1*Genes), a zero LibraryScale means 0.5.
	LibraryLoc   float64
	LibraryScale float64
	// CaptureEfficiency is the fraction of latent molecules observed, in
	// (0, 1]. Zero means 1.
	CaptureEfficiency float64
}

func (cfg Config) withDefaults() (Config, error) {
	if cfg.Classes < 1 || cfg.Latent < 1 || cfg.CellsPerClass < 1 || cfg.Genes < 1 {
		return cfg, fmt.Errorf("classes, latent, cells-per-class and genes must all be >= 1")
	}
	if cfg.ProgramScale == 0 {
		cfg.ProgramScale = 1 / math.Sqrt(float64(cfg.Genes))
	}
	if cfg.ClassScale == 0 {
		cfg.ClassScale = 1 / math.Sqrt(float64(cfg.Latent))
	}
	if cfg.LibraryLoc == 0 {
		cfg.LibraryLoc = math.Log(0.1 * float64(cfg.Genes))
	}
	if cfg.LibraryScale == 0 {
		cfg.LibraryScale = 0.5
	}
	if cfg.CaptureEfficiency == 0 {
		cfg.CaptureEfficiency = 1
	}
	if cfg.CaptureEfficiency < 0 || cfg.CaptureEfficiency > 1 {
		return cfg, fmt.Errorf("capture efficiency must be in (0, 1], got=%g", cfg.CaptureEfficiency)
	}
	return cfg, nil
}

// Classes simulates a dataset of Classes*CellsPerClass cells over Genes
// features. Each class is a point in latent space; cells sample around their
// class center, are projected through the program matrix, and exponentiate
// and normalize into relative abundances. Counts are Poisson draws at the
// cell's library size.
func Classes(cfg Config, src rand.Source) (model.Dataset, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return model.Dataset{}, err
	}
	if src == nil {
		return model.Dataset{}, fmt.Errorf("random source is required")
	}

	cells := cfg.Classes * cfg.CellsPerClass
	programNoise := distuv.Normal{Mu: 0, Sigma: cfg.ProgramScale, Src: src}
	classNoise := distuv.Normal{Mu: 0, Sigma: cfg.ClassScale, Src: src}
	unitNoise := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	library := distuv.LogNormal{Mu: cfg.LibraryLoc, Sigma: cfg.LibraryScale, Src: src}

	programs := randomDense(cfg.Latent, cfg.Genes, programNoise)
	centers := randomDense(cfg.Classes, cfg.Latent, classNoise)

	latent := mat.NewDense(cells, cfg.Latent, nil)
	for i := 0; i < cells; i++ {
		class := i % cfg.Classes
		for j := 0; j < cfg.Latent; j++ {
			latent.Set(i, j, centers.At(class, j)+unitNoise.Rand())
		}
	}

	var expression mat.Dense
	expression.Mul(latent, programs)

	trueMeans := make([][]float64, cells)
	for i := 0; i < cells; i++ {
		row := make([]float64, cfg.Genes)
		total := 0.0
		for j := 0; j < cfg.Genes; j++ {
			row[j] = math.Exp(expression.At(i, j))
			total += row[j]
		}
		for j := range row {
			row[j] /= total
		}
		trueMeans[i] = row
	}

	counts := make([][]float64, cells)
	trueCounts := make([]float64, cells)
	expectedSqrtHalf := make([][]float64, cells)
	for i := 0; i < cells; i++ {
		lib := library.Rand()
		row := make([]float64, cfg.Genes)
		half := make([]float64, cfg.Genes)
		observed := 0.0
		for j := 0; j < cfg.Genes; j++ {
			lambda := trueMeans[i][j] * lib
			row[j] = distuv.Poisson{Lambda: lambda, Src: src}.Rand()
			observed += row[j]
			half[j] = poisson.ExpectedSqrt(0.5 * lambda)
		}
		counts[i] = row
		expectedSqrtHalf[i] = half
		// Poisson totals can fluctuate above the library draw; the latent
		// total must still dominate the observed one.
		trueCounts[i] = math.Max(lib/cfg.CaptureEfficiency, observed)
	}

	name := cfg.Name
	if name == "" {
		name = fmt.Sprintf("simulated_%d", cfg.Seed)
	}
	return model.Dataset{
		VersionedRecord:  model.VersionedRecord{SchemaVersion: 1, CodecVersion: 1},
		ID:               name,
		Name:             name,
		Seed:             cfg.Seed,
		Cells:            cells,
		Genes:            cfg.Genes,
		TrueMeans:        trueMeans,
		TrueCounts:       trueCounts,
		ExpectedSqrtHalf: expectedSqrtHalf,
		Counts:           counts,
	}, nil
}

func randomDense(r, c int, dist distuv.Normal) *mat.Dense {
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, dist.Rand())
		}
	}
	return out
}
