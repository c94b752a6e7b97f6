package storage

import (
	"context"

	"github.com/czbiohub/molecular-cross-validation/internal/model"
)

// Store defines persistence for datasets, sweep results and training curves.
type Store interface {
	Init(ctx context.Context) error
	SaveDataset(ctx context.Context, ds model.Dataset) error
	GetDataset(ctx context.Context, id string) (model.Dataset, bool, error)
	ListDatasets(ctx context.Context) ([]string, error)
	SaveSweepResult(ctx context.Context, res model.SweepResult) error
	GetSweepResult(ctx context.Context, runID string) (model.SweepResult, bool, error)
	ListSweepResults(ctx context.Context) ([]string, error)
	SaveLossCurves(ctx context.Context, runID string, curves model.LossCurves) error
	GetLossCurves(ctx context.Context, runID string) (model.LossCurves, bool, error)
}
