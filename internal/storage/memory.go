package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/czbiohub/molecular-cross-validation/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	datasets    map[string]model.Dataset
	results     map[string]model.SweepResult
	curves      map[string]model.LossCurves
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.datasets = make(map[string]model.Dataset)
	s.results = make(map[string]model.SweepResult)
	s.curves = make(map[string]model.LossCurves)
	return nil
}

func (s *MemoryStore) SaveDataset(_ context.Context, ds model.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.datasets[ds.ID] = ds
	return nil
}

func (s *MemoryStore) GetDataset(_ context.Context, id string) (model.Dataset, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ds, ok := s.datasets[id]
	return ds, ok, nil
}

func (s *MemoryStore) ListDatasets(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return sortedKeys(s.datasets), nil
}

func (s *MemoryStore) SaveSweepResult(_ context.Context, res model.SweepResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results[res.RunID] = res
	return nil
}

func (s *MemoryStore) GetSweepResult(_ context.Context, runID string) (model.SweepResult, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res, ok := s.results[runID]
	return res, ok, nil
}

func (s *MemoryStore) ListSweepResults(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return sortedKeys(s.results), nil
}

func (s *MemoryStore) SaveLossCurves(_ context.Context, runID string, curves model.LossCurves) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	curves.RunID = runID
	s.curves[runID] = curves
	return nil
}

func (s *MemoryStore) GetLossCurves(_ context.Context, runID string) (model.LossCurves, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	curves, ok := s.curves[runID]
	return curves, ok, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
