// Package stats writes and reads per-run artifact directories: the run
// configuration, the sweep loss artifact, derived loss curves and a
// top-level index of completed runs.
package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/czbiohub/molecular-cross-validation/internal/model"
	"github.com/czbiohub/molecular-cross-validation/internal/storage"
)

const runIndexFile = "run_index.json"

type RunConfig struct {
	RunID         string  `json:"run_id"`
	Dataset       string  `json:"dataset"`
	DatasetPath   string  `json:"dataset_path,omitempty"`
	Method        string  `json:"method"`
	Seed          int64   `json:"seed"`
	DerivedSeed   uint64  `json:"derived_seed"`
	DataSplit     float64 `json:"data_split"`
	Trials        int     `json:"n_trials"`
	MaxComponents int     `json:"max_components"`
	Workers       int     `json:"workers"`
}

type RunIndexEntry struct {
	RunID         string `json:"run_id"`
	Dataset       string `json:"dataset"`
	Method        string `json:"method"`
	Seed          int64  `json:"seed"`
	Trials        int    `json:"n_trials"`
	MaxComponents int    `json:"max_components"`
	CreatedAtUTC  string `json:"created_at_utc"`
}

// SweepSummary condenses a sweep result: the rank minimizing the mean
// cross-validated loss and the losses observed there.
type SweepSummary struct {
	RunID       string  `json:"run_id"`
	Dataset     string  `json:"dataset"`
	Method      string  `json:"method"`
	BestK       int     `json:"best_k"`
	BestMCVMean float64 `json:"best_mcv_mean"`
	BestMCVStd  float64 `json:"best_mcv_std"`
	RecAtBestK  float64 `json:"rec_at_best_k"`
	GT0AtBestK  float64 `json:"gt0_at_best_k"`
}

// Summarize picks the rank with the lowest mean cross-validated loss.
func Summarize(res model.SweepResult) (SweepSummary, error) {
	if len(res.ParamRange) == 0 || len(res.MCVLoss) == 0 {
		return SweepSummary{}, fmt.Errorf("sweep result %s has no losses", res.RunID)
	}

	bestJ := 0
	bestMean := 0.0
	for j := range res.ParamRange {
		mean := stat.Mean(column(res.MCVLoss, j), nil)
		if j == 0 || mean < bestMean {
			bestJ = j
			bestMean = mean
		}
	}

	mcvAtBest := column(res.MCVLoss, bestJ)
	return SweepSummary{
		RunID:       res.RunID,
		Dataset:     res.Dataset,
		Method:      res.Method,
		BestK:       res.ParamRange[bestJ],
		BestMCVMean: bestMean,
		BestMCVStd:  stat.StdDev(mcvAtBest, nil),
		RecAtBestK:  stat.Mean(column(res.RecLoss, bestJ), nil),
		GT0AtBestK:  res.GT0Loss[bestJ],
	}, nil
}

func column(m [][]float64, j int) []float64 {
	out := make([]float64, len(m))
	for i := range m {
		out[i] = m[i][j]
	}
	return out
}

// WriteRunArtifacts writes config.json, sweep_result.json, summary.json and
// loss_curves.csv into baseDir/<run id> and returns the run directory.
func WriteRunArtifacts(baseDir string, cfg RunConfig, res model.SweepResult) (string, error) {
	if cfg.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, cfg.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "config.json"), cfg); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "sweep_result.json"), res); err != nil {
		return "", err
	}
	summary, err := Summarize(res)
	if err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "summary.json"), summary); err != nil {
		return "", err
	}
	if err := writeLossCurves(filepath.Join(runDir, "loss_curves.csv"), res); err != nil {
		return "", err
	}

	return runDir, nil
}

// writeLossCurves emits one row per swept rank with trial-averaged losses.
func writeLossCurves(path string, res model.SweepResult) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"k", "rec_loss_mean", "mcv_loss_mean", "gt0_loss", "gt1_loss_mean"}); err != nil {
		return err
	}
	for j, k := range res.ParamRange {
		record := []string{
			strconv.Itoa(k),
			formatFloat(stat.Mean(column(res.RecLoss, j), nil)),
			formatFloat(stat.Mean(column(res.MCVLoss, j), nil)),
			formatFloat(res.GT0Loss[j]),
			formatFloat(stat.Mean(column(res.GT1Loss, j), nil)),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ReadLossCurves parses loss_curves.csv back into per-rank rows.
func ReadLossCurves(baseDir, runID string) ([][]float64, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, "loss_curves.csv"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return [][]float64{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 5 {
		return nil, false, fmt.Errorf("loss curves header must have at least 5 columns")
	}

	var rows [][]float64
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		row := make([]float64, len(record))
		for i, field := range record {
			row[i], err = strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, false, err
			}
		}
		rows = append(rows, row)
	}
	return rows, true, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	path := filepath.Join(baseDir, runID, "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RunConfig{}, false, nil
		}
		return RunConfig{}, false, err
	}

	var cfg RunConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, false, err
	}
	return cfg, true, nil
}

func ReadSweepResult(baseDir, runID string) (model.SweepResult, bool, error) {
	path := filepath.Join(baseDir, runID, "sweep_result.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.SweepResult{}, false, nil
		}
		return model.SweepResult{}, false, err
	}

	res, err := storage.DecodeSweepResult(data)
	if err != nil {
		return model.SweepResult{}, false, err
	}
	return res, true, nil
}

func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	files := []string{"config.json", "sweep_result.json", "summary.json", "loss_curves.csv"}
	for _, file := range files {
		srcPath := filepath.Join(src, file)
		if _, err := os.Stat(srcPath); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", err
		}
		if err := copyFile(srcPath, filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}

	return dst, nil
}

// WriteDatasetFile serializes a dataset artifact to a standalone JSON file.
func WriteDatasetFile(path string, ds model.Dataset) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("dataset path is required")
	}
	data, err := storage.EncodeDataset(ds)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadDatasetFile loads a dataset artifact written by WriteDatasetFile.
func ReadDatasetFile(path string) (model.Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Dataset{}, err
	}
	return storage.DecodeDataset(data)
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
