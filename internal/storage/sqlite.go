//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/czbiohub/molecular-cross-validation/internal/model"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveDataset(ctx context.Context, ds model.Dataset) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeDataset(ds)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO datasets (id, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, ds.ID, ds.SchemaVersion, ds.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetDataset(ctx context.Context, id string) (model.Dataset, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.Dataset{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM datasets WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Dataset{}, false, nil
		}
		return model.Dataset{}, false, err
	}

	ds, err := DecodeDataset(payload)
	if err != nil {
		return model.Dataset{}, false, fmt.Errorf("decode dataset %s: %w", id, err)
	}
	return ds, true, nil
}

func (s *SQLiteStore) ListDatasets(ctx context.Context) ([]string, error) {
	return s.listIDs(ctx, `SELECT id FROM datasets ORDER BY id`)
}

func (s *SQLiteStore) SaveSweepResult(ctx context.Context, res model.SweepResult) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeSweepResult(res)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO sweep_results (run_id, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, res.RunID, res.SchemaVersion, res.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetSweepResult(ctx context.Context, runID string) (model.SweepResult, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.SweepResult{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM sweep_results WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.SweepResult{}, false, nil
		}
		return model.SweepResult{}, false, err
	}

	res, err := DecodeSweepResult(payload)
	if err != nil {
		return model.SweepResult{}, false, fmt.Errorf("decode sweep result %s: %w", runID, err)
	}
	return res, true, nil
}

func (s *SQLiteStore) ListSweepResults(ctx context.Context) ([]string, error) {
	return s.listIDs(ctx, `SELECT run_id FROM sweep_results ORDER BY run_id`)
}

func (s *SQLiteStore) SaveLossCurves(ctx context.Context, runID string, curves model.LossCurves) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	curves.RunID = runID
	payload, err := EncodeLossCurves(curves)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO loss_curves (run_id, payload)
		VALUES (?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			payload = excluded.payload
	`, runID, payload)
	return err
}

func (s *SQLiteStore) GetLossCurves(ctx context.Context, runID string) (model.LossCurves, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return model.LossCurves{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM loss_curves WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.LossCurves{}, false, nil
		}
		return model.LossCurves{}, false, err
	}

	curves, err := DecodeLossCurves(payload)
	if err != nil {
		return model.LossCurves{}, false, fmt.Errorf("decode loss curves %s: %w", runID, err)
	}
	return curves, true, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func (s *SQLiteStore) listIDs(ctx context.Context, query string) ([]string, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS datasets (
			id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS sweep_results (
			run_id TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS loss_curves (
			run_id TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		);
	`)
	return err
}
