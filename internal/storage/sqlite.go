//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"tensegrity/internal/model"

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

func newSQLiteStore(path string) (Store, error) {
	return NewSQLiteStore(path), nil
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

func (s *SQLiteStore) SaveParamSet(ctx context.Context, record model.ParamSetRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeParamSet(record)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO param_sets (id, robot, created_at, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			robot = excluded.robot,
			created_at = excluded.created_at,
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, record.ID, record.Robot, record.CreatedAt.UnixNano(), record.SchemaVersion, record.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetParamSet(ctx context.Context, id string) (model.ParamSetRecord, bool, error) {
	payload, ok, err := s.getPayload(ctx, `SELECT payload FROM param_sets WHERE id = ?`, id)
	if err != nil || !ok {
		return model.ParamSetRecord{}, false, err
	}
	record, err := DecodeParamSet(payload)
	if err != nil {
		return model.ParamSetRecord{}, false, fmt.Errorf("decode param set %s: %w", id, err)
	}
	return record, true, nil
}

func (s *SQLiteStore) ListParamSets(ctx context.Context, robot string) ([]model.ParamSetRecord, error) {
	payloads, err := s.listPayloads(ctx, "param_sets", robot)
	if err != nil {
		return nil, err
	}
	out := make([]model.ParamSetRecord, 0, len(payloads))
	for _, payload := range payloads {
		record, err := DecodeParamSet(payload)
		if err != nil {
			return nil, fmt.Errorf("decode param set: %w", err)
		}
		out = append(out, record)
	}
	return out, nil
}

func (s *SQLiteStore) SaveTrial(ctx context.Context, record model.TrialRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeTrial(record)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO trials (id, robot, created_at, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			robot = excluded.robot,
			created_at = excluded.created_at,
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, record.ID, record.Robot, record.StartedAt.UnixNano(), record.SchemaVersion, record.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetTrial(ctx context.Context, id string) (model.TrialRecord, bool, error) {
	payload, ok, err := s.getPayload(ctx, `SELECT payload FROM trials WHERE id = ?`, id)
	if err != nil || !ok {
		return model.TrialRecord{}, false, err
	}
	record, err := DecodeTrial(payload)
	if err != nil {
		return model.TrialRecord{}, false, fmt.Errorf("decode trial %s: %w", id, err)
	}
	return record, true, nil
}

func (s *SQLiteStore) ListTrials(ctx context.Context, robot string) ([]model.TrialRecord, error) {
	payloads, err := s.listPayloads(ctx, "trials", robot)
	if err != nil {
		return nil, err
	}
	out := make([]model.TrialRecord, 0, len(payloads))
	for _, payload := range payloads {
		record, err := DecodeTrial(payload)
		if err != nil {
			return nil, fmt.Errorf("decode trial: %w", err)
		}
		out = append(out, record)
	}
	return out, nil
}

func (s *SQLiteStore) SaveTuningRun(ctx context.Context, run model.TuningRun) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeTuningRun(run)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO tuning_runs (id, robot, created_at, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			robot = excluded.robot,
			created_at = excluded.created_at,
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, run.ID, run.Robot, run.CreatedAt.UnixNano(), run.SchemaVersion, run.CodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetTuningRun(ctx context.Context, id string) (model.TuningRun, bool, error) {
	payload, ok, err := s.getPayload(ctx, `SELECT payload FROM tuning_runs WHERE id = ?`, id)
	if err != nil || !ok {
		return model.TuningRun{}, false, err
	}
	run, err := DecodeTuningRun(payload)
	if err != nil {
		return model.TuningRun{}, false, fmt.Errorf("decode tuning run %s: %w", id, err)
	}
	return run, true, nil
}

func (s *SQLiteStore) ListTuningRuns(ctx context.Context) ([]model.TuningRun, error) {
	payloads, err := s.listPayloads(ctx, "tuning_runs", "")
	if err != nil {
		return nil, err
	}
	out := make([]model.TuningRun, 0, len(payloads))
	for _, payload := range payloads {
		run, err := DecodeTuningRun(payload)
		if err != nil {
			return nil, fmt.Errorf("decode tuning run: %w", err)
		}
		out = append(out, run)
	}
	return out, nil
}

func (s *SQLiteStore) SaveFitnessHistory(ctx context.Context, runID string, history []float64) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeFitnessHistory(history)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO fitness_history (run_id, payload)
		VALUES (?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			payload = excluded.payload
	`, runID, payload)
	return err
}

func (s *SQLiteStore) GetFitnessHistory(ctx context.Context, runID string) ([]float64, bool, error) {
	payload, ok, err := s.getPayload(ctx, `SELECT payload FROM fitness_history WHERE run_id = ?`, runID)
	if err != nil || !ok {
		return nil, false, err
	}
	history, err := DecodeFitnessHistory(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode fitness history %s: %w", runID, err)
	}
	return history, true, nil
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
		return nil, ErrNotInitialized
	}
	return s.db, nil
}

func (s *SQLiteStore) getPayload(ctx context.Context, query string, key string) ([]byte, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, query, key).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return payload, true, nil
}

// listPayloads reads every payload of table in creation order, filtered by
// robot when robot is non-empty. table is always a package constant.
func (s *SQLiteStore) listPayloads(ctx context.Context, table, robot string) ([][]byte, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	query := `SELECT payload FROM ` + table + ` WHERE (? = '' OR robot = ?) ORDER BY created_at, id`
	rows, err := db.QueryContext(ctx, query, robot, robot)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		out = append(out, payload)
	}
	return out, rows.Err()
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS param_sets (
			id TEXT PRIMARY KEY,
			robot TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS trials (
			id TEXT PRIMARY KEY,
			robot TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS tuning_runs (
			id TEXT PRIMARY KEY,
			robot TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS fitness_history (
			run_id TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		);
	`)
	return err
}
