package task

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	target     TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL DEFAULT '',
	mode       TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	stored_at  DATETIME NOT NULL,
	updated_at DATETIME,
	result     TEXT NOT NULL DEFAULT ''
);
`

// SQLiteStore persists task records in a SQLite database. It implements
// the same Store contract as FileStore and is selected by configuration.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the tasks table exists. The caller is responsible for calling Close.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Store upserts a record, assigning an id and restamping StoredAt.
func (s *SQLiteStore) Store(r *Record) StoreResult {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.StoredAt = time.Now().UTC()

	var resultJSON string
	if r.Result != nil {
		data, err := json.Marshal(r.Result)
		if err != nil {
			return StoreResult{Success: false, ID: r.ID, Err: fmt.Sprintf("marshal result: %v", err)}
		}
		resultJSON = string(data)
	}

	_, err := s.db.Exec(`
		INSERT INTO tasks (id, kind, target, content, mode, status, stored_at, updated_at, result)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			kind=excluded.kind, target=excluded.target, content=excluded.content,
			mode=excluded.mode, status=excluded.status, stored_at=excluded.stored_at,
			updated_at=excluded.updated_at, result=excluded.result`,
		r.ID, string(r.Kind), r.Target, r.Content, string(r.Mode), string(r.Status),
		r.StoredAt, nullTime(r.UpdatedAt), resultJSON,
	)
	if err != nil {
		return StoreResult{Success: false, ID: r.ID, Err: fmt.Sprintf("store task: %v", err)}
	}
	return StoreResult{Success: true, ID: r.ID}
}

// Get retrieves a record by id.
func (s *SQLiteStore) Get(id string) (*Record, error) {
	row := s.db.QueryRow(`SELECT id, kind, target, content, mode, status, stored_at, updated_at, result
		FROM tasks WHERE id = ?`, id)

	var r Record
	var kind, mode, status, resultJSON string
	var updatedAt sql.NullTime
	err := row.Scan(&r.ID, &kind, &r.Target, &r.Content, &mode, &status, &r.StoredAt, &updatedAt, &resultJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}

	r.Kind = Kind(kind)
	r.Mode = Mode(mode)
	r.Status = Status(status)
	if updatedAt.Valid {
		r.UpdatedAt = updatedAt.Time
	}
	if resultJSON != "" {
		var res ExecutionResult
		if err := json.Unmarshal([]byte(resultJSON), &res); err != nil {
			return nil, fmt.Errorf("decode task %s result: %w", id, err)
		}
		r.Result = &res
	}
	return &r, nil
}

// UpdateStatus applies the status transition and optional result snapshot.
func (s *SQLiteStore) UpdateStatus(id string, status Status, result *ExecutionResult) StoreResult {
	r, err := s.Get(id)
	if err != nil {
		return StoreResult{Success: false, ID: id, Err: err.Error()}
	}
	r.Status = status
	r.UpdatedAt = time.Now().UTC()
	if result != nil {
		r.Result = result
	}
	return s.Store(r)
}

// StoreBatch stores each record independently.
func (s *SQLiteStore) StoreBatch(rs []*Record) BatchResult {
	var batch BatchResult
	for _, r := range rs {
		res := s.Store(r)
		if res.Success {
			batch.StoredCount++
			batch.IDs = append(batch.IDs, res.ID)
		}
	}
	return batch
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
