package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileStore persists one JSON record per task under <dir>/tasks.
// It is the default backend; layout is part of the on-disk contract.
type FileStore struct {
	dir string
}

// NewFileStore creates (if needed) the tasks directory under dataDir.
func NewFileStore(dataDir string) (*FileStore, error) {
	dir := filepath.Join(dataDir, "tasks")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create tasks dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// validID rejects ids that would resolve outside the tasks directory.
// Generated ids are UUIDs; only caller-supplied ids can be hostile.
func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

// Store persists a record. A missing id is assigned, StoredAt is always
// restamped. The write goes to a temp file first so a crash never leaves
// a half-written record visible to readers.
func (s *FileStore) Store(r *Record) StoreResult {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if !validID(r.ID) {
		return StoreResult{Success: false, ID: r.ID, Err: fmt.Sprintf("invalid task id %q", r.ID)}
	}
	r.StoredAt = time.Now().UTC()

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return StoreResult{Success: false, ID: r.ID, Err: fmt.Sprintf("marshal task: %v", err)}
	}

	path := s.path(r.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return StoreResult{Success: false, ID: r.ID, Err: fmt.Sprintf("write task: %v", err)}
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return StoreResult{Success: false, ID: r.ID, Err: fmt.Sprintf("store task: %v", err)}
	}
	return StoreResult{Success: true, ID: r.ID}
}

// Get retrieves a record by id.
func (s *FileStore) Get(id string) (*Record, error) {
	if !validID(id) {
		return nil, fmt.Errorf("task %q: %w", id, ErrNotFound)
	}
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("read task %s: %w", id, err)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", id, err)
	}
	return &r, nil
}

// UpdateStatus loads the record, applies the new status and optional
// result snapshot, stamps UpdatedAt, and re-stores.
func (s *FileStore) UpdateStatus(id string, status Status, result *ExecutionResult) StoreResult {
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

// StoreBatch stores each record independently; one failure does not
// block the rest.
func (s *FileStore) StoreBatch(rs []*Record) BatchResult {
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

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}
