// Package task defines the task record model and persistence for the engine.
package task

import (
	"errors"
	"time"
)

// Kind classifies what a task does when executed.
type Kind string

const (
	KindFileCreation     Kind = "file_creation"
	KindFileModification Kind = "file_modification"
	KindReasoning        Kind = "ai_reasoning"
	KindUnknown          Kind = "unknown"
)

// Mode selects how a file_modification task touches its target.
type Mode string

const (
	ModeReplace         Mode = "replace"
	ModeAppend          Mode = "append"
	ModePrepend         Mode = "prepend"
	ModeMergeStructured Mode = "merge_structured"
)

// Status represents the lifecycle state of a task. It advances
// pending -> executing -> completed/failed; only a session rollback
// ever winds history back.
type Status string

const (
	StatusPending   Status = "pending"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Action identifies the outcome of one executor invocation.
type Action string

const (
	ActionFileCreated        Action = "file_created"
	ActionFileModified       Action = "file_modified"
	ActionCreationFailed     Action = "creation_failed"
	ActionModificationFailed Action = "modification_failed"
	ActionError              Action = "error"
)

// ErrorKind is the failure taxonomy surfaced in structured results.
type ErrorKind string

const (
	ErrorNone            ErrorKind = ""
	ErrorNotFound        ErrorKind = "not_found"
	ErrorTargetMissing   ErrorKind = "target_missing"
	ErrorParse           ErrorKind = "parse_error"
	ErrorUnsupportedKind ErrorKind = "unsupported_kind"
	ErrorGeneration      ErrorKind = "generation_failed"
	ErrorPathEscape      ErrorKind = "path_escape"
	ErrorIO              ErrorKind = "io_error"
)

// ErrNotFound reports an unknown task id. Callers check it with errors.Is.
var ErrNotFound = errors.New("task not found")

// Record is the unit of durable intent. It is persisted with status
// pending before the executor is allowed to see it.
type Record struct {
	ID      string `json:"id"`
	Kind    Kind   `json:"kind"`
	Target  string `json:"target"`            // relative to the project root
	Content string `json:"content,omitempty"` // payload or merge instruction
	Mode    Mode   `json:"mode,omitempty"`    // file_modification only

	Status    Status    `json:"status"`
	StoredAt  time.Time `json:"stored_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Result *ExecutionResult `json:"execution_result,omitempty"`
}

// ExecutionResult is the outcome of one executor invocation.
type ExecutionResult struct {
	Success      bool      `json:"success"`
	Action       Action    `json:"action"`
	Target       string    `json:"target,omitempty"`
	BytesWritten int       `json:"bytes_written,omitempty"`
	ErrorKind    ErrorKind `json:"error_kind,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// StoreResult reports a single store or status-update operation.
// I/O failures are captured here, never raised.
type StoreResult struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Err     string `json:"error,omitempty"`
}

// BatchResult aggregates a best-effort batch store. A failed record
// never blocks its siblings.
type BatchResult struct {
	StoredCount int      `json:"stored_count"`
	IDs         []string `json:"ids"`
}

// Store persists and retrieves task records.
type Store interface {
	// Store assigns an id if missing, stamps StoredAt, and persists the
	// record atomically. Errors come back inside the result.
	Store(r *Record) StoreResult

	// Get retrieves a record by id. Unknown ids yield ErrNotFound.
	Get(id string) (*Record, error)

	// UpdateStatus sets the record's status, stamps UpdatedAt, attaches
	// the result snapshot when non-nil, and re-stores.
	UpdateStatus(id string, status Status, result *ExecutionResult) StoreResult

	// StoreBatch stores each record independently.
	StoreBatch(rs []*Record) BatchResult
}
