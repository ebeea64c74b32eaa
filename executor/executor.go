// Package executor applies persisted task records to the file system.
// It never invents work: every effect starts from a record read back
// from the store, and every status transition is persisted before the
// result is reported.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/GoCodeAlone/torque/comms"
	"github.com/GoCodeAlone/torque/task"
)

// Executor resolves targets under a project root and executes stored
// task records. It holds no state beyond its configuration.
type Executor struct {
	root           string
	store          task.Store
	bus            comms.Bus
	enableRollback bool
}

// Option configures an Executor.
type Option func(*Executor)

// WithBus publishes a lifecycle notice for every persisted transition.
func WithBus(b comms.Bus) Option {
	return func(e *Executor) { e.bus = b }
}

// WithRollback enables the rollback hook on failed executions. The hook
// is record-level only: it logs the attempt and never restores file
// content.
func WithRollback() Option {
	return func(e *Executor) { e.enableRollback = true }
}

// New creates an Executor rooted at the given project directory.
func New(root string, store task.Store, opts ...Option) *Executor {
	e := &Executor{root: root, store: store}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BatchExecution aggregates the results of an ExecuteBatch call.
type BatchExecution struct {
	Succeeded int                    `json:"succeeded"`
	Failed    int                    `json:"failed"`
	Results   []task.ExecutionResult `json:"results"`
}

// Execute runs a single stored task. The record's status is moved to
// executing before any file is touched, and to completed or failed
// (with the result attached) before the result is returned.
func (e *Executor) Execute(id string) task.ExecutionResult {
	rec, err := e.store.Get(id)
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			return failure(task.ActionError, task.ErrorNotFound, err.Error())
		}
		return failure(task.ActionError, task.ErrorIO, err.Error())
	}

	if up := e.store.UpdateStatus(id, task.StatusExecuting, nil); !up.Success {
		return failure(task.ActionError, task.ErrorIO, up.Err)
	}
	e.notify(id, task.StatusExecuting, "", "")

	var result task.ExecutionResult
	switch rec.Kind {
	case task.KindFileCreation:
		result = e.executeCreation(rec)
	case task.KindFileModification:
		result = e.executeModification(rec)
	default:
		result = failure(task.ActionError, task.ErrorUnsupportedKind,
			fmt.Sprintf("unsupported task kind: %s", rec.Kind))
	}

	status := task.StatusCompleted
	if !result.Success {
		status = task.StatusFailed
	}
	if up := e.store.UpdateStatus(id, status, &result); !up.Success {
		// Best effort: the caller still gets the execution result.
		log.Printf("[executor] task %s: persist final status: %s", id, up.Err)
	}
	e.notify(id, status, result.Action, result.Error)

	if !result.Success && e.enableRollback {
		e.rollback(id)
	}
	return result
}

// ExecuteBatch runs stored tasks strictly in the given order. Records
// are isolated: a failure never aborts its siblings.
func (e *Executor) ExecuteBatch(ids []string) BatchExecution {
	var batch BatchExecution
	for _, id := range ids {
		result := e.Execute(id)
		batch.Results = append(batch.Results, result)
		if result.Success {
			batch.Succeeded++
		} else {
			batch.Failed++
		}
	}
	return batch
}

func (e *Executor) executeCreation(rec *task.Record) task.ExecutionResult {
	path, err := e.resolveTarget(rec.Target)
	if err != nil {
		return failure(task.ActionCreationFailed, task.ErrorPathEscape, err.Error())
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return failure(task.ActionCreationFailed, task.ErrorIO, fmt.Sprintf("create parent dirs: %v", err))
	}
	// Creation means "materialize": overwriting an existing file is the
	// planner's concern, not this layer's.
	if err := os.WriteFile(path, []byte(rec.Content), 0o644); err != nil {
		return failure(task.ActionCreationFailed, task.ErrorIO, fmt.Sprintf("write %s: %v", rec.Target, err))
	}

	return task.ExecutionResult{
		Success:      true,
		Action:       task.ActionFileCreated,
		Target:       rec.Target,
		BytesWritten: len(rec.Content),
	}
}

func (e *Executor) executeModification(rec *task.Record) task.ExecutionResult {
	path, err := e.resolveTarget(rec.Target)
	if err != nil {
		return failure(task.ActionModificationFailed, task.ErrorPathEscape, err.Error())
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return failure(task.ActionModificationFailed, task.ErrorTargetMissing,
				fmt.Sprintf("target file %s does not exist", rec.Target))
		}
		return failure(task.ActionModificationFailed, task.ErrorIO, err.Error())
	}

	mode := rec.Mode
	if mode == "" {
		mode = task.ModeReplace
	}

	var written int
	switch mode {
	case task.ModeReplace:
		if err := os.WriteFile(path, []byte(rec.Content), 0o644); err != nil {
			return failure(task.ActionModificationFailed, task.ErrorIO, err.Error())
		}
		written = len(rec.Content)

	case task.ModeAppend:
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return failure(task.ActionModificationFailed, task.ErrorIO, err.Error())
		}
		n, err := f.WriteString(rec.Content)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return failure(task.ActionModificationFailed, task.ErrorIO, err.Error())
		}
		written = n

	case task.ModePrepend:
		// Read-modify-write; not atomic against concurrent external writers.
		original, err := os.ReadFile(path)
		if err != nil {
			return failure(task.ActionModificationFailed, task.ErrorIO, err.Error())
		}
		if err := os.WriteFile(path, append([]byte(rec.Content), original...), 0o644); err != nil {
			return failure(task.ActionModificationFailed, task.ErrorIO, err.Error())
		}
		written = len(rec.Content)

	case task.ModeMergeStructured:
		n, merr := mergeStructured(path, rec.Content)
		if merr != nil {
			kind := task.ErrorParse
			if errors.Is(merr, errMergeIO) {
				kind = task.ErrorIO
			}
			return failure(task.ActionModificationFailed, kind, merr.Error())
		}
		written = n

	default:
		return failure(task.ActionModificationFailed, task.ErrorUnsupportedKind,
			fmt.Sprintf("unsupported modification mode: %s", mode))
	}

	return task.ExecutionResult{
		Success:      true,
		Action:       task.ActionFileModified,
		Target:       rec.Target,
		BytesWritten: written,
	}
}

var errMergeIO = errors.New("merge io")

// mergeStructured parses the target as a JSON object, shallow-merges the
// content object into it, and writes the document back.
func mergeStructured(path, content string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errMergeIO, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("target is not valid structured data: %v", err)
	}
	var patch map[string]any
	if err := json.Unmarshal([]byte(content), &patch); err != nil {
		return 0, fmt.Errorf("merge content is not valid structured data: %v", err)
	}
	for k, v := range patch {
		doc[k] = v
	}

	merged, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errMergeIO, err)
	}
	if err := os.WriteFile(path, merged, 0o644); err != nil {
		return 0, fmt.Errorf("%w: %v", errMergeIO, err)
	}
	return len(merged), nil
}

// resolveTarget resolves a task target under the project root. Targets
// escaping the root are rejected, never rewritten.
func (e *Executor) resolveTarget(target string) (string, error) {
	if filepath.IsAbs(target) {
		return "", fmt.Errorf("target %s escapes project root", target)
	}
	path := filepath.Join(e.root, target)
	rel, err := filepath.Rel(e.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("target %s escapes project root", target)
	}
	return path, nil
}

func (e *Executor) notify(id string, status task.Status, action task.Action, msg string) {
	if e.bus == nil {
		return
	}
	_ = e.bus.Publish(context.Background(), &comms.Notice{
		TaskID:    id,
		Status:    status,
		Action:    action,
		Message:   msg,
		Timestamp: time.Now().UTC(),
	})
}

// rollback is the failed-execution hook. Restoring prior file content is
// an explicit non-goal; only the record's status reflects the attempt.
func (e *Executor) rollback(id string) {
	log.Printf("[executor] rolling back task %s (record only, file content untouched)", id)
}

func failure(action task.Action, kind task.ErrorKind, msg string) task.ExecutionResult {
	return task.ExecutionResult{
		Success:   false,
		Action:    action,
		ErrorKind: kind,
		Error:     msg,
	}
}
