// Package memory keeps per-session execution history and the reusable
// plan library. History is append-only; rollback truncates bookkeeping
// and never touches files the executor already wrote.
package memory

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

	"github.com/GoCodeAlone/torque/task"
)

// ErrStateNotFound reports a rollback target absent from the session
// history. The history is left unchanged.
var ErrStateNotFound = errors.New("target state not found")

// ErrPlanNotFound reports that no stored plan matches the pattern.
var ErrPlanNotFound = errors.New("reusable plan not found")

// HistoryEntry is one appended execution record. Entries are never
// mutated in place; only rollback truncation removes them.
type HistoryEntry struct {
	ID        string       `json:"id"`
	SessionID string       `json:"session_id"`
	TaskID    string       `json:"task_id"`
	Record    *task.Record `json:"record_snapshot,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// Plan is a reusable parameterized template. Template values may
// contain {name} placeholders filled in by ApplyPlanTemplate.
type Plan struct {
	PlanID   string            `json:"plan_id"`
	Pattern  string            `json:"pattern"`
	Template map[string]string `json:"template"`
}

// SessionMemory owns the memory/ directory: one JSON array per session
// plus the reusable_plans/ library. Single writer per session assumed;
// there is no cross-process locking.
type SessionMemory struct {
	dir      string
	plansDir string
}

// New creates the memory layout under dataDir.
func New(dataDir string) (*SessionMemory, error) {
	dir := filepath.Join(dataDir, "memory")
	plansDir := filepath.Join(dir, "reusable_plans")
	if err := os.MkdirAll(plansDir, 0o755); err != nil {
		return nil, fmt.Errorf("create memory dirs: %w", err)
	}
	return &SessionMemory{dir: dir, plansDir: plansDir}, nil
}

func (m *SessionMemory) sessionFile(sessionID string) string {
	return filepath.Join(m.dir, "session_"+sessionID+".json")
}

// StoreExecution appends an entry to its session's history file.
// Read-modify-append: not safe under concurrent writers to the same
// session.
func (m *SessionMemory) StoreExecution(entry *HistoryEntry) error {
	if entry.SessionID == "" {
		return fmt.Errorf("history entry has no session id")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	history, err := m.History(entry.SessionID)
	if err != nil {
		return err
	}
	history = append(history, *entry)
	return m.writeHistory(entry.SessionID, history)
}

// History returns the session's entries in append order. A session
// with no history yields an empty slice, not an error.
func (m *SessionMemory) History(sessionID string) ([]HistoryEntry, error) {
	data, err := os.ReadFile(m.sessionFile(sessionID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []HistoryEntry{}, nil
		}
		return nil, fmt.Errorf("read session %s: %w", sessionID, err)
	}

	var history []HistoryEntry
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("parse session %s: %w", sessionID, err)
	}
	return history, nil
}

// RollbackToState truncates the history after the first entry whose
// task id matches, returning the discarded count. An unknown target
// fails with ErrStateNotFound and leaves the history untouched.
func (m *SessionMemory) RollbackToState(sessionID, targetTaskID string) (int, error) {
	history, err := m.History(sessionID)
	if err != nil {
		return 0, err
	}

	targetIndex := -1
	for i, entry := range history {
		if entry.TaskID == targetTaskID {
			targetIndex = i
			break
		}
	}
	if targetIndex == -1 {
		return 0, fmt.Errorf("session %s task %s: %w", sessionID, targetTaskID, ErrStateNotFound)
	}

	discarded := len(history) - (targetIndex + 1)
	if err := m.writeHistory(sessionID, history[:targetIndex+1]); err != nil {
		return 0, err
	}
	return discarded, nil
}

func (m *SessionMemory) writeHistory(sessionID string, history []HistoryEntry) error {
	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sessionID, err)
	}
	if err := os.WriteFile(m.sessionFile(sessionID), data, 0o644); err != nil {
		return fmt.Errorf("write session %s: %w", sessionID, err)
	}
	return nil
}

// StoreReusablePlan persists a plan by its id, assigning one if absent.
func (m *SessionMemory) StoreReusablePlan(plan *Plan) error {
	if plan.PlanID == "" {
		plan.PlanID = uuid.NewString()
	}
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("encode plan %s: %w", plan.PlanID, err)
	}
	path := filepath.Join(m.plansDir, plan.PlanID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write plan %s: %w", plan.PlanID, err)
	}
	return nil
}

// GetReusablePlan scans the plan library for a matching pattern.
func (m *SessionMemory) GetReusablePlan(pattern string) (*Plan, error) {
	entries, err := os.ReadDir(m.plansDir)
	if err != nil {
		return nil, fmt.Errorf("read plan library: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.plansDir, entry.Name()))
		if err != nil {
			continue
		}
		var plan Plan
		if err := json.Unmarshal(data, &plan); err != nil {
			continue
		}
		if plan.Pattern == pattern {
			return &plan, nil
		}
	}
	return nil, fmt.Errorf("pattern %q: %w", pattern, ErrPlanNotFound)
}

// ApplyPlanTemplate instantiates the matching plan's template with
// literal {name} substitution on every field. Unresolved placeholders
// stay literal.
func (m *SessionMemory) ApplyPlanTemplate(pattern string, variables map[string]string) (map[string]string, error) {
	plan, err := m.GetReusablePlan(pattern)
	if err != nil {
		return nil, err
	}

	instantiated := make(map[string]string, len(plan.Template))
	for field, value := range plan.Template {
		for name, repl := range variables {
			value = strings.ReplaceAll(value, "{"+name+"}", repl)
		}
		instantiated[field] = value
	}
	return instantiated, nil
}
