package executor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/GoCodeAlone/torque/comms"
	"github.com/GoCodeAlone/torque/task"
)

func newTestExecutor(t *testing.T, opts ...Option) (*Executor, task.Store, string) {
	t.Helper()
	root := t.TempDir()
	store, err := task.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return New(root, store, opts...), store, root
}

func storePending(t *testing.T, store task.Store, rec *task.Record) string {
	t.Helper()
	rec.Status = task.StatusPending
	res := store.Store(rec)
	if !res.Success {
		t.Fatalf("Store failed: %s", res.Err)
	}
	return res.ID
}

// statusSpy wraps a Store and records every status passed to UpdateStatus.
type statusSpy struct {
	base     task.Store
	statuses []task.Status
}

func (s *statusSpy) Store(r *task.Record) task.StoreResult { return s.base.Store(r) }

func (s *statusSpy) Get(id string) (*task.Record, error) { return s.base.Get(id) }

func (s *statusSpy) StoreBatch(rs []*task.Record) task.BatchResult { return s.base.StoreBatch(rs) }

func (s *statusSpy) UpdateStatus(id string, status task.Status, result *task.ExecutionResult) task.StoreResult {
	s.statuses = append(s.statuses, status)
	return s.base.UpdateStatus(id, status, result)
}

func TestExecute_TaskNotFound(t *testing.T) {
	exec, _, root := newTestExecutor(t)

	result := exec.Execute("nonexistent")
	if result.Success {
		t.Fatal("expected failure for unknown task id")
	}
	if result.ErrorKind != task.ErrorNotFound {
		t.Errorf("ErrorKind = %q, want %q", result.ErrorKind, task.ErrorNotFound)
	}

	// No partial effect
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("project root not empty after failed lookup: %v", entries)
	}
}

func TestExecute_Creation(t *testing.T) {
	exec, store, root := newTestExecutor(t)
	id := storePending(t, store, &task.Record{
		Kind:    task.KindFileCreation,
		Target:  "index.html",
		Content: "<h1>hello</h1>",
	})

	result := exec.Execute(id)
	if !result.Success {
		t.Fatalf("Execute failed: %s", result.Error)
	}
	if result.Action != task.ActionFileCreated {
		t.Errorf("Action = %q, want %q", result.Action, task.ActionFileCreated)
	}
	if result.BytesWritten != len("<h1>hello</h1>") {
		t.Errorf("BytesWritten = %d, want %d", result.BytesWritten, len("<h1>hello</h1>"))
	}

	data, err := os.ReadFile(filepath.Join(root, "index.html"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "<h1>hello</h1>" {
		t.Errorf("file content = %q", data)
	}

	rec, err := store.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != task.StatusCompleted {
		t.Errorf("Status = %q, want %q", rec.Status, task.StatusCompleted)
	}
	if rec.Result == nil || !rec.Result.Success {
		t.Errorf("persisted Result = %+v, want success", rec.Result)
	}
}

func TestExecute_Creation_NestedDirs(t *testing.T) {
	exec, store, root := newTestExecutor(t)
	id := storePending(t, store, &task.Record{
		Kind:    task.KindFileCreation,
		Target:  filepath.Join("src", "js", "main.js"),
		Content: "console.log('hi');\n",
	})

	if result := exec.Execute(id); !result.Success {
		t.Fatalf("Execute failed: %s", result.Error)
	}
	if _, err := os.Stat(filepath.Join(root, "src", "js", "main.js")); err != nil {
		t.Errorf("nested file not created: %v", err)
	}
}

func TestExecute_StatusSequence(t *testing.T) {
	root := t.TempDir()
	base, err := task.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	spy := &statusSpy{base: base}
	exec := New(root, spy)

	id := storePending(t, spy, &task.Record{Kind: task.KindFileCreation, Target: "a.txt", Content: "x"})
	exec.Execute(id)

	want := []task.Status{task.StatusExecuting, task.StatusCompleted}
	if len(spy.statuses) != len(want) {
		t.Fatalf("status transitions = %v, want %v", spy.statuses, want)
	}
	for i := range want {
		if spy.statuses[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, spy.statuses[i], want[i])
		}
	}
}

func TestExecute_FailureStatusSequence(t *testing.T) {
	root := t.TempDir()
	base, err := task.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	spy := &statusSpy{base: base}
	exec := New(root, spy)

	id := storePending(t, spy, &task.Record{
		Kind:   task.KindFileModification,
		Target: "missing.txt",
		Mode:   task.ModeAppend,
	})
	result := exec.Execute(id)
	if result.Success {
		t.Fatal("expected failure for missing target")
	}

	want := []task.Status{task.StatusExecuting, task.StatusFailed}
	if len(spy.statuses) != len(want) || spy.statuses[0] != want[0] || spy.statuses[1] != want[1] {
		t.Errorf("status transitions = %v, want %v", spy.statuses, want)
	}
}

func TestExecute_Modification_Append(t *testing.T) {
	exec, store, root := newTestExecutor(t)

	existing := strings.Repeat("a", 100)
	path := filepath.Join(root, "notes.txt")
	if err := os.WriteFile(path, []byte(existing), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	addition := strings.Repeat("b", 20)
	id := storePending(t, store, &task.Record{
		Kind:    task.KindFileModification,
		Target:  "notes.txt",
		Content: addition,
		Mode:    task.ModeAppend,
	})

	result := exec.Execute(id)
	if !result.Success {
		t.Fatalf("Execute failed: %s", result.Error)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) != 120 {
		t.Errorf("file size = %d, want 120", len(data))
	}
	if string(data[:100]) != existing {
		t.Error("first 100 bytes changed by append")
	}
	if string(data[100:]) != addition {
		t.Errorf("appended bytes = %q", data[100:])
	}
}

func TestExecute_Modification_Prepend(t *testing.T) {
	exec, store, root := newTestExecutor(t)

	path := filepath.Join(root, "main.go")
	if err := os.WriteFile(path, []byte("package main\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	id := storePending(t, store, &task.Record{
		Kind:    task.KindFileModification,
		Target:  "main.go",
		Content: "// generated\n",
		Mode:    task.ModePrepend,
	})

	if result := exec.Execute(id); !result.Success {
		t.Fatalf("Execute failed: %s", result.Error)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "// generated\npackage main\n" {
		t.Errorf("content = %q", data)
	}
}

func TestExecute_Modification_Replace(t *testing.T) {
	exec, store, root := newTestExecutor(t)

	path := filepath.Join(root, "config.txt")
	if err := os.WriteFile(path, []byte("old content"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	id := storePending(t, store, &task.Record{
		Kind:    task.KindFileModification,
		Target:  "config.txt",
		Content: "new content",
		Mode:    task.ModeReplace,
	})

	if result := exec.Execute(id); !result.Success {
		t.Fatalf("Execute failed: %s", result.Error)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "new content" {
		t.Errorf("content = %q, want %q", data, "new content")
	}
}

func TestExecute_Modification_MergeStructured(t *testing.T) {
	exec, store, root := newTestExecutor(t)

	path := filepath.Join(root, "package.json")
	if err := os.WriteFile(path, []byte(`{"name":"app","version":"1.0.0"}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	id := storePending(t, store, &task.Record{
		Kind:    task.KindFileModification,
		Target:  "package.json",
		Content: `{"version":"1.1.0","private":true}`,
		Mode:    task.ModeMergeStructured,
	})

	if result := exec.Execute(id); !result.Success {
		t.Fatalf("Execute failed: %s", result.Error)
	}

	data, _ := os.ReadFile(path)
	for _, want := range []string{`"name": "app"`, `"version": "1.1.0"`, `"private": true`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("merged doc missing %s: %s", want, data)
		}
	}
}

func TestExecute_Modification_MergeStructured_ParseError(t *testing.T) {
	exec, store, root := newTestExecutor(t)

	path := filepath.Join(root, "notes.txt")
	if err := os.WriteFile(path, []byte("not json at all"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	id := storePending(t, store, &task.Record{
		Kind:    task.KindFileModification,
		Target:  "notes.txt",
		Content: `{"a":1}`,
		Mode:    task.ModeMergeStructured,
	})

	result := exec.Execute(id)
	if result.Success {
		t.Fatal("expected parse failure")
	}
	if result.ErrorKind != task.ErrorParse {
		t.Errorf("ErrorKind = %q, want %q", result.ErrorKind, task.ErrorParse)
	}

	rec, _ := store.Get(id)
	if rec.Status != task.StatusFailed {
		t.Errorf("Status = %q, want %q", rec.Status, task.StatusFailed)
	}
}

func TestExecute_Modification_TargetMissing(t *testing.T) {
	exec, store, _ := newTestExecutor(t)

	id := storePending(t, store, &task.Record{
		Kind:    task.KindFileModification,
		Target:  "missing.txt",
		Content: "x",
		Mode:    task.ModeReplace,
	})

	result := exec.Execute(id)
	if result.Success {
		t.Fatal("expected failure for missing target")
	}
	if result.ErrorKind != task.ErrorTargetMissing {
		t.Errorf("ErrorKind = %q, want %q", result.ErrorKind, task.ErrorTargetMissing)
	}
	if result.Action != task.ActionModificationFailed {
		t.Errorf("Action = %q, want %q", result.Action, task.ActionModificationFailed)
	}
}

func TestExecute_UnsupportedKind(t *testing.T) {
	exec, store, _ := newTestExecutor(t)

	id := storePending(t, store, &task.Record{Kind: task.KindReasoning, Target: ""})
	result := exec.Execute(id)
	if result.Success {
		t.Fatal("expected failure for unsupported kind")
	}
	if result.ErrorKind != task.ErrorUnsupportedKind {
		t.Errorf("ErrorKind = %q, want %q", result.ErrorKind, task.ErrorUnsupportedKind)
	}
}

func TestExecute_PathEscape(t *testing.T) {
	exec, store, _ := newTestExecutor(t)

	for _, target := range []string{
		filepath.Join("..", "evil.txt"),
		filepath.Join("..", "..", "etc", "passwd"),
		string(filepath.Separator) + filepath.Join("tmp", "abs.txt"),
	} {
		id := storePending(t, store, &task.Record{
			Kind:    task.KindFileCreation,
			Target:  target,
			Content: "x",
		})
		result := exec.Execute(id)
		if result.Success {
			t.Errorf("Execute(%q) succeeded, want path escape failure", target)
			continue
		}
		if result.ErrorKind != task.ErrorPathEscape {
			t.Errorf("Execute(%q) ErrorKind = %q, want %q", target, result.ErrorKind, task.ErrorPathEscape)
		}
	}
}

func TestExecuteBatch(t *testing.T) {
	exec, store, root := newTestExecutor(t)

	ids := []string{
		storePending(t, store, &task.Record{Kind: task.KindFileCreation, Target: "a.txt", Content: "a"}),
		storePending(t, store, &task.Record{Kind: task.KindFileModification, Target: "missing.txt", Mode: task.ModeAppend, Content: "x"}),
		storePending(t, store, &task.Record{Kind: task.KindFileCreation, Target: "b.txt", Content: "b"}),
	}

	batch := exec.ExecuteBatch(ids)
	if batch.Succeeded != 2 {
		t.Errorf("Succeeded = %d, want 2", batch.Succeeded)
	}
	if batch.Failed != 1 {
		t.Errorf("Failed = %d, want 1", batch.Failed)
	}
	if len(batch.Results) != 3 {
		t.Fatalf("Results len = %d, want 3", len(batch.Results))
	}
	// The middle failure must not block the third record.
	if !batch.Results[2].Success {
		t.Error("third record failed, want isolation from sibling failure")
	}
	if _, err := os.Stat(filepath.Join(root, "b.txt")); err != nil {
		t.Errorf("b.txt not written: %v", err)
	}
}

func TestExecute_PublishesNotices(t *testing.T) {
	bus := comms.NewInMemoryBus()
	root := t.TempDir()
	store, err := task.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	exec := New(root, store, WithBus(bus))

	var statuses []task.Status
	bus.Subscribe(func(_ context.Context, n *comms.Notice) error {
		statuses = append(statuses, n.Status)
		return nil
	})

	id := storePending(t, store, &task.Record{Kind: task.KindFileCreation, Target: "a.txt", Content: "x"})
	exec.Execute(id)

	want := []task.Status{task.StatusExecuting, task.StatusCompleted}
	if len(statuses) != len(want) || statuses[0] != want[0] || statuses[1] != want[1] {
		t.Errorf("notice statuses = %v, want %v", statuses, want)
	}
}
