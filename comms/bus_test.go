package comms

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GoCodeAlone/torque/task"
)

func makeNotice(taskID string, status task.Status) *Notice {
	return &Notice{
		TaskID:    taskID,
		Status:    status,
		Timestamp: time.Now(),
	}
}

func TestInMemoryBus_Subscribe_Unsubscribe(t *testing.T) {
	bus := NewInMemoryBus()
	ctx := context.Background()

	var received int32
	unsub := bus.Subscribe(func(_ context.Context, _ *Notice) error {
		atomic.AddInt32(&received, 1)
		return nil
	})

	if err := bus.Publish(ctx, makeNotice("t1", task.StatusExecuting)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if atomic.LoadInt32(&received) != 1 {
		t.Errorf("received = %d, want 1", received)
	}

	// Unsubscribe and verify no more notices
	unsub()
	if err := bus.Publish(ctx, makeNotice("t1", task.StatusCompleted)); err != nil {
		t.Fatalf("Publish after unsub: %v", err)
	}
	if atomic.LoadInt32(&received) != 1 {
		t.Errorf("received after unsub = %d, want 1", received)
	}
}

func TestInMemoryBus_MultipleSubscribers(t *testing.T) {
	bus := NewInMemoryBus()
	ctx := context.Background()

	var count int32
	bus.Subscribe(func(_ context.Context, _ *Notice) error {
		atomic.AddInt32(&count, 1)
		return nil
	})
	bus.Subscribe(func(_ context.Context, _ *Notice) error {
		atomic.AddInt32(&count, 1)
		return nil
	})

	bus.Publish(ctx, makeNotice("t1", task.StatusExecuting))

	if atomic.LoadInt32(&count) != 2 {
		t.Errorf("count = %d, want 2 (both handlers fired)", count)
	}
}

func TestInMemoryBus_History(t *testing.T) {
	bus := NewInMemoryBus()
	ctx := context.Background()

	statuses := []task.Status{task.StatusPending, task.StatusExecuting, task.StatusCompleted}
	for _, st := range statuses {
		bus.Publish(ctx, makeNotice("t1", st))
	}

	hist := bus.History(100)
	if len(hist) != 3 {
		t.Fatalf("History len = %d, want 3", len(hist))
	}
	// Publish order preserved
	for i, st := range statuses {
		if hist[i].Status != st {
			t.Errorf("hist[%d].Status = %q, want %q", i, hist[i].Status, st)
		}
	}
}

func TestInMemoryBus_History_Limit(t *testing.T) {
	bus := NewInMemoryBus()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		bus.Publish(ctx, makeNotice("t1", task.StatusExecuting))
	}

	hist := bus.History(5)
	if len(hist) != 5 {
		t.Errorf("History with limit 5 returned %d notices", len(hist))
	}
}
