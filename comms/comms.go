// Package comms delivers task lifecycle notifications to observers.
// Delivery is best-effort and purely observational: engine semantics
// never depend on a notice arriving.
package comms

import (
	"context"
	"time"

	"github.com/GoCodeAlone/torque/task"
)

// Notice reports one persisted task status transition.
type Notice struct {
	TaskID    string      `json:"task_id"`
	Status    task.Status `json:"status"`
	Action    task.Action `json:"action,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Handler processes incoming notices.
type Handler func(ctx context.Context, n *Notice) error

// Bus fans task lifecycle notices out to subscribers.
type Bus interface {
	// Publish delivers a notice to all subscribers.
	Publish(ctx context.Context, n *Notice) error

	// Subscribe registers a handler for every published notice.
	// Returns an unsubscribe function.
	Subscribe(handler Handler) (unsubscribe func())

	// History returns the most recent limit notices in publish order.
	History(limit int) []*Notice
}
