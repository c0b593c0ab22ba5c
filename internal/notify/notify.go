// Package notify is the in-process notification bus between the core and
// the presentation layer. The core publishes state-diff notifications
// (task list changed, records changed, counts changed, sync status moved);
// subscribers render them. The core never renders anything itself.
package notify

import (
	"log/slog"
	"sync"
	"time"
)

// Kind distinguishes notification payloads.
type Kind string

const (
	// KindTasksChanged fires when the durable task queue gains or loses a task.
	KindTasksChanged Kind = "tasks_changed"

	// KindRecordsChanged fires when a stored record is created or updated.
	KindRecordsChanged Kind = "records_changed"

	// KindCountsChanged fires when aggregate counters moved (total count,
	// per-folder count).
	KindCountsChanged Kind = "counts_changed"

	// KindSyncStatus fires on every sync driver state transition or
	// progress advance.
	KindSyncStatus Kind = "sync_status"
)

// Notification is one state diff. Only the fields relevant to the Kind
// are populated.
type Notification struct {
	Kind Kind

	// TaskID / RecordID identify what changed, when known.
	TaskID   string
	RecordID string

	// Category / State / Done / Total / ResetAt mirror the sync driver's
	// per-category status for KindSyncStatus.
	Category string
	State    string
	Done     int
	Total    int
	ResetAt  time.Time

	// TotalCount and FolderCounts carry counter adjustments.
	TotalCount   int
	FolderCounts map[string]int
}

// Bus fans notifications out to subscribers.
//
// Delivery is best-effort: each subscriber gets a buffered channel and a
// notification that finds the buffer full is dropped with a diagnostic,
// never blocking the publisher. A slow renderer must not stall the
// executor or the sync driver.
type Bus struct {
	mu   sync.Mutex
	subs []chan Notification
}

// subscriberBuffer is sized for bursty publishes (a full drain of the
// task queue, a page of record updates).
const subscriberBuffer = 64

// NewBus creates an empty bus. The zero value is also usable.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a new subscriber and returns its channel. The
// channel is never closed; subscribers stop reading when done.
func (b *Bus) Subscribe() <-chan Notification {
	ch := make(chan Notification, subscriberBuffer)

	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()

	return ch
}

// Publish delivers a notification to every subscriber without blocking.
// Nil buses are tolerated so library callers can opt out of notifications
// entirely.
func (b *Bus) Publish(n Notification) {
	if b == nil {
		return
	}

	b.mu.Lock()
	subs := b.subs
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- n:
		default:
			slog.Warn("notification dropped: subscriber buffer full", "kind", n.Kind)
		}
	}
}
