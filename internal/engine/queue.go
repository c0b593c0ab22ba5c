package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twillot/twillot/internal/notify"
	"github.com/twillot/twillot/internal/store"
	"github.com/twillot/twillot/internal/workflow"
)

// TaskQueue is the persistent, deduplicated FIFO of pending tasks.
//
// The backing store holds the whole list under a single per-user key and
// is read/replaced only as a unit, so every mutation is load-filter-save.
// Durability spans process restarts: a crash between enqueue and
// execution leaves the task queued for the next run.
type TaskQueue struct {
	store *store.Store
	owner string
	bus   *notify.Bus
}

// NewTaskQueue creates a queue over the given user's persisted task list.
func NewTaskQueue(s *store.Store, owner string, bus *notify.Bus) *TaskQueue {
	return &TaskQueue{store: s, owner: owner, bus: bus}
}

// List returns the queued tasks in insertion order (oldest first).
func (q *TaskQueue) List(ctx context.Context) ([]workflow.Task, error) {
	var tasks []workflow.Task
	if _, err := q.store.GetState(ctx, q.owner, store.StateKeyTasks, &tasks); err != nil {
		return nil, fmt.Errorf("load task queue: %w", err)
	}
	return tasks, nil
}

// Enqueue appends a task after applying two ordered filters against the
// current persisted list:
//
//  1. Superseding: an unroll-thread task removes any queued
//     delete-bookmark task for the same target. The content-preserving
//     action wins over the destructive one.
//  2. Idempotence: any existing task with the same (name, target) pair
//     is removed before appending, so the last write wins and the same
//     action never runs twice for one target.
//
// Both filters re-read the persisted list at call time rather than a
// snapshot from before the triggering event, so concurrent paths that
// already mutated the queue are honored.
func (q *TaskQueue) Enqueue(ctx context.Context, task workflow.Task) error {
	tasks, err := q.List(ctx)
	if err != nil {
		return err
	}

	kept := tasks[:0]
	for _, t := range tasks {
		if task.Name == workflow.ActionUnrollThread &&
			t.Name == workflow.ActionDeleteBookmark &&
			t.TargetID == task.TargetID {
			slog.Info("task superseded",
				"removed", t.ID,
				"removed_name", t.Name,
				"target", t.TargetID,
			)
			continue
		}
		if t.Name == task.Name && t.TargetID == task.TargetID {
			continue
		}
		kept = append(kept, t)
	}
	kept = append(kept, task)

	if err := q.save(ctx, kept); err != nil {
		return err
	}

	slog.Info("task enqueued", "id", task.ID, "name", task.Name, "target", task.TargetID)
	q.bus.Publish(notify.Notification{Kind: notify.KindTasksChanged, TaskID: task.ID})
	return nil
}

// Remove deletes the task with the given id. An absent id is a logged
// no-op, not an error: a concurrent path may have already removed it.
func (q *TaskQueue) Remove(ctx context.Context, id string) error {
	tasks, err := q.List(ctx)
	if err != nil {
		return err
	}

	kept := tasks[:0]
	found := false
	for _, t := range tasks {
		if t.ID == id {
			found = true
			continue
		}
		kept = append(kept, t)
	}

	if !found {
		slog.Warn("task removal skipped: id not queued", "id", id)
		return nil
	}

	if err := q.save(ctx, kept); err != nil {
		return err
	}

	q.bus.Publish(notify.Notification{Kind: notify.KindTasksChanged, TaskID: id})
	return nil
}

// MaxSeq returns the highest seq stamp in the persisted list, so the
// coordinator can resume its clock past already-queued tasks.
func (q *TaskQueue) MaxSeq(ctx context.Context) (int64, error) {
	tasks, err := q.List(ctx)
	if err != nil {
		return 0, err
	}
	var max int64
	for _, t := range tasks {
		if t.Seq > max {
			max = t.Seq
		}
	}
	return max, nil
}

func (q *TaskQueue) save(ctx context.Context, tasks []workflow.Task) error {
	if tasks == nil {
		tasks = []workflow.Task{}
	}
	if err := q.store.PutState(ctx, q.owner, store.StateKeyTasks, tasks); err != nil {
		return fmt.Errorf("save task queue: %w", err)
	}
	return nil
}
