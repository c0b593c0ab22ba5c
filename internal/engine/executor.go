package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twillot/twillot/internal/notify"
	"github.com/twillot/twillot/internal/store"
	"github.com/twillot/twillot/internal/workflow"
)

// RemoteAPI is the slice of the remote client the executor needs.
type RemoteAPI interface {
	Conversation(ctx context.Context, remoteID string) ([]string, error)
	ItemDetail(ctx context.Context, remoteID string) (*store.Record, error)
	CreateReply(ctx context.Context, targetID, text string) (string, error)
}

// Downloader receives media variants extracted by the download-media
// action. The actual transfer is the collaborator's problem.
type Downloader interface {
	Download(ctx context.Context, remoteID, url string) error
}

// Executor drains the task queue, running each task's side effect
// against the remote API or the local store.
//
// Execution is at-most-once: a task is removed after its handler
// returns, success or terminal failure alike, so a handler error never
// causes a retry. A crash mid-drain leaves unfinished tasks durably
// queued for the next run.
type Executor struct {
	queue      *TaskQueue
	store      *store.Store
	owner      string
	api        RemoteAPI
	downloader Downloader
	bus        *notify.Bus
}

// NewExecutor wires an executor. downloader may be nil, in which case
// download-media tasks are reported and dropped.
func NewExecutor(queue *TaskQueue, s *store.Store, owner string, api RemoteAPI, downloader Downloader, bus *notify.Bus) *Executor {
	return &Executor{
		queue:      queue,
		store:      s,
		owner:      owner,
		api:        api,
		downloader: downloader,
		bus:        bus,
	}
}

// RunAll drains the queue once, strictly in insertion order. Each task
// is removed only after its handler completes; handler failures are
// logged and the drain continues with the next task.
func (e *Executor) RunAll(ctx context.Context) error {
	tasks, err := e.queue.List(ctx)
	if err != nil {
		return err
	}

	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := e.run(ctx, task); err != nil {
			slog.Error("task failed",
				"error", err,
				"id", task.ID,
				"name", task.Name,
				"target", task.TargetID,
			)
		} else {
			slog.Info("task completed", "id", task.ID, "name", task.Name, "target", task.TargetID)
		}

		// Remove after the handler returns, success or failure. The task
		// ran (or terminally failed); it must not run again.
		if err := e.queue.Remove(ctx, task.ID); err != nil {
			return fmt.Errorf("dequeue task %s: %w", task.ID, err)
		}
	}

	return nil
}

func (e *Executor) run(ctx context.Context, task workflow.Task) error {
	switch task.Name {
	case workflow.ActionUnrollThread:
		return e.runUnrollThread(ctx, task)
	case workflow.ActionDeleteBookmark:
		return e.runDeleteBookmark(ctx, task)
	case workflow.ActionAutoComment:
		return e.runAutoComment(ctx, task)
	case workflow.ActionDownloadMedia:
		return e.runDownloadMedia(ctx, task)
	default:
		// Unsupported kinds are reported and still dequeued by the
		// caller, never retried indefinitely.
		slog.Warn("unsupported task kind", "id", task.ID, "name", task.Name)
		return nil
	}
}

// runUnrollThread fetches the full conversation for the stored record
// and merges it in. An absent record is a warning, not an error; an
// empty remote conversation is a plain no-op.
func (e *Executor) runUnrollThread(ctx context.Context, task workflow.Task) error {
	rec, err := e.store.FindByID(ctx, e.owner, task.TargetID)
	if err != nil {
		return err
	}
	if rec == nil {
		slog.Warn("unroll thread skipped: record not stored", "target", task.TargetID)
		return nil
	}

	thread, err := e.api.Conversation(ctx, task.TargetID)
	if err != nil {
		return fmt.Errorf("unroll thread %s: %w", task.TargetID, err)
	}
	if len(thread) == 0 {
		return nil
	}

	rec.Conversations = thread
	if err := e.store.Upsert(ctx, []store.Record{*rec}); err != nil {
		return fmt.Errorf("unroll thread %s: %w", task.TargetID, err)
	}

	e.bus.Publish(notify.Notification{Kind: notify.KindRecordsChanged, RecordID: task.TargetID})
	return nil
}

// runDeleteBookmark removes the local record and republishes the
// aggregate counters so the presentation layer stays consistent with
// the removed record's folder. Absent records are a no-op.
func (e *Executor) runDeleteBookmark(ctx context.Context, task workflow.Task) error {
	rec, err := e.store.Delete(ctx, e.owner, task.TargetID)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}

	total, err := e.store.Count(ctx, e.owner)
	if err != nil {
		return err
	}
	folders, err := e.store.CountByFolder(ctx, e.owner)
	if err != nil {
		return err
	}

	e.bus.Publish(notify.Notification{Kind: notify.KindRecordsChanged, RecordID: task.TargetID})
	e.bus.Publish(notify.Notification{
		Kind:         notify.KindCountsChanged,
		TotalCount:   total,
		FolderCounts: folders,
	})
	return nil
}

// runAutoComment posts the workflow-configured text as a reply to the
// target. A task without input text is misconfigured: skip with a
// diagnostic, never retry.
func (e *Executor) runAutoComment(ctx context.Context, task workflow.Task) error {
	if len(task.Inputs) == 0 || task.Inputs[0] == "" {
		slog.Warn("auto comment skipped: no configured text", "target", task.TargetID)
		return nil
	}

	if _, err := e.api.CreateReply(ctx, task.TargetID, task.Inputs[0]); err != nil {
		return fmt.Errorf("auto comment %s: %w", task.TargetID, err)
	}
	return nil
}

// runDownloadMedia fetches the full item and hands each attachment's
// highest-quality variant to the download collaborator. Items without
// media are a no-op.
func (e *Executor) runDownloadMedia(ctx context.Context, task workflow.Task) error {
	if e.downloader == nil {
		slog.Warn("download media skipped: no downloader configured", "target", task.TargetID)
		return nil
	}

	rec, err := e.api.ItemDetail(ctx, task.TargetID)
	if err != nil {
		return fmt.Errorf("download media %s: %w", task.TargetID, err)
	}

	for _, item := range rec.Media {
		variant, ok := bestVariant(item)
		if !ok {
			continue
		}
		if err := e.downloader.Download(ctx, task.TargetID, variant.URL); err != nil {
			return fmt.Errorf("download media %s: %w", task.TargetID, err)
		}
	}
	return nil
}

// bestVariant returns an item's highest-quality variant. Variants are
// stored in ascending quality order, so the last one wins.
func bestVariant(item store.MediaItem) (store.MediaVariant, bool) {
	if len(item.Variants) == 0 {
		return store.MediaVariant{}, false
	}
	return item.Variants[len(item.Variants)-1], true
}
