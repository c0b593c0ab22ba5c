// Package syncer replicates the user's remote data locally, one content
// category at a time, via cursor-paginated fetches.
//
// Each category runs an independent state machine (idle, running,
// paused, errored, finished) with its cursor persisted after every
// applied page, so progress is resumable across process restarts and a
// rate-limited category parks itself until the announced reset.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/twillot/twillot/internal/api"
	"github.com/twillot/twillot/internal/notify"
	"github.com/twillot/twillot/internal/store"
)

// Category is one remote content collection with its own cursor.
type Category string

const (
	CategoryPosts     Category = "posts"
	CategoryReplies   Category = "replies"
	CategoryMedia     Category = "media"
	CategoryLikes     Category = "likes"
	CategoryFollowers Category = "followers"
	CategoryBookmarks Category = "bookmarks"
)

// Categories lists all sync categories in presentation order.
var Categories = []Category{
	CategoryPosts,
	CategoryReplies,
	CategoryMedia,
	CategoryLikes,
	CategoryFollowers,
	CategoryBookmarks,
}

// State is a category's position in the sync state machine.
type State string

const (
	// StateIdle: never started, or reset.
	StateIdle State = "idle"

	// StateRunning: actively fetching pages.
	StateRunning State = "running"

	// StatePaused: rate limited; resumes after ResetAt.
	StatePaused State = "paused"

	// StateErrored: stopped on a failure; the cursor did not advance, so
	// a retry resumes from the last applied page.
	StateErrored State = "errored"

	// StateFinished: the category is exhausted. The cursor is kept so an
	// incremental run resumes where the walk ended.
	StateFinished State = "finished"
)

// Status is the per-category progress surface exposed to the
// presentation layer.
type Status struct {
	State   State     `json:"state"`
	Done    int       `json:"done"`
	Total   int       `json:"total"`
	ResetAt time.Time `json:"reset_at,omitzero"`
}

// Source fetches one timeline page. Implemented by *api.Client.
type Source interface {
	Timeline(ctx context.Context, category, cursor string) (*api.Page, error)
}

// cursorState is the durable per-category continuation, stored as one
// value under the category's state key.
type cursorState struct {
	Cursor  string `json:"cursor,omitempty"`
	ResetAt int64  `json:"reset_at,omitempty"`
}

// Driver runs the sync state machines. Categories are independent and
// may run concurrently; within a category the cursor is single-threaded
// and pages are applied strictly in fetch order.
type Driver struct {
	store  *store.Store
	source Source
	owner  string
	bus    *notify.Bus

	mu     sync.Mutex
	status map[Category]Status

	now func() time.Time
}

// NewDriver wires a sync driver for one user.
func NewDriver(s *store.Store, source Source, owner string, bus *notify.Bus) *Driver {
	d := &Driver{
		store:  s,
		source: source,
		owner:  owner,
		bus:    bus,
		status: make(map[Category]Status, len(Categories)),
		now:    time.Now,
	}
	for _, cat := range Categories {
		d.status[cat] = Status{State: StateIdle}
	}
	return d
}

// Status returns the category's current status.
func (d *Driver) Status(cat Category) Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status[cat]
}

// StatusAll returns a snapshot of every category's status.
func (d *Driver) StatusAll() map[Category]Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[Category]Status, len(d.status))
	for cat, st := range d.status {
		out[cat] = st
	}
	return out
}

// Run walks every category concurrently until each reaches a terminal
// state (finished, paused, or errored). Used for both the one-time full
// backfill and the periodic incremental pass - the state machine is the
// same, an incremental run just converges quickly because only new
// items exist past the kept cursor.
func (d *Driver) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, cat := range Categories {
		wg.Add(1)
		go func(cat Category) {
			defer wg.Done()
			if err := d.syncCategory(ctx, cat); err != nil {
				slog.Error("category sync failed", "category", cat, "error", err)
			}
		}(cat)
	}
	wg.Wait()
}

// Start runs once immediately, then again on every tick until the
// context is cancelled.
func (d *Driver) Start(ctx context.Context, interval time.Duration) {
	d.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Run(ctx)
		}
	}
}

// syncCategory advances one category until it is exhausted or stopped.
//
// The cursor is persisted immediately after each applied page, before
// the next fetch, so a crash or rate limit mid-walk never refetches an
// applied page and never skips one.
func (d *Driver) syncCategory(ctx context.Context, cat Category) error {
	state, err := d.loadCursor(ctx, cat)
	if err != nil {
		return err
	}

	// A previous run parked on a rate limit; honor it before spending a
	// request.
	if reset := time.Unix(state.ResetAt, 0); state.ResetAt > 0 && reset.After(d.now()) {
		d.setStatus(cat, Status{State: StatePaused, ResetAt: reset})
		return nil
	}

	done := 0
	d.setStatus(cat, Status{State: StateRunning})

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := d.source.Timeline(ctx, string(cat), state.Cursor)
		if err != nil {
			return d.handleFetchError(ctx, cat, state, done, err)
		}

		if len(page.Items) == 0 {
			// Exhausted. Keep the cursor: the next incremental run
			// resumes from here instead of rewalking the category.
			d.setStatus(cat, Status{State: StateFinished, Done: done, Total: done})
			return nil
		}

		if err := d.store.Upsert(ctx, page.Items); err != nil {
			d.setStatus(cat, Status{State: StateErrored, Done: done})
			return fmt.Errorf("apply %s page: %w", cat, err)
		}
		done += len(page.Items)

		state.Cursor = page.Cursor
		state.ResetAt = 0
		if err := d.saveCursor(ctx, cat, state); err != nil {
			d.setStatus(cat, Status{State: StateErrored, Done: done})
			return err
		}

		d.bus.Publish(notify.Notification{Kind: notify.KindRecordsChanged, Category: string(cat)})
		d.setStatus(cat, Status{State: StateRunning, Done: done})
	}
}

// handleFetchError maps a fetch failure onto the state machine. The
// cursor never advances on failure; rate limits additionally persist
// the announced reset so later runs wait it out.
func (d *Driver) handleFetchError(ctx context.Context, cat Category, state cursorState, done int, err error) error {
	if resetAt, ok := api.IsRateLimit(err); ok {
		state.ResetAt = resetAt.Unix()
		if saveErr := d.saveCursor(ctx, cat, state); saveErr != nil {
			return saveErr
		}
		slog.Info("category paused: rate limited", "category", cat, "reset_at", resetAt)
		d.setStatus(cat, Status{State: StatePaused, Done: done, ResetAt: resetAt})
		return nil
	}

	if api.IsAuthError(err) {
		slog.Warn("category errored: re-authentication required", "category", cat)
		d.setStatus(cat, Status{State: StateErrored, Done: done})
		return err
	}

	d.setStatus(cat, Status{State: StateErrored, Done: done})
	return fmt.Errorf("fetch %s page: %w", cat, err)
}

func (d *Driver) loadCursor(ctx context.Context, cat Category) (cursorState, error) {
	var state cursorState
	if _, err := d.store.GetState(ctx, d.owner, store.CursorStateKey(string(cat)), &state); err != nil {
		return state, fmt.Errorf("load %s cursor: %w", cat, err)
	}
	return state, nil
}

func (d *Driver) saveCursor(ctx context.Context, cat Category, state cursorState) error {
	if err := d.store.PutState(ctx, d.owner, store.CursorStateKey(string(cat)), state); err != nil {
		return fmt.Errorf("save %s cursor: %w", cat, err)
	}
	return nil
}

// setStatus records the new status and notifies the presentation layer.
func (d *Driver) setStatus(cat Category, st Status) {
	d.mu.Lock()
	d.status[cat] = st
	d.mu.Unlock()

	d.bus.Publish(notify.Notification{
		Kind:     notify.KindSyncStatus,
		Category: string(cat),
		State:    string(st.State),
		Done:     st.Done,
		Total:    st.Total,
		ResetAt:  st.ResetAt,
	})
}
