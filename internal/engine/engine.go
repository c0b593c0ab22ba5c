package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/twillot/twillot/internal/workflow"
)

// Coordinator is the single-writer loop between the observer and the
// task queue. Intercepted calls are submitted from any goroutine via
// Submit; the Run goroutine classifies each call, matches it against the
// user's workflows, resolves the target id, and enqueues one task per
// configured action. All queue mutations happen in the Run goroutine.
//
// Misses at any stage (unwatched endpoint, no matching workflow, no
// resolvable target) are logged and dropped; the pipeline never errors
// on uninteresting traffic.
type Coordinator struct {
	queue   *TaskQueue
	matcher *workflow.Matcher
	tokens  TokenGenerator
	clock   *Clock
	calls   *callQueue
}

// NewCoordinator wires the coordinator. clock should be seeded past the
// highest persisted task seq (see TaskQueue.MaxSeq).
func NewCoordinator(queue *TaskQueue, matcher *workflow.Matcher, tokens TokenGenerator, clock *Clock) *Coordinator {
	return &Coordinator{
		queue:   queue,
		matcher: matcher,
		tokens:  tokens,
		clock:   clock,
		calls:   newCallQueue(),
	}
}

// Submit hands an intercepted call to the coordinator for processing.
// Safe from any goroutine; never blocks. Returns false if the
// coordinator has been stopped.
func (c *Coordinator) Submit(call workflow.Call) bool {
	return c.calls.Enqueue(call)
}

// Pending returns the number of submitted calls not yet processed.
func (c *Coordinator) Pending() int {
	return c.calls.Len()
}

// Stop closes the call queue, causing Run to drain and return.
func (c *Coordinator) Stop() {
	c.calls.Close()
}

// Run starts the single-writer processing loop. Blocks until the
// context is cancelled or Stop is called and the queue drains.
//
// Must be called from exactly one goroutine: classification, matching,
// and queue mutation are all serialized here so two near-simultaneous
// calls cannot interleave their merge filters.
func (c *Coordinator) Run(ctx context.Context) error {
	slog.Info("coordinator starting")

	for {
		call, ok := c.calls.TryDequeue()
		if ok {
			c.process(ctx, call)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("coordinator stopping: context cancelled")
			c.calls.Close()
			return ctx.Err()

		case <-c.calls.Wait():
			// Signal fires on enqueue and on close. Closed and drained
			// means we are done.
			if c.calls.Len() == 0 && c.calls.Closed() {
				slog.Info("coordinator stopping: queue closed")
				return nil
			}
		}
	}
}

// process runs one call through classify, match, resolve, enqueue.
func (c *Coordinator) process(ctx context.Context, call workflow.Call) {
	trigger, ok := workflow.Classify(call.Endpoint, call.Request.Body)
	if !ok {
		slog.Debug("call dropped: unwatched endpoint", "endpoint", call.Endpoint)
		return
	}

	actions := c.matcher.Match(trigger)
	if actions == nil {
		slog.Debug("call dropped: no workflow for trigger", "trigger", trigger)
		return
	}

	targetID, ok := workflow.ResolveTarget(trigger, call)
	if !ok {
		slog.Warn("call dropped: no resolvable target id", "trigger", trigger)
		return
	}

	for _, action := range actions {
		task := workflow.Task{
			ID:       c.tokens.Generate(),
			Name:     action.Name,
			TargetID: targetID,
			Inputs:   action.Inputs,
			Seq:      c.clock.Next(),
		}
		if err := c.queue.Enqueue(ctx, task); err != nil {
			slog.Error("task enqueue failed",
				"error", err,
				"trigger", trigger,
				"action", action.Name,
				"target", targetID,
			)
		}
	}
}

// callQueue is an unbounded thread-safe FIFO of intercepted calls with a
// coalescing signal channel, so Run can wait for work without polling
// and still honor context cancellation.
type callQueue struct {
	mu     sync.Mutex
	calls  []workflow.Call
	closed bool
	signal chan struct{}
}

func newCallQueue() *callQueue {
	return &callQueue{
		calls:  make([]workflow.Call, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends a call and signals availability. Returns false if the
// queue is closed.
func (q *callQueue) Enqueue(call workflow.Call) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.calls = append(q.calls, call)

	// Buffered signal of 1 coalesces bursts.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue pops the front call without blocking.
func (q *callQueue) TryDequeue() (workflow.Call, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.calls) == 0 {
		return workflow.Call{}, false
	}

	call := q.calls[0]
	q.calls[0] = workflow.Call{}
	if len(q.calls) == 1 {
		q.calls = q.calls[:0]
	} else {
		q.calls = q.calls[1:]
	}
	return call, true
}

// Wait returns the signal channel for use in a select. The channel
// closes when the queue closes, waking all waiters.
func (q *callQueue) Wait() <-chan struct{} {
	return q.signal
}

func (q *callQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.calls)
}

func (q *callQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close marks the queue closed and wakes waiters. Idempotent.
func (q *callQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
