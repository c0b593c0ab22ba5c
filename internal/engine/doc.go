// Package engine is the trigger-action core: a durable deduplicated task
// queue, a single-writer coordinator loop that turns intercepted calls
// into queued tasks, and an executor that drains the queue against the
// remote API and the local store.
//
// All queue mutations flow through the coordinator's Run goroutine; the
// executor runs on its own lifecycle and re-reads the persisted list, so
// a crash between the two leaves unfinished tasks durably queued.
package engine
