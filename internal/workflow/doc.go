// Package workflow defines the trigger and action vocabulary for the
// automation engine.
//
// A Trigger is a semantic user action recovered from an intercepted network
// call. A Workflow binds a trigger to an ordered list of actions. The
// Matcher holds the active workflow list and answers "which actions fire
// for this trigger" with first-match-wins semantics.
//
// Everything in this package is pure: classification and matching never
// touch the network or the store. Side effects happen later, in the
// engine's executor.
package workflow
