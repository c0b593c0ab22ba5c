// Package harness runs declarative YAML scenarios through the trigger
// pipeline: a scenario defines workflows and a sequence of intercepted
// calls, the harness feeds them through classification, matching, and
// the task queue's merge rules, and the resulting queue is compared
// against a golden snapshot.
//
// Scenarios make the queue semantics reviewable without writing Go:
// adding a case is a YAML file and a golden file.
package harness
