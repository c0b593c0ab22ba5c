package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/twillot/twillot/internal/engine"
	"github.com/twillot/twillot/internal/store"
	"github.com/twillot/twillot/internal/workflow"
)

// scenarioOwner is the fixed user id scenarios run under.
const scenarioOwner = "scenario-user"

// Result is the queue state after a scenario ran to completion.
type Result struct {
	Tasks []workflow.Task `json:"tasks"`
}

// Run feeds the scenario's calls through the real coordinator and
// task queue, with deterministic task ids ("task-1", "task-2", …), and
// returns the final queue contents.
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "harness")
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "scenario.db"))
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	defer st.Close()

	queue := engine.NewTaskQueue(st, scenarioOwner, nil)
	coord := engine.NewCoordinator(
		queue,
		workflow.NewMatcher(scenario.workflows()),
		engine.NewFixedGenerator(taskTokens(scenario)...),
		engine.NewClock(),
	)

	for _, step := range scenario.Calls {
		coord.Submit(step.call())
	}
	coord.Stop()
	if err := coord.Run(context.Background()); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	tasks, err := queue.List(context.Background())
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	if tasks == nil {
		tasks = []workflow.Task{}
	}
	return &Result{Tasks: tasks}, nil
}

// taskTokens pre-mints enough deterministic ids for the worst case:
// every call matching the longest then-list.
func taskTokens(s *Scenario) []string {
	maxActions := 0
	for _, wf := range s.Workflows {
		if len(wf.Then) > maxActions {
			maxActions = len(wf.Then)
		}
	}

	n := len(s.Calls) * maxActions
	tokens := make([]string, n)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("task-%d", i+1)
	}
	return tokens
}
