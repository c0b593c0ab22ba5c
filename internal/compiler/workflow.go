// Package compiler turns CUE workflow definitions into validated
// workflow values. Definitions are declarative trigger → action-list
// bindings:
//
//	workflow: "unroll bookmarks": {
//		when: "CreateBookmark"
//		then: [
//			{action: "UnrollThread"},
//			{action: "AutoComment", inputs: ["nice thread"]},
//		]
//	}
//
// Compilation uses the CUE SDK's Go API directly and reports positioned
// errors so a bad definition points at the offending line.
package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"

	"github.com/twillot/twillot/internal/workflow"
)

// CompileWorkflows parses every entry under the top-level "workflow"
// struct, in declaration order. Declaration order matters: matching
// honors the first workflow bound to a trigger.
func CompileWorkflows(v cue.Value) ([]workflow.Workflow, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	root := v.LookupPath(cue.ParsePath("workflow"))
	if !root.Exists() {
		return nil, &CompileError{
			Field:   "workflow",
			Message: "no workflow definitions found",
			Pos:     v.Pos(),
		}
	}

	iter, err := root.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var workflows []workflow.Workflow
	for iter.Next() {
		wf, err := CompileWorkflow(iter.Value())
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, *wf)
	}

	if len(workflows) == 0 {
		return nil, &CompileError{
			Field:   "workflow",
			Message: "no workflow definitions found",
			Pos:     root.Pos(),
		}
	}
	return workflows, nil
}

// CompileWorkflow parses a single workflow struct. The workflow name
// comes from the struct label:
//
//	workflow: "unroll bookmarks": { ... }  →  name "unroll bookmarks"
func CompileWorkflow(v cue.Value) (*workflow.Workflow, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	var name string
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		// The label may be quoted in CUE.
		name = strings.Trim(labels[len(labels)-1].String(), `"`)
	}

	when, err := parseWhen(v)
	if err != nil {
		return nil, err
	}

	then, err := parseThen(v)
	if err != nil {
		return nil, err
	}

	wf := workflow.NewWorkflow(name, when, then...)
	return &wf, nil
}

// parseWhen extracts and validates the trigger binding.
func parseWhen(v cue.Value) (workflow.Trigger, error) {
	whenVal := v.LookupPath(cue.ParsePath("when"))
	if !whenVal.Exists() {
		return "", &CompileError{
			Field:   "when",
			Message: "when is required",
			Pos:     v.Pos(),
		}
	}

	whenStr, err := whenVal.String()
	if err != nil {
		return "", formatCUEError(err)
	}

	trigger := workflow.Trigger(whenStr)
	if !workflow.ValidTriggers[trigger] {
		return "", &CompileError{
			Field:   "when",
			Message: fmt.Sprintf("unknown trigger %q, must be one of %s", whenStr, joinTriggers()),
			Pos:     whenVal.Pos(),
		}
	}
	return trigger, nil
}

// parseThen extracts the ordered action list.
func parseThen(v cue.Value) ([]workflow.Action, error) {
	thenVal := v.LookupPath(cue.ParsePath("then"))
	if !thenVal.Exists() {
		return nil, &CompileError{
			Field:   "then",
			Message: "then is required",
			Pos:     v.Pos(),
		}
	}

	iter, err := thenVal.List()
	if err != nil {
		return nil, &CompileError{
			Field:   "then",
			Message: "then must be a list of actions",
			Pos:     thenVal.Pos(),
		}
	}

	var actions []workflow.Action
	seen := make(map[workflow.ActionKind]bool)
	for i := 0; iter.Next(); i++ {
		action, err := parseAction(iter.Value(), i)
		if err != nil {
			return nil, err
		}

		// One action per kind within a workflow; a duplicate is a
		// definition error rather than a silent replace.
		if seen[action.Name] {
			return nil, &CompileError{
				Field:   fmt.Sprintf("then[%d].action", i),
				Message: fmt.Sprintf("duplicate action %q within one workflow", action.Name),
				Pos:     iter.Value().Pos(),
			}
		}
		seen[action.Name] = true
		actions = append(actions, action)
	}

	if len(actions) == 0 {
		return nil, &CompileError{
			Field:   "then",
			Message: "at least one action is required",
			Pos:     thenVal.Pos(),
		}
	}
	return actions, nil
}

// parseAction parses one then-list entry and enforces the per-kind
// input contract: content-bearing actions require inputs, others
// forbid them.
func parseAction(v cue.Value, i int) (workflow.Action, error) {
	nameVal := v.LookupPath(cue.ParsePath("action"))
	if !nameVal.Exists() {
		return workflow.Action{}, &CompileError{
			Field:   fmt.Sprintf("then[%d].action", i),
			Message: "action is required",
			Pos:     v.Pos(),
		}
	}

	nameStr, err := nameVal.String()
	if err != nil {
		return workflow.Action{}, formatCUEError(err)
	}

	kind := workflow.ActionKind(nameStr)
	if !workflow.ValidActionKinds[kind] {
		return workflow.Action{}, &CompileError{
			Field:   fmt.Sprintf("then[%d].action", i),
			Message: fmt.Sprintf("unknown action %q", nameStr),
			Pos:     nameVal.Pos(),
		}
	}

	var inputs []string
	inputsVal := v.LookupPath(cue.ParsePath("inputs"))
	if inputsVal.Exists() {
		listIter, err := inputsVal.List()
		if err != nil {
			return workflow.Action{}, &CompileError{
				Field:   fmt.Sprintf("then[%d].inputs", i),
				Message: "inputs must be a list of strings",
				Pos:     inputsVal.Pos(),
			}
		}
		for listIter.Next() {
			s, err := listIter.Value().String()
			if err != nil {
				return workflow.Action{}, &CompileError{
					Field:   fmt.Sprintf("then[%d].inputs", i),
					Message: "inputs must be a list of strings",
					Pos:     listIter.Value().Pos(),
				}
			}
			inputs = append(inputs, s)
		}
	}

	if kind.NeedsInputs() && (len(inputs) == 0 || inputs[0] == "") {
		return workflow.Action{}, &CompileError{
			Field:   fmt.Sprintf("then[%d].inputs", i),
			Message: fmt.Sprintf("action %q requires non-empty inputs", kind),
			Pos:     v.Pos(),
		}
	}
	if !kind.NeedsInputs() && len(inputs) > 0 {
		return workflow.Action{}, &CompileError{
			Field:   fmt.Sprintf("then[%d].inputs", i),
			Message: fmt.Sprintf("action %q takes no inputs", kind),
			Pos:     inputsVal.Pos(),
		}
	}

	return workflow.Action{Name: kind, Inputs: inputs}, nil
}

func joinTriggers() string {
	names := make([]string, len(workflow.Triggers))
	for i, t := range workflow.Triggers {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
