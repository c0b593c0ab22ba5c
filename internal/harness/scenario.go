package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/twillot/twillot/internal/workflow"
)

// Scenario defines one conformance scenario: the active workflows and
// the intercepted calls fed through the pipeline, in order.
type Scenario struct {
	// Name uniquely identifies the scenario; it also names the golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Workflows are the active definitions, in stored order. Order
	// matters: matching honors the first workflow bound to a trigger.
	Workflows []WorkflowDef `yaml:"workflows"`

	// Calls are the intercepted exchanges, in arrival order.
	Calls []CallStep `yaml:"calls"`
}

// WorkflowDef is a scenario-local workflow definition.
type WorkflowDef struct {
	Name string      `yaml:"name"`
	When string      `yaml:"when"`
	Then []ActionDef `yaml:"then"`
}

// ActionDef is one step of a workflow's then-list.
type ActionDef struct {
	Action string   `yaml:"action"`
	Inputs []string `yaml:"inputs,omitempty"`
}

// CallStep is one intercepted call, flattened to the fields the
// pipeline reads.
type CallStep struct {
	Endpoint      string `yaml:"endpoint"`
	TargetID      string `yaml:"target_id,omitempty"`
	AttachmentURL string `yaml:"attachment_url,omitempty"`
	ReplyTo       string `yaml:"reply_to,omitempty"`
	CreatedID     string `yaml:"created_id,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields
// are rejected so typos fail loudly instead of silently skipping.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Workflows) == 0 {
		return fmt.Errorf("workflows list is required and must be non-empty")
	}
	if len(s.Calls) == 0 {
		return fmt.Errorf("calls list is required and must be non-empty")
	}

	for i, wf := range s.Workflows {
		if wf.Name == "" {
			return fmt.Errorf("workflows[%d]: name is required", i)
		}
		if !workflow.ValidTriggers[workflow.Trigger(wf.When)] {
			return fmt.Errorf("workflows[%d]: unknown trigger %q", i, wf.When)
		}
		if len(wf.Then) == 0 {
			return fmt.Errorf("workflows[%d]: then list is required and must be non-empty", i)
		}
		for j, a := range wf.Then {
			if !workflow.ValidActionKinds[workflow.ActionKind(a.Action)] {
				return fmt.Errorf("workflows[%d].then[%d]: unknown action %q", i, j, a.Action)
			}
		}
	}

	for i, c := range s.Calls {
		if c.Endpoint == "" {
			return fmt.Errorf("calls[%d]: endpoint is required", i)
		}
	}
	return nil
}

// workflows converts the scenario definitions into matcher input.
func (s *Scenario) workflows() []workflow.Workflow {
	out := make([]workflow.Workflow, len(s.Workflows))
	for i, def := range s.Workflows {
		actions := make([]workflow.Action, len(def.Then))
		for j, a := range def.Then {
			actions[j] = workflow.Action{Name: workflow.ActionKind(a.Action), Inputs: a.Inputs}
		}
		out[i] = workflow.Workflow{
			ID:       fmt.Sprintf("wf-%d", i+1),
			Name:     def.Name,
			When:     workflow.Trigger(def.When),
			ThenList: actions,
		}
	}
	return out
}

// call converts a flattened call step into a pipeline call. Responses
// are always successful: the observer never forwards failed calls.
func (c CallStep) call() workflow.Call {
	var reply *workflow.ReplyRef
	if c.ReplyTo != "" {
		reply = &workflow.ReplyRef{InReplyToID: c.ReplyTo}
	}
	return workflow.Call{
		Endpoint: c.Endpoint,
		Request: workflow.Request{
			Method: "POST",
			Body: workflow.RequestBody{
				Variables: workflow.Variables{
					TargetID:      c.TargetID,
					AttachmentURL: c.AttachmentURL,
					Reply:         reply,
				},
			},
		},
		Response: workflow.Response{
			Status: 200,
			Body:   workflow.ResponseBody{CreatedID: c.CreatedID},
		},
	}
}
