package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twillot/twillot/internal/workflow"
)

func TestScenarios_Golden(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		file := file
		t.Run(filepath.Base(file), func(t *testing.T) {
			scenario, err := LoadScenario(file)
			require.NoError(t, err)
			require.NoError(t, RunWithGolden(t, scenario))
		})
	}
}

func TestRun_ReturnsFinalQueue(t *testing.T) {
	scenario := &Scenario{
		Name:        "inline",
		Description: "reply fallback resolves the request-side target",
		Workflows: []WorkflowDef{
			{Name: "comment on replies", When: "CreateReply", Then: []ActionDef{
				{Action: "AutoComment", Inputs: []string{"ack"}},
			}},
		},
		Calls: []CallStep{
			// No server-assigned id: target falls back to the reply ref.
			{Endpoint: "CreatePost", ReplyTo: "7"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.Len(t, result.Tasks, 1)
	assert.Equal(t, workflow.ActionAutoComment, result.Tasks[0].Name)
	assert.Equal(t, "7", result.Tasks[0].TargetID)
	assert.Equal(t, []string{"ack"}, result.Tasks[0].Inputs)
}

func TestRun_NoMatchesYieldsEmptyQueue(t *testing.T) {
	scenario := &Scenario{
		Name:        "no-match",
		Description: "calls without a matching workflow queue nothing",
		Workflows: []WorkflowDef{
			{Name: "on repost", When: "CreateRepost", Then: []ActionDef{{Action: "UnrollThread"}}},
		},
		Calls: []CallStep{
			{Endpoint: "CreateBookmark", TargetID: "1"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.Empty(t, result.Tasks)
	assert.NotNil(t, result.Tasks, "empty queue serializes as [], not null")
}
