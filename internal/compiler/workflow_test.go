package compiler

import (
	"testing"

	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twillot/twillot/internal/workflow"
)

func compile(t *testing.T, src string) ([]workflow.Workflow, error) {
	t.Helper()

	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	return CompileWorkflows(v)
}

func TestCompileWorkflows_FullDefinition(t *testing.T) {
	workflows, err := compile(t, `
workflow: "unroll bookmarks": {
	when: "CreateBookmark"
	then: [
		{action: "UnrollThread"},
		{action: "AutoComment", inputs: ["nice thread"]},
	]
}
`)
	require.NoError(t, err)
	require.Len(t, workflows, 1)

	wf := workflows[0]
	assert.Equal(t, "unroll bookmarks", wf.Name)
	assert.Equal(t, workflow.TriggerCreateBookmark, wf.When)
	assert.NotEmpty(t, wf.ID)
	require.Len(t, wf.ThenList, 2)
	assert.Equal(t, workflow.ActionUnrollThread, wf.ThenList[0].Name)
	assert.Equal(t, workflow.ActionAutoComment, wf.ThenList[1].Name)
	assert.Equal(t, []string{"nice thread"}, wf.ThenList[1].Inputs)
}

func TestCompileWorkflows_PreservesDeclarationOrder(t *testing.T) {
	workflows, err := compile(t, `
workflow: {
	"first": {
		when: "CreateBookmark"
		then: [{action: "UnrollThread"}]
	}
	"second": {
		when: "CreatePost"
		then: [{action: "DownloadMedia"}]
	}
}
`)
	require.NoError(t, err)
	require.Len(t, workflows, 2)
	assert.Equal(t, "first", workflows[0].Name)
	assert.Equal(t, "second", workflows[1].Name)
}

func TestCompileWorkflows_UnknownTrigger(t *testing.T) {
	_, err := compile(t, `
workflow: "bad": {
	when: "CreateSomething"
	then: [{action: "UnrollThread"}]
}
`)
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "when", ce.Field)
	assert.Contains(t, ce.Message, "CreateSomething")
}

func TestCompileWorkflows_UnknownAction(t *testing.T) {
	_, err := compile(t, `
workflow: "bad": {
	when: "CreateBookmark"
	then: [{action: "ExplodePost"}]
}
`)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Message, "ExplodePost")
}

func TestCompileWorkflows_AutoCommentRequiresInputs(t *testing.T) {
	_, err := compile(t, `
workflow: "bad": {
	when: "CreatePost"
	then: [{action: "AutoComment"}]
}
`)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Message, "requires non-empty inputs")
}

func TestCompileWorkflows_ParameterlessActionRejectsInputs(t *testing.T) {
	_, err := compile(t, `
workflow: "bad": {
	when: "CreateBookmark"
	then: [{action: "DeleteBookmark", inputs: ["why"]}]
}
`)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Message, "takes no inputs")
}

func TestCompileWorkflows_DuplicateActionKindRejected(t *testing.T) {
	_, err := compile(t, `
workflow: "bad": {
	when: "CreateBookmark"
	then: [
		{action: "UnrollThread"},
		{action: "UnrollThread"},
	]
}
`)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Message, "duplicate action")
}

func TestCompileWorkflows_MissingWhen(t *testing.T) {
	_, err := compile(t, `
workflow: "bad": {
	then: [{action: "UnrollThread"}]
}
`)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "when", ce.Field)
}

func TestCompileWorkflows_EmptyThen(t *testing.T) {
	_, err := compile(t, `
workflow: "bad": {
	when: "CreateBookmark"
	then: []
}
`)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "then", ce.Field)
}

func TestCompileWorkflows_NoDefinitions(t *testing.T) {
	_, err := compile(t, `other: 1`)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Message, "no workflow definitions")
}

func TestCompileError_FormatsPosition(t *testing.T) {
	err := &CompileError{Field: "when", Message: "bad trigger"}
	assert.Equal(t, "when: bad trigger", err.Error())
}
