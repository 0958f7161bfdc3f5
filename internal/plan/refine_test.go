package plan

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPlan() *Plan {
	p := &Plan{
		ID:        "plan-test",
		Objective: "summarize the quarterly report",
		Steps: []Step{
			{ID: "step-1", Description: "collect the report sections", Status: StatusComplete, Provides: []string{"sections"}},
			{ID: "step-2", Description: "extract key figures", Status: StatusPending, Dependencies: []string{"step-1"}, Provides: []string{"figures"}},
			{ID: "step-3", Description: "draft the summary", Status: StatusPending, Dependencies: []string{"step-2"}},
		},
	}
	p.Renumber()
	return p
}

func TestApplyRefinements_RejectsExecutedTarget(t *testing.T) {
	p := testPlan()
	executed := p.ExecutedStepIDs()

	_, err := ApplyRefinements(p, []RefinementAction{
		{Kind: ActionModify, TargetID: "step-1", Step: &Step{Description: "changed"}},
	}, executed)

	var pErr *Error
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, KindExecutedTarget, pErr.Kind)
	assert.Equal(t, "step-1", pErr.Target)
}

func TestApplyRefinements_OriginalUntouchedOnError(t *testing.T) {
	p := testPlan()
	before := p.Clone()

	_, err := ApplyRefinements(p, []RefinementAction{
		{Kind: ActionAdd, TargetID: "step-9", Step: &Step{Description: "fine"}},
		{Kind: ActionRemove, TargetID: "missing"},
	}, nil)

	require.Error(t, err)
	if diff := cmp.Diff(before, p); diff != "" {
		t.Errorf("plan mutated on failed batch (-want +got):\n%s", diff)
	}
}

func TestApplyRefinements_AddIsIdempotent(t *testing.T) {
	p := testPlan()
	add := RefinementAction{
		Kind:     ActionAdd,
		TargetID: "step-4",
		Step:     &Step{Description: "verify totals"},
	}

	next, err := ApplyRefinements(p, []RefinementAction{add, add}, nil)
	require.NoError(t, err)
	assert.Len(t, next.Steps, 4)

	// Re-applying against the refined plan is also a no-op.
	again, err := ApplyRefinements(next, []RefinementAction{add}, nil)
	require.NoError(t, err)
	assert.Len(t, again.Steps, 4)
}

func TestApplyRefinements_AddInsertAfter(t *testing.T) {
	p := testPlan()

	next, err := ApplyRefinements(p, []RefinementAction{
		{Kind: ActionAdd, TargetID: "step-1b", InsertAfter: "step-1", Step: &Step{Description: "normalize sections"}},
	}, nil)
	require.NoError(t, err)

	require.Len(t, next.Steps, 4)
	assert.Equal(t, "step-1b", next.Steps[1].ID)
	assert.Equal(t, 2, next.Steps[1].Index)
	assert.Equal(t, 4, next.Steps[0].TotalSteps)
}

func TestApplyRefinements_RemoveDependencyBreak(t *testing.T) {
	p := testPlan()

	_, err := ApplyRefinements(p, []RefinementAction{
		{Kind: ActionRemove, TargetID: "step-2"},
	}, nil)

	var pErr *Error
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, KindDependencyBreak, pErr.Kind)
}

func TestApplyRefinements_RemoveLeaf(t *testing.T) {
	p := testPlan()

	next, err := ApplyRefinements(p, []RefinementAction{
		{Kind: ActionRemove, TargetID: "step-3"},
	}, nil)
	require.NoError(t, err)
	assert.Len(t, next.Steps, 2)
	assert.Nil(t, next.Step("step-3"))
}

func TestApplyRefinements_ModifyPatchesOnlyProvidedFields(t *testing.T) {
	p := testPlan()

	next, err := ApplyRefinements(p, []RefinementAction{
		{Kind: ActionModify, TargetID: "step-3", Step: &Step{Description: "draft a two-paragraph summary"}},
	}, nil)
	require.NoError(t, err)

	got := next.Step("step-3")
	require.NotNil(t, got)
	assert.Equal(t, "draft a two-paragraph summary", got.Description)
	assert.Equal(t, []string{"step-2"}, got.Dependencies)
}

func TestApplyRefinements_ReplaceNarrowingProvides(t *testing.T) {
	p := testPlan()

	_, err := ApplyRefinements(p, []RefinementAction{
		{Kind: ActionReplace, TargetID: "step-2", Step: &Step{Description: "different work", Provides: []string{"other"}}},
	}, nil)

	var pErr *Error
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, KindDependencyBreak, pErr.Kind)
}

func TestApplyRefinements_ReplaceKeepsID(t *testing.T) {
	p := testPlan()

	next, err := ApplyRefinements(p, []RefinementAction{
		{Kind: ActionReplace, TargetID: "step-3", Step: &Step{Description: "write an executive brief"}},
	}, nil)
	require.NoError(t, err)

	got := next.Step("step-3")
	require.NotNil(t, got)
	assert.Equal(t, "write an executive brief", got.Description)
	assert.Equal(t, StatusPending, got.Status)
}

func TestApplyRefinements_UnknownKind(t *testing.T) {
	p := testPlan()

	_, err := ApplyRefinements(p, []RefinementAction{
		{Kind: ActionKind("SHUFFLE"), TargetID: "step-3"},
	}, nil)

	var pErr *Error
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, KindBadAction, pErr.Kind)
}

func TestFilterExecuted(t *testing.T) {
	batch := []RefinementAction{
		{Kind: ActionModify, TargetID: "step-1"},
		{Kind: ActionModify, TargetID: "step-2"},
		{Kind: ActionAdd, TargetID: "step-4", Step: &Step{Description: "new"}},
	}
	kept, dropped := FilterExecuted(batch, map[string]bool{"step-1": true})

	require.Len(t, kept, 2)
	require.Len(t, dropped, 1)
	assert.Equal(t, "step-1", dropped[0].TargetID)
	assert.Equal(t, "step-2", kept[0].TargetID)
}
