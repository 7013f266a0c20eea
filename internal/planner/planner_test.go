package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adiwibowo/perkaya/internal/artifacts"
	"github.com/adiwibowo/perkaya/internal/cache"
	"github.com/adiwibowo/perkaya/internal/llm"
	"github.com/adiwibowo/perkaya/internal/metrics"
	"github.com/adiwibowo/perkaya/internal/types"
)

func newTestPlanner(t *testing.T, client llm.Client) (*Planner, *artifacts.Dir) {
	t.Helper()
	dir, err := artifacts.Open(t.TempDir(), "doc1")
	require.NoError(t, err)
	store, err := cache.Open(t.TempDir())
	require.NoError(t, err)
	return &Planner{
		Dir:      dir,
		Client:   client,
		Cache:    store,
		Registry: metrics.NewRegistry(dir),
	}, dir
}

func writeCorpus(t *testing.T, dir *artifacts.Dir, segments []types.Segment, shards []types.Shard) {
	t.Helper()
	require.NoError(t, dir.WriteJSON(artifacts.FileSegments, segments))
	require.NoError(t, dir.WriteJSON(artifacts.FileShards, types.ShardFile{Shards: shards}))
}

func TestPlanner_Run_MissingInputsFails(t *testing.T) {
	p, _ := newTestPlanner(t, &fakeClient{response: func([]llm.Message) (string, error) {
		return "{}", nil
	}})
	_, err := p.Run(context.Background(), Options{DocID: "doc1"})

	var missing *artifacts.MissingInputError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, artifacts.FileSegments, missing.Name)
}

func TestPlanner_Run_ZeroBudgetWritesEmptyPlan(t *testing.T) {
	client := &fakeClient{response: func([]llm.Message) (string, error) {
		return skimPayload("h1", []types.LabeledCandidate{{Label: "premi", Confidence: 0.9}}, nil), nil
	}}
	p, dir := newTestPlanner(t, client)
	writeCorpus(t, dir,
		[]types.Segment{{SegmentID: "s1", Hash: "h1", Text: "Premi adalah."}},
		nil,
	)

	plan, err := p.Run(context.Background(), Options{DocID: "doc1", TokenBudget: 0})
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Empty(t, plan.TermsToDefine)
	assert.Empty(t, plan.ConceptsToSimplify)
	assert.Equal(t, int64(0), client.calls.Load())

	// plan.json exists with empty arrays, not nulls.
	raw, err := dir.ReadRaw(artifacts.FilePlan)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"terms_to_define": []`)
	assert.Contains(t, string(raw), `"concepts_to_simplify": []`)

	summary := p.Registry.Summary()
	assert.True(t, summary["skim"].BudgetStop)

	var progress types.PhaseProgress
	require.NoError(t, dir.ReadJSON(artifacts.FilePhase1Progress, &progress))
	assert.Equal(t, types.PhaseDone, progress.Status)
}

func TestPlanner_Run_CancelledBeforeStart(t *testing.T) {
	client := &fakeClient{response: func([]llm.Message) (string, error) {
		return "{}", nil
	}}
	p, dir := newTestPlanner(t, client)
	writeCorpus(t, dir,
		[]types.Segment{{SegmentID: "s1", Hash: "h1", Text: "Teks."}},
		nil,
	)

	metrics.SetCancel("doc1")
	defer metrics.ClearCancel("doc1")

	plan, err := p.Run(context.Background(), Options{DocID: "doc1", TokenBudget: 10_000})
	require.NoError(t, err)
	assert.Nil(t, plan)
	assert.Equal(t, int64(0), client.calls.Load())

	var progress types.PhaseProgress
	require.NoError(t, dir.ReadJSON(artifacts.FilePhase1Progress, &progress))
	assert.Equal(t, types.PhaseCancelled, progress.Status)
}

func TestPlanner_Run_EndToEnd(t *testing.T) {
	client := &fakeClient{response: func([]llm.Message) (string, error) {
		return skimPayload("any", []types.LabeledCandidate{{Label: "nilai tunai", Confidence: 0.9}}, nil), nil
	}}
	p, dir := newTestPlanner(t, client)
	writeCorpus(t, dir,
		[]types.Segment{
			{SegmentID: "s1", Hash: "h1", Text: "Nilai tunai adalah.", HeaderPath: []string{"Definisi"}},
			{SegmentID: "s2", Hash: "h2", Text: "Nilai tunai dihitung."},
		},
		[]types.Shard{{ShardID: "sh1", Title: "Definisi", SegmentIDs: []string{"s1", "s2"}}},
	)

	plan, err := p.Run(context.Background(), Options{DocID: "doc1", TokenBudget: 1_000_000, GlobalCap: 10})
	require.NoError(t, err)
	require.NotNil(t, plan)
	require.Len(t, plan.TermsToDefine, 1)
	assert.Equal(t, "nilai tunai", plan.TermsToDefine[0].Label)
	// Both segments contributed provenance to the clustered entry.
	assert.Len(t, plan.TermsToDefine[0].Provenances, 2)

	var onDisk types.Plan
	require.NoError(t, dir.ReadJSON(artifacts.FilePlan, &onDisk))
	assert.Equal(t, plan.TermsToDefine[0].Label, onDisk.TermsToDefine[0].Label)

	var progress types.PhaseProgress
	require.NoError(t, dir.ReadJSON(artifacts.FilePhase1Progress, &progress))
	assert.Equal(t, types.PhaseDone, progress.Status)
	assert.Equal(t, 2, progress.Processed)
}
