package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adiwibowo/perkaya/internal/artifacts"
	"github.com/adiwibowo/perkaya/internal/breaker"
	"github.com/adiwibowo/perkaya/internal/cache"
	"github.com/adiwibowo/perkaya/internal/llm"
	"github.com/adiwibowo/perkaya/internal/metrics"
	"github.com/adiwibowo/perkaya/internal/ratelimit"
	"github.com/adiwibowo/perkaya/internal/tokenbudget"
	"github.com/adiwibowo/perkaya/internal/types"
)

// fakeClient returns canned responses and counts calls.
type fakeClient struct {
	calls    atomic.Int64
	response func(msgs []llm.Message) (string, error)
}

func (f *fakeClient) ChatJSON(_ context.Context, msgs []llm.Message, _ llm.ModelTier, _ int) (string, error) {
	f.calls.Add(1)
	return f.response(msgs)
}

func (f *fakeClient) Close() error { return nil }

func skimPayload(hash string, terms, concepts []types.LabeledCandidate) string {
	if terms == nil {
		terms = []types.LabeledCandidate{}
	}
	if concepts == nil {
		concepts = []types.LabeledCandidate{}
	}
	res := types.SkimResult{SegmentHash: hash, TermsToDefine: terms, ConceptsToSimplify: concepts}
	data, _ := json.Marshal(res)
	return string(data)
}

func TestParseSkimResponse_CapsAtTwo(t *testing.T) {
	raw := skimPayload("h1",
		[]types.LabeledCandidate{
			{Label: "premi", Confidence: 0.9},
			{Label: "polis", Confidence: 0.8},
			{Label: "klaim", Confidence: 0.7},
		},
		nil,
	)
	res, err := ParseSkimResponse(raw, "h1")
	require.NoError(t, err)

	// Exactly the top two survive, order preserved.
	require.Len(t, res.TermsToDefine, 2)
	assert.Equal(t, "premi", res.TermsToDefine[0].Label)
	assert.Equal(t, "polis", res.TermsToDefine[1].Label)
	assert.Empty(t, res.ConceptsToSimplify)
}

func TestParseSkimResponse_PinsSegmentHash(t *testing.T) {
	raw := skimPayload("model-made-this-up", nil, nil)
	res, err := ParseSkimResponse(raw, "h_real")
	require.NoError(t, err)
	assert.Equal(t, "h_real", res.SegmentHash)
}

func TestParseSkimResponse_DropsEmptyLabels(t *testing.T) {
	raw := skimPayload("h1", []types.LabeledCandidate{
		{Label: "   ", Confidence: 0.9},
		{Label: " nilai tunai ", Confidence: 0.8},
	}, nil)
	res, err := ParseSkimResponse(raw, "h1")
	require.NoError(t, err)
	require.Len(t, res.TermsToDefine, 1)
	assert.Equal(t, "nilai tunai", res.TermsToDefine[0].Label)
}

func TestParseSkimResponse_SchemaViolation(t *testing.T) {
	_, err := ParseSkimResponse(`{"terms_to_define": "not an array"}`, "h1")
	assert.Error(t, err)
}

func newTestSkimmer(t *testing.T, client llm.Client, budget int) (*Skimmer, *artifacts.Dir) {
	t.Helper()
	dir, err := artifacts.Open(t.TempDir(), "doc1")
	require.NoError(t, err)
	store, err := cache.Open(t.TempDir())
	require.NoError(t, err)
	return &Skimmer{
		Client:   client,
		Budget:   tokenbudget.New(budget),
		Bucket:   ratelimit.New(1000, 1000),
		Breaker:  breaker.New(),
		Cache:    store,
		Registry: metrics.NewRegistry(dir),
		Dir:      dir,
		Config:   SkimConfig{Concurrency: 2, Timeout: time.Second, Retries: 1},
	}, dir
}

func candidatesFor(segs []types.Segment) []Candidate {
	cands := make([]Candidate, len(segs))
	for i := range segs {
		cands[i] = Candidate{Segment: &segs[i], ShardID: "ROOT", PreScore: 1}
	}
	return cands
}

func TestSkimmer_Run_CollectsAndAppends(t *testing.T) {
	client := &fakeClient{response: func(msgs []llm.Message) (string, error) {
		// Echo the hash from the user prompt via a fixed payload per call.
		return skimPayload("ignored", []types.LabeledCandidate{{Label: "premi", Confidence: 0.9}}, nil), nil
	}}
	skimmer, dir := newTestSkimmer(t, client, 1_000_000)

	segs := []types.Segment{
		{SegmentID: "s1", Hash: "h1", Text: "Premi adalah pembayaran berkala."},
		{SegmentID: "s2", Hash: "h2", Text: "Polis adalah kontrak asuransi."},
	}
	results, stats, err := skimmer.Run(context.Background(), "doc1", candidatesFor(segs), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, int64(2), client.calls.Load())
	require.Len(t, results, 2)
	// Hashes are pinned per candidate regardless of the model echo.
	hashes := map[string]bool{results[0].SegmentHash: true, results[1].SegmentHash: true}
	assert.True(t, hashes["h1"] && hashes["h2"])

	// Each result also landed in the JSONL artifact.
	var lines int
	err = dir.ReadJSONL(artifacts.FileSkimResults, func([]byte) error {
		lines++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, lines)

	// Call events carry token counts and a dollar cost, so the phase summary
	// aggregates a non-zero spend.
	summary := skimmer.Registry.Summary()["skim"]
	assert.Equal(t, 2, summary.Calls)
	assert.Positive(t, summary.TokenIn)
	assert.Positive(t, summary.CostUSD)
}

func TestSkimmer_Run_CacheHitSkipsCall(t *testing.T) {
	client := &fakeClient{response: func([]llm.Message) (string, error) {
		return skimPayload("x", nil, nil), nil
	}}
	skimmer, _ := newTestSkimmer(t, client, 1_000_000)

	segs := []types.Segment{{SegmentID: "s1", Hash: "h1", Text: "Teks."}}
	_, _, err := skimmer.Run(context.Background(), "doc1", candidatesFor(segs), nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), client.calls.Load())

	// Second run over the same segment resolves from cache.
	_, stats, err := skimmer.Run(context.Background(), "doc1", candidatesFor(segs), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), client.calls.Load())
	assert.Equal(t, 1, stats.CacheHits)
}

func TestSkimmer_Run_CancelStopsLaunch(t *testing.T) {
	client := &fakeClient{response: func([]llm.Message) (string, error) {
		return skimPayload("x", nil, nil), nil
	}}
	skimmer, _ := newTestSkimmer(t, client, 1_000_000)

	metrics.SetCancel("doc-cancel")
	defer metrics.ClearCancel("doc-cancel")

	segs := []types.Segment{{SegmentID: "s1", Hash: "h1", Text: "Teks."}}
	_, stats, err := skimmer.Run(context.Background(), "doc-cancel", candidatesFor(segs), nil)
	require.NoError(t, err)
	assert.True(t, stats.Cancelled)
	assert.Equal(t, int64(0), client.calls.Load())
}

func TestSkimmer_Run_InvalidJSONSkips(t *testing.T) {
	client := &fakeClient{response: func([]llm.Message) (string, error) {
		return "not json at all", nil
	}}
	skimmer, _ := newTestSkimmer(t, client, 1_000_000)

	segs := []types.Segment{{SegmentID: "s1", Hash: "h1", Text: "Teks."}}
	results, stats, err := skimmer.Run(context.Background(), "doc1", candidatesFor(segs), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, stats.Processed)
	assert.Equal(t, 1, stats.Skipped)
}

func TestSkimmer_Run_TransportErrorSkips(t *testing.T) {
	client := &fakeClient{response: func([]llm.Message) (string, error) {
		return "", fmt.Errorf("transport down")
	}}
	skimmer, _ := newTestSkimmer(t, client, 1_000_000)

	segs := []types.Segment{{SegmentID: "s1", Hash: "h1", Text: "Teks."}}
	results, stats, err := skimmer.Run(context.Background(), "doc1", candidatesFor(segs), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 1, stats.Skipped)
}
