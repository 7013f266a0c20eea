package vectorstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeBackend(t *testing.T, handler http.HandlerFunc) *RESTIndex {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	index, err := NewRESTIndex(srv.URL, "test-key")
	require.NoError(t, err)
	return index
}

func TestNewRESTIndex_RequiresHostAndKey(t *testing.T) {
	_, err := NewRESTIndex("", "key")
	assert.Error(t, err)
	_, err = NewRESTIndex("https://idx.example.com", "")
	assert.Error(t, err)
}

func TestRESTIndex_Upsert(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any
	index := newFakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("Api-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]int{"upsertedCount": 2})
	})

	count, err := index.Upsert(context.Background(), []Vector{
		{ID: "doc1_chunk_0", Values: []float32{0.1, 0.2}},
		{ID: "doc1_chunk_1", Values: []float32{0.3, 0.4}},
	}, "ns")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, "/vectors/upsert", gotPath)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "ns", gotBody["namespace"])
	assert.Len(t, gotBody["vectors"], 2)
}

func TestRESTIndex_UpsertEmptyNoCall(t *testing.T) {
	called := false
	index := newFakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	count, err := index.Upsert(context.Background(), nil, "ns")
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.False(t, called)
}

func TestRESTIndex_Query(t *testing.T) {
	var gotBody map[string]any
	index := newFakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{
			"matches": []map[string]any{{"id": "doc1_chunk_0", "score": 0.93}},
		})
	})

	matches, err := index.Query(context.Background(), QueryRequest{
		Vector:          []float32{0.1},
		TopK:            5,
		Namespace:       "ns",
		Filter:          map[string]any{"doc_id": "doc1"},
		IncludeMetadata: true,
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "doc1_chunk_0", matches[0].ID)
	assert.InDelta(t, 0.93, matches[0].Score, 1e-9)
	assert.Equal(t, float64(5), gotBody["topK"])
	assert.Equal(t, map[string]any{"doc_id": "doc1"}, gotBody["filter"])
}

func TestRESTIndex_DeleteSelectorRequired(t *testing.T) {
	index := newFakeBackend(t, func(w http.ResponseWriter, r *http.Request) {})
	err := index.Delete(context.Background(), DeleteRequest{Namespace: "ns"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "selects nothing")
}

func TestRESTIndex_DeleteByFilter(t *testing.T) {
	var gotBody map[string]any
	index := newFakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	})
	err := index.Delete(context.Background(), DeleteRequest{
		Filter:    map[string]any{"doc_id": "doc1"},
		Namespace: "ns",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"doc_id": "doc1"}, gotBody["filter"])
	assert.NotContains(t, gotBody, "deleteAll")
}

func TestRESTIndex_ListNamespaces(t *testing.T) {
	index := newFakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/describe_index_stats", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"namespaces": map[string]any{
				"default":  map[string]int{"vectorCount": 10},
				"produk-a": map[string]int{"vectorCount": 3},
			},
		})
	})
	names, err := index.ListNamespaces(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"default", "produk-a"}, names)
}

func TestRESTIndex_ErrorStatusSurfacesBody(t *testing.T) {
	index := newFakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exhausted", http.StatusTooManyRequests)
	})
	_, err := index.Upsert(context.Background(), []Vector{{ID: "a"}}, "ns")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "quota exhausted")
}
