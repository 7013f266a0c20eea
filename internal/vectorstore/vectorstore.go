// Package vectorstore defines the vector index operations the uploader and
// retrieval paths depend on, plus an HTTP client for Pinecone-compatible
// serverless indexes. Namespaces isolate tenants within one index.
package vectorstore

import "context"

// Vector is one point in the index.
type Vector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Match is one query result.
type Match struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Values   []float32      `json:"values,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// QueryRequest selects nearest neighbours within a namespace. Filter is an
// equality match over metadata fields; nil means unfiltered.
type QueryRequest struct {
	Vector          []float32
	TopK            int
	Namespace       string
	Filter          map[string]any
	IncludeMetadata bool
}

// DeleteRequest removes vectors. Exactly one of IDs, Filter or DeleteAll
// should be set.
type DeleteRequest struct {
	IDs       []string
	Filter    map[string]any
	DeleteAll bool
	Namespace string
}

// Index is the vector store surface used by the pipeline.
type Index interface {
	Upsert(ctx context.Context, vectors []Vector, namespace string) (int, error)
	Query(ctx context.Context, req QueryRequest) ([]Match, error)
	Fetch(ctx context.Context, ids []string, namespace string) (map[string]Vector, error)
	Delete(ctx context.Context, req DeleteRequest) error
	ListNamespaces(ctx context.Context) ([]string, error)
}
