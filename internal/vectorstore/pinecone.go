package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RESTIndex talks to a Pinecone-compatible index over its data-plane REST
// API.
type RESTIndex struct {
	host   string
	apiKey string
	http   *http.Client
}

// NewRESTIndex builds a client against an index host like
// "https://my-index-abc123.svc.us-east-1.pinecone.io".
func NewRESTIndex(host, apiKey string) (*RESTIndex, error) {
	if host == "" {
		return nil, fmt.Errorf("vectorstore: index host is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("vectorstore: API key is required")
	}
	return &RESTIndex{
		host:   strings.TrimRight(host, "/"),
		apiKey: apiKey,
		http:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (x *RESTIndex) do(ctx context.Context, method, path string, body, out any) error {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", path, err)
		}
		buf = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, x.host+path, buf)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", path, err)
	}
	req.Header.Set("Api-Key", x.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := x.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// Upsert writes vectors into the namespace and returns the upserted count.
// Upserts are idempotent by vector id.
func (x *RESTIndex) Upsert(ctx context.Context, vectors []Vector, namespace string) (int, error) {
	if len(vectors) == 0 {
		return 0, nil
	}
	body := map[string]any{"vectors": vectors, "namespace": namespace}
	var out struct {
		UpsertedCount int `json:"upsertedCount"`
	}
	if err := x.do(ctx, http.MethodPost, "/vectors/upsert", body, &out); err != nil {
		return 0, err
	}
	return out.UpsertedCount, nil
}

// Query returns the top-k nearest neighbours in the namespace.
func (x *RESTIndex) Query(ctx context.Context, req QueryRequest) ([]Match, error) {
	body := map[string]any{
		"vector":          req.Vector,
		"topK":            req.TopK,
		"namespace":       req.Namespace,
		"includeMetadata": req.IncludeMetadata,
	}
	if len(req.Filter) > 0 {
		body["filter"] = req.Filter
	}
	var out struct {
		Matches []Match `json:"matches"`
	}
	if err := x.do(ctx, http.MethodPost, "/query", body, &out); err != nil {
		return nil, err
	}
	return out.Matches, nil
}

// Fetch retrieves vectors by id.
func (x *RESTIndex) Fetch(ctx context.Context, ids []string, namespace string) (map[string]Vector, error) {
	body := map[string]any{"ids": ids, "namespace": namespace}
	var out struct {
		Vectors map[string]Vector `json:"vectors"`
	}
	if err := x.do(ctx, http.MethodPost, "/vectors/fetch", body, &out); err != nil {
		return nil, err
	}
	return out.Vectors, nil
}

// Delete removes vectors by id, metadata filter or wholesale per namespace.
func (x *RESTIndex) Delete(ctx context.Context, req DeleteRequest) error {
	body := map[string]any{"namespace": req.Namespace}
	switch {
	case req.DeleteAll:
		body["deleteAll"] = true
	case len(req.IDs) > 0:
		body["ids"] = req.IDs
	case len(req.Filter) > 0:
		body["filter"] = req.Filter
	default:
		return fmt.Errorf("vectorstore: delete request selects nothing")
	}
	return x.do(ctx, http.MethodPost, "/vectors/delete", body, nil)
}

// ListNamespaces enumerates the namespaces present in the index.
func (x *RESTIndex) ListNamespaces(ctx context.Context) ([]string, error) {
	var out struct {
		Namespaces map[string]struct {
			VectorCount int `json:"vectorCount"`
		} `json:"namespaces"`
	}
	if err := x.do(ctx, http.MethodPost, "/describe_index_stats", map[string]any{}, &out); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(out.Namespaces))
	for name := range out.Namespaces {
		names = append(names, name)
	}
	return names, nil
}
