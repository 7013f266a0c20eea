package uploader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adiwibowo/perkaya/internal/vectorstore"
)

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	chunks := Split("Nilai tunai adalah nilai tebus polis.", 1000, 100)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Nilai tunai adalah nilai tebus polis.", chunks[0])
}

func TestSplit_RespectsChunkSize(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&sb, "Paragraf ke-%d tentang manfaat polis.\n\n", i)
	}
	chunks := Split(sb.String(), 200, 0)
	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		assert.LessOrEqual(t, len(c), 200, "chunk %d", i)
	}
	// Nothing is lost across the cut points.
	assert.Equal(t, sb.String(), strings.Join(chunks, ""))
}

func TestSplit_OverlapCarriesTail(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&sb, "Kalimat nomor %d. ", i)
	}
	chunks := Split(sb.String(), 120, 40)
	require.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		tail := chunks[i-1][len(chunks[i-1])-40:]
		assert.True(t, strings.HasPrefix(chunks[i], tail), "chunk %d missing overlap", i)
	}
}

func TestSplit_NoSeparatorFallsBackToBytes(t *testing.T) {
	text := strings.Repeat("a", 2500)
	chunks := Split(text, 1000, 0)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 1000)
	assert.Len(t, chunks[2], 500)
}

func TestSplit_DropsBlankChunks(t *testing.T) {
	assert.Empty(t, Split("   \n\n  \n", 10, 0))
}

func TestMerge_FlushedChunksCarryRealContent(t *testing.T) {
	// Even when every piece fills a whole chunk, a flushed chunk is never
	// just the carried overlap: each one holds at least one real piece
	// beyond the previous chunk's tail.
	pieces := []string{
		strings.Repeat("a", 10),
		strings.Repeat("b", 10),
		strings.Repeat("c", 10),
	}
	chunks := merge(pieces, 10, 4)
	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		assert.Greater(t, len(c), 4, "chunk %d is overlap-sized only", i)
		if i > 0 {
			prev := chunks[i-1]
			assert.NotEqual(t, prev[len(prev)-4:], c)
		}
	}
	assert.Equal(t, "aaaaaaaaaa", chunks[0])
}

// fakeEmbedder returns fixed-dimension vectors and records batch sizes.
type fakeEmbedder struct {
	mu      sync.Mutex
	batches []int
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.batches = append(f.batches, len(texts))
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

func (f *fakeEmbedder) Close() error { return nil }

// fakeIndex records upserts and deletes in memory.
type fakeIndex struct {
	mu        sync.Mutex
	upserted  map[string]vectorstore.Vector
	deletes   []vectorstore.DeleteRequest
	upsertErr error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{upserted: make(map[string]vectorstore.Vector)}
}

func (f *fakeIndex) Upsert(_ context.Context, vectors []vectorstore.Vector, _ string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	for _, v := range vectors {
		f.upserted[v.ID] = v
	}
	return len(vectors), nil
}

func (f *fakeIndex) Query(context.Context, vectorstore.QueryRequest) ([]vectorstore.Match, error) {
	return nil, nil
}

func (f *fakeIndex) Fetch(context.Context, []string, string) (map[string]vectorstore.Vector, error) {
	return nil, nil
}

func (f *fakeIndex) Delete(_ context.Context, req vectorstore.DeleteRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, req)
	return nil
}

func (f *fakeIndex) ListNamespaces(context.Context) ([]string, error) {
	return []string{"default"}, nil
}

func TestUpload_VectorIDsAndMetadata(t *testing.T) {
	embedder := &fakeEmbedder{}
	index := newFakeIndex()
	u := &Uploader{Embedder: embedder, Index: index, Config: Config{ChunkSize: 100}}

	var sb strings.Builder
	for i := 0; i < 8; i++ {
		fmt.Fprintf(&sb, "Bagian %d dari dokumen polis.\n\n", i)
	}
	res, err := u.Upload(context.Background(), "doc1", "ns", sb.String(), map[string]any{"source": "perkaya"})
	require.NoError(t, err)
	assert.Equal(t, res.Chunks, res.Succeeded)
	assert.Zero(t, res.Failed)

	require.Len(t, index.upserted, res.Chunks)
	for i := 0; i < res.Chunks; i++ {
		id := fmt.Sprintf("doc1_chunk_%d", i)
		v, ok := index.upserted[id]
		require.True(t, ok, "missing %s", id)
		assert.Equal(t, "doc1", v.Metadata["doc_id"])
		assert.Equal(t, i, v.Metadata["chunk_index"])
		assert.Equal(t, res.Chunks, v.Metadata["total_chunks"])
		assert.Equal(t, "perkaya", v.Metadata["source"])
		assert.Equal(t, len(v.Metadata["text"].(string)), v.Metadata["char_count"])
		assert.NotEmpty(t, v.Metadata["upload_timestamp"])
	}
}

func TestUpload_DeletesPriorVectorsFirst(t *testing.T) {
	index := newFakeIndex()
	u := &Uploader{Embedder: &fakeEmbedder{}, Index: index, Config: Config{}}

	_, err := u.Upload(context.Background(), "doc1", "ns", "Teks pendek.", nil)
	require.NoError(t, err)

	require.Len(t, index.deletes, 1)
	assert.Equal(t, map[string]any{"doc_id": "doc1"}, index.deletes[0].Filter)
	assert.Equal(t, "ns", index.deletes[0].Namespace)
}

func TestUpload_EmbedBatchesAreBounded(t *testing.T) {
	embedder := &fakeEmbedder{}
	u := &Uploader{Embedder: embedder, Index: newFakeIndex(), Config: Config{ChunkSize: 50, EmbedBatchSize: 3}}

	var sb strings.Builder
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&sb, "Kalimat panjang nomor %d untuk dipecah.\n\n", i)
	}
	res, err := u.Upload(context.Background(), "doc1", "ns", sb.String(), nil)
	require.NoError(t, err)
	require.Greater(t, res.Chunks, 3)

	total := 0
	for _, n := range embedder.batches {
		assert.LessOrEqual(t, n, 3)
		total += n
	}
	assert.Equal(t, res.Chunks, total)
}

func TestUpload_FailedBatchCountedNotFatal(t *testing.T) {
	index := newFakeIndex()
	index.upsertErr = errors.New("upstream 503")
	u := &Uploader{Embedder: &fakeEmbedder{}, Index: index, Config: Config{}}

	res, err := u.Upload(context.Background(), "doc1", "ns", "Teks pendek.", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Chunks)
	assert.Zero(t, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
}

func TestUpload_EmbedErrorIsFatal(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("quota exceeded")}
	u := &Uploader{Embedder: embedder, Index: newFakeIndex(), Config: Config{}}

	_, err := u.Upload(context.Background(), "doc1", "ns", "Teks pendek.", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestUpload_EmptyTextNoCalls(t *testing.T) {
	index := newFakeIndex()
	u := &Uploader{Embedder: &fakeEmbedder{}, Index: index, Config: Config{}}

	res, err := u.Upload(context.Background(), "doc1", "ns", "", nil)
	require.NoError(t, err)
	assert.Zero(t, res.Chunks)
	assert.Empty(t, index.deletes)
}
