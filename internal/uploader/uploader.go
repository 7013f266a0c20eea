package uploader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/adiwibowo/perkaya/internal/embedding"
	"github.com/adiwibowo/perkaya/internal/metrics"
	"github.com/adiwibowo/perkaya/internal/vectorstore"
)

// Config bounds one upload run.
type Config struct {
	ChunkSize            int
	ChunkOverlap         int
	EmbedBatchSize       int
	UploadBatchSize      int
	UploadThreads        int
	MaxConcurrentBatches int
}

func (c *Config) defaults() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 1000
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = 0
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = 64
	}
	if c.UploadBatchSize <= 0 {
		c.UploadBatchSize = 100
	}
	if c.UploadThreads <= 0 {
		c.UploadThreads = 4
	}
	if c.MaxConcurrentBatches <= 0 {
		c.MaxConcurrentBatches = 4
	}
}

// Result summarizes one upload run.
type Result struct {
	Chunks    int
	Succeeded int
	Failed    int
}

// Uploader vectorizes documents into the index.
type Uploader struct {
	Embedder embedding.Embedder
	Index    vectorstore.Index
	Registry *metrics.Registry
	Config   Config
}

// Upload chunks text, embeds the chunks batch-wise and upserts the vectors
// into the namespace. Prior vectors for the same document are deleted first
// so re-uploads never leave stale chunks behind. Failed upsert batches are
// counted, not fatal; the caller may retry.
func (u *Uploader) Upload(ctx context.Context, docID, namespace, text string, baseMeta map[string]any) (Result, error) {
	u.Config.defaults()

	chunks := Split(text, u.Config.ChunkSize, u.Config.ChunkOverlap)
	res := Result{Chunks: len(chunks)}
	if len(chunks) == 0 {
		return res, nil
	}

	if err := u.Index.Delete(ctx, vectorstore.DeleteRequest{
		Filter:    map[string]any{"doc_id": docID},
		Namespace: namespace,
	}); err != nil {
		// Stale vectors are overwritten by id anyway; only orphans from a
		// previous chunking survive a failed delete.
		u.logError(err)
	}

	vectors, err := u.assemble(ctx, docID, chunks, baseMeta)
	if err != nil {
		return res, err
	}

	succeeded, failed := u.upsertAll(ctx, vectors, namespace)
	res.Succeeded = succeeded
	res.Failed = failed
	if u.Registry != nil {
		u.Registry.Emit("upload", "progress", map[string]float64{
			"processed": float64(succeeded),
			"total":     float64(len(vectors)),
		}, map[string]string{"namespace": namespace})
	}
	return res, nil
}

// assemble embeds every chunk and builds the vector records.
func (u *Uploader) assemble(ctx context.Context, docID string, chunks []string, baseMeta map[string]any) ([]vectorstore.Vector, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339)
	vectors := make([]vectorstore.Vector, 0, len(chunks))

	for start := 0; start < len(chunks); start += u.Config.EmbedBatchSize {
		end := start + u.Config.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		embedded, err := u.Embedder.Embed(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("embedding chunks %d-%d: %w", start, end-1, err)
		}
		for i, values := range embedded {
			idx := start + i
			meta := make(map[string]any, len(baseMeta)+5)
			for k, v := range baseMeta {
				meta[k] = v
			}
			meta["doc_id"] = docID
			meta["chunk_index"] = idx
			meta["total_chunks"] = len(chunks)
			meta["upload_timestamp"] = timestamp
			meta["text"] = chunks[idx]
			meta["char_count"] = len(chunks[idx])
			vectors = append(vectors, vectorstore.Vector{
				ID:       fmt.Sprintf("%s_chunk_%d", docID, idx),
				Values:   values,
				Metadata: meta,
			})
		}
	}
	return vectors, nil
}

// upsertAll partitions vectors into upload batches and pushes them through a
// fixed worker pool, with in-flight batches additionally capped by a
// semaphore.
func (u *Uploader) upsertAll(ctx context.Context, vectors []vectorstore.Vector, namespace string) (succeeded, failed int) {
	var batches [][]vectorstore.Vector
	for start := 0; start < len(vectors); start += u.Config.UploadBatchSize {
		end := start + u.Config.UploadBatchSize
		if end > len(vectors) {
			end = len(vectors)
		}
		batches = append(batches, vectors[start:end])
	}

	jobs := make(chan []vectorstore.Vector)
	sem := semaphore.NewWeighted(int64(u.Config.MaxConcurrentBatches))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for w := 0; w < u.Config.UploadThreads; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range jobs {
				if err := sem.Acquire(ctx, 1); err != nil {
					mu.Lock()
					failed += len(batch)
					mu.Unlock()
					continue
				}
				count, err := u.Index.Upsert(ctx, batch, namespace)
				sem.Release(1)
				mu.Lock()
				if err != nil {
					failed += len(batch)
					mu.Unlock()
					u.logError(err)
					continue
				}
				succeeded += count
				mu.Unlock()
			}
		}()
	}
	for _, b := range batches {
		jobs <- b
	}
	close(jobs)
	wg.Wait()
	return succeeded, failed
}

func (u *Uploader) logError(err error) {
	if u.Registry != nil {
		u.Registry.LogError("upload", err)
	}
}
