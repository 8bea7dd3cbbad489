// Package retrieval stores chunked adventure text with embeddings and
// answers nearest-chunk queries for the narration context window.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
)

// ErrUnavailable wraps embedding-function failures. Callers degrade to
// history-only narration context rather than failing the command.
var ErrUnavailable = errors.New("retrieval unavailable")

// Chunk is a bounded span of ingested adventure text with its
// embedding. Immutable once ingested.
type Chunk struct {
	SourceFile string    `json:"source_file"`
	Offset     int       `json:"offset"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"embedding"`
}

// Embedder computes a fixed-length vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ChunkStore persists chunks. SaveChunks replaces all chunks for a
// source file in one step.
type ChunkStore interface {
	SaveChunks(ctx context.Context, sourceFile string, chunks []Chunk) error
	LoadChunks(ctx context.Context) ([]Chunk, error)
}

// Index holds ingested chunks in memory, mirrored to a ChunkStore.
// In-memory state is the query authority; the store exists so an index
// survives restarts via Warm.
type Index struct {
	embedder  Embedder
	store     ChunkStore
	logger    *slog.Logger
	chunkSize int
	overlap   int

	mu     sync.RWMutex
	chunks map[string][]Chunk // sourceFile -> chunks in document order
}

// New creates an index with default chunking parameters.
func New(embedder Embedder, store ChunkStore, logger *slog.Logger) *Index {
	return &Index{
		embedder:  embedder,
		store:     store,
		logger:    logger,
		chunkSize: DefaultChunkSize,
		overlap:   DefaultOverlap,
		chunks:    make(map[string][]Chunk),
	}
}

// Warm loads persisted chunks into memory. Call once at startup.
func (ix *Index) Warm(ctx context.Context) error {
	if ix.store == nil {
		return nil
	}
	persisted, err := ix.store.LoadChunks(ctx)
	if err != nil {
		return fmt.Errorf("loading persisted chunks: %w", err)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.chunks = make(map[string][]Chunk)
	for _, c := range persisted {
		ix.chunks[c.SourceFile] = append(ix.chunks[c.SourceFile], c)
	}
	for file := range ix.chunks {
		sort.Slice(ix.chunks[file], func(a, b int) bool {
			return ix.chunks[file][a].Offset < ix.chunks[file][b].Offset
		})
	}
	ix.logger.Info("Retrieval index warmed",
		"files", len(ix.chunks), "chunks", len(persisted))
	return nil
}

// Ingest chunks and embeds the extracted plain text of one file.
// Re-ingesting a file atomically replaces its prior chunks; old chunks
// never linger in query results. Returns the chunk count.
func (ix *Index) Ingest(ctx context.Context, sourceFile, text string) (int, error) {
	spans := splitChunks(text, ix.chunkSize, ix.overlap)

	fresh := make([]Chunk, 0, len(spans))
	for _, span := range spans {
		embedding, err := ix.embedder.Embed(ctx, span.Text)
		if err != nil {
			return 0, fmt.Errorf("%w: embedding chunk at offset %d of %s: %v",
				ErrUnavailable, span.Offset, sourceFile, err)
		}
		fresh = append(fresh, Chunk{
			SourceFile: sourceFile,
			Offset:     span.Offset,
			Text:       span.Text,
			Embedding:  embedding,
		})
	}

	ix.mu.Lock()
	ix.chunks[sourceFile] = fresh
	ix.mu.Unlock()

	if ix.store != nil {
		if err := ix.store.SaveChunks(ctx, sourceFile, fresh); err != nil {
			// In-memory index stays authoritative; persistence catches
			// up on the next ingest.
			ix.logger.Error("Failed to persist chunks",
				"source_file", sourceFile, "error", err)
		}
	}

	ix.logger.Info("Ingested adventure text",
		"source_file", sourceFile, "chunks", len(fresh))
	return len(fresh), nil
}

// scored pairs a chunk with its query similarity.
type scored struct {
	chunk Chunk
	sim   float64
}

// Query embeds the input and returns the top-k chunks by cosine
// similarity across all ingested files. Ties go to the earlier offset,
// then the lexically smaller file name.
func (ix *Index) Query(ctx context.Context, text string, k int) ([]Chunk, error) {
	if k <= 0 {
		return nil, nil
	}

	queryVec, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %v", ErrUnavailable, err)
	}

	ix.mu.RLock()
	candidates := make([]scored, 0, 64)
	for _, fileChunks := range ix.chunks {
		for _, c := range fileChunks {
			candidates = append(candidates, scored{chunk: c, sim: cosine(queryVec, c.Embedding)})
		}
	}
	ix.mu.RUnlock()

	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].sim != candidates[b].sim {
			return candidates[a].sim > candidates[b].sim
		}
		if candidates[a].chunk.Offset != candidates[b].chunk.Offset {
			return candidates[a].chunk.Offset < candidates[b].chunk.Offset
		}
		return candidates[a].chunk.SourceFile < candidates[b].chunk.SourceFile
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	out := make([]Chunk, 0, k)
	for _, s := range candidates[:k] {
		out = append(out, s.chunk)
	}
	return out, nil
}

// Files returns the ingested source file names, sorted.
func (ix *Index) Files() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	files := make([]string, 0, len(ix.chunks))
	for f := range ix.chunks {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// cosine computes cosine similarity; mismatched or zero vectors score 0.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
