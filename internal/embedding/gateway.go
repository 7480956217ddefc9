// Package embedding wraps the embedding-model service: it turns text into
// fixed-length vectors, splits long text into overlapping chunks, and
// provides cosine similarity over the resulting vectors.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/firebase/genkit/go/ai"
	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"
)

// ErrServiceUnavailable indicates the embedding service is unreachable or
// returned an unusable result. The gateway performs no retry of its own;
// retry policy belongs to the service-client layer below it.
var ErrServiceUnavailable = errors.New("embedding service unavailable")

// Chunk is one embedded slice of a longer document. Content and Embedding
// are index-aligned with the chunk order produced by ChunkText.
type Chunk struct {
	Index     int
	Content   string
	Embedding []float32
}

// Config contains all required parameters for the Gateway.
type Config struct {
	Embedder ai.Embedder
	Logger   *slog.Logger

	// Dimension requests a fixed output dimensionality from the provider
	// (0 = provider default).
	Dimension int32

	// ChunkOptions control Chunk and EmbedChunks (zero-value uses defaults).
	ChunkOptions ChunkOptions
}

// Gateway provides embedding operations over a configured embedder.
//
// Gateway is safe for concurrent use by multiple goroutines.
type Gateway struct {
	embedder ai.Embedder
	dim      int32
	chunkOpt ChunkOptions
	logger   *slog.Logger
}

// New creates a Gateway.
func New(cfg Config) (*Gateway, error) {
	if cfg.Embedder == nil {
		return nil, errors.New("embedder is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		embedder: cfg.Embedder,
		dim:      cfg.Dimension,
		chunkOpt: cfg.ChunkOptions.withDefaults(),
		logger:   logger,
	}, nil
}

// Embed generates a vector embedding for the given text.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	req := &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(text, nil)},
	}
	if g.dim > 0 {
		dim := g.dim
		req.Options = &genai.EmbedContentConfig{OutputDimensionality: &dim}
	}

	resp, err := g.embedder.Embed(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding response", ErrServiceUnavailable)
	}
	return resp.Embeddings[0].Embedding, nil
}

// Chunk splits text into overlapping chunks using the configured options.
// Non-empty input always produces at least one chunk; no sentence is dropped.
func (g *Gateway) Chunk(text string) []string {
	return ChunkText(text, g.chunkOpt)
}

// EmbedChunks chunks text and embeds every chunk.
//
// Chunks are embedded concurrently but the returned slice preserves chunk
// order, so out[i].Content corresponds to out[i].Embedding. A failure on any
// chunk fails the whole call.
func (g *Gateway) EmbedChunks(ctx context.Context, text string) ([]Chunk, error) {
	contents := g.Chunk(text)
	if len(contents) == 0 {
		return nil, nil
	}

	chunks := make([]Chunk, len(contents))
	eg, ctx := errgroup.WithContext(ctx)
	for i, content := range contents {
		eg.Go(func() error {
			vec, err := g.Embed(ctx, content)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			chunks[i] = Chunk{Index: i, Content: content, Embedding: vec}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	g.logger.Debug("embedded chunks", "count", len(chunks))
	return chunks, nil
}

// Similarity computes cosine similarity between two vectors, in [-1,1].
// Mismatched lengths and zero vectors yield 0.
func Similarity(a, b []float32) float64 {
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
