package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
)

// MockEmbedder is a deterministic ai.Embedder for tests.
//
// Texts registered with SetVector get exactly that vector; everything else
// gets a unit vector derived from a SHA-256 hash of the text, so equal
// inputs always embed identically and distinct inputs rarely collide.
//
// Thread-safe for concurrent use.
type MockEmbedder struct {
	mu      sync.RWMutex
	dim     int
	vectors map[string][]float32
	err     error
}

// NewMockEmbedder creates an embedder producing dim-length vectors.
func NewMockEmbedder(dim int) *MockEmbedder {
	return &MockEmbedder{
		dim:     dim,
		vectors: make(map[string][]float32),
	}
}

// SetVector pins the embedding for an exact input text.
func (m *MockEmbedder) SetVector(text string, vec []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[text] = vec
}

// FailWith makes every subsequent call fail with err (nil restores normal
// operation).
func (m *MockEmbedder) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Name implements ai.Embedder.
func (m *MockEmbedder) Name() string { return "mock-embedder" }

// Register implements ai.Embedder.
func (m *MockEmbedder) Register(_ api.Registry) {}

// Embed implements ai.Embedder.
func (m *MockEmbedder) Embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.err != nil {
		return nil, m.err
	}

	embeddings := make([]*ai.Embedding, len(req.Input))
	for i, doc := range req.Input {
		text := ""
		if len(doc.Content) > 0 {
			text = doc.Content[0].Text
		}
		vec, ok := m.vectors[text]
		if !ok {
			vec = hashVector(text, m.dim)
		}
		embeddings[i] = &ai.Embedding{Embedding: vec}
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

// hashVector derives a deterministic unit vector from text.
func hashVector(text string, dim int) []float32 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, dim)
	var norm float64
	for i := range vec {
		// Cycle through the digest four bytes at a time.
		off := (i * 4) % (len(sum) - 3)
		v := float32(int32(binary.BigEndian.Uint32(sum[off:off+4]))) / float32(math.MaxInt32)
		vec[i] = v
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
