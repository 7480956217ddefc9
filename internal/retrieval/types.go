// Package retrieval ranks knowledge-store passages against one or more
// query variants using a selectable strategy, with optional model-based
// reranking of the candidate set.
package retrieval

import (
	"context"

	"github.com/ragent-ai/ragent/internal/knowledge"
)

// Strategy selects how candidates are gathered.
type Strategy string

// Retrieval strategies.
const (
	// StrategySemantic ranks by cosine similarity of stored embeddings.
	StrategySemantic Strategy = "semantic"

	// StrategyHybrid unions semantic and keyword candidates. The two
	// branches keep their own scoring; no cross-branch weighting is
	// applied (plain union, not a weighted blend).
	StrategyHybrid Strategy = "hybrid"

	// StrategyGraph expands semantic seed results with other passages
	// from the same knowledge bases.
	StrategyGraph Strategy = "graph"

	// StrategyAdaptive runs semantic and hybrid concurrently at half the
	// requested limit each and merges.
	StrategyAdaptive Strategy = "adaptive"

	// StrategyNone disables retrieval.
	StrategyNone Strategy = "none"
)

// ParseStrategy maps a string (typically model output) onto a Strategy.
// Unknown values report ok=false.
func ParseStrategy(s string) (Strategy, bool) {
	switch Strategy(s) {
	case StrategySemantic, StrategyHybrid, StrategyGraph, StrategyAdaptive, StrategyNone:
		return Strategy(s), true
	default:
		return "", false
	}
}

// Metadata identifies where a retrieved passage came from.
type Metadata struct {
	Source          string   `json:"source,omitempty"`
	Title           string   `json:"title,omitempty"`
	KnowledgeBaseID string   `json:"knowledgeBaseId,omitempty"`
	ChunkID         string   `json:"chunkId,omitempty"`
	Tags            []string `json:"tags,omitempty"`
}

// Result is one ranked passage. Within a single retrieval batch no two
// results share a chunk ID.
type Result struct {
	Content  string   `json:"content"`
	Score    float64  `json:"score"`
	Metadata Metadata `json:"metadata"`
}

// Options tune a retrieval call. The zero value is normalized to the
// defaults; use DefaultOptions when reranking should stay enabled.
type Options struct {
	// Limit is the number of results returned (default 5). Twice this
	// many candidates are gathered internally before truncation.
	Limit int

	// MinScore is the similarity floor for semantic candidates
	// (default 0.5).
	MinScore float64

	// OrgID scopes retrieval to one tenant.
	OrgID string

	// KnowledgeBaseIDs restricts retrieval to the given knowledge bases
	// (empty = all).
	KnowledgeBaseIDs []string

	// UseReranking asks the completion service to reorder candidates when
	// there are more than three of them. Rerank failures are silent: the
	// score-sorted order stands.
	UseReranking bool
}

// DefaultOptions returns the standard retrieval options.
func DefaultOptions() Options {
	return Options{
		Limit:        5,
		MinScore:     0.5,
		UseReranking: true,
	}
}

func (o Options) normalize() Options {
	if o.Limit <= 0 {
		o.Limit = 5
	}
	if o.MinScore <= 0 {
		o.MinScore = 0.5
	}
	return o
}

func (o Options) filter() knowledge.Filter {
	return knowledge.Filter{OrgID: o.OrgID, KnowledgeBaseIDs: o.KnowledgeBaseIDs}
}

// Store is the slice of the knowledge store the retriever consumes.
// *knowledge.PGStore and *knowledge.MemStore both satisfy it.
type Store interface {
	ListActive(ctx context.Context, f knowledge.Filter) ([]knowledge.Passage, error)
}

// dedupeKeyLen bounds the content-prefix fallback key for passages that
// carry no chunk ID, so identical raw passages still collapse.
const dedupeKeyLen = 100

func dedupeKey(r Result) string {
	if r.Metadata.ChunkID != "" {
		return r.Metadata.ChunkID
	}
	content := r.Content
	if len(content) > dedupeKeyLen {
		content = content[:dedupeKeyLen]
	}
	return content
}
