// Package knowledge defines the passage store contract consumed by the
// retriever, together with a PostgreSQL+pgvector implementation and an
// in-memory implementation.
//
// The retriever computes similarity and keyword scores in-process, so the
// store contract is deliberately small: it returns active passages (with
// their stored embeddings) for a tenant, optionally restricted to a set of
// knowledge bases. How passages get into the store is the ingestion
// pipeline's concern, outside this module.
package knowledge

import "time"

// Passage is the unit of retrieval: one embedded chunk of a source document,
// belonging to a knowledge base within a tenant.
type Passage struct {
	ID              string    // Unique chunk identifier
	OrgID           string    // Owning tenant
	KnowledgeBaseID string    // Named collection within the tenant
	Title           string    // Source document title
	Content         string    // Chunk text
	Source          string    // Origin reference (URL, file path, ...)
	Tags            []string  // Optional labels
	Embedding       []float32 // Stored vector for the chunk content
	Active          bool      // Inactive passages are invisible to retrieval
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Filter restricts which passages a query sees.
type Filter struct {
	// OrgID scopes the query to one tenant. Required.
	OrgID string

	// KnowledgeBaseIDs restricts the query to the given knowledge bases.
	// Empty means every knowledge base in the tenant.
	KnowledgeBaseIDs []string
}

// Match reports whether the passage falls inside the filter.
func (f Filter) Match(p Passage) bool {
	if f.OrgID != "" && p.OrgID != f.OrgID {
		return false
	}
	if len(f.KnowledgeBaseIDs) == 0 {
		return true
	}
	for _, id := range f.KnowledgeBaseIDs {
		if p.KnowledgeBaseID == id {
			return true
		}
	}
	return false
}
