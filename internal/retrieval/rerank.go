package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/ragent-ai/ragent/internal/llm"
)

// rerankThreshold is the candidate count above which reranking engages.
// Small candidate sets are not worth a model round-trip.
const rerankThreshold = 3

// rerankSnippetLen bounds per-candidate content in the rerank prompt.
const rerankSnippetLen = 300

const rerankSystemPrompt = `You rerank search results. Given a query and a numbered list of passages, respond with ONLY a JSON array of the passage indices ordered from most to least relevant to the query. Example: [2, 0, 1, 3]`

// rerank asks the completion service for a relevance-ordered permutation of
// the candidate indices. Indices the model omits keep their original order
// at the end. Any failure, whether service or parse, leaves the incoming
// order untouched; reranking never fails the retrieval.
func (r *Retriever) rerank(ctx context.Context, query string, candidates []Result) []Result {
	if len(candidates) <= rerankThreshold {
		return candidates
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nPassages:\n", query)
	for i, c := range candidates {
		snippet := c.Content
		if len(snippet) > rerankSnippetLen {
			snippet = snippet[:rerankSnippetLen]
		}
		fmt.Fprintf(&b, "[%d] %s\n", i, snippet)
	}

	resp, err := r.llm.Complete(ctx, llm.Request{
		System:   rerankSystemPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: b.String()}},
	})
	if err != nil {
		r.logger.Debug("reranking skipped, service error", "error", err)
		return candidates
	}

	var order []int
	if err := llm.ParseJSON(resp.Text, &order); err != nil {
		r.logger.Debug("reranking skipped, unparseable output", "error", err)
		return candidates
	}

	return applyOrder(candidates, order)
}

// applyOrder reorders candidates by the given index permutation. Out-of-range
// and duplicate indices are ignored; omitted candidates are appended in
// their original order.
func applyOrder(candidates []Result, order []int) []Result {
	used := make([]bool, len(candidates))
	out := make([]Result, 0, len(candidates))
	for _, idx := range order {
		if idx < 0 || idx >= len(candidates) || used[idx] {
			continue
		}
		used[idx] = true
		out = append(out, candidates[idx])
	}
	for i, c := range candidates {
		if !used[i] {
			out = append(out, c)
		}
	}
	return out
}
