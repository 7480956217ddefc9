package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ragent-ai/ragent/internal/embedding"
	"github.com/ragent-ai/ragent/internal/knowledge"
	"github.com/ragent-ai/ragent/internal/llm"
)

// graphSeedBoost is the factor applied to MinScore when assigning the
// synthetic score of passages pulled in by knowledge-base adjacency.
const graphSeedBoost = 1.1

// Config contains all required parameters for the Retriever.
type Config struct {
	Store   Store
	Gateway *embedding.Gateway
	LLM     llm.Client // used only for reranking; nil disables reranking
	Logger  *slog.Logger
}

// Retriever gathers and ranks passages for one or more query variants.
//
// Retriever is stateless and safe for concurrent use.
type Retriever struct {
	store   Store
	gateway *embedding.Gateway
	llm     llm.Client
	logger  *slog.Logger
}

// New creates a Retriever.
func New(cfg Config) (*Retriever, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Gateway == nil {
		return nil, errors.New("embedding gateway is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		store:   cfg.Store,
		gateway: cfg.Gateway,
		llm:     cfg.LLM,
		logger:  logger,
	}, nil
}

// scored carries merge bookkeeping alongside a result: the variant index
// that produced it and an insertion sequence, so ties sort deterministically
// regardless of goroutine completion order.
type scored struct {
	Result
	variant int
	seq     int
}

// Retrieve returns up to opts.Limit ranked results for the query variants.
//
// Internally 2×limit candidates are gathered by the chosen strategy,
// optionally reranked by the completion service, then truncated. A store or
// embedding failure fails the call; a reranking failure does not.
func (r *Retriever) Retrieve(ctx context.Context, queries []string, strategy Strategy, opts Options) ([]Result, error) {
	opts = opts.normalize()
	if len(queries) == 0 || strategy == StrategyNone {
		return nil, nil
	}

	fetch := 2 * opts.Limit

	var (
		candidates []Result
		err        error
	)
	switch strategy {
	case StrategySemantic:
		candidates, err = r.semantic(ctx, queries, fetch, opts)
	case StrategyHybrid:
		candidates, err = r.hybrid(ctx, queries, fetch, opts)
	case StrategyGraph:
		candidates, err = r.graph(ctx, queries, opts)
	case StrategyAdaptive:
		candidates, err = r.adaptive(ctx, queries, opts)
	default:
		// Strategy text came from a model; degrade to the broadest search.
		r.logger.Warn("unknown retrieval strategy, using hybrid", "strategy", strategy)
		candidates, err = r.hybrid(ctx, queries, fetch, opts)
	}
	if err != nil {
		return nil, err
	}

	if opts.UseReranking && r.llm != nil {
		candidates = r.rerank(ctx, queries[0], candidates)
	}

	if len(candidates) > opts.Limit {
		candidates = candidates[:opts.Limit]
	}

	r.logger.Debug("retrieval complete",
		"strategy", strategy,
		"variants", len(queries),
		"results", len(candidates),
	)
	return candidates, nil
}

// semantic embeds each query variant concurrently and scores every active
// passage by cosine similarity, keeping scores at or above MinScore.
func (r *Retriever) semantic(ctx context.Context, queries []string, limit int, opts Options) ([]Result, error) {
	passages, err := r.store.ListActive(ctx, opts.filter())
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	if len(passages) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(queries))
	eg, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		eg.Go(func() error {
			vec, err := r.gateway.Embed(gctx, q)
			if err != nil {
				return fmt.Errorf("embed variant %d: %w", i, err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var all []scored
	for vi, vec := range vectors {
		for _, p := range passages {
			score := embedding.Similarity(vec, p.Embedding)
			if score < opts.MinScore {
				continue
			}
			all = append(all, scored{
				Result:  resultFromPassage(p, score),
				variant: vi,
				seq:     len(all),
			})
		}
	}

	return mergeRanked(all, limit), nil
}

// hybrid unions semantic results with keyword matches. Each branch keeps
// its own scoring; the sets are concatenated before deduplication.
func (r *Retriever) hybrid(ctx context.Context, queries []string, limit int, opts Options) ([]Result, error) {
	semantic, err := r.semantic(ctx, queries, limit, opts)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}

	keyword, err := r.keyword(ctx, queries, opts)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}

	var all []scored
	for i, res := range semantic {
		all = append(all, scored{Result: res, variant: 0, seq: i})
	}
	for i, res := range keyword {
		all = append(all, scored{Result: res, variant: 1, seq: len(semantic) + i})
	}

	return mergeRanked(all, limit), nil
}

// keyword scores passages by the fraction of distinct query terms (length
// >= 3) found in title+content, across all variants.
func (r *Retriever) keyword(ctx context.Context, queries []string, opts Options) ([]Result, error) {
	passages, err := r.store.ListActive(ctx, opts.filter())
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	var out []Result
	seen := make(map[string]int) // dedupe key -> index in out
	for _, q := range queries {
		terms := strings.Fields(strings.ToLower(q))
		if len(terms) == 0 {
			continue
		}
		for _, p := range passages {
			text := strings.ToLower(p.Title + " " + p.Content)
			found := 0
			counted := make(map[string]bool)
			for _, term := range terms {
				if len(term) < 3 || counted[term] {
					continue
				}
				if strings.Contains(text, term) {
					found++
					counted[term] = true
				}
			}
			if found == 0 {
				continue
			}
			score := float64(found) / float64(len(terms))
			res := resultFromPassage(p, score)
			key := dedupeKey(res)
			if i, ok := seen[key]; ok {
				if score > out[i].Score {
					out[i].Score = score
				}
				continue
			}
			seen[key] = len(out)
			out = append(out, res)
		}
	}

	return out, nil
}

// graph runs a semantic search for limit/2 seeds, then pulls other active
// passages from the seeds' knowledge bases with a synthetic score just above
// the similarity floor.
func (r *Retriever) graph(ctx context.Context, queries []string, opts Options) ([]Result, error) {
	seedLimit := opts.Limit / 2
	if seedLimit < 1 {
		seedLimit = 1
	}
	seeds, err := r.semantic(ctx, queries, seedLimit, opts)
	if err != nil {
		return nil, fmt.Errorf("graph search: %w", err)
	}
	if len(seeds) == 0 {
		return nil, nil
	}

	kbSet := make(map[string]bool)
	var kbIDs []string
	for _, s := range seeds {
		if id := s.Metadata.KnowledgeBaseID; id != "" && !kbSet[id] {
			kbSet[id] = true
			kbIDs = append(kbIDs, id)
		}
	}

	related, err := r.store.ListActive(ctx, knowledge.Filter{OrgID: opts.OrgID, KnowledgeBaseIDs: kbIDs})
	if err != nil {
		return nil, fmt.Errorf("graph expansion: %w", err)
	}

	present := make(map[string]bool, len(seeds))
	for _, s := range seeds {
		present[dedupeKey(s)] = true
	}

	out := seeds
	synthetic := opts.MinScore * graphSeedBoost
	for _, p := range related {
		res := resultFromPassage(p, synthetic)
		if present[dedupeKey(res)] {
			continue
		}
		present[dedupeKey(res)] = true
		out = append(out, res)
	}

	fetch := 2 * opts.Limit
	if len(out) > fetch {
		out = out[:fetch]
	}
	return out, nil
}

// adaptive runs semantic and hybrid concurrently at half the requested
// limit each, then merges.
func (r *Retriever) adaptive(ctx context.Context, queries []string, opts Options) ([]Result, error) {
	half := opts.Limit / 2
	if half < 1 {
		half = 1
	}

	var semantic, hybrid []Result
	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		semantic, err = r.semantic(gctx, queries, half, opts)
		return err
	})
	eg.Go(func() error {
		var err error
		hybrid, err = r.hybrid(gctx, queries, half, opts)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("adaptive search: %w", err)
	}

	var all []scored
	for i, res := range semantic {
		all = append(all, scored{Result: res, variant: 0, seq: i})
	}
	for i, res := range hybrid {
		all = append(all, scored{Result: res, variant: 1, seq: len(semantic) + i})
	}

	return mergeRanked(all, 2*opts.Limit), nil
}

// mergeRanked deduplicates candidates (keeping the best score per key),
// sorts by score descending with a stable tie-break on variant order and
// insertion sequence, and truncates to limit.
func mergeRanked(all []scored, limit int) []Result {
	best := make(map[string]int) // dedupe key -> index in merged
	var merged []scored
	for _, c := range all {
		key := dedupeKey(c.Result)
		if i, ok := best[key]; ok {
			if c.Score > merged[i].Score {
				merged[i].Score = c.Score
			}
			continue
		}
		best[key] = len(merged)
		merged = append(merged, c)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		if merged[i].variant != merged[j].variant {
			return merged[i].variant < merged[j].variant
		}
		return merged[i].seq < merged[j].seq
	})

	if len(merged) > limit {
		merged = merged[:limit]
	}
	out := make([]Result, len(merged))
	for i, c := range merged {
		out[i] = c.Result
	}
	return out
}

func resultFromPassage(p knowledge.Passage, score float64) Result {
	return Result{
		Content: p.Content,
		Score:   score,
		Metadata: Metadata{
			Source:          p.Source,
			Title:           p.Title,
			KnowledgeBaseID: p.KnowledgeBaseID,
			ChunkID:         p.ID,
			Tags:            p.Tags,
		},
	}
}
