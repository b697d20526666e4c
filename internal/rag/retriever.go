// Package rag ranks stored knowledge chunks against a query. It layers two
// strategies: an optional vector-similarity path, used when the query can be
// embedded, and an always-available lexical path over full-text candidates.
// The pipeline stays correct on the lexical path alone, with lower-quality
// ranking.
package rag

import (
	"context"
	"sort"

	"github.com/plateiq/plateiq/internal/knowledge"
	"github.com/plateiq/plateiq/internal/log"
)

// StrongSimilarityCutoff is the per-chunk similarity above which a chunk
// counts toward a strong retrieval classification.
const StrongSimilarityCutoff = 0.6

// Strength classifies a retrieval result set. It gates the generation
// output precision mode: strong retrieval permits point values, weak
// retrieval requires ranges.
type Strength string

const (
	// Strong means at least two chunks exceeded StrongSimilarityCutoff.
	Strong Strength = "strong"

	// Weak is everything else, including an empty result set.
	Weak Strength = "weak"
)

// Searcher is the slice of the knowledge store the retriever uses.
type Searcher interface {
	SearchVector(ctx context.Context, queryVector []float32, docTypes []string, limit int) ([]knowledge.RetrievedChunk, error)
	SearchText(ctx context.Context, terms []string, docTypes []string, limit int) ([]knowledge.RetrievedChunk, error)
	VectorSearchAvailable() bool
}

// QueryEmbedder produces a query vector, empty when embedding is unavailable.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) []float32
}

// Preset names a tuned retrieval configuration for one consumer.
type Preset struct {
	Name      string
	DocTypes  []string
	TopK      int
	Threshold float64
}

// The two retrieval presets consumed by the generation orchestrator. Each is
// independently tunable.
var (
	// MealEstimationPreset feeds the primary macro-estimation retrieval.
	MealEstimationPreset = Preset{
		Name: "meal_estimation",
		DocTypes: []string{
			knowledge.DocTypeRule,
			knowledge.DocTypeFood,
			knowledge.DocTypePortion,
			knowledge.DocTypeConversion,
		},
		TopK:      8,
		Threshold: 0.4,
	}

	// SwapSuggestionPreset feeds swap-suggestion evidence.
	SwapSuggestionPreset = Preset{
		Name: "swap_suggestion",
		DocTypes: []string{
			knowledge.DocTypeRule,
			knowledge.DocTypeSupport,
			knowledge.DocTypeFood,
		},
		TopK:      4,
		Threshold: 0.4,
	}
)

// Option configures a retrieval using the functional options pattern.
type Option func(*retrieveConfig)

type retrieveConfig struct {
	topK      int
	docTypes  []string
	threshold float64
}

// WithTopK sets the maximum number of results. Default 8.
func WithTopK(k int) Option {
	return func(c *retrieveConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithDocTypes restricts the search to document-type groups.
func WithDocTypes(types ...string) Option {
	return func(c *retrieveConfig) { c.docTypes = types }
}

// WithThreshold sets the minimum similarity for a result to be kept.
// Default 0.5.
func WithThreshold(t float64) Option {
	return func(c *retrieveConfig) { c.threshold = t }
}

// Retriever ranks stored chunks against queries.
type Retriever struct {
	store    Searcher
	embedder QueryEmbedder
	logger   log.Logger
}

// New creates a Retriever.
func New(store Searcher, embedder QueryEmbedder, logger log.Logger) *Retriever {
	return &Retriever{store: store, embedder: embedder, logger: logger}
}

// Retrieve returns the top chunks for the query, ordered by similarity
// descending. An empty or non-matching knowledge base yields an empty list,
// never an error: callers classify that as weak retrieval.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts ...Option) ([]knowledge.RetrievedChunk, error) {
	cfg := retrieveConfig{topK: 8, threshold: 0.5}
	for _, opt := range opts {
		opt(&cfg)
	}

	if r.store.VectorSearchAvailable() {
		if results, ok := r.retrieveVector(ctx, query, cfg); ok {
			return results, nil
		}
	}
	return r.retrieveLexical(ctx, query, cfg)
}

// RetrievePreset retrieves with a named preset configuration.
func (r *Retriever) RetrievePreset(ctx context.Context, query string, p Preset) ([]knowledge.RetrievedChunk, error) {
	return r.Retrieve(ctx, query,
		WithTopK(p.TopK),
		WithDocTypes(p.DocTypes...),
		WithThreshold(p.Threshold),
	)
}

// Classify reports the strength of a result set: strong iff at least two
// chunks exceed the high-confidence cutoff.
func Classify(results []knowledge.RetrievedChunk) Strength {
	count := 0
	for _, rc := range results {
		if rc.Similarity > StrongSimilarityCutoff {
			count++
			if count >= 2 {
				return Strong
			}
		}
	}
	return Weak
}

// Merge combines result sets, deduplicating by chunk ID (keeping the higher
// similarity) and ordering by similarity descending.
func Merge(sets ...[]knowledge.RetrievedChunk) []knowledge.RetrievedChunk {
	seen := make(map[string]int)
	var merged []knowledge.RetrievedChunk
	for _, set := range sets {
		for _, rc := range set {
			key := rc.ID.String()
			if i, ok := seen[key]; ok {
				if rc.Similarity > merged[i].Similarity {
					merged[i] = rc
				}
				continue
			}
			seen[key] = len(merged)
			merged = append(merged, rc)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Similarity > merged[j].Similarity
	})
	return merged
}

// retrieveVector attempts the vector path. ok is false when the path is
// unusable (no query vector) or produced nothing above the threshold, in
// which case the caller falls back to the lexical path. A storage error on
// this optional path degrades rather than failing the retrieval.
func (r *Retriever) retrieveVector(ctx context.Context, query string, cfg retrieveConfig) ([]knowledge.RetrievedChunk, bool) {
	vector := r.embedder.EmbedQuery(ctx, query)
	if len(vector) == 0 {
		return nil, false
	}

	results, err := r.store.SearchVector(ctx, vector, cfg.docTypes, cfg.topK)
	if err != nil {
		r.logger.Warn("vector search failed, falling back to text retrieval", "error", err)
		return nil, false
	}

	kept := results[:0]
	for _, rc := range results {
		if rc.Similarity >= cfg.threshold {
			kept = append(kept, rc)
		}
	}
	if len(kept) == 0 {
		return nil, false
	}
	return kept, true
}

// retrieveLexical recalls candidates by full-text search and re-scores them
// with the lexical similarity measure, putting both strategies on one scale.
func (r *Retriever) retrieveLexical(ctx context.Context, query string, cfg retrieveConfig) ([]knowledge.RetrievedChunk, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	candidates, err := r.store.SearchText(ctx, terms, cfg.docTypes, cfg.topK*4)
	if err != nil {
		return nil, err
	}

	var results []knowledge.RetrievedChunk
	for _, rc := range candidates {
		rc.Similarity = lexicalSimilarity(terms, rc.Content)
		if rc.Similarity >= cfg.threshold {
			results = append(results, rc)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > cfg.topK {
		results = results[:cfg.topK]
	}
	return results, nil
}
