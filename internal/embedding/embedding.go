// Package embedding turns text into similarity vectors via the Gemini
// embedding API.
//
// Availability contract: if no provider is configured, or a provider call
// fails for any reason (timeout, rate limit, malformed response), operations
// return empty vectors instead of errors. Callers treat an empty vector as
// "no vector representation" and fall back to text-based comparison. This is
// the pipeline's primary availability guarantee for the embedding stage.
package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/plateiq/plateiq/internal/config"
	"github.com/plateiq/plateiq/internal/log"
)

const (
	// Dimension is the vector dimensionality. gemini-embedding-001 truncates
	// to 768 via OutputDimensionality; the pgvector schema matches.
	Dimension = 768

	// BatchSize caps how many texts go into one provider round trip,
	// bounding request size.
	BatchSize = 20

	// maxInputBytes truncates each input before submission.
	maxInputBytes = 8000

	// queryCacheSize bounds the read-through cache for repeated query
	// vectors. FIFO eviction; this is the only cross-request shared state.
	queryCacheSize = 256
)

// Task types for the Gemini embedding API.
const (
	taskTypeDocument = "RETRIEVAL_DOCUMENT"
	taskTypeQuery    = "RETRIEVAL_QUERY"
)

// embedContenter is the slice of the genai client the embedding client uses.
// *genai.Models satisfies it; tests inject a fake.
type embedContenter interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Client embeds text through a Gemini provider, degrading to empty vectors
// when the provider is absent or failing. Safe for concurrent use.
type Client struct {
	provider embedContenter // nil = permanently degraded
	model    string
	timeout  time.Duration
	limiter  *rate.Limiter
	logger   log.Logger

	mu         sync.Mutex
	cache      map[string][]float32
	cacheOrder []string
}

// NewClient constructs an embedding client from configuration. When no
// GEMINI_API_KEY is configured, or client construction fails, the returned
// client is degraded rather than nil: every embed yields empty vectors.
func NewClient(ctx context.Context, cfg *config.Config, logger log.Logger) *Client {
	c := &Client{
		model:   cfg.EmbedderModel,
		timeout: time.Duration(cfg.EmbedTimeoutMS) * time.Millisecond,
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		logger:  logger,
		cache:   make(map[string][]float32),
	}

	if cfg.GeminiAPIKey == "" {
		logger.Info("no embedding provider configured, vector search disabled")
		return c
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.GeminiAPIKey})
	if err != nil {
		logger.Warn("embedding client construction failed, degrading to text-only retrieval", "error", err)
		return c
	}
	c.provider = gc.Models
	return c
}

// newWithProvider wires an explicit provider; used by tests.
func newWithProvider(provider embedContenter, model string, timeout time.Duration, logger log.Logger) *Client {
	return &Client{
		provider: provider,
		model:    model,
		timeout:  timeout,
		limiter:  rate.NewLimiter(rate.Inf, 1),
		logger:   logger,
		cache:    make(map[string][]float32),
	}
}

// Available reports whether an embedding provider is configured.
func (c *Client) Available() bool {
	return c != nil && c.provider != nil
}

// Embed returns the vector for one text, or an empty vector on any failure.
func (c *Client) Embed(ctx context.Context, text string) []float32 {
	vectors := c.EmbedBatch(ctx, []string{text})
	return vectors[0]
}

// EmbedBatch embeds a batch of texts, one provider round trip per BatchSize
// inputs, batches running in parallel. The result always has len(texts)
// entries; entries for failed batches are empty vectors.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{}
	}
	if !c.Available() || len(texts) == 0 {
		return vectors
	}

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(texts); start += BatchSize {
		end := min(start+BatchSize, len(texts))
		g.Go(func() error {
			batch := texts[start:end]
			got := c.embedOnce(gctx, batch, taskTypeDocument)
			copy(vectors[start:end], got)
			return nil // failures degrade, never abort sibling batches
		})
	}
	_ = g.Wait()
	return vectors
}

// EmbedQuery returns the vector for a retrieval query, consulting the bounded
// cache first. Empty vector on any failure.
func (c *Client) EmbedQuery(ctx context.Context, query string) []float32 {
	if !c.Available() || query == "" {
		return []float32{}
	}

	c.mu.Lock()
	if v, ok := c.cache[query]; ok {
		c.mu.Unlock()
		return v
	}
	c.mu.Unlock()

	got := c.embedOnce(ctx, []string{query}, taskTypeQuery)
	vector := got[0]
	if len(vector) > 0 {
		c.cachePut(query, vector)
	}
	return vector
}

// embedOnce performs a single provider round trip for the given texts.
// Returns len(texts) vectors; all empty on failure.
func (c *Client) embedOnce(ctx context.Context, texts []string, taskType string) [][]float32 {
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		c.logger.Warn("embedding rate limit wait cancelled", "error", err)
		return vectors
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, &genai.Content{
			Parts: []*genai.Part{{Text: truncate(text)}},
		})
	}

	dim := int32(Dimension)
	resp, err := c.provider.EmbedContent(callCtx, c.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dim,
		TaskType:             taskType,
	})
	if err != nil {
		c.logger.Warn("embedding call failed, degrading to empty vectors",
			"model", c.model, "batch_size", len(texts), "error", err)
		return vectors
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		c.logger.Warn("embedding response shape mismatch, degrading to empty vectors",
			"want", len(texts), "got", respLen(resp))
		return vectors
	}

	for i, e := range resp.Embeddings {
		if e != nil && len(e.Values) > 0 {
			vectors[i] = e.Values
		}
	}
	return vectors
}

// cachePut inserts a query vector, evicting the oldest entry at capacity.
func (c *Client) cachePut(query string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.cache[query]; ok {
		return
	}
	if len(c.cacheOrder) >= queryCacheSize {
		oldest := c.cacheOrder[0]
		c.cacheOrder = c.cacheOrder[1:]
		delete(c.cache, oldest)
	}
	c.cache[query] = vector
	c.cacheOrder = append(c.cacheOrder, query)
}

// truncate cuts text to maxInputBytes at a rune boundary.
func truncate(text string) string {
	if len(text) <= maxInputBytes {
		return text
	}
	cut := maxInputBytes
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func respLen(resp *genai.EmbedContentResponse) string {
	if resp == nil {
		return "nil response"
	}
	return fmt.Sprintf("%d", len(resp.Embeddings))
}
