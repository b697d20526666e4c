// Package estimate turns a meal description into a validated macro estimate.
// The orchestrator runs a fixed pipeline: retrieve evidence, build a prompt,
// generate with a bounded retry budget, validate strictly, and fall back to
// a deterministic low-confidence estimate when every attempt fails. Each
// request ends with exactly one audit record.
package estimate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"github.com/plateiq/plateiq/internal/audit"
	"github.com/plateiq/plateiq/internal/knowledge"
	"github.com/plateiq/plateiq/internal/log"
	"github.com/plateiq/plateiq/internal/rag"
)

// ErrNoProvider means no generation provider is configured (missing API
// key). It is the only error the estimation entry points return for the
// generation stage; everything past this check resolves to an estimate.
var ErrNoProvider = errors.New("no generation provider configured")

// ErrEmptyQuery rejects requests with nothing to estimate.
var ErrEmptyQuery = errors.New("empty meal description")

const (
	maxAttempts           = 2
	defaultAttemptTimeout = 30 * time.Second
	generationTemperature = 0.1
	maxOutputTokens       = 1024
	providerName          = "gemini"

	// photoClarityFloor is the clarity score below which a photo request is
	// always treated as weak retrieval, regardless of chunk similarities.
	photoClarityFloor = 40
)

// attemptOutcome tags the result of one generation attempt. The retry loop
// switches on tags instead of threading errors across stages.
type attemptOutcome int

const (
	outcomeOK attemptOutcome = iota
	outcomeInvalid
	outcomeProviderErr
)

func (o attemptOutcome) String() string {
	switch o {
	case outcomeOK:
		return "ok"
	case outcomeInvalid:
		return "invalid"
	case outcomeProviderErr:
		return "provider_error"
	default:
		return "unknown"
	}
}

// Retriever is the retrieval capability the orchestrator consumes.
type Retriever interface {
	RetrievePreset(ctx context.Context, query string, p rag.Preset) ([]knowledge.RetrievedChunk, error)
}

// Auditor records one entry per completed request.
type Auditor interface {
	Record(ctx context.Context, e audit.Entry)
}

// generateContenter is the slice of the genai client used for generation.
// *genai.Models satisfies it.
type generateContenter interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// TextRequest estimates a meal from a free-text description.
type TextRequest struct {
	Description string
	LocalTime   time.Time
}

// PhotoRequest estimates a meal from recognized photo content. Clarity is
// the recognizer's 0-100 confidence in what it saw. SceneDescription is
// free-text scene context for the prompt; it does not drive retrieval.
type PhotoRequest struct {
	Items            []string
	PortionHint      string
	Clarity          int
	SceneDescription string
	LocalTime        time.Time
}

// Result is a completed estimation with its evidence trail.
type Result struct {
	Estimate *Estimate
	Strength rag.Strength
	Evidence []knowledge.RetrievedChunk
	Fallback bool
	Attempts int
}

// Orchestrator drives the estimation pipeline.
type Orchestrator struct {
	retriever      Retriever
	provider       generateContenter
	auditor        Auditor
	model          string
	attemptTimeout time.Duration
	logger         log.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithAttemptTimeout overrides the per-attempt generation deadline.
func WithAttemptTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.attemptTimeout = d
		}
	}
}

// NewOrchestrator creates an Orchestrator. provider may be nil when no API
// key is configured; estimation then returns ErrNoProvider.
func NewOrchestrator(retriever Retriever, provider *genai.Models, auditor Auditor, model string, logger log.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		retriever:      retriever,
		auditor:        auditor,
		model:          model,
		attemptTimeout: defaultAttemptTimeout,
		logger:         logger,
	}
	if provider != nil {
		o.provider = provider
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// newWithProvider wires an arbitrary provider implementation, for tests.
func newWithProvider(retriever Retriever, provider generateContenter, auditor Auditor, model string, logger log.Logger, opts ...Option) *Orchestrator {
	o := NewOrchestrator(retriever, nil, auditor, model, logger, opts...)
	o.provider = provider
	return o
}

// EstimateText runs the pipeline for a text meal description.
func (o *Orchestrator) EstimateText(ctx context.Context, req TextRequest) (*Result, error) {
	query := strings.TrimSpace(req.Description)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	return o.run(ctx, "text", query, "", req.LocalTime, false)
}

// EstimatePhoto runs the pipeline for recognized photo content. Low-clarity
// photos force the weak precision mode: ranged output, never point values.
func (o *Orchestrator) EstimatePhoto(ctx context.Context, req PhotoRequest) (*Result, error) {
	query := strings.TrimSpace(strings.Join(req.Items, ", "))
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if hint := strings.TrimSpace(req.PortionHint); hint != "" {
		query = fmt.Sprintf("%s (%s)", query, hint)
	}
	return o.run(ctx, "photo", query, req.SceneDescription, req.LocalTime, req.Clarity < photoClarityFloor)
}

func (o *Orchestrator) run(ctx context.Context, mode, query, scene string, localTime time.Time, forceWeak bool) (*Result, error) {
	if o.provider == nil {
		return nil, ErrNoProvider
	}
	start := time.Now()

	meal, evidence := o.retrieve(ctx, query)

	// Strength is judged on the meal-estimation evidence alone; swap
	// guidance chunks must not promote a thin match to point values.
	strength := rag.Classify(meal)
	if forceWeak {
		strength = rag.Weak
	}

	prompt := buildPrompt(query, scene, evidence, strength, localTime)

	var (
		lastRaw  string
		attempts int
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt
		raw, est, outcome := o.attempt(ctx, prompt, strength)
		if raw != "" {
			lastRaw = raw
		}
		if outcome == outcomeOK {
			o.record(ctx, mode, query, evidence, raw, "success", est.Confidence, start)
			return &Result{
				Estimate: est,
				Strength: strength,
				Evidence: evidence,
				Attempts: attempts,
			}, nil
		}
		o.logger.Warn("generation attempt failed",
			"mode", mode,
			"attempt", attempt,
			"outcome", outcome.String())
	}

	est := fallbackEstimate(evidence, localTime)
	o.record(ctx, mode, query, evidence, lastRaw, "fallback", est.Confidence, start)
	return &Result{
		Estimate: est,
		Strength: strength,
		Evidence: evidence,
		Fallback: true,
		Attempts: attempts,
	}, nil
}

// retrieve gathers evidence from both presets concurrently, returning the
// meal-estimation set (used for strength classification) and the merged,
// deduplicated set (used as prompt evidence). Retrieval failures degrade to
// empty evidence; the pipeline continues into the weak branch rather than
// failing the request.
func (o *Orchestrator) retrieve(ctx context.Context, query string) (meal, merged []knowledge.RetrievedChunk) {
	var swaps []knowledge.RetrievedChunk

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		meal, err = o.retriever.RetrievePreset(gctx, query, rag.MealEstimationPreset)
		return err
	})
	g.Go(func() error {
		var err error
		swaps, err = o.retriever.RetrievePreset(gctx, query, rag.SwapSuggestionPreset)
		return err
	})
	if err := g.Wait(); err != nil {
		o.logger.Warn("evidence retrieval degraded", "error", err)
	}

	return meal, rag.Merge(meal, swaps)
}

// attempt runs one generation call and classifies its outcome.
func (o *Orchestrator) attempt(ctx context.Context, prompt string, strength rag.Strength) (string, *Estimate, attemptOutcome) {
	ctx, cancel := context.WithTimeout(ctx, o.attemptTimeout)
	defer cancel()

	resp, err := o.provider.GenerateContent(ctx, o.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](generationTemperature),
		ResponseMIMEType: "application/json",
		MaxOutputTokens:  maxOutputTokens,
	})
	if err != nil {
		o.logger.Debug("provider call failed", "error", err)
		return "", nil, outcomeProviderErr
	}

	raw := resp.Text()
	est, err := Parse(raw, strength == rag.Weak)
	if err != nil {
		o.logger.Debug("response rejected", "error", err)
		return raw, nil, outcomeInvalid
	}
	return raw, est, outcomeOK
}

func (o *Orchestrator) record(ctx context.Context, mode, query string, evidence []knowledge.RetrievedChunk, raw, outcome string, confidence int, start time.Time) {
	if o.auditor == nil {
		return
	}
	ids := make([]uuid.UUID, len(evidence))
	for i, rc := range evidence {
		ids[i] = rc.ID
	}
	o.auditor.Record(ctx, audit.Entry{
		Mode:        mode,
		QueryHash:   audit.HashQuery(query),
		ChunkIDs:    ids,
		Provider:    providerName,
		Model:       o.model,
		RawResponse: raw,
		Outcome:     outcome,
		Confidence:  confidence,
		LatencyMS:   time.Since(start).Milliseconds(),
	})
}
