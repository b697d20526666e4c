package rag_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plateiq/plateiq/internal/chunker"
	"github.com/plateiq/plateiq/internal/knowledge"
	"github.com/plateiq/plateiq/internal/log"
	"github.com/plateiq/plateiq/internal/rag"
	"github.com/plateiq/plateiq/internal/testutil"
)

const (
	portionRules = "When the user does not specify a portion, assume a default cooked portion of 6 oz for meat and poultry, 1 cup for grains, and 1 cup for vegetables."
	chickenFacts = "Grilled chicken breast, 6 oz cooked weight: approximately 280 calories, 53 g protein, 0 g carbs, 6 g fat."
	oatmealFacts = "Oatmeal, 1 cup cooked: approximately 160 calories, 6 g protein, 27 g carbs, 3 g fat."
)

func seedKnowledgeBase(t *testing.T, store *knowledge.Store) {
	t.Helper()
	ctx := context.Background()
	docs := []knowledge.UpsertParams{
		{Title: "Default Portion Assumptions", DocType: knowledge.DocTypeRule, Text: portionRules},
		{Title: "Common Foods: Chicken", DocType: knowledge.DocTypeFood, Text: chickenFacts},
		{Title: "Common Foods: Oatmeal", DocType: knowledge.DocTypeFood, Text: oatmealFacts},
	}
	for _, d := range docs {
		_, err := store.Upsert(ctx, d)
		require.NoError(t, err)
	}
}

// Without any embedding provider, retrieval still surfaces the right chunks
// through the text path.
func TestRetrieverTextFallbackEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pool := testutil.SetupTestDB(t)
	embedder := testutil.NewFakeEmbedder()
	embedder.Unavailable = true

	store := knowledge.NewStore(pool, embedder, chunker.Options{TargetTokens: 500, OverlapTokens: 50}, log.NewNop())
	seedKnowledgeBase(t, store)

	retriever := rag.New(store, embedder, log.NewNop())
	results, err := retriever.RetrievePreset(context.Background(), "6 oz grilled chicken breast", rag.MealEstimationPreset)
	require.NoError(t, err)

	require.NotEmpty(t, results)
	assert.Equal(t, chickenFacts, results[0].Content)
	assert.Greater(t, results[0].Similarity, rag.StrongSimilarityCutoff)
	for _, rc := range results {
		assert.NotEqual(t, oatmealFacts, rc.Content)
	}
}

func TestRetrieverVectorPathEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pool := testutil.SetupTestDB(t)
	embedder := testutil.NewFakeEmbedder()
	embedder.Set(portionRules, testutil.BlendedVector(0, 1, 0.8, 0.6))
	embedder.Set(chickenFacts, testutil.BlendedVector(0, 1, 0.5, 0.87))
	embedder.Set(oatmealFacts, testutil.UnitVector(5))

	store := knowledge.NewStore(pool, embedder, chunker.Options{TargetTokens: 500, OverlapTokens: 50}, log.NewNop())
	seedKnowledgeBase(t, store)

	query := "how much protein in grilled chicken"
	embedder.Set(query, testutil.BlendedVector(0, 1, 0.6, 0.8))

	retriever := rag.New(store, embedder, log.NewNop())
	results, err := retriever.RetrievePreset(context.Background(), query, rag.MealEstimationPreset)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(results), 2)
	assert.Equal(t, chickenFacts, results[0].Content)
	assert.Equal(t, rag.Strong, rag.Classify(results))
}

func TestRetrieverEmptyKnowledgeBaseEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pool := testutil.SetupTestDB(t)
	embedder := testutil.NewFakeEmbedder()
	embedder.Unavailable = true

	store := knowledge.NewStore(pool, embedder, chunker.Options{TargetTokens: 500, OverlapTokens: 50}, log.NewNop())
	retriever := rag.New(store, embedder, log.NewNop())

	results, err := retriever.RetrievePreset(context.Background(), "what should I log for lunch", rag.MealEstimationPreset)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, rag.Weak, rag.Classify(results))
}
