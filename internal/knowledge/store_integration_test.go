package knowledge_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/plateiq/plateiq/internal/chunker"
	"github.com/plateiq/plateiq/internal/knowledge"
	"github.com/plateiq/plateiq/internal/log"
	"github.com/plateiq/plateiq/internal/testutil"
)

func newTestStore(t *testing.T) (*knowledge.Store, *testutil.FakeEmbedder, context.Context) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pool := testutil.SetupTestDB(t)
	embedder := testutil.NewFakeEmbedder()
	store := knowledge.NewStore(pool, embedder, chunker.Options{TargetTokens: 500, OverlapTokens: 50}, log.NewNop())
	return store, embedder, context.Background()
}

func chunkIndexes(t *testing.T, store *knowledge.Store, ctx context.Context, docID uuid.UUID) []int {
	t.Helper()
	chunks, err := store.GetChunks(ctx, docID)
	require.NoError(t, err)
	indexes := make([]int, len(chunks))
	for i, c := range chunks {
		indexes[i] = c.ChunkIndex
	}
	return indexes
}

func TestUpsertSplitsAndPersistsChunks(t *testing.T) {
	store, _, ctx := newTestStore(t)

	text := "First paragraph about cooked rice portions and their weights.\n\n" +
		"Second paragraph about raw to cooked conversion ratios for rice.\n\n" +
		"Third paragraph about typical restaurant serving sizes."

	res, err := store.Upsert(ctx, knowledge.UpsertParams{
		Title:             "Rice Reference",
		DocType:           knowledge.DocTypeConversion,
		Text:              text,
		ChunkTargetTokens:  15,
		ChunkOverlapTokens: 4,
	})
	require.NoError(t, err)
	require.Greater(t, res.ChunkCount, 1)

	indexes := chunkIndexes(t, store, ctx, res.DocumentID)
	require.Len(t, indexes, res.ChunkCount)
	for i, idx := range indexes {
		assert.Equal(t, i, idx)
	}

	doc, err := store.GetDocument(ctx, "Rice Reference")
	require.NoError(t, err)
	assert.Equal(t, res.DocumentID, doc.ID)
	assert.Equal(t, knowledge.DocTypeConversion, doc.DocType)
}

func TestReingestReplacesChunkSet(t *testing.T) {
	store, _, ctx := newTestStore(t)

	first, err := store.Upsert(ctx, knowledge.UpsertParams{
		Title:   "Portion Guide",
		DocType: knowledge.DocTypePortion,
		Text: "Obsoletemarker paragraph one about portions.\n\n" +
			"Obsoletemarker paragraph two about portions.\n\n" +
			"Obsoletemarker paragraph three about portions.",
		ChunkTargetTokens: 12,
	})
	require.NoError(t, err)
	require.Greater(t, first.ChunkCount, 1)

	second, err := store.Upsert(ctx, knowledge.UpsertParams{
		Title:   "Portion Guide",
		DocType: knowledge.DocTypePortion,
		Text:    "Replacement guidance about realistic serving sizes.",
	})
	require.NoError(t, err)
	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Equal(t, 1, second.ChunkCount)

	indexes := chunkIndexes(t, store, ctx, second.DocumentID)
	assert.Equal(t, []int{0}, indexes)

	// The old version is gone for every retrieval path.
	stale, err := store.SearchText(ctx, []string{"obsoletemarker"}, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, stale)

	fresh, err := store.SearchText(ctx, []string{"replacement", "serving"}, nil, 10)
	require.NoError(t, err)
	require.NotEmpty(t, fresh)
	assert.Equal(t, "Replacement guidance about realistic serving sizes.", fresh[0].Content)
}

func TestUpsertValidation(t *testing.T) {
	store, _, ctx := newTestStore(t)

	_, err := store.Upsert(ctx, knowledge.UpsertParams{Title: " ", DocType: knowledge.DocTypeRule, Text: "x"})
	assert.ErrorIs(t, err, knowledge.ErrInvalidDocument)

	_, err = store.Upsert(ctx, knowledge.UpsertParams{Title: "Empty", DocType: knowledge.DocTypeRule, Text: "  \n\n  "})
	assert.ErrorIs(t, err, knowledge.ErrEmptyDocument)

	// A refused ingestion leaves nothing behind.
	_, err = store.GetDocument(ctx, "Empty")
	assert.Error(t, err)
}

func TestVectorSearchRanksByCosineSimilarity(t *testing.T) {
	store, embedder, ctx := newTestStore(t)

	chicken := "Grilled chicken breast, 6 oz cooked weight: approximately 280 calories, 53 g protein."
	oatmeal := "Oatmeal, 1 cup cooked: approximately 160 calories, 6 g protein."
	embedder.Set(chicken, testutil.UnitVector(0))
	embedder.Set(oatmeal, testutil.UnitVector(1))

	for title, text := range map[string]string{"Chicken": chicken, "Oatmeal": oatmeal} {
		_, err := store.Upsert(ctx, knowledge.UpsertParams{
			Title: title, DocType: knowledge.DocTypeFood, Text: text,
		})
		require.NoError(t, err)
	}

	results, err := store.SearchVector(ctx, testutil.BlendedVector(0, 1, 0.9, 0.1), []string{knowledge.DocTypeFood}, 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, chicken, results[0].Content)
	assert.Greater(t, results[0].Similarity, results[1].Similarity)
	assert.Greater(t, results[0].Similarity, 0.6)
}

func TestVectorSearchSkipsUnembeddedChunks(t *testing.T) {
	store, embedder, ctx := newTestStore(t)

	embedded := "Lentil soup, 1 cup: approximately 180 calories."
	unembedded := "Mystery casserole with no provider vector."
	embedder.Set(embedded, testutil.UnitVector(2))

	for title, text := range map[string]string{"Soup": embedded, "Casserole": unembedded} {
		_, err := store.Upsert(ctx, knowledge.UpsertParams{
			Title: title, DocType: knowledge.DocTypeFood, Text: text,
		})
		require.NoError(t, err)
	}

	results, err := store.SearchVector(ctx, testutil.UnitVector(2), nil, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, embedded, results[0].Content)

	// The unembedded chunk stays reachable through text search.
	viaText, err := store.SearchText(ctx, []string{"casserole"}, nil, 10)
	require.NoError(t, err)
	require.Len(t, viaText, 1)
}

func TestSearchTextFiltersDocTypes(t *testing.T) {
	store, _, ctx := newTestStore(t)

	_, err := store.Upsert(ctx, knowledge.UpsertParams{
		Title: "Swap Ideas", DocType: knowledge.DocTypeSupport,
		Text: "Swap fries for a side salad to cut roughly 250 calories.",
	})
	require.NoError(t, err)

	support, err := store.SearchText(ctx, []string{"salad"}, []string{knowledge.DocTypeSupport}, 10)
	require.NoError(t, err)
	assert.Len(t, support, 1)

	food, err := store.SearchText(ctx, []string{"salad"}, []string{knowledge.DocTypeFood}, 10)
	require.NoError(t, err)
	assert.Empty(t, food)
}

func TestConcurrentSameTitleUpserts(t *testing.T) {
	store, _, ctx := newTestStore(t)

	g := new(errgroup.Group)
	for i := range 4 {
		g.Go(func() error {
			_, err := store.Upsert(ctx, knowledge.UpsertParams{
				Title:   "Contended Doc",
				DocType: knowledge.DocTypeRule,
				Text: fmt.Sprintf("Version %d paragraph one.\n\nVersion %d paragraph two.\n\nVersion %d paragraph three.",
					i, i, i),
				ChunkTargetTokens: 8,
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	// Whichever writer committed last, the chunk set is one coherent version.
	doc, err := store.GetDocument(ctx, "Contended Doc")
	require.NoError(t, err)
	indexes := chunkIndexes(t, store, context.Background(), doc.ID)
	require.NotEmpty(t, indexes)
	for i, idx := range indexes {
		assert.Equal(t, i, idx)
	}
}

func TestHealthOnMigratedDatabase(t *testing.T) {
	store, _, ctx := newTestStore(t)

	_, err := store.Upsert(ctx, knowledge.UpsertParams{
		Title: "Health Probe", DocType: knowledge.DocTypeRule,
		Text: "A single short rule document.",
	})
	require.NoError(t, err)

	h, err := store.Health(ctx)
	require.NoError(t, err)
	assert.True(t, h.VectorExtension)
	assert.True(t, h.Ready())
	assert.EqualValues(t, 1, h.Documents)
	assert.EqualValues(t, 1, h.Chunks)
}
