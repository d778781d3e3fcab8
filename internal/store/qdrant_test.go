package store

import (
	"context"
	"os"
	"regexp"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeatlas-dev/codeatlas/internal/analyzer"
	"github.com/codeatlas-dev/codeatlas/internal/chunk"
)

func TestPointIDDeterministic(t *testing.T) {
	id := chunk.GenerateID(chunk.KindFunction, "foo", "javascript", "function foo() {}")

	assert.Equal(t, pointID(id), pointID(id))
	assert.NotEqual(t, pointID(id), pointID(id+"x"))

	// Qdrant only accepts UUID-shaped string ids.
	uuidShape := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	assert.Regexp(t, uuidShape, pointID(id))
}

func TestPayloadRoundTrip(t *testing.T) {
	original := chunk.Chunk{
		ID:         "abc123",
		Kind:       chunk.KindClass,
		Name:       "Account",
		Language:   "javascript",
		SourcePath: "src/account.js",
		Code:       "class Account { deposit(n) { this.balance += n; } }",
		Imports:    []string{"events", "util"},
		Exports: []analyzer.Export{
			{Style: analyzer.ExportDefault, Code: "export default Account;"},
		},
		Methods: []analyzer.Method{
			{
				Name:         "deposit",
				Params:       []string{"n"},
				Calls:        []string{"this.emit"},
				MutatesState: true,
				Mutations:    []string{"this.balance"},
				Code:         "deposit(n) { this.balance += n; }",
			},
		},
	}

	payload := qdrant.NewValueMap(chunkPayload(original))
	restored := payloadToChunk(payload)

	assert.Equal(t, original.ID, restored.ID)
	assert.Equal(t, original.Kind, restored.Kind)
	assert.Equal(t, original.Name, restored.Name)
	assert.Equal(t, original.Language, restored.Language)
	assert.Equal(t, original.SourcePath, restored.SourcePath)
	assert.Equal(t, original.Code, restored.Code)
	assert.Equal(t, original.Imports, restored.Imports)
	assert.Equal(t, original.Exports, restored.Exports)
	assert.Equal(t, original.Methods, restored.Methods)
}

func TestPayloadRoundTripFunction(t *testing.T) {
	original := chunk.Chunk{
		ID:       "def456",
		Kind:     chunk.KindFunction,
		Name:     "parse",
		Language: "python",
		Code:     "def parse(raw):\n    return raw",
		Params:   []string{"raw"},
	}

	restored := payloadToChunk(qdrant.NewValueMap(chunkPayload(original)))

	assert.Equal(t, original.Params, restored.Params)
	assert.Empty(t, restored.Exports)
	assert.Empty(t, restored.Methods)
}

func TestBuildFilter(t *testing.T) {
	f := buildFilter(map[string]interface{}{
		"language": "python",
		"kind":     "function",
	})

	assert.Len(t, f.Must, 2)
	for _, cond := range f.Must {
		field := cond.GetField()
		require.NotNil(t, field)
		assert.Contains(t, []string{"language", "kind"}, field.Key)
	}
}

// Integration tests below require a running Qdrant instance.

func testStore(t *testing.T) (*QdrantStore, string) {
	t.Helper()

	url := os.Getenv("QDRANT_URL")
	if url == "" {
		t.Skip("QDRANT_URL not set, skipping integration test")
	}

	store, err := NewQdrantStore(url)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	collection := "codeatlas_test"
	require.NoError(t, store.EnsureCollection(context.Background(), collection, 4))
	t.Cleanup(func() { store.DeleteCollection(context.Background(), collection) })

	return store, collection
}

func testChunk(name string, vector []float32) chunk.Chunk {
	code := "function " + name + "() {}"
	return chunk.Chunk{
		ID:       chunk.GenerateID(chunk.KindFunction, name, "javascript", code),
		Kind:     chunk.KindFunction,
		Name:     name,
		Language: "javascript",
		Code:     code,
		Vector:   vector,
	}
}

func TestUpsertAndSearch(t *testing.T) {
	store, collection := testStore(t)
	ctx := context.Background()

	chunks := []chunk.Chunk{
		testChunk("alpha", []float32{1, 0, 0, 0}),
		testChunk("beta", []float32{0, 1, 0, 0}),
		testChunk("gamma", []float32{0.9, 0.1, 0, 0}),
	}
	require.NoError(t, store.UpsertChunks(ctx, collection, chunks))

	results, err := store.Search(ctx, collection, []float32{1, 0, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Scores are non-increasing and the closest vector ranks first.
	assert.Equal(t, "alpha", results[0].Name)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestSearchLimitExceedsPoints(t *testing.T) {
	store, collection := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertChunks(ctx, collection, []chunk.Chunk{
		testChunk("solo", []float32{1, 0, 0, 0}),
	}))

	results, err := store.Search(ctx, collection, []float32{1, 0, 0, 0}, 10, nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearchWithFilter(t *testing.T) {
	store, collection := testStore(t)
	ctx := context.Background()

	py := testChunk("snake", []float32{1, 0, 0, 0})
	py.Language = "python"
	js := testChunk("camel", []float32{1, 0, 0, 0})

	require.NoError(t, store.UpsertChunks(ctx, collection, []chunk.Chunk{py, js}))

	results, err := store.Search(ctx, collection, []float32{1, 0, 0, 0}, 10, map[string]interface{}{
		"language": "python",
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "snake", results[0].Name)
}

func TestExistingIDs(t *testing.T) {
	store, collection := testStore(t)
	ctx := context.Background()

	known := testChunk("known", []float32{0, 0, 1, 0})
	require.NoError(t, store.UpsertChunks(ctx, collection, []chunk.Chunk{known}))

	existing, err := store.ExistingIDs(ctx, collection, []string{known.ID, "missing-id"})
	require.NoError(t, err)
	assert.True(t, existing[known.ID])
	assert.False(t, existing["missing-id"])
}

func TestUpsertIsIdempotent(t *testing.T) {
	store, collection := testStore(t)
	ctx := context.Background()

	c := testChunk("same", []float32{0, 0, 0, 1})
	require.NoError(t, store.UpsertChunks(ctx, collection, []chunk.Chunk{c}))
	require.NoError(t, store.UpsertChunks(ctx, collection, []chunk.Chunk{c}))

	info, err := store.CollectionInfo(ctx, collection)
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.PointsCount)
}
