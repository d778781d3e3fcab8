package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeatlas-dev/codeatlas/internal/chunk"
	"github.com/codeatlas-dev/codeatlas/internal/embedding"
	"github.com/codeatlas-dev/codeatlas/internal/parser"
)

// fakeEmbedder returns constant vectors and records provider calls.
type fakeEmbedder struct {
	mu       sync.Mutex
	calls    int
	sizes    []int
	failures int // fail this many initial calls with a retryable fault
	badCall  int // 1-based call index that fails permanently; 0 disables
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.sizes = append(f.sizes, len(texts))
	if f.badCall != 0 && f.calls == f.badCall {
		return nil, &embedding.ProviderError{StatusCode: 400, Message: "too many inputs"}
	}
	if f.calls <= f.failures {
		return nil, &embedding.ProviderError{StatusCode: 503, Message: "overloaded"}
	}

	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0, 0}
	}
	return vectors, nil
}

func (f *fakeEmbedder) Dimension() int { return 4 }

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeEmbedder) callSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.sizes...)
}

// fakeStore keeps points in memory.
type fakeStore struct {
	mu        sync.Mutex
	points    map[string]chunk.Chunk
	upserts   int
	lookups   int
	ensureErr error
	upsertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{points: make(map[string]chunk.Chunk)}
}

func (f *fakeStore) EnsureCollection(_ context.Context, _ string, _ int) error {
	return f.ensureErr
}

func (f *fakeStore) ExistingIDs(_ context.Context, _ string, ids []string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lookups++
	existing := map[string]bool{}
	for _, id := range ids {
		if _, ok := f.points[id]; ok {
			existing[id] = true
		}
	}
	return existing, nil
}

func (f *fakeStore) UpsertChunks(_ context.Context, _ string, chunks []chunk.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts++
	for _, c := range chunks {
		f.points[c.ID] = c
	}
	return nil
}

func (f *fakeStore) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upserts
}

func (f *fakeStore) lookupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups
}

// fakeSeenCache is an in-memory SeenCache.
type fakeSeenCache struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newFakeSeenCache() *fakeSeenCache {
	return &fakeSeenCache{seen: make(map[string]bool)}
}

func (f *fakeSeenCache) KnownChunks(_ context.Context, _ string, ids []string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	known := map[string]bool{}
	for _, id := range ids {
		if f.seen[id] {
			known[id] = true
		}
	}
	return known, nil
}

func (f *fakeSeenCache) MarkChunks(_ context.Context, _ string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, id := range ids {
		f.seen[id] = true
	}
	return nil
}

func testConfig() Config {
	return Config{
		Collection: "test",
		Workers:    2,
		Retry: embedding.RetryConfig{
			MaxAttempts: 2,
			BaseDelay:   time.Millisecond,
			MaxDelay:    5 * time.Millisecond,
			Multiplier:  2.0,
		},
	}
}

func jsFile(path, code string) File {
	return File{Path: path, Language: parser.LanguageJavaScript, Source: []byte(code)}
}

func TestRunPersistsChunks(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := newFakeStore()

	p := New(embedder, store, nil, testConfig(), nil)

	files := []File{
		jsFile("app.js", `
function handle(req) {}
const shortcut = (x) => x;
class Server {
    start() { this.running = true; }
}
`),
	}

	report, err := p.Run(context.Background(), files)
	require.NoError(t, err)

	assert.Equal(t, 1, report.FilesAttempted)
	assert.Empty(t, report.FileFailures)
	assert.Equal(t, 3, report.ChunksExtracted)
	assert.Equal(t, 0, report.ChunksSkipped)
	assert.Equal(t, 3, report.ChunksPersisted)
	assert.Empty(t, report.ChunkFailures)

	assert.Len(t, store.points, 3)
	for _, c := range store.points {
		assert.Len(t, c.Vector, 4)
	}
}

func TestRunIdempotentReingest(t *testing.T) {
	store := newFakeStore()
	files := []File{jsFile("app.js", `function stable(a, b) { return a + b; }`)}

	first := &fakeEmbedder{}
	p1 := New(first, store, nil, testConfig(), nil)
	report1, err := p1.Run(context.Background(), files)
	require.NoError(t, err)
	assert.Equal(t, 1, report1.ChunksPersisted)

	// Re-ingesting unchanged content triggers zero embed and zero upsert calls.
	second := &fakeEmbedder{}
	p2 := New(second, store, nil, testConfig(), nil)
	report2, err := p2.Run(context.Background(), files)
	require.NoError(t, err)

	assert.Equal(t, 0, second.callCount())
	assert.Equal(t, 1, store.upsertCount())
	assert.Equal(t, 1, report2.ChunksSkipped)
	assert.Equal(t, 0, report2.ChunksPersisted)
	assert.Empty(t, report2.ChunkFailures)
}

func TestRunSeenCacheShortCircuitsStoreLookup(t *testing.T) {
	store := newFakeStore()
	seen := newFakeSeenCache()
	files := []File{jsFile("app.js", `function cached() {}`)}

	p1 := New(&fakeEmbedder{}, store, seen, testConfig(), nil)
	_, err := p1.Run(context.Background(), files)
	require.NoError(t, err)

	lookupsAfterFirst := store.lookupCount()

	p2 := New(&fakeEmbedder{}, store, seen, testConfig(), nil)
	report, err := p2.Run(context.Background(), files)
	require.NoError(t, err)

	// The cache answered; the store was not consulted again.
	assert.Equal(t, lookupsAfterFirst, store.lookupCount())
	assert.Equal(t, 1, report.ChunksSkipped)
}

func TestRunPartialFailureIsolation(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := newFakeStore()

	p := New(embedder, store, nil, testConfig(), nil)

	files := []File{
		{Path: "bad.js", Language: parser.LanguageJavaScript, Source: []byte{0xff, 0xfe}},
		jsFile("good.js", `function survives() {}`),
	}

	report, err := p.Run(context.Background(), files)
	require.NoError(t, err)

	require.Len(t, report.FileFailures, 1)
	assert.Equal(t, "bad.js", report.FileFailures[0].Path)

	var parseErr *parser.ParseError
	assert.True(t, errors.As(report.FileFailures[0].Err, &parseErr))

	// The bad file contributed zero chunks; the good file was unaffected.
	assert.Equal(t, 1, report.ChunksExtracted)
	assert.Equal(t, 1, report.ChunksPersisted)
}

func TestRunRetryExhaustionReportsEveryChunk(t *testing.T) {
	embedder := &fakeEmbedder{failures: 1000} // never succeeds
	store := newFakeStore()

	p := New(embedder, store, nil, testConfig(), nil)

	files := []File{jsFile("app.js", `
function one() {}
function two() {}
`)}

	report, err := p.Run(context.Background(), files)
	require.NoError(t, err)

	// Bounded attempts, then every unpersisted chunk id is listed.
	assert.Equal(t, 2, embedder.callCount())
	assert.Equal(t, 0, report.ChunksPersisted)
	assert.Len(t, report.ChunkFailures, 2)
	assert.True(t, report.PartiallyFailed())
	assert.Empty(t, store.points)
}

func TestRunRetryRecovers(t *testing.T) {
	embedder := &fakeEmbedder{failures: 1}
	store := newFakeStore()

	p := New(embedder, store, nil, testConfig(), nil)

	report, err := p.Run(context.Background(), []File{jsFile("app.js", `function flaky() {}`)})
	require.NoError(t, err)

	assert.Equal(t, 2, embedder.callCount())
	assert.Equal(t, 1, report.ChunksPersisted)
	assert.Empty(t, report.ChunkFailures)
}

func manyFunctions(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "function fn%d() { return %d; }\n", i, i)
	}
	return sb.String()
}

func TestRunEmbedsInProviderSizedBatches(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := newFakeStore()

	cfg := testConfig()
	cfg.EmbedBatchSize = 2
	p := New(embedder, store, nil, cfg, nil)

	report, err := p.Run(context.Background(), []File{jsFile("big.js", manyFunctions(5))})
	require.NoError(t, err)

	// No single provider call exceeds the batch cap.
	assert.Equal(t, []int{2, 2, 1}, embedder.callSizes())
	assert.Equal(t, 5, report.ChunksPersisted)
	assert.Empty(t, report.ChunkFailures)

	require.Len(t, store.points, 5)
	for _, c := range store.points {
		assert.Len(t, c.Vector, 4)
	}
}

func TestRunBatchFailureFailsWholeFile(t *testing.T) {
	embedder := &fakeEmbedder{badCall: 2} // second batch fails permanently
	store := newFakeStore()

	cfg := testConfig()
	cfg.EmbedBatchSize = 2
	p := New(embedder, store, nil, cfg, nil)

	report, err := p.Run(context.Background(), []File{jsFile("big.js", manyFunctions(3))})
	require.NoError(t, err)

	// A failed batch fails the whole file: nothing is partially persisted.
	assert.Equal(t, 0, report.ChunksPersisted)
	assert.Len(t, report.ChunkFailures, 3)
	assert.Empty(t, store.points)
}

func TestRunStoreFailureListsChunkIDs(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := newFakeStore()
	store.upsertErr = errors.New("write refused")

	p := New(embedder, store, nil, testConfig(), nil)

	report, err := p.Run(context.Background(), []File{jsFile("app.js", `function doomed() {}`)})
	require.NoError(t, err)

	assert.Equal(t, 0, report.ChunksPersisted)
	require.Len(t, report.ChunkFailures, 1)
	assert.NotEmpty(t, report.ChunkFailures[0].ID)
	assert.True(t, report.PartiallyFailed())
}

func TestRunStartupFaultIsFatal(t *testing.T) {
	store := newFakeStore()
	store.ensureErr = errors.New("store unreachable")

	p := New(&fakeEmbedder{}, store, nil, testConfig(), nil)

	_, err := p.Run(context.Background(), []File{jsFile("app.js", `function never() {}`)})
	require.Error(t, err)
	assert.Equal(t, 0, store.upsertCount())
}

func TestRunEmptyFileProducesNoChunks(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := newFakeStore()

	p := New(embedder, store, nil, testConfig(), nil)

	report, err := p.Run(context.Background(), []File{jsFile("empty.js", `// nothing here`)})
	require.NoError(t, err)

	assert.Equal(t, 1, report.FilesAttempted)
	assert.Equal(t, 0, report.ChunksExtracted)
	assert.Equal(t, 0, embedder.callCount())
}
