// Package pipeline orchestrates ingestion: parse, extract, normalize, dedup
// against prior runs, embed, and store.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/codeatlas-dev/codeatlas/internal/analyzer"
	"github.com/codeatlas-dev/codeatlas/internal/chunk"
	"github.com/codeatlas-dev/codeatlas/internal/embedding"
	"github.com/codeatlas-dev/codeatlas/internal/parser"
)

// Embedder converts chunk text into fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// VectorStore persists chunk vectors with metadata.
type VectorStore interface {
	EnsureCollection(ctx context.Context, name string, vectorSize int) error
	ExistingIDs(ctx context.Context, collection string, ids []string) (map[string]bool, error)
	UpsertChunks(ctx context.Context, collection string, chunks []chunk.Chunk) error
}

// SeenCache remembers chunk ids persisted by earlier runs. It is an
// optimization in front of the store's id lookup, never the source of truth.
type SeenCache interface {
	KnownChunks(ctx context.Context, collection string, ids []string) (map[string]bool, error)
	MarkChunks(ctx context.Context, collection string, ids []string) error
}

// Config holds pipeline tuning knobs.
type Config struct {
	Collection       string
	Workers          int // concurrent files; each worker owns its parser
	EmbedConcurrency int // concurrent provider calls across all workers
	EmbedBatchSize   int // max texts per provider call
	Retry            embedding.RetryConfig
}

// Pipeline runs the ingestion flow over a set of files. Collaborators are
// injected at construction and scoped to the pipeline, not the process, so
// they can be substituted with test doubles.
type Pipeline struct {
	embedder   Embedder
	store      VectorStore
	cache      SeenCache // optional; nil disables the fast dedup path
	normalizer *chunk.Normalizer
	cfg        Config
	logger     *slog.Logger

	embedSem chan struct{}
}

// New creates a pipeline with the given collaborators.
func New(embedder Embedder, store VectorStore, cache SeenCache, cfg Config, logger *slog.Logger) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = 2
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 128 // Voyage per-request input cap
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = embedding.DefaultRetryConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		embedder:   embedder,
		store:      store,
		cache:      cache,
		normalizer: chunk.NewNormalizer(),
		cfg:        cfg,
		logger:     logger,
		embedSem:   make(chan struct{}, cfg.EmbedConcurrency),
	}
}

// Run ingests the given files and returns the run report. A failing file or
// chunk never aborts the run; only startup-time store setup is fatal.
func (p *Pipeline) Run(ctx context.Context, files []File) (*Report, error) {
	if err := p.store.EnsureCollection(ctx, p.cfg.Collection, p.embedder.Dimension()); err != nil {
		return nil, fmt.Errorf("ensure collection: %w", err)
	}

	report := newReport()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)

	for _, f := range files {
		g.Go(func() error {
			p.processFile(gctx, f, report)
			return nil // per-file failures are recorded, never propagated
		})
	}

	// Workers never return errors; Wait only synchronizes.
	_ = g.Wait()

	return report, nil
}

func (p *Pipeline) processFile(ctx context.Context, f File, report *Report) {
	report.addFile()

	if ctx.Err() != nil {
		report.addFileFailure(f.Path, ctx.Err())
		return
	}

	// Parsers hold grammar state and are not safe to share; each file gets
	// a worker-local instance.
	psr, err := parser.NewParser(f.Language)
	if err != nil {
		report.addFileFailure(f.Path, err)
		return
	}

	tree, err := psr.Parse(ctx, f.Source)
	if err != nil {
		report.addFileFailure(f.Path, err)
		return
	}
	defer tree.Close()

	analysis, err := analyzer.Analyze(f.Language, tree.RootNode(), f.Source)
	if err != nil {
		report.addFileFailure(f.Path, err)
		return
	}
	for _, uerr := range analysis.Errors {
		p.logger.Warn("unit skipped", "path", f.Path, "err", uerr)
	}

	chunks := p.normalizer.Normalize(analysis, string(f.Language), f.Path)
	report.addExtracted(len(chunks))
	if len(chunks) == 0 {
		return
	}

	fresh, err := p.dedup(ctx, chunks)
	if err != nil {
		report.addFileFailure(f.Path, err)
		return
	}
	report.addSkipped(len(chunks) - len(fresh))
	if len(fresh) == 0 {
		p.logger.Debug("file unchanged", "path", f.Path)
		return
	}

	p.embedAndStore(ctx, f.Path, fresh, report)
}

// dedup filters out chunks whose ids are already persisted: the seen cache
// answers first, the store resolves the rest.
func (p *Pipeline) dedup(ctx context.Context, chunks []chunk.Chunk) ([]chunk.Chunk, error) {
	ids := chunkIDs(chunks)

	known := map[string]bool{}
	if p.cache != nil {
		cached, err := p.cache.KnownChunks(ctx, p.cfg.Collection, ids)
		if err != nil {
			p.logger.Warn("seen cache unavailable, falling back to store lookup", "err", err)
		} else {
			known = cached
		}
	}

	var unresolved []string
	for _, id := range ids {
		if !known[id] {
			unresolved = append(unresolved, id)
		}
	}

	if len(unresolved) > 0 {
		existing, err := p.store.ExistingIDs(ctx, p.cfg.Collection, unresolved)
		if err != nil {
			return nil, err
		}
		for id := range existing {
			known[id] = true
		}
	}

	var fresh []chunk.Chunk
	for _, c := range chunks {
		if !known[c.ID] {
			fresh = append(fresh, c)
		}
	}
	return fresh, nil
}

// embedAndStore embeds a file's fresh chunks and persists them in a single
// upsert, so an abandoned file leaves no partially-persisted chunk. Chunks
// that exhaust embedding retries are reported as failed, never dropped
// silently.
func (p *Pipeline) embedAndStore(ctx context.Context, path string, chunks []chunk.Chunk, report *Report) {
	ids := chunkIDs(chunks)

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].EmbeddingText()
	}

	// Embedding is the only stage allowed to block on retry/backoff; the
	// semaphore bounds concurrent provider calls across all workers.
	select {
	case p.embedSem <- struct{}{}:
	case <-ctx.Done():
		report.addChunkFailures(path, ids, ctx.Err())
		return
	}
	vectors, err := p.embedBatched(ctx, texts)
	<-p.embedSem

	if err != nil {
		report.addChunkFailures(path, ids, err)
		return
	}
	if len(vectors) != len(chunks) {
		report.addChunkFailures(path, ids, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks)))
		return
	}
	for i := range chunks {
		chunks[i].Vector = vectors[i]
	}

	if ctx.Err() != nil {
		report.addChunkFailures(path, ids, ctx.Err())
		return
	}

	if err := p.store.UpsertChunks(ctx, p.cfg.Collection, chunks); err != nil {
		report.addChunkFailures(path, ids, err)
		return
	}
	report.addPersisted(ids)

	if p.cache != nil {
		if err := p.cache.MarkChunks(ctx, p.cfg.Collection, ids); err != nil {
			p.logger.Warn("failed to mark chunks as seen", "err", err)
		}
	}
}

// embedBatched splits texts into provider-sized batches, each retried
// independently, and returns the vectors in input order. A single oversized
// request would be rejected outright by the provider, so the cap is applied
// here rather than left to the caller's file size.
func (p *Pipeline) embedBatched(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += p.cfg.EmbedBatchSize {
		end := start + p.cfg.EmbedBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := texts[start:end]
		vs, err := embedding.Retry(ctx, p.cfg.Retry, func() ([][]float32, error) {
			return p.embedder.Embed(ctx, batch)
		})
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
		vectors = append(vectors, vs...)
	}

	return vectors, nil
}

func chunkIDs(chunks []chunk.Chunk) []string {
	ids := make([]string, len(chunks))
	for i := range chunks {
		ids[i] = chunks[i].ID
	}
	return ids
}
