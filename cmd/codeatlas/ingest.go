// cmd/codeatlas/ingest.go
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/codeatlas-dev/codeatlas/internal/cache"
	"github.com/codeatlas-dev/codeatlas/internal/embedding"
	"github.com/codeatlas-dev/codeatlas/internal/pipeline"
	"github.com/codeatlas-dev/codeatlas/internal/store"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Ingest a source tree into the retrieval store",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	absPath, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	if _, err := os.Stat(absPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("source tree not found: %s", absPath)
		}
		return fmt.Errorf("failed to stat source tree: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg.Logging.Level)

	voyageKey := os.Getenv("VOYAGE_API_KEY")
	if voyageKey == "" {
		return fmt.Errorf("VOYAGE_API_KEY environment variable not set")
	}
	embedder := embedding.NewVoyageClient(voyageKey, cfg.Embedding.Model)

	// Store and cache connectivity are checked up front: a run never starts
	// partially configured.
	qdrantStore, err := store.NewQdrantStore(cfg.Storage.QdrantURL)
	if err != nil {
		return fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	defer qdrantStore.Close()

	var seen pipeline.SeenCache
	if cfg.Storage.RedisURL != "" {
		redisCache, err := cache.NewRedisCache(cfg.Storage.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer redisCache.Close()
		seen = redisCache
	}

	walker := pipeline.NewWalker(cfg.Pipeline.Include, cfg.Pipeline.Exclude)
	files, err := walker.Discover(absPath)
	if err != nil {
		return fmt.Errorf("file discovery failed: %w", err)
	}

	p := pipeline.New(embedder, qdrantStore, seen, pipeline.Config{
		Collection:       cfg.Storage.Collection,
		Workers:          cfg.Pipeline.Workers,
		EmbedConcurrency: cfg.Pipeline.EmbedConcurrency,
		EmbedBatchSize:   cfg.Pipeline.EmbedBatchSize,
		Retry: embedding.RetryConfig{
			MaxAttempts: cfg.Pipeline.RetryAttempts,
			BaseDelay:   time.Duration(cfg.Pipeline.RetryBaseMs) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.Pipeline.RetryMaxMs) * time.Millisecond,
			Multiplier:  2.0,
		},
	}, logger)

	fmt.Printf("Ingesting %s (%d files)...\n", absPath, len(files))

	report, err := p.Run(context.Background(), files)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Printf("\nIngestion complete:\n")
	fmt.Printf("  Files attempted:  %d\n", report.FilesAttempted)
	fmt.Printf("  Chunks extracted: %d\n", report.ChunksExtracted)
	fmt.Printf("  Chunks skipped:   %d (already known)\n", report.ChunksSkipped)
	fmt.Printf("  Chunks persisted: %d\n", report.ChunksPersisted)

	if len(report.FileFailures) > 0 {
		fmt.Printf("  File failures: %d\n", len(report.FileFailures))
		for _, f := range report.FileFailures {
			fmt.Printf("    - %s: %v\n", f.Path, f.Err)
		}
	}
	if len(report.ChunkFailures) > 0 {
		fmt.Printf("  Chunk failures: %d\n", len(report.ChunkFailures))
		for _, c := range report.ChunkFailures {
			fmt.Printf("    - %s (%s): %v\n", c.ID, c.Path, c.Err)
		}
	}

	if report.PartiallyFailed() {
		return fmt.Errorf("run partially failed")
	}
	return nil
}
