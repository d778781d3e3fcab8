// cmd/codeatlas/invalidate.go
package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codeatlas-dev/codeatlas/internal/cache"
	"github.com/codeatlas-dev/codeatlas/internal/store"
)

var invalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Drop the collection and forget cached chunk ids",
	Long: `Deletes the vector collection and clears the seen-chunk cache for it.
The next ingest starts from a clean slate; without this, cached chunk ids
would keep marking content as already persisted after the collection is gone.`,
	RunE: runInvalidate,
}

func init() {
	rootCmd.AddCommand(invalidateCmd)
}

func runInvalidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx := context.Background()

	qdrantStore, err := store.NewQdrantStore(cfg.Storage.QdrantURL)
	if err != nil {
		return fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	defer qdrantStore.Close()

	if err := qdrantStore.DeleteCollection(ctx, cfg.Storage.Collection); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}

	if cfg.Storage.RedisURL != "" {
		redisCache, err := cache.NewRedisCache(cfg.Storage.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer redisCache.Close()

		if err := redisCache.Clear(ctx, cfg.Storage.Collection); err != nil {
			return fmt.Errorf("failed to clear seen cache: %w", err)
		}
	}

	fmt.Printf("Collection %q invalidated.\n", cfg.Storage.Collection)
	return nil
}
