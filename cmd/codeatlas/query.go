// cmd/codeatlas/query.go
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codeatlas-dev/codeatlas/internal/embedding"
	"github.com/codeatlas-dev/codeatlas/internal/search"
	"github.com/codeatlas-dev/codeatlas/internal/store"
)

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Query the retrieval store by similarity",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

var (
	queryTopK     int
	queryLanguage string
	queryKind     string
)

func init() {
	queryCmd.Flags().IntVar(&queryTopK, "top-k", 10, "Maximum number of results")
	queryCmd.Flags().StringVar(&queryLanguage, "language", "", "Restrict to a language")
	queryCmd.Flags().StringVar(&queryKind, "kind", "", "Restrict to a chunk kind")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	voyageKey := os.Getenv("VOYAGE_API_KEY")
	if voyageKey == "" {
		return fmt.Errorf("VOYAGE_API_KEY environment variable not set")
	}
	embedder := embedding.NewVoyageClient(voyageKey, cfg.Embedding.Model)

	qdrantStore, err := store.NewQdrantStore(cfg.Storage.QdrantURL)
	if err != nil {
		return fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	defer qdrantStore.Close()

	var filter map[string]interface{}
	if queryLanguage != "" || queryKind != "" {
		filter = map[string]interface{}{}
		if queryLanguage != "" {
			filter["language"] = queryLanguage
		}
		if queryKind != "" {
			filter["kind"] = queryKind
		}
	}

	searcher := search.NewSearcher(embedder, qdrantStore, cfg.Storage.Collection)
	results, err := searcher.Search(context.Background(), args[0], queryTopK, filter)
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}

	for i, c := range results {
		fmt.Printf("%d. %s %s  (score %.4f)\n", i+1, c.Kind, c.Name, c.Score)
		fmt.Printf("   %s [%s]\n", c.SourcePath, c.Language)
	}

	return nil
}
