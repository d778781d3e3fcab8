// Package search answers similarity queries against the retrieval store.
package search

import (
	"context"
	"fmt"

	"github.com/codeatlas-dev/codeatlas/internal/chunk"
)

// QueryEmbedder encodes query text into the same vector space chunks were
// embedded into at ingestion time.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store answers nearest-neighbor queries over persisted chunk vectors.
type Store interface {
	Search(ctx context.Context, collection string, vector []float32, limit int, filter map[string]interface{}) ([]chunk.Chunk, error)
}

// Searcher runs retrieval queries: embed the query text, then rank stored
// chunks by similarity.
type Searcher struct {
	embedder   QueryEmbedder
	store      Store
	collection string
}

// NewSearcher creates a searcher over the given collection.
func NewSearcher(embedder QueryEmbedder, store Store, collection string) *Searcher {
	return &Searcher{
		embedder:   embedder,
		store:      store,
		collection: collection,
	}
}

// Search returns up to topK chunks ordered by descending similarity to the
// query. filter optionally restricts by payload fields (e.g. language, kind).
func (s *Searcher) Search(ctx context.Context, query string, topK int, filter map[string]interface{}) ([]chunk.Chunk, error) {
	if topK <= 0 {
		topK = 10
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := s.store.Search(ctx, s.collection, vector, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	return results, nil
}
