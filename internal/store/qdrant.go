// Package store provides the vector retrieval store backed by Qdrant.
package store

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/codeatlas-dev/codeatlas/internal/analyzer"
	"github.com/codeatlas-dev/codeatlas/internal/chunk"
)

// StoreError reports a retrieval-store fault.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("retrieval store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// QdrantStore persists chunk vectors with metadata and answers
// nearest-neighbor similarity queries.
type QdrantStore struct {
	client *qdrant.Client
}

// NewQdrantStore creates a new Qdrant store.
func NewQdrantStore(url string) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: url,
	})
	if err != nil {
		return nil, &StoreError{Op: "connect", Err: err}
	}

	return &QdrantStore{client: client}, nil
}

// Close closes the Qdrant connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// EnsureCollection creates the collection if it doesn't exist, with cosine
// distance over vectors of the given size.
func (s *QdrantStore) EnsureCollection(ctx context.Context, name string, vectorSize int) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return &StoreError{Op: "collection check", Err: err}
	}

	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(vectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return &StoreError{Op: "collection create", Err: err}
	}
	return nil
}

// DeleteCollection removes a collection.
func (s *QdrantStore) DeleteCollection(ctx context.Context, name string) error {
	return s.client.DeleteCollection(ctx, name)
}

// pointID derives the Qdrant point id from a chunk's content-hash id.
// Qdrant accepts only UUIDs or unsigned ints as point ids, so the hash is
// folded into a deterministic UUID-shaped string.
func pointID(chunkID string) string {
	sum := sha256.Sum256([]byte(chunkID))
	return fmt.Sprintf("%x-%x-%x-%x-%x", sum[0:4], sum[4:6], sum[6:8], sum[8:10], sum[10:16])
}

// UpsertChunks inserts or updates chunks with their vectors and metadata.
func (s *QdrantStore) UpsertChunks(ctx context.Context, collection string, chunks []chunk.Chunk) error {
	points := make([]*qdrant.PointStruct, len(chunks))

	for i, c := range chunks {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(pointID(c.ID)),
			Vectors: qdrant.NewVectors(c.Vector...),
			Payload: qdrant.NewValueMap(chunkPayload(c)),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
	})
	if err != nil {
		return &StoreError{Op: "upsert", Err: err}
	}
	return nil
}

// ExistingIDs reports which of the given chunk ids are already present in
// the collection. Used as the dedup check for incremental re-ingestion.
func (s *QdrantStore) ExistingIDs(ctx context.Context, collection string, ids []string) (map[string]bool, error) {
	if len(ids) == 0 {
		return map[string]bool{}, nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	byPoint := make(map[string]string, len(ids))
	for i, id := range ids {
		pid := pointID(id)
		pointIDs[i] = qdrant.NewID(pid)
		byPoint[pid] = id
	}

	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: collection,
		Ids:            pointIDs,
		WithPayload:    qdrant.NewWithPayload(false),
	})
	if err != nil {
		return nil, &StoreError{Op: "id lookup", Err: err}
	}

	existing := make(map[string]bool, len(points))
	for _, p := range points {
		if id, ok := byPoint[p.Id.GetUuid()]; ok {
			existing[id] = true
		}
	}
	return existing, nil
}

// Search performs vector similarity search, returning chunks ordered by
// descending cosine similarity, at most limit of them.
func (s *QdrantStore) Search(ctx context.Context, collection string, vector []float32, limit int, filter map[string]interface{}) ([]chunk.Chunk, error) {
	var qdrantFilter *qdrant.Filter
	if filter != nil {
		qdrantFilter = buildFilter(filter)
	}

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		Filter:         qdrantFilter,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, &StoreError{Op: "search", Err: err}
	}

	chunks := make([]chunk.Chunk, len(results))
	for i, r := range results {
		chunks[i] = payloadToChunk(r.Payload)
		chunks[i].Score = r.Score
	}

	return chunks, nil
}

// CollectionInfo contains collection metadata.
type CollectionInfo struct {
	PointsCount int64
	VectorSize  int
	Status      string
}

// CollectionInfo gets collection metadata.
func (s *QdrantStore) CollectionInfo(ctx context.Context, name string) (*CollectionInfo, error) {
	info, err := s.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return nil, &StoreError{Op: "collection info", Err: err}
	}

	vectorSize := 0
	if params := info.Config.GetParams(); params != nil {
		if vecConfig := params.GetVectorsConfig(); vecConfig != nil {
			if vecParams := vecConfig.GetParams(); vecParams != nil {
				vectorSize = int(vecParams.GetSize())
			}
		}
	}

	pointsCount := int64(0)
	if info.PointsCount != nil {
		pointsCount = int64(*info.PointsCount)
	}

	return &CollectionInfo{
		PointsCount: pointsCount,
		VectorSize:  vectorSize,
		Status:      info.Status.String(),
	}, nil
}

func buildFilter(filter map[string]interface{}) *qdrant.Filter {
	var must []*qdrant.Condition

	for key, value := range filter {
		switch v := value.(type) {
		case string:
			must = append(must, &qdrant.Condition{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: key,
						Match: &qdrant.Match{
							MatchValue: &qdrant.Match_Keyword{Keyword: v},
						},
					},
				},
			})
		case bool:
			must = append(must, &qdrant.Condition{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: key,
						Match: &qdrant.Match{
							MatchValue: &qdrant.Match_Boolean{Boolean: v},
						},
					},
				},
			})
		}
	}

	return &qdrant.Filter{Must: must}
}

func chunkPayload(c chunk.Chunk) map[string]interface{} {
	exports := make([]interface{}, len(c.Exports))
	for i, e := range c.Exports {
		exports[i] = map[string]interface{}{
			"style": string(e.Style),
			"code":  e.Code,
		}
	}

	methods := make([]interface{}, len(c.Methods))
	for i, m := range c.Methods {
		methods[i] = map[string]interface{}{
			"name":          m.Name,
			"params":        toAnyList(m.Params),
			"calls":         toAnyList(m.Calls),
			"mutates_state": m.MutatesState,
			"mutations":     toAnyList(m.Mutations),
			"code":          m.Code,
		}
	}

	return map[string]interface{}{
		"id":          c.ID,
		"kind":        string(c.Kind),
		"name":        c.Name,
		"language":    c.Language,
		"source_path": c.SourcePath,
		"code":        c.Code,
		"params":      toAnyList(c.Params),
		"imports":     toAnyList(c.Imports),
		"exports":     exports,
		"methods":     methods,
	}
}

func toAnyList(values []string) []interface{} {
	list := make([]interface{}, len(values))
	for i, v := range values {
		list[i] = v
	}
	return list
}

func payloadToChunk(payload map[string]*qdrant.Value) chunk.Chunk {
	getString := func(key string) string {
		if v, ok := payload[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	getStrings := func(key string) []string {
		v, ok := payload[key]
		if !ok || v.GetListValue() == nil {
			return nil
		}
		return valuesToStrings(v.GetListValue().GetValues())
	}

	var exports []analyzer.Export
	if v, ok := payload["exports"]; ok && v.GetListValue() != nil {
		for _, item := range v.GetListValue().GetValues() {
			fields := item.GetStructValue().GetFields()
			if fields == nil {
				continue
			}
			exports = append(exports, analyzer.Export{
				Style: analyzer.ExportStyle(fields["style"].GetStringValue()),
				Code:  fields["code"].GetStringValue(),
			})
		}
	}

	var methods []analyzer.Method
	if v, ok := payload["methods"]; ok && v.GetListValue() != nil {
		for _, item := range v.GetListValue().GetValues() {
			fields := item.GetStructValue().GetFields()
			if fields == nil {
				continue
			}
			methods = append(methods, analyzer.Method{
				Name:         fields["name"].GetStringValue(),
				Params:       valuesToStrings(fields["params"].GetListValue().GetValues()),
				Calls:        valuesToStrings(fields["calls"].GetListValue().GetValues()),
				MutatesState: fields["mutates_state"].GetBoolValue(),
				Mutations:    valuesToStrings(fields["mutations"].GetListValue().GetValues()),
				Code:         fields["code"].GetStringValue(),
			})
		}
	}

	return chunk.Chunk{
		ID:         getString("id"),
		Kind:       chunk.Kind(getString("kind")),
		Name:       getString("name"),
		Language:   getString("language"),
		SourcePath: getString("source_path"),
		Code:       getString("code"),
		Params:     getStrings("params"),
		Imports:    getStrings("imports"),
		Exports:    exports,
		Methods:    methods,
	}
}

func valuesToStrings(values []*qdrant.Value) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.GetStringValue()
	}
	return out
}
