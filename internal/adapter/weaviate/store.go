package weaviate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"docquery/internal/vector"
)

// Store is the Weaviate-backed vector store gateway. The underlying client
// is stateless and safe for concurrent reuse across requests.
type Store struct {
	client    *weaviate.Client
	className string
}

func NewStore(client *weaviate.Client, className string) *Store {
	return &Store{client: client, className: className}
}

// EnsureSchema idempotently creates the chunk collection. Safe to call
// repeatedly; see vector.EnsureSchema.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return vector.EnsureSchema(ctx, vector.NewSchemaClient(s.client), s.className)
}

// UpsertChunks writes a batch of chunks keyed by chunk ID; re-upserting an
// ID overwrites the stored record. A transport failure returns
// vector.ErrUnavailable and the whole batch must be treated as unverified.
// Otherwise the report lists the IDs Weaviate rejected, which the caller
// reconciles against the attempted set.
func (s *Store) UpsertChunks(ctx context.Context, chunks []vector.Chunk) (*vector.UpsertReport, error) {
	if len(chunks) == 0 {
		return &vector.UpsertReport{}, nil
	}

	objects := make([]*models.Object, len(chunks))
	for i, c := range chunks {
		objects[i] = &models.Object{
			Class:  s.className,
			ID:     strfmt.UUID(c.ID),
			Vector: models.C11yVector(c.Vector),
			Properties: map[string]interface{}{
				"content":         c.Content,
				"source_filename": c.SourceFilename,
				"chunk_index":     c.ChunkIndex,
				"doc_id":          c.DocID,
			},
		}
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: batch upsert: %v", vector.ErrUnavailable, err)
	}

	report := &vector.UpsertReport{Attempted: len(chunks)}
	for i, r := range resp {
		if r.Result == nil || r.Result.Errors == nil || len(r.Result.Errors.Error) == 0 {
			continue
		}
		id := string(r.ID)
		if id == "" && i < len(chunks) {
			id = chunks[i].ID
		}
		report.FailedIDs = append(report.FailedIDs, id)
		for _, e := range r.Result.Errors.Error {
			if e != nil {
				slog.ErrorContext(ctx, "chunk upsert rejected", "chunk_id", id, "message", e.Message)
			}
		}
	}
	return report, nil
}

// NearestNeighbors returns up to limit chunks ordered by ascending cosine
// distance. Fewer results than limit is normal when the index is small; an
// unreachable store returns vector.ErrUnavailable, never an empty success.
func (s *Store) NearestNeighbors(ctx context.Context, queryVector []float32, limit int) ([]vector.Match, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(queryVector)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source_filename"},
		{Name: "chunk_index"},
		{Name: "doc_id"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "distance"}}},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithNearVector(nearVector).
		WithLimit(limit).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: near vector query: %v", vector.ErrUnavailable, err)
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}

	var matches []vector.Match
	data, ok := res.Data["Get"].(map[string]interface{})
	if !ok {
		return matches, nil
	}
	rows, ok := data[s.className].([]interface{})
	if !ok {
		return matches, nil
	}

	for _, row := range rows {
		props, ok := row.(map[string]interface{})
		if !ok {
			continue
		}
		match := vector.Match{}
		if content, ok := props["content"].(string); ok {
			match.Content = content
		}
		if filename, ok := props["source_filename"].(string); ok {
			match.SourceFilename = filename
		}
		if idx, ok := props["chunk_index"].(float64); ok {
			match.ChunkIndex = int(idx)
		}
		if docID, ok := props["doc_id"].(string); ok {
			match.DocID = docID
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			if id, ok := additional["id"].(string); ok {
				match.ID = id
			}
			if distance, ok := additional["distance"].(float64); ok {
				match.Distance = float32(distance)
			}
		}
		matches = append(matches, match)
	}
	return matches, nil
}
