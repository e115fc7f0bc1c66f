package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docquery/internal/middleware"
	"docquery/internal/vector"
)

// ErrEmptyQuery rejects questions with no usable text.
var ErrEmptyQuery = errors.New("query text is empty")

// ChunkResult is one retrieved chunk, closest first.
type ChunkResult struct {
	ChunkID        string  `json:"chunk_id"`
	Content        string  `json:"content"`
	SourceFilename string  `json:"source_filename"`
	ChunkIndex     int     `json:"chunk_index"`
	DocID          string  `json:"doc_id"`
	Distance       float32 `json:"distance"`
}

type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type VectorStore interface {
	NearestNeighbors(ctx context.Context, queryVector []float32, limit int) ([]vector.Match, error)
}

type Service struct {
	embedder    Embedder
	store       VectorStore
	defaultTopK int
	logger      *QueryLogger
}

func NewService(e Embedder, s VectorStore, defaultTopK int, l *QueryLogger) *Service {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &Service{embedder: e, store: s, defaultTopK: defaultTopK, logger: l}
}

// Query embeds the question and returns up to topK nearest chunks by
// ascending cosine distance. topK <= 0 falls back to the configured default.
// A store outage surfaces as vector.ErrUnavailable so the transport layer
// can answer 503 instead of 500.
func (s *Service) Query(ctx context.Context, question string, topK int) ([]ChunkResult, error) {
	start := time.Now()

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		topK = s.defaultTopK
	}

	vec, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := s.store.NearestNeighbors(ctx, vec, topK)
	if err != nil {
		return nil, err
	}

	results := make([]ChunkResult, len(matches))
	for i, m := range matches {
		results[i] = ChunkResult{
			ChunkID:        m.ID,
			Content:        m.Content,
			SourceFilename: m.SourceFilename,
			ChunkIndex:     m.ChunkIndex,
			DocID:          m.DocID,
			Distance:       m.Distance,
		}
	}

	if s.logger != nil {
		s.logger.Log(QueryLogEntry{
			Query:         question,
			NumResults:    len(results),
			Duration:      time.Since(start),
			CorrelationID: middleware.GetCorrelationID(ctx),
		})
	}
	return results, nil
}
