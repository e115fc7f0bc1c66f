package chromem

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"

	"docquery/internal/vector"
)

// Store is an embedded vector store gateway backed by chromem-go, used for
// local deployments that have no Weaviate instance. It implements the same
// surface as the Weaviate store.
type Store struct {
	db             *chromem.DB
	collectionName string

	mu         sync.Mutex
	collection *chromem.Collection
}

func NewStore(db *chromem.DB, collectionName string) *Store {
	return &Store{db: db, collectionName: collectionName}
}

// EnsureSchema creates the collection if it does not exist yet. chromem has
// no property schema; the call is idempotent either way.
func (s *Store) EnsureSchema(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collection != nil {
		return nil
	}
	// No embedding function: every document arrives with its vector.
	col, err := s.db.GetOrCreateCollection(s.collectionName, nil, nil)
	if err != nil {
		return fmt.Errorf("get or create collection %s: %w", s.collectionName, err)
	}
	s.collection = col
	return nil
}

func (s *Store) getCollection(ctx context.Context) (*chromem.Collection, error) {
	s.mu.Lock()
	col := s.collection
	s.mu.Unlock()
	if col != nil {
		return col, nil
	}
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collection, nil
}

// UpsertChunks writes chunks keyed by ID; adding an existing ID replaces
// the stored document, matching the overwrite semantics of the Weaviate
// store. The embedded store cannot fail per item, so a returned report
// never lists failed IDs.
func (s *Store) UpsertChunks(ctx context.Context, chunks []vector.Chunk) (*vector.UpsertReport, error) {
	if len(chunks) == 0 {
		return &vector.UpsertReport{}, nil
	}
	col, err := s.getCollection(ctx)
	if err != nil {
		return nil, err
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:        c.ID,
			Content:   c.Content,
			Embedding: c.Vector,
			Metadata: map[string]string{
				"source_filename": c.SourceFilename,
				"chunk_index":     strconv.Itoa(c.ChunkIndex),
				"doc_id":          c.DocID,
			},
		}
	}
	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("add documents: %w", err)
	}
	return &vector.UpsertReport{Attempted: len(chunks)}, nil
}

// NearestNeighbors returns up to limit matches by ascending cosine
// distance. chromem reports cosine similarity; distance is 1 - similarity.
func (s *Store) NearestNeighbors(ctx context.Context, queryVector []float32, limit int) ([]vector.Match, error) {
	col, err := s.getCollection(ctx)
	if err != nil {
		return nil, err
	}

	// chromem rejects a result count above the collection size.
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}

	results, err := col.QueryEmbedding(ctx, queryVector, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	matches := make([]vector.Match, 0, len(results))
	for _, r := range results {
		idx, _ := strconv.Atoi(r.Metadata["chunk_index"])
		matches = append(matches, vector.Match{
			ID:             r.ID,
			Content:        r.Content,
			SourceFilename: r.Metadata["source_filename"],
			ChunkIndex:     idx,
			DocID:          r.Metadata["doc_id"],
			Distance:       1 - r.Similarity,
		})
	}
	return matches, nil
}
