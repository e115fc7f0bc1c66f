package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"docquery/internal/extract"
	"docquery/internal/vector"
)

// Extractor turns raw bytes into ordered text units.
type Extractor interface {
	Extract(filename, contentType string, data []byte) ([]extract.Unit, error)
}

// Splitter cuts one text unit into chunk texts.
type Splitter interface {
	Split(text string) []string
}

// Embedder vectorizes chunk texts, preserving order.
type Embedder interface {
	EmbedAll(ctx context.Context, texts []string) ([][]float32, error)
}

// Store persists chunk batches into the vector index.
type Store interface {
	UpsertChunks(ctx context.Context, chunks []vector.Chunk) (*vector.UpsertReport, error)
}

// Persistence is the storage outcome of one ingestion.
type Persistence int

const (
	// PersistenceNone: nothing usable was extracted; no write was attempted.
	PersistenceNone Persistence = iota
	// PersistenceStored: the store acknowledged every chunk.
	PersistenceStored
	// PersistenceUncertain: the write failed wholly or partly; the chunk ID
	// list is "attempted", not "confirmed".
	PersistenceUncertain
)

func (p Persistence) String() string {
	switch p {
	case PersistenceStored:
		return "stored"
	case PersistenceUncertain:
		return "uncertain"
	default:
		return "none"
	}
}

// Result reports one ingestion run. ChunkIDs lists every chunk the pipeline
// attempted to persist, in chunk-index order; an empty list means nothing
// usable was extracted, which is distinct from the file being rejected
// (that case returns an error and no Result).
type Result struct {
	DocumentID     string
	ChunkIDs       []string
	FailedChunkIDs []string
	Persistence    Persistence
}

// Pipeline runs one file through extract, chunk, embed and persist. All
// collaborators are injected; the pipeline itself is stateless and safe for
// concurrent use.
type Pipeline struct {
	extractor Extractor
	splitter  Splitter
	embedder  Embedder
	store     Store
}

func NewPipeline(extractor Extractor, splitter Splitter, embedder Embedder, store Store) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		splitter:  splitter,
		embedder:  embedder,
		store:     store,
	}
}

// Run ingests one uploaded file under a freshly minted document ID.
// Re-ingesting the same file mints a new ID and a disjoint chunk set.
func (p *Pipeline) Run(ctx context.Context, filename, contentType string, data []byte) (*Result, error) {
	return p.RunDocument(ctx, uuid.NewString(), filename, contentType, data)
}

// RunDocument ingests one file under a caller-assigned document ID. Used by
// the async worker, where the ID is minted when the upload is accepted.
//
// Stage failures are scoped: an UnsupportedFormat extraction rejects the
// file outright (nil Result, error); a failed embedding drops that text
// unit's chunks and processing continues with the next unit; a failed
// persist is file-wide and returns the attempted Result alongside the
// error so the caller can reconcile.
func (p *Pipeline) RunDocument(ctx context.Context, docID, filename, contentType string, data []byte) (*Result, error) {
	units, err := p.extractor.Extract(filename, contentType, data)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", filename, err)
	}
	slog.InfoContext(ctx, "extracted text units", "doc_id", docID, "filename", filename, "units", len(units))

	result := &Result{DocumentID: docID}

	var chunks []vector.Chunk
	chunkIndex := 0
	for unitIdx, unit := range units {
		texts := p.splitter.Split(unit.Text)
		if len(texts) == 0 {
			slog.WarnContext(ctx, "text unit yielded no chunks, skipping",
				"doc_id", docID, "unit", unitIdx, "source_type", unit.SourceType)
			continue
		}

		vectors, err := p.embedder.EmbedAll(ctx, texts)
		if err != nil {
			// Per-unit isolation: one bad unit must not sink the whole file.
			slog.ErrorContext(ctx, "embedding failed, dropping text unit",
				"doc_id", docID, "unit", unitIdx, "source_type", unit.SourceType, "chunks", len(texts), "error", err)
			continue
		}

		for i, content := range texts {
			chunks = append(chunks, vector.Chunk{
				ID:             uuid.NewString(),
				Content:        content,
				SourceFilename: filename,
				ChunkIndex:     chunkIndex,
				DocID:          docID,
				Vector:         vectors[i],
			})
			chunkIndex++
		}
	}

	if len(chunks) == 0 {
		slog.WarnContext(ctx, "no chunks produced", "doc_id", docID, "filename", filename)
		return result, nil
	}

	result.ChunkIDs = make([]string, len(chunks))
	for i, c := range chunks {
		result.ChunkIDs[i] = c.ID
	}

	report, err := p.store.UpsertChunks(ctx, chunks)
	if err != nil {
		// The store gave no per-item verdict; every chunk in the list is
		// attempted-but-unverified.
		result.Persistence = PersistenceUncertain
		return result, fmt.Errorf("persist chunks for %s: %w", filename, err)
	}
	if len(report.FailedIDs) > 0 {
		result.FailedChunkIDs = report.FailedIDs
		result.Persistence = PersistenceUncertain
		slog.WarnContext(ctx, "chunk batch partially failed",
			"doc_id", docID, "attempted", report.Attempted, "failed", len(report.FailedIDs))
		return result, nil
	}

	result.Persistence = PersistenceStored
	slog.InfoContext(ctx, "document ingested",
		"doc_id", docID, "filename", filename, "chunks", len(chunks))
	return result, nil
}
