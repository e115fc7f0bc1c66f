package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"docquery/internal/ingest"
	"docquery/internal/middleware"
	"docquery/internal/vector"
)

// IngestTopic is the NSQ topic async uploads are published to.
const IngestTopic = "ingest.task"

// Document status lifecycle. A document starts pending, moves to processing
// when ingestion picks it up, and lands in exactly one terminal status.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusEmpty      = "empty"
	StatusFailed     = "failed"
	StatusUncertain  = "uncertain"
)

type Document struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Status      string `json:"status"`
	ChunkCount  int    `json:"chunk_count"`
	Error       string `json:"error,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`

	// ChunkIDs is filled for synchronous ingestion responses only; the
	// registry does not persist it.
	ChunkIDs []string `json:"chunk_ids,omitempty"`
}

type Repository interface {
	Create(ctx context.Context, doc *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	List(ctx context.Context) ([]Document, error)
	UpdateStatus(ctx context.Context, id, status string) error
	RecordResult(ctx context.Context, id, status string, chunkCount int, errMsg string) error
}

type Ingestor interface {
	RunDocument(ctx context.Context, docID, filename, contentType string, data []byte) (*ingest.Result, error)
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo     Repository
	pub      EventPublisher
	ingestor Ingestor
}

func NewService(repo Repository, pub EventPublisher, ingestor Ingestor) *Service {
	return &Service{repo: repo, pub: pub, ingestor: ingestor}
}

// Upload registers an uploaded file and either ingests it inline (sync) or
// hands it to the queue. The returned document carries the terminal status
// for sync uploads and the pending status for async ones.
func (s *Service) Upload(ctx context.Context, filename, contentType, path string, sync bool) (*Document, error) {
	doc := &Document{
		Filename:    filename,
		ContentType: contentType,
		Status:      StatusPending,
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		return nil, err
	}

	if sync {
		return s.ingestNow(ctx, doc, path)
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"document_id":    doc.ID,
		"filename":       doc.Filename,
		"content_type":   doc.ContentType,
		"path":           path,
		"correlation_id": middleware.GetCorrelationID(ctx),
	})
	if err := s.pub.Publish(IngestTopic, payload); err != nil {
		slog.ErrorContext(ctx, "failed to publish ingest.task event", "error", err, "doc_id", doc.ID)
		doc.Status = StatusFailed
		doc.Error = "failed to enqueue ingestion"
		if updErr := s.repo.RecordResult(ctx, doc.ID, StatusFailed, 0, doc.Error); updErr != nil {
			slog.ErrorContext(ctx, "failed to record status", "error", updErr, "doc_id", doc.ID)
		}
		return doc, nil
	}
	slog.InfoContext(ctx, "published ingest.task event", "doc_id", doc.ID, "filename", doc.Filename)
	return doc, nil
}

func (s *Service) ingestNow(ctx context.Context, doc *Document, path string) (*Document, error) {
	if err := s.repo.UpdateStatus(ctx, doc.ID, StatusProcessing); err != nil {
		slog.ErrorContext(ctx, "failed to update status", "error", err, "doc_id", doc.ID)
	}
	doc.Status = StatusProcessing

	data, err := os.ReadFile(path) // #nosec G304 -- path is constructed from UUID + sanitized basename, not user-controlled
	if err != nil {
		s.record(ctx, doc, StatusFailed, 0, "failed to read uploaded file")
		return doc, fmt.Errorf("read uploaded file: %w", err)
	}

	res, runErr := s.ingestor.RunDocument(ctx, doc.ID, doc.Filename, doc.ContentType, data)
	status, count, errMsg := ResolveOutcome(res, runErr)
	s.record(ctx, doc, status, count, errMsg)
	if res != nil {
		doc.ChunkIDs = res.ChunkIDs
	}

	if runErr != nil && res == nil {
		// Rejection: the file never produced a partial result.
		return doc, runErr
	}
	if runErr != nil && !errors.Is(runErr, vector.ErrUnavailable) {
		return doc, runErr
	}
	// An uncertain persist is reported through the status, not the error.
	return doc, nil
}

// ResolveOutcome maps one ingestion run onto the document status lifecycle.
func ResolveOutcome(res *ingest.Result, runErr error) (status string, chunkCount int, errMsg string) {
	switch {
	case runErr != nil && res == nil:
		return StatusFailed, 0, runErr.Error()
	case runErr != nil:
		return StatusUncertain, len(res.ChunkIDs), runErr.Error()
	case len(res.ChunkIDs) == 0:
		return StatusEmpty, 0, ""
	case res.Persistence == ingest.PersistenceUncertain:
		return StatusUncertain, len(res.ChunkIDs), fmt.Sprintf("%d of %d chunks failed to persist", len(res.FailedChunkIDs), len(res.ChunkIDs))
	default:
		return StatusCompleted, len(res.ChunkIDs), ""
	}
}

func (s *Service) record(ctx context.Context, doc *Document, status string, count int, errMsg string) {
	doc.Status = status
	doc.ChunkCount = count
	doc.Error = errMsg
	if err := s.repo.RecordResult(ctx, doc.ID, status, count, errMsg); err != nil {
		slog.ErrorContext(ctx, "failed to record ingestion result", "error", err, "doc_id", doc.ID, "status", status)
	}
}

func (s *Service) Get(ctx context.Context, id string) (*Document, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Document, error) {
	return s.repo.List(ctx)
}
