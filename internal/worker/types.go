package worker

import (
	"context"

	"docquery/internal/ingest"
)

// IngestTask is the queue payload for one async document ingestion.
type IngestTask struct {
	DocumentID    string `json:"document_id"`
	Filename      string `json:"filename"`
	ContentType   string `json:"content_type"`
	Path          string `json:"path"`
	CorrelationID string `json:"correlation_id"`
}

type Ingestor interface {
	RunDocument(ctx context.Context, docID, filename, contentType string, data []byte) (*ingest.Result, error)
}

type DocumentStatusUpdater interface {
	UpdateStatus(ctx context.Context, id, status string) error
	RecordResult(ctx context.Context, id, status string, chunkCount int, errMsg string) error
}
