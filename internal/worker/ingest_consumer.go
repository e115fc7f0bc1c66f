package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nsqio/go-nsq"

	"docquery/internal/ingest"
	"docquery/internal/middleware"
)

// IngestConsumer drains ingest.task messages: it reads the uploaded file,
// runs the pipeline and records the terminal status on the document row.
type IngestConsumer struct {
	ingestor Ingestor
	docs     DocumentStatusUpdater
	timeout  time.Duration
}

func NewIngestConsumer(ingestor Ingestor, docs DocumentStatusUpdater) *IngestConsumer {
	return &IngestConsumer{
		ingestor: ingestor,
		docs:     docs,
		timeout:  5 * time.Minute,
	}
}

func (h *IngestConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var task IngestTask
	if err := json.Unmarshal(m.Body, &task); err != nil {
		// Poison Pill: Invalid JSON, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}
	if task.DocumentID == "" || task.Path == "" {
		slog.Error("poison pill: incomplete ingest task", "doc_id", task.DocumentID, "path", task.Path)
		return nil
	}

	ctx := context.Background()
	if task.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, task.CorrelationID)
	}

	if err := h.docs.UpdateStatus(ctx, task.DocumentID, "processing"); err != nil {
		slog.ErrorContext(ctx, "failed to update status", "error", err, "doc_id", task.DocumentID)
	}

	data, err := os.ReadFile(task.Path) // #nosec G304 -- path was written by the upload handler, not user-controlled
	if err != nil {
		// The file is gone; retrying will not bring it back.
		slog.ErrorContext(ctx, "failed to read uploaded file", "error", err, "doc_id", task.DocumentID, "path", task.Path)
		h.record(ctx, task.DocumentID, "failed", 0, "failed to read uploaded file")
		return nil
	}

	runCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	res, runErr := h.ingestor.RunDocument(runCtx, task.DocumentID, task.Filename, task.ContentType, data)
	status, count, errMsg := resolveOutcome(res, runErr)
	h.record(ctx, task.DocumentID, status, count, errMsg)

	if runErr != nil {
		slog.ErrorContext(ctx, "ingestion finished with error",
			"doc_id", task.DocumentID, "status", status, "error", runErr)
	} else {
		slog.InfoContext(ctx, "ingestion finished",
			"doc_id", task.DocumentID, "status", status, "chunks", count)
	}
	// Terminal either way. A rejected file stays rejected and an uncertain
	// persist is not retried, so the message is never requeued.
	return nil
}

func resolveOutcome(res *ingest.Result, runErr error) (status string, chunkCount int, errMsg string) {
	switch {
	case runErr != nil && res == nil:
		return "failed", 0, runErr.Error()
	case runErr != nil:
		return "uncertain", len(res.ChunkIDs), runErr.Error()
	case len(res.ChunkIDs) == 0:
		return "empty", 0, ""
	case res.Persistence == ingest.PersistenceUncertain:
		return "uncertain", len(res.ChunkIDs), fmt.Sprintf("%d of %d chunks failed to persist", len(res.FailedChunkIDs), len(res.ChunkIDs))
	default:
		return "completed", len(res.ChunkIDs), ""
	}
}

func (h *IngestConsumer) record(ctx context.Context, docID, status string, count int, errMsg string) {
	if err := h.docs.RecordResult(ctx, docID, status, count, errMsg); err != nil {
		slog.ErrorContext(ctx, "failed to record ingestion result", "error", err, "doc_id", docID, "status", status)
	}
}
