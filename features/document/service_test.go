package document_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docquery/features/document"
	"docquery/internal/extract"
	"docquery/internal/ingest"
	"docquery/internal/vector"
)

type MockRepo struct{ mock.Mock }

func (m *MockRepo) Create(ctx context.Context, doc *document.Document) error {
	args := m.Called(ctx, doc)
	if args.Error(0) == nil {
		doc.ID = "d1"
	}
	return args.Error(0)
}

func (m *MockRepo) Get(ctx context.Context, id string) (*document.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*document.Document), args.Error(1)
}

func (m *MockRepo) List(ctx context.Context) ([]document.Document, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]document.Document), args.Error(1)
}

func (m *MockRepo) UpdateStatus(ctx context.Context, id, status string) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockRepo) RecordResult(ctx context.Context, id, status string, chunkCount int, errMsg string) error {
	args := m.Called(ctx, id, status, chunkCount, errMsg)
	return args.Error(0)
}

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(topic string, body []byte) error {
	args := m.Called(topic, body)
	return args.Error(0)
}

type MockIngestor struct{ mock.Mock }

func (m *MockIngestor) RunDocument(ctx context.Context, docID, filename, contentType string, data []byte) (*ingest.Result, error) {
	args := m.Called(ctx, docID, filename, contentType, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ingest.Result), args.Error(1)
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestService_Upload_Async(t *testing.T) {
	repo := new(MockRepo)
	pub := new(MockPublisher)
	svc := document.NewService(repo, pub, new(MockIngestor))

	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	pub.On("Publish", document.IngestTopic, mock.MatchedBy(func(body []byte) bool {
		var payload map[string]interface{}
		if err := json.Unmarshal(body, &payload); err != nil {
			return false
		}
		return payload["document_id"] == "d1" && payload["path"] == "/tmp/u/f.txt"
	})).Return(nil)

	doc, err := svc.Upload(context.Background(), "f.txt", "text/plain", "/tmp/u/f.txt", false)
	require.NoError(t, err)
	assert.Equal(t, document.StatusPending, doc.Status)
	repo.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestService_Upload_AsyncPublishFailure(t *testing.T) {
	repo := new(MockRepo)
	pub := new(MockPublisher)
	svc := document.NewService(repo, pub, new(MockIngestor))

	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	pub.On("Publish", document.IngestTopic, mock.Anything).Return(errors.New("nsqd unreachable"))
	repo.On("RecordResult", mock.Anything, "d1", document.StatusFailed, 0, mock.Anything).Return(nil)

	doc, err := svc.Upload(context.Background(), "f.txt", "text/plain", "/tmp/u/f.txt", false)
	require.NoError(t, err)
	assert.Equal(t, document.StatusFailed, doc.Status)
	repo.AssertExpectations(t)
}

func TestService_Upload_SyncCompleted(t *testing.T) {
	repo := new(MockRepo)
	ing := new(MockIngestor)
	svc := document.NewService(repo, new(MockPublisher), ing)
	path := writeTempFile(t, "hello world")

	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	repo.On("UpdateStatus", mock.Anything, "d1", document.StatusProcessing).Return(nil)
	ing.On("RunDocument", mock.Anything, "d1", "f.txt", "text/plain", []byte("hello world")).
		Return(&ingest.Result{
			DocumentID:  "d1",
			ChunkIDs:    []string{"c1", "c2", "c3"},
			Persistence: ingest.PersistenceStored,
		}, nil)
	repo.On("RecordResult", mock.Anything, "d1", document.StatusCompleted, 3, "").Return(nil)

	doc, err := svc.Upload(context.Background(), "f.txt", "text/plain", path, true)
	require.NoError(t, err)
	assert.Equal(t, document.StatusCompleted, doc.Status)
	assert.Equal(t, 3, doc.ChunkCount)
	assert.Equal(t, []string{"c1", "c2", "c3"}, doc.ChunkIDs)
	repo.AssertExpectations(t)
	ing.AssertExpectations(t)
}

func TestService_Upload_SyncEmpty(t *testing.T) {
	repo := new(MockRepo)
	ing := new(MockIngestor)
	svc := document.NewService(repo, new(MockPublisher), ing)
	path := writeTempFile(t, "   ")

	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	repo.On("UpdateStatus", mock.Anything, "d1", document.StatusProcessing).Return(nil)
	ing.On("RunDocument", mock.Anything, "d1", "f.txt", "text/plain", mock.Anything).
		Return(&ingest.Result{DocumentID: "d1"}, nil)
	repo.On("RecordResult", mock.Anything, "d1", document.StatusEmpty, 0, "").Return(nil)

	doc, err := svc.Upload(context.Background(), "f.txt", "text/plain", path, true)
	require.NoError(t, err)
	assert.Equal(t, document.StatusEmpty, doc.Status)
	assert.Zero(t, doc.ChunkCount)
}

func TestService_Upload_SyncRejection(t *testing.T) {
	repo := new(MockRepo)
	ing := new(MockIngestor)
	svc := document.NewService(repo, new(MockPublisher), ing)
	path := writeTempFile(t, "\x00\x01")

	runErr := fmt.Errorf("extract f.bin: %w", extract.ErrUnsupportedFormat)
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	repo.On("UpdateStatus", mock.Anything, "d1", document.StatusProcessing).Return(nil)
	ing.On("RunDocument", mock.Anything, "d1", "f.bin", "application/octet-stream", mock.Anything).
		Return(nil, runErr)
	repo.On("RecordResult", mock.Anything, "d1", document.StatusFailed, 0, mock.Anything).Return(nil)

	doc, err := svc.Upload(context.Background(), "f.bin", "application/octet-stream", path, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, extract.ErrUnsupportedFormat)
	assert.Equal(t, document.StatusFailed, doc.Status)
}

func TestService_Upload_SyncUncertainPersist(t *testing.T) {
	repo := new(MockRepo)
	ing := new(MockIngestor)
	svc := document.NewService(repo, new(MockPublisher), ing)
	path := writeTempFile(t, "content")

	runErr := fmt.Errorf("persist chunks: %w", vector.ErrUnavailable)
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	repo.On("UpdateStatus", mock.Anything, "d1", document.StatusProcessing).Return(nil)
	ing.On("RunDocument", mock.Anything, "d1", "f.txt", "text/plain", mock.Anything).
		Return(&ingest.Result{
			DocumentID:  "d1",
			ChunkIDs:    []string{"c1"},
			Persistence: ingest.PersistenceUncertain,
		}, runErr)
	repo.On("RecordResult", mock.Anything, "d1", document.StatusUncertain, 1, mock.Anything).Return(nil)

	doc, err := svc.Upload(context.Background(), "f.txt", "text/plain", path, true)
	require.NoError(t, err, "an uncertain persist is reported through the status")
	assert.Equal(t, document.StatusUncertain, doc.Status)
	assert.Equal(t, 1, doc.ChunkCount)
}

func TestService_Upload_SyncMissingFile(t *testing.T) {
	repo := new(MockRepo)
	svc := document.NewService(repo, new(MockPublisher), new(MockIngestor))

	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	repo.On("UpdateStatus", mock.Anything, "d1", document.StatusProcessing).Return(nil)
	repo.On("RecordResult", mock.Anything, "d1", document.StatusFailed, 0, mock.Anything).Return(nil)

	doc, err := svc.Upload(context.Background(), "f.txt", "text/plain", "/nonexistent/f.txt", true)
	require.Error(t, err)
	assert.Equal(t, document.StatusFailed, doc.Status)
}

func TestResolveOutcome(t *testing.T) {
	tests := []struct {
		name       string
		res        *ingest.Result
		runErr     error
		wantStatus string
		wantCount  int
	}{
		{
			name:       "Rejection",
			res:        nil,
			runErr:     extract.ErrUnsupportedFormat,
			wantStatus: document.StatusFailed,
		},
		{
			name:       "Transport Failure",
			res:        &ingest.Result{ChunkIDs: []string{"c1", "c2"}, Persistence: ingest.PersistenceUncertain},
			runErr:     vector.ErrUnavailable,
			wantStatus: document.StatusUncertain,
			wantCount:  2,
		},
		{
			name:       "Nothing Extracted",
			res:        &ingest.Result{},
			wantStatus: document.StatusEmpty,
		},
		{
			name: "Partial Failure",
			res: &ingest.Result{
				ChunkIDs:       []string{"c1", "c2"},
				FailedChunkIDs: []string{"c2"},
				Persistence:    ingest.PersistenceUncertain,
			},
			wantStatus: document.StatusUncertain,
			wantCount:  2,
		},
		{
			name:       "Stored",
			res:        &ingest.Result{ChunkIDs: []string{"c1"}, Persistence: ingest.PersistenceStored},
			wantStatus: document.StatusCompleted,
			wantCount:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, count, _ := document.ResolveOutcome(tt.res, tt.runErr)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCount, count)
		})
	}
}
