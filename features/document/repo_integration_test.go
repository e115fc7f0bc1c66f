package document_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docquery/features/document"
	"docquery/internal/testutils"
)

func TestDocumentRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	repo := document.NewPostgresRepo(s.DB)
	ctx := context.Background()

	// 1. Create
	doc := &document.Document{
		Filename:    "report.pdf",
		ContentType: "application/pdf",
		Status:      document.StatusPending,
	}
	require.NoError(t, repo.Create(ctx, doc))
	assert.NotEmpty(t, doc.ID)
	assert.NotEmpty(t, doc.CreatedAt)

	// 2. Get
	retrieved, err := repo.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", retrieved.Filename)
	assert.Equal(t, document.StatusPending, retrieved.Status)
	assert.Zero(t, retrieved.ChunkCount)
	assert.Empty(t, retrieved.Error)

	// 3. Status lifecycle
	require.NoError(t, repo.UpdateStatus(ctx, doc.ID, document.StatusProcessing))
	processing, err := repo.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusProcessing, processing.Status)

	require.NoError(t, repo.RecordResult(ctx, doc.ID, document.StatusCompleted, 42, ""))
	completed, err := repo.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusCompleted, completed.Status)
	assert.Equal(t, 42, completed.ChunkCount)
	assert.Empty(t, completed.Error)

	// 4. Error message round-trip
	other := &document.Document{Filename: "bad.bin", Status: document.StatusPending}
	require.NoError(t, repo.Create(ctx, other))
	require.NoError(t, repo.RecordResult(ctx, other.ID, document.StatusFailed, 0, "unsupported file format"))
	failed, err := repo.Get(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusFailed, failed.Status)
	assert.Equal(t, "unsupported file format", failed.Error)

	// 5. List is newest first
	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	// 6. Unknown ID
	_, err = repo.Get(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
