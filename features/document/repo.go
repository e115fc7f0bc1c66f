package document

import (
	"context"
	"database/sql"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Create(ctx context.Context, doc *Document) error {
	query := `INSERT INTO documents (filename, content_type, status) VALUES ($1, $2, $3) RETURNING id, created_at, updated_at`
	return r.db.QueryRowContext(ctx, query, doc.Filename, doc.ContentType, doc.Status).
		Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Document, error) {
	doc := &Document{}
	query := `SELECT id, filename, content_type, status, chunk_count, COALESCE(error_message, ''), created_at, updated_at
		FROM documents WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&doc.ID, &doc.Filename, &doc.ContentType, &doc.Status, &doc.ChunkCount, &doc.Error, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *PostgresRepo) List(ctx context.Context) ([]Document, error) {
	query := `SELECT id, filename, content_type, status, chunk_count, COALESCE(error_message, ''), created_at, updated_at
		FROM documents ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Filename, &d.ContentType, &d.Status, &d.ChunkCount, &d.Error, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE documents SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, status, id)
	return err
}

func (r *PostgresRepo) RecordResult(ctx context.Context, id, status string, chunkCount int, errMsg string) error {
	query := `UPDATE documents SET status = $1, chunk_count = $2, error_message = NULLIF($3, ''), updated_at = NOW() WHERE id = $4`
	_, err := r.db.ExecContext(ctx, query, status, chunkCount, errMsg, id)
	return err
}
