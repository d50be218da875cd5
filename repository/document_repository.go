package repository

import (
	"context"

	"lexfind-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DocumentRepository handles database operations for documents
type DocumentRepository struct {
	db *pgxpool.Pool
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create creates a new document record in processing state
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (
			filename, title, author, legal_area, edition, publication_year,
			storage_path, processing_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, uploaded_at`

	err := r.db.QueryRow(
		ctx, query,
		doc.Filename,
		doc.Title,
		doc.Author,
		doc.LegalArea,
		doc.Edition,
		doc.PublicationYear,
		doc.StoragePath,
		doc.ProcessingStatus,
	).Scan(&doc.ID, &doc.UploadedAt)

	return err
}

// GetByID retrieves a document by ID
func (r *DocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	doc := &models.Document{}
	query := `
		SELECT id, filename, title, author, legal_area, edition, publication_year,
		       storage_path, processing_status, total_chunks, staged_uri,
		       error_message, uploaded_at, processed_at
		FROM documents
		WHERE id = $1`

	err := r.db.QueryRow(ctx, query, id).Scan(
		&doc.ID,
		&doc.Filename,
		&doc.Title,
		&doc.Author,
		&doc.LegalArea,
		&doc.Edition,
		&doc.PublicationYear,
		&doc.StoragePath,
		&doc.ProcessingStatus,
		&doc.TotalChunks,
		&doc.StagedURI,
		&doc.ErrorMessage,
		&doc.UploadedAt,
		&doc.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}

	return doc, nil
}

// List retrieves all documents, newest first
func (r *DocumentRepository) List(ctx context.Context) ([]*models.Document, error) {
	query := `
		SELECT id, filename, title, author, legal_area, edition, publication_year,
		       storage_path, processing_status, total_chunks, staged_uri,
		       error_message, uploaded_at, processed_at
		FROM documents
		ORDER BY uploaded_at DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc := &models.Document{}
		err := rows.Scan(
			&doc.ID,
			&doc.Filename,
			&doc.Title,
			&doc.Author,
			&doc.LegalArea,
			&doc.Edition,
			&doc.PublicationYear,
			&doc.StoragePath,
			&doc.ProcessingStatus,
			&doc.TotalChunks,
			&doc.StagedURI,
			&doc.ErrorMessage,
			&doc.UploadedAt,
			&doc.ProcessedAt,
		)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

// MarkCompleted transitions a document to completed after its chunks became
// queryable via stream updates
func (r *DocumentRepository) MarkCompleted(ctx context.Context, id uuid.UUID, totalChunks int) error {
	query := `
		UPDATE documents
		SET processing_status = $2, total_chunks = $3, processed_at = NOW(),
		    error_message = NULL
		WHERE id = $1`
	_, err := r.db.Exec(ctx, query, id, models.StatusCompleted, totalChunks)
	return err
}

// MarkStaged transitions a document to staged: its vectors were written to a
// batch file and are not queryable until the bulk import runs
func (r *DocumentRepository) MarkStaged(ctx context.Context, id uuid.UUID, totalChunks int, stagedURI string) error {
	query := `
		UPDATE documents
		SET processing_status = $2, total_chunks = $3, staged_uri = $4,
		    processed_at = NOW(), error_message = NULL
		WHERE id = $1`
	_, err := r.db.Exec(ctx, query, id, models.StatusStaged, totalChunks, stagedURI)
	return err
}

// MarkFailed records a processing failure with its message
func (r *DocumentRepository) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	query := `
		UPDATE documents
		SET processing_status = $2, error_message = $3
		WHERE id = $1`
	_, err := r.db.Exec(ctx, query, id, models.StatusFailed, message)
	return err
}

// Delete deletes a document record; chunks cascade at the schema level
func (r *DocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM documents WHERE id = $1`
	_, err := r.db.Exec(ctx, query, id)
	return err
}
