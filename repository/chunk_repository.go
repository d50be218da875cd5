package repository

import (
	"context"
	"fmt"

	"lexfind-backend/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ChunkRepository handles database operations for document chunks. Chunks are
// keyed by their chunk ID, the same ID used in the vector index, so a neighbor
// result hydrates with a single lookup.
type ChunkRepository struct {
	db *pgxpool.Pool
}

// NewChunkRepository creates a new chunk repository
func NewChunkRepository(db *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: db}
}

const chunkColumns = `chunk_id, document_id, chunk_index, chunk_text,
	start_char, end_char, page_number, section_title`

// CreateBatch inserts all chunks of a document in one round trip
func (r *ChunkRepository) CreateBatch(ctx context.Context, chunks []models.TextChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO document_chunks (
			chunk_id, document_id, chunk_index, chunk_text,
			start_char, end_char, page_number, section_title
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	for _, chunk := range chunks {
		batch.Queue(query,
			chunk.ChunkID,
			chunk.DocumentID,
			chunk.ChunkIndex,
			chunk.Text,
			chunk.StartChar,
			chunk.EndChar,
			chunk.PageNumber,
			chunk.SectionTitle,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range chunks {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert chunk batch: %w", err)
		}
	}

	return nil
}

// GetByIDs retrieves chunks by chunk ID. Missing IDs are simply absent from
// the result map, not errors; the caller decides how to handle gaps.
func (r *ChunkRepository) GetByIDs(ctx context.Context, chunkIDs []string) (map[string]models.TextChunk, error) {
	if len(chunkIDs) == 0 {
		return map[string]models.TextChunk{}, nil
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM document_chunks
		WHERE chunk_id = ANY($1)`, chunkColumns)

	rows, err := r.db.Query(ctx, query, chunkIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	chunks := make(map[string]models.TextChunk, len(chunkIDs))
	for rows.Next() {
		var chunk models.TextChunk
		if err := scanChunk(rows, &chunk); err != nil {
			return nil, err
		}
		chunks[chunk.ChunkID] = chunk
	}

	return chunks, rows.Err()
}

// GetRange retrieves a document's chunks with chunk index in [fromIndex,
// toIndex], ordered by index. Used for surrounding-context expansion.
func (r *ChunkRepository) GetRange(ctx context.Context, documentID string, fromIndex, toIndex int) ([]models.TextChunk, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM document_chunks
		WHERE document_id = $1 AND chunk_index BETWEEN $2 AND $3
		ORDER BY chunk_index`, chunkColumns)

	rows, err := r.db.Query(ctx, query, documentID, fromIndex, toIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk range: %w", err)
	}
	defer rows.Close()

	var chunks []models.TextChunk
	for rows.Next() {
		var chunk models.TextChunk
		if err := scanChunk(rows, &chunk); err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}

	return chunks, rows.Err()
}

// ListChunkIDs returns all chunk IDs of a document, used to remove the
// document's vectors from the index on deletion
func (r *ChunkRepository) ListChunkIDs(ctx context.Context, documentID string) ([]string, error) {
	query := `
		SELECT chunk_id
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY chunk_index`

	rows, err := r.db.Query(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// DeleteByDocument removes all chunks of a document
func (r *ChunkRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	query := `DELETE FROM document_chunks WHERE document_id = $1`
	_, err := r.db.Exec(ctx, query, documentID)
	return err
}

func scanChunk(rows pgx.Rows, chunk *models.TextChunk) error {
	err := rows.Scan(
		&chunk.ChunkID,
		&chunk.DocumentID,
		&chunk.ChunkIndex,
		&chunk.Text,
		&chunk.StartChar,
		&chunk.EndChar,
		&chunk.PageNumber,
		&chunk.SectionTitle,
	)
	if err != nil {
		return fmt.Errorf("failed to scan chunk: %w", err)
	}
	return nil
}
