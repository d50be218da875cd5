package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"lexfind-backend/chunker"
	"lexfind-backend/embeddings"
	"lexfind-backend/models"
	"lexfind-backend/vectorindex"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	// embedBatchSize is how many chunk texts go into one embedding call
	embedBatchSize = 50
	// embedConcurrency bounds parallel embedding calls per document
	embedConcurrency = 3
)

// ChunkWriter is the chunk persistence surface the ingestion path needs
type ChunkWriter interface {
	CreateBatch(ctx context.Context, chunks []models.TextChunk) error
	ListChunkIDs(ctx context.Context, documentID string) ([]string, error)
	DeleteByDocument(ctx context.Context, documentID string) error
}

// DocumentWriter manages document records through the ingestion lifecycle
type DocumentWriter interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
	List(ctx context.Context) ([]*models.Document, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, totalChunks int) error
	MarkStaged(ctx context.Context, id uuid.UUID, totalChunks int, stagedURI string) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// FileStore persists original uploaded files
type FileStore interface {
	UploadDocument(ctx context.Context, documentID uuid.UUID, filename string, data io.Reader) (string, error)
	Delete(ctx context.Context, storagePath string) error
}

// IngestionService runs the document ingestion pipeline: persist the record,
// chunk the text, embed the chunks and add them to the vector index, tracking
// lifecycle status throughout. Different documents may be ingested
// concurrently; the pipeline shares no mutable state across calls.
type IngestionService struct {
	chunker   *chunker.Chunker
	embedder  embeddings.Embedder
	index     vectorindex.Index
	chunks    ChunkWriter
	documents DocumentWriter
	files     FileStore
}

// IngestionServiceOption is a functional option for IngestionService
type IngestionServiceOption func(*IngestionService)

// WithChunker sets the text chunker
func WithChunker(c *chunker.Chunker) IngestionServiceOption {
	return func(s *IngestionService) {
		s.chunker = c
	}
}

// WithIngestEmbedder sets the embedding service
func WithIngestEmbedder(e embeddings.Embedder) IngestionServiceOption {
	return func(s *IngestionService) {
		s.embedder = e
	}
}

// WithIngestIndex sets the vector index client
func WithIngestIndex(idx vectorindex.Index) IngestionServiceOption {
	return func(s *IngestionService) {
		s.index = idx
	}
}

// WithChunkWriter sets the chunk store
func WithChunkWriter(w ChunkWriter) IngestionServiceOption {
	return func(s *IngestionService) {
		s.chunks = w
	}
}

// WithDocumentWriter sets the document store
func WithDocumentWriter(w DocumentWriter) IngestionServiceOption {
	return func(s *IngestionService) {
		s.documents = w
	}
}

// WithFileStore sets the original-file store
func WithFileStore(fs FileStore) IngestionServiceOption {
	return func(s *IngestionService) {
		s.files = fs
	}
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(opts ...IngestionServiceOption) *IngestionService {
	s := &IngestionService{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IngestRequest represents a document to ingest
type IngestRequest struct {
	Filename        string
	Title           string
	Author          string
	LegalArea       string
	Edition         string
	PublicationYear *int
	Text            string
	Pages           []models.PageContent
	// File is the original upload, stored as-is when present
	File io.Reader
}

// IngestResult reports how the document was indexed. Staged documents are not
// yet queryable; StagedURI names the batch file awaiting bulk import.
type IngestResult struct {
	Document    *models.Document
	TotalChunks int
	Staged      bool
	StagedURI   string
}

// IngestDocument runs the full pipeline for one document. The document record
// is created first in processing state, so failures leave an inspectable
// failed record rather than nothing.
func (s *IngestionService) IngestDocument(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if s.chunker == nil || s.embedder == nil || s.index == nil || s.chunks == nil || s.documents == nil {
		return nil, errors.New("ingestion service dependencies not set")
	}
	if req.Filename == "" {
		return nil, errors.New("filename is required")
	}
	if req.Title == "" {
		req.Title = req.Filename
	}

	doc := &models.Document{
		Filename:         req.Filename,
		Title:            req.Title,
		Author:           req.Author,
		LegalArea:        req.LegalArea,
		Edition:          req.Edition,
		PublicationYear:  req.PublicationYear,
		ProcessingStatus: models.StatusProcessing,
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to create document record: %w", err)
	}

	if req.File != nil && s.files != nil {
		path, err := s.files.UploadDocument(ctx, doc.ID, req.Filename, req.File)
		if err != nil {
			return nil, s.fail(ctx, doc, fmt.Errorf("file upload failed: %w", err))
		}
		doc.StoragePath = &path
	}

	chunks, err := s.chunker.ChunkDocument(req.Text, doc.ID.String(), req.Pages)
	if err != nil {
		return nil, s.fail(ctx, doc, fmt.Errorf("chunking failed: %w", err))
	}
	if len(chunks) == 0 {
		if err := s.documents.MarkCompleted(ctx, doc.ID, 0); err != nil {
			return nil, err
		}
		doc.ProcessingStatus = models.StatusCompleted
		return &IngestResult{Document: doc, TotalChunks: 0}, nil
	}

	if err := s.chunks.CreateBatch(ctx, chunks); err != nil {
		return nil, s.fail(ctx, doc, fmt.Errorf("failed to persist chunks: %w", err))
	}

	vectors, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return nil, s.fail(ctx, doc, fmt.Errorf("embedding failed: %w", err))
	}

	entries := make([]vectorindex.Entry, len(chunks))
	for i, chunk := range chunks {
		entries[i] = vectorindex.Entry{
			ID:        chunk.ChunkID,
			Embedding: vectors[i],
			Metadata: map[string]any{
				"document_id": chunk.DocumentID,
				"legal_area":  req.LegalArea,
				"author":      req.Author,
			},
		}
	}

	outcome, err := s.index.Add(ctx, entries)
	if err != nil {
		return nil, s.fail(ctx, doc, fmt.Errorf("index update failed: %w", err))
	}

	if outcome.Staged {
		if err := s.documents.MarkStaged(ctx, doc.ID, len(chunks), outcome.StagedURI); err != nil {
			return nil, err
		}
		doc.ProcessingStatus = models.StatusStaged
		doc.StagedURI = &outcome.StagedURI
		log.Printf("Document %s staged: %d chunks await bulk import from %s",
			doc.ID, len(chunks), outcome.StagedURI)
	} else {
		if err := s.documents.MarkCompleted(ctx, doc.ID, len(chunks)); err != nil {
			return nil, err
		}
		doc.ProcessingStatus = models.StatusCompleted
		log.Printf("Document %s indexed: %d chunks queryable", doc.ID, len(chunks))
	}
	doc.TotalChunks = len(chunks)

	return &IngestResult{
		Document:    doc,
		TotalChunks: len(chunks),
		Staged:      outcome.Staged,
		StagedURI:   outcome.StagedURI,
	}, nil
}

// embedChunks embeds chunk texts in bounded-concurrency batches, preserving
// chunk order in the result
func (s *IngestionService) embedChunks(ctx context.Context, chunks []models.TextChunk) ([][]float64, error) {
	vectors := make([][]float64, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for start := 0; start < len(chunks); start += embedBatchSize {
		stop := start + embedBatchSize
		if stop > len(chunks) {
			stop = len(chunks)
		}

		g.Go(func() error {
			texts := make([]string, 0, stop-start)
			for _, chunk := range chunks[start:stop] {
				texts = append(texts, chunk.Text)
			}
			batch, err := s.embedder.EmbedDocuments(gctx, texts)
			if err != nil {
				return err
			}
			if len(batch) != stop-start {
				return fmt.Errorf("got %d embeddings for %d chunks", len(batch), stop-start)
			}
			copy(vectors[start:stop], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// fail records the failure on the document before returning it. The status
// update is best-effort; the original error is what callers see.
func (s *IngestionService) fail(ctx context.Context, doc *models.Document, cause error) error {
	if err := s.documents.MarkFailed(ctx, doc.ID, cause.Error()); err != nil {
		log.Printf("Failed to mark document %s as failed: %v", doc.ID, err)
	}
	return cause
}

// GetDocument retrieves a document record by ID
func (s *IngestionService) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	if s.documents == nil {
		return nil, errors.New("document store not set")
	}
	return s.documents.GetByID(ctx, id)
}

// ListDocuments retrieves all document records
func (s *IngestionService) ListDocuments(ctx context.Context) ([]*models.Document, error) {
	if s.documents == nil {
		return nil, errors.New("document store not set")
	}
	return s.documents.List(ctx)
}

// DeleteDocument removes a document everywhere: vector index first, then
// chunk records, stored file and finally the document record. Index removal
// failures abort the deletion so the index never holds vectors for chunks
// that no longer hydrate.
func (s *IngestionService) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	if s.chunks == nil || s.documents == nil || s.index == nil {
		return errors.New("ingestion service dependencies not set")
	}

	doc, err := s.documents.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("document not found: %w", err)
	}

	chunkIDs, err := s.chunks.ListChunkIDs(ctx, id.String())
	if err != nil {
		return fmt.Errorf("failed to list chunk ids: %w", err)
	}

	if len(chunkIDs) > 0 {
		if err := s.index.Delete(ctx, chunkIDs); err != nil {
			return fmt.Errorf("index removal failed: %w", err)
		}
	}

	if err := s.chunks.DeleteByDocument(ctx, id.String()); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	if doc.StoragePath != nil && s.files != nil {
		if err := s.files.Delete(ctx, *doc.StoragePath); err != nil {
			log.Printf("Failed to delete stored file %s: %v", *doc.StoragePath, err)
		}
	}

	return s.documents.Delete(ctx, id)
}
