package models

import (
	"time"

	"github.com/google/uuid"
)

// ProcessingStatus represents the indexing lifecycle of a document
type ProcessingStatus string

const (
	// StatusProcessing means ingestion is in flight
	StatusProcessing ProcessingStatus = "processing"
	// StatusCompleted means all chunks are indexed and immediately queryable
	StatusCompleted ProcessingStatus = "completed"
	// StatusStaged means vectors were written to a staging file and are not
	// queryable until an out-of-band bulk import completes
	StatusStaged ProcessingStatus = "staged"
	// StatusFailed means ingestion aborted; ErrorMessage carries the cause
	StatusFailed ProcessingStatus = "failed"
)

// Document represents an ingested source document and its metadata record
type Document struct {
	ID               uuid.UUID        `json:"id"`
	Filename         string           `json:"filename"`
	Title            string           `json:"title"`
	Author           string           `json:"author"`
	LegalArea        string           `json:"legal_area"`
	Edition          string           `json:"edition,omitempty"`
	PublicationYear  *int             `json:"publication_year,omitempty"`
	StoragePath      *string          `json:"storage_path,omitempty"`
	ProcessingStatus ProcessingStatus `json:"processing_status"`
	TotalChunks      int              `json:"total_chunks"`
	StagedURI        *string          `json:"staged_uri,omitempty"`
	ErrorMessage     *string          `json:"error_message,omitempty"`
	UploadedAt       time.Time        `json:"uploaded_at"`
	ProcessedAt      *time.Time       `json:"processed_at,omitempty"`
}
