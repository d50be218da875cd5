package models

// SearchStatus is the structured outcome of a retrieval request
type SearchStatus string

const (
	SearchStatusSuccess   SearchStatus = "success"
	SearchStatusNoResults SearchStatus = "no_results"
	SearchStatusError     SearchStatus = "error"
)

// RetrievedMatch is a nearest-neighbor hit hydrated with chunk text and
// document metadata. Constructed per query, never persisted.
type RetrievedMatch struct {
	ChunkID         string         `json:"chunk_id"`
	Distance        float64        `json:"distance"`
	SimilarityScore float64        `json:"similarity_score"`
	Text            string         `json:"text"`
	DocumentID      string         `json:"document_id"`
	ChunkIndex      int            `json:"chunk_index"`
	PageNumber      int            `json:"page_number"`
	SectionTitle    string         `json:"section_title"`
	Document        *Document      `json:"-"`
	ContextChunks   []ContextChunk `json:"context_chunks,omitempty"`
}

// ContextChunk is a chunk inside the context window around a matched chunk.
// IsOriginal marks the hit the window was expanded from.
type ContextChunk struct {
	TextChunk
	IsOriginal bool `json:"is_original"`
}

// DocumentResult groups the matches found in one document, in reading order
type DocumentResult struct {
	DocumentID         string           `json:"document_id"`
	Title              string           `json:"title"`
	Author             string           `json:"author"`
	LegalArea          string           `json:"legal_area"`
	Edition            string           `json:"edition,omitempty"`
	PublicationYear    *int             `json:"publication_year,omitempty"`
	MaxSimilarityScore float64          `json:"max_similarity_score"`
	TotalChunksFound   int              `json:"total_chunks_found"`
	RelevantChunks     []RetrievedMatch `json:"relevant_chunks"`
}
