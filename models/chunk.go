package models

import "fmt"

// TextChunk represents a contiguous segment of a source document.
// Offsets are measured against the cleaned document text, not the raw input.
type TextChunk struct {
	ChunkID      string `json:"chunk_id"`
	DocumentID   string `json:"document_id"`
	ChunkIndex   int    `json:"chunk_index"`
	Text         string `json:"text"`
	StartChar    int    `json:"start_char"`
	EndChar      int    `json:"end_char"`
	PageNumber   int    `json:"page_number"`
	SectionTitle string `json:"section_title"`
}

// PageContent carries per-page text used to map chunk offsets to page numbers
type PageContent struct {
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
}

// ChunkIDFor builds the deterministic chunk ID for a document and chunk index.
// The same ID is used as the vector index datapoint ID, tying the two systems
// together without a separate mapping table.
func ChunkIDFor(documentID string, chunkIndex int) string {
	return fmt.Sprintf("%s_chunk_%04d", documentID, chunkIndex)
}

// ParseChunkID splits a chunk ID back into its document ID and chunk index.
// Returns ok=false for IDs that do not follow the ChunkIDFor format.
func ParseChunkID(chunkID string) (documentID string, chunkIndex int, ok bool) {
	// Split on the last "_chunk_" marker; document IDs may contain underscores
	const marker = "_chunk_"
	idx := -1
	for i := len(chunkID) - len(marker); i >= 0; i-- {
		if chunkID[i:i+len(marker)] == marker {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return "", 0, false
	}

	documentID = chunkID[:idx]
	suffix := chunkID[idx+len(marker):]
	if suffix == "" {
		return "", 0, false
	}
	for _, c := range suffix {
		if c < '0' || c > '9' {
			return "", 0, false
		}
		chunkIndex = chunkIndex*10 + int(c-'0')
	}
	return documentID, chunkIndex, true
}
