// Package chunker splits legal document text into overlapping, sentence and
// section aware chunks with stable positional metadata.
package chunker

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"lexfind-backend/models"
)

const (
	// DefaultChunkSize is the chunk window size in characters
	DefaultChunkSize = 1000
	// DefaultOverlap is the character overlap between consecutive chunks
	DefaultOverlap = 200

	// boundarySearchWindow is how far back from the window edge we look for a
	// sentence boundary before giving up and cutting at the raw edge
	boundarySearchWindow = 100
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	pageMarkerRe = regexp.MustCompile(`--- Page \d+ ---`)

	// Legal section heading patterns: chapter/section/part markers, numbered
	// headings, and all-caps lines
	sectionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^Chapter\s+\d+[:\-\s]`),
		regexp.MustCompile(`(?i)^Section\s+\d+[:\-\s]`),
		regexp.MustCompile(`(?i)^Part\s+[IVX]+[:\-\s]`),
		regexp.MustCompile(`^\d+\.\s+[A-Z]`),
		regexp.MustCompile(`^\d+\.\d+\s`),
		regexp.MustCompile(`^[A-Z][A-Z\s]{10,}$`),
	}
)

// Config holds chunking parameters
type Config struct {
	ChunkSize int
	Overlap   int
}

// ConfigFromEnv reads chunking parameters from CHUNK_SIZE and CHUNK_OVERLAP
func ConfigFromEnv() Config {
	cfg := Config{ChunkSize: DefaultChunkSize, Overlap: DefaultOverlap}
	if v := os.Getenv("CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ChunkSize = n
		}
	}
	if v := os.Getenv("CHUNK_OVERLAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Overlap = n
		}
	}
	return cfg
}

// Chunker chunks legal text documents with overlap and section awareness
type Chunker struct {
	chunkSize int
	overlap   int
}

// New creates a chunker. Overlap is clamped to at most half of chunkSize so
// the chunk loop always makes forward progress.
func New(cfg Config) (*Chunker, error) {
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	}
	overlap := cfg.Overlap
	if overlap < 0 {
		return nil, fmt.Errorf("overlap must be non-negative, got %d", overlap)
	}
	if overlap > cfg.ChunkSize/2 {
		overlap = cfg.ChunkSize / 2
	}
	return &Chunker{chunkSize: cfg.ChunkSize, overlap: overlap}, nil
}

// section is a detected heading and its character offset in the cleaned text
type section struct {
	title     string
	startChar int
}

// ChunkDocument splits a document into overlapping chunks. Empty input text
// yields an empty chunk list, not an error. Page contents are optional; when
// absent every chunk reports page 1.
func (c *Chunker) ChunkDocument(text, documentID string, pages []models.PageContent) ([]models.TextChunk, error) {
	if documentID == "" {
		return nil, fmt.Errorf("document ID is required")
	}

	sections := detectSections(text)

	cleaned := []rune(cleanText(text))
	if len(cleaned) == 0 {
		return nil, nil
	}

	var chunks []models.TextChunk
	chunkIndex := 0
	start := 0

	for start < len(cleaned) {
		end := start + c.chunkSize
		if end > len(cleaned) {
			end = len(cleaned)
		} else {
			// Avoid splitting mid-sentence: cut at the nearest sentence
			// terminal within the boundary search window. Keep the raw edge
			// if the adjusted cut would not advance past the overlap, so the
			// loop always makes forward progress.
			if adjusted := findSentenceBoundary(cleaned, end); adjusted > start+c.overlap {
				end = adjusted
			}
		}

		chunkText := strings.TrimSpace(string(cleaned[start:end]))
		if chunkText != "" {
			chunks = append(chunks, models.TextChunk{
				ChunkID:      models.ChunkIDFor(documentID, chunkIndex),
				DocumentID:   documentID,
				ChunkIndex:   chunkIndex,
				Text:         chunkText,
				StartChar:    start,
				EndChar:      end,
				PageNumber:   findPageNumber(start, pages),
				SectionTitle: findSectionTitle(start, sections),
			})
			chunkIndex++
		}

		// The final window reaches the end of text; re-advancing by
		// end-overlap would re-emit the tail forever
		if end >= len(cleaned) {
			break
		}
		start = end - c.overlap
	}

	return chunks, nil
}

// cleanText normalizes whitespace and strips extraction artifacts. Chunk
// offsets are always measured against this cleaned form.
func cleanText(text string) string {
	text = pageMarkerRe.ReplaceAllString(text, "")
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = strings.NewReplacer(
		"“", `"`, "”", `"`,
		"‘", "'", "’", "'",
	).Replace(text)
	return strings.TrimSpace(text)
}

// findSentenceBoundary searches backward from position over the last
// boundarySearchWindow runes for sentence-terminal punctuation followed by a
// space and returns the cut point after it. Falls back to the raw position.
func findSentenceBoundary(text []rune, position int) int {
	searchStart := position - boundarySearchWindow
	if searchStart < 0 {
		searchStart = 0
	}

	lastEnding := -1
	for i := position - 1; i >= searchStart; i-- {
		switch text[i] {
		case '.', '!', '?', ':', ';':
			lastEnding = i
		}
		if lastEnding >= 0 {
			break
		}
	}

	if lastEnding > searchStart && lastEnding < position-1 && text[lastEnding+1] == ' ' {
		return lastEnding + 1
	}
	return position
}

// detectSections scans the raw text line by line for heading patterns and
// records each heading's approximate character offset. Offsets are
// best-effort against the cleaned text.
func detectSections(text string) []section {
	var sections []section
	charPosition := 0

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			for _, pattern := range sectionPatterns {
				if pattern.MatchString(trimmed) {
					sections = append(sections, section{title: trimmed, startChar: charPosition})
					break
				}
			}
		}
		charPosition += len([]rune(trimmed)) + 1
	}

	return sections
}

// findSectionTitle returns the last detected heading at or before the chunk
// start, or the empty string when no heading precedes it
func findSectionTitle(startChar int, sections []section) string {
	title := ""
	for _, s := range sections {
		if s.startChar <= startChar {
			title = s.title
		} else {
			break
		}
	}
	return title
}

// findPageNumber maps a character offset to a page by accumulating page text
// lengths. Defaults to page 1 without page data, and to the last page for
// offsets past the final span.
func findPageNumber(startChar int, pages []models.PageContent) int {
	if len(pages) == 0 {
		return 1
	}

	currentPos := 0
	for _, page := range pages {
		pageLen := len([]rune(page.Text))
		if startChar <= currentPos+pageLen {
			return page.PageNumber
		}
		currentPos += pageLen
	}

	return pages[len(pages)-1].PageNumber
}
