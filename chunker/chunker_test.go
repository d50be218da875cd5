package chunker

import (
	"strings"
	"testing"

	"lexfind-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sentences builds deterministic prose of roughly n characters
func sentences(n int) string {
	var b strings.Builder
	for i := 0; b.Len() < n; i++ {
		b.WriteString("The tribunal considered the scope of the statutory duty in some detail. ")
	}
	return b.String()[:n]
}

func TestChunkDocumentEmptyText(t *testing.T) {
	c, err := New(Config{ChunkSize: 1000, Overlap: 200})
	require.NoError(t, err)

	chunks, err := c.ChunkDocument("", "doc-1", nil)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	chunks, err = c.ChunkDocument("   \n\t  ", "doc-1", nil)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunkDocumentInvalidConfig(t *testing.T) {
	_, err := New(Config{ChunkSize: 0, Overlap: 0})
	assert.Error(t, err)

	_, err = New(Config{ChunkSize: -5, Overlap: 0})
	assert.Error(t, err)

	_, err = New(Config{ChunkSize: 100, Overlap: -1})
	assert.Error(t, err)
}

func TestChunkDocumentRequiresDocumentID(t *testing.T) {
	c, err := New(Config{ChunkSize: 1000, Overlap: 200})
	require.NoError(t, err)

	_, err = c.ChunkDocument("some text", "", nil)
	assert.Error(t, err)
}

func TestChunkDocumentThreeChunkExample(t *testing.T) {
	// 2,300 chars with chunk_size=1000, overlap=200 should produce 3 chunks
	// starting near 0, 800 and 1600, covering the full text
	text := sentences(2300)
	c, err := New(Config{ChunkSize: 1000, Overlap: 200})
	require.NoError(t, err)

	chunks, err := c.ChunkDocument(text, "doc-1", nil)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, 0, chunks[0].StartChar)
	assert.InDelta(t, 800, chunks[1].StartChar, 150)
	assert.InDelta(t, 1600, chunks[2].StartChar, 150)
	assert.Equal(t, 2300, chunks[2].EndChar)

	assert.Equal(t, "doc-1_chunk_0000", chunks[0].ChunkID)
	assert.Equal(t, "doc-1_chunk_0001", chunks[1].ChunkID)
	assert.Equal(t, "doc-1_chunk_0002", chunks[2].ChunkID)
}

func TestChunkCoverageAndOverlap(t *testing.T) {
	text := sentences(5000)
	c, err := New(Config{ChunkSize: 1000, Overlap: 200})
	require.NoError(t, err)

	chunks, err := c.ChunkDocument(text, "doc-1", nil)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	assert.Equal(t, 0, chunks[0].StartChar)
	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		assert.Equal(t, i, cur.ChunkIndex)
		// No gaps: each chunk starts inside the previous window
		assert.LessOrEqual(t, cur.StartChar, prev.EndChar)
		assert.GreaterOrEqual(t, cur.StartChar, prev.StartChar)
		// Overlap is the configured 200 chars, give or take the
		// sentence-boundary adjustment window
		overlap := prev.EndChar - cur.StartChar
		assert.InDelta(t, 200, overlap, 100)
	}
	assert.Equal(t, 5000, chunks[len(chunks)-1].EndChar)
}

func TestChunkDeterminism(t *testing.T) {
	text := sentences(4321)
	c, err := New(Config{ChunkSize: 900, Overlap: 150})
	require.NoError(t, err)

	first, err := c.ChunkDocument(text, "doc-1", nil)
	require.NoError(t, err)
	second, err := c.ChunkDocument(text, "doc-1", nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestNoEmptyChunks(t *testing.T) {
	text := sentences(3000) + strings.Repeat(" ", 500)
	c, err := New(Config{ChunkSize: 400, Overlap: 80})
	require.NoError(t, err)

	chunks, err := c.ChunkDocument(text, "doc-1", nil)
	require.NoError(t, err)
	for _, chunk := range chunks {
		assert.NotEmpty(t, strings.TrimSpace(chunk.Text))
	}
}

func TestTerminationWithMaximalOverlap(t *testing.T) {
	// Overlap of chunkSize-1 must still terminate; it gets clamped to half
	text := sentences(2500)
	c, err := New(Config{ChunkSize: 300, Overlap: 299})
	require.NoError(t, err)

	chunks, err := c.ChunkDocument(text, "doc-1", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)
	assert.Equal(t, 2500, chunks[len(chunks)-1].EndChar)
}

func TestSentenceBoundaryCut(t *testing.T) {
	// First sentence ends at char 920; the first window edge at 1000 should
	// pull back to the boundary instead of cutting mid-sentence
	text := strings.Repeat("a", 919) + ". " + strings.Repeat("b", 1500)
	c, err := New(Config{ChunkSize: 1000, Overlap: 0})
	require.NoError(t, err)

	chunks, err := c.ChunkDocument(text, "doc-1", nil)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)

	assert.Equal(t, 920, chunks[0].EndChar)
	assert.True(t, strings.HasSuffix(chunks[0].Text, "."))
	assert.False(t, strings.Contains(chunks[0].Text, "b"))
}

func TestCleanTextNormalization(t *testing.T) {
	text := "Some  text\n\nwith   --- Page 3 --- markers “and” smart ‘quotes’."
	c, err := New(Config{ChunkSize: 1000, Overlap: 0})
	require.NoError(t, err)

	chunks, err := c.ChunkDocument(text, "doc-1", nil)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.NotContains(t, chunks[0].Text, "--- Page")
	assert.NotContains(t, chunks[0].Text, "  ")
	assert.Contains(t, chunks[0].Text, `"and"`)
	assert.Contains(t, chunks[0].Text, "'quotes'")
}

func TestSectionTitleAssignment(t *testing.T) {
	text := "Chapter 1: Formation of Contract\n" +
		sentences(1200) + "\n" +
		"Chapter 2: Breach and Remedies\n" +
		sentences(1200)
	c, err := New(Config{ChunkSize: 800, Overlap: 100})
	require.NoError(t, err)

	chunks, err := c.ChunkDocument(text, "doc-1", nil)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	assert.Equal(t, "Chapter 1: Formation of Contract", chunks[0].SectionTitle)
	assert.Equal(t, "Chapter 2: Breach and Remedies", chunks[len(chunks)-1].SectionTitle)
}

func TestPageNumberAssignment(t *testing.T) {
	page1 := sentences(1100)
	page2 := sentences(1100)
	text := page1 + page2
	pages := []models.PageContent{
		{PageNumber: 1, Text: page1},
		{PageNumber: 2, Text: page2},
	}

	c, err := New(Config{ChunkSize: 700, Overlap: 100})
	require.NoError(t, err)

	chunks, err := c.ChunkDocument(text, "doc-1", pages)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	assert.Equal(t, 1, chunks[0].PageNumber)
	assert.Equal(t, 2, chunks[len(chunks)-1].PageNumber)

	// Without page data everything lands on page 1
	chunks, err = c.ChunkDocument(text, "doc-1", nil)
	require.NoError(t, err)
	for _, chunk := range chunks {
		assert.Equal(t, 1, chunk.PageNumber)
	}
}

func TestParseChunkID(t *testing.T) {
	docID, idx, ok := models.ParseChunkID("doc_with_underscores_chunk_0042")
	require.True(t, ok)
	assert.Equal(t, "doc_with_underscores", docID)
	assert.Equal(t, 42, idx)

	_, _, ok = models.ParseChunkID("not-a-chunk-id")
	assert.False(t, ok)

	_, _, ok = models.ParseChunkID("doc_chunk_12x")
	assert.False(t, ok)
}
