package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"sync"

	"lexfind-backend/embeddings"
	"lexfind-backend/models"
	"lexfind-backend/vectorindex"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultSimilarityThreshold is the hard cut below which neighbors are
	// dropped from search results
	DefaultSimilarityThreshold = 0.3
	// DefaultMaxResults caps neighbors requested per query
	DefaultMaxResults = 10
	// DefaultContextWindow is how many sibling chunks to fetch on each side
	// of a match
	DefaultContextWindow = 1

	// hydrationConcurrency bounds parallel metadata-store reads; the store has
	// its own rate limits and unbounded fan-out risks availability
	hydrationConcurrency = 5
)

// ChunkReader is the chunk metadata lookup surface the retrieval path needs
type ChunkReader interface {
	GetByIDs(ctx context.Context, chunkIDs []string) (map[string]models.TextChunk, error)
	GetRange(ctx context.Context, documentID string, fromIndex, toIndex int) ([]models.TextChunk, error)
}

// DocumentReader resolves document-level metadata for display
type DocumentReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
}

// RetrievalService orchestrates query embedding, nearest-neighbor search,
// similarity filtering, hydration and context expansion
type RetrievalService struct {
	embedder  embeddings.Embedder
	index     vectorindex.Index
	chunks    ChunkReader
	documents DocumentReader

	similarityThreshold float64
	maxResults          int
	contextWindow       int
}

// RetrievalServiceOption is a functional option for RetrievalService
type RetrievalServiceOption func(*RetrievalService)

// WithEmbedder sets the embedding service
func WithEmbedder(e embeddings.Embedder) RetrievalServiceOption {
	return func(s *RetrievalService) {
		s.embedder = e
	}
}

// WithIndex sets the vector index client
func WithIndex(idx vectorindex.Index) RetrievalServiceOption {
	return func(s *RetrievalService) {
		s.index = idx
	}
}

// WithChunkReader sets the chunk metadata store
func WithChunkReader(r ChunkReader) RetrievalServiceOption {
	return func(s *RetrievalService) {
		s.chunks = r
	}
}

// WithDocumentReader sets the document metadata store
func WithDocumentReader(r DocumentReader) RetrievalServiceOption {
	return func(s *RetrievalService) {
		s.documents = r
	}
}

// WithSimilarityThreshold overrides the similarity cut
func WithSimilarityThreshold(threshold float64) RetrievalServiceOption {
	return func(s *RetrievalService) {
		s.similarityThreshold = threshold
	}
}

// WithContextWindow overrides the context expansion window
func WithContextWindow(window int) RetrievalServiceOption {
	return func(s *RetrievalService) {
		s.contextWindow = window
	}
}

// NewRetrievalService creates a retrieval service. Threshold defaults come
// from SIMILARITY_THRESHOLD when not set by option.
func NewRetrievalService(opts ...RetrievalServiceOption) *RetrievalService {
	s := &RetrievalService{
		similarityThreshold: thresholdFromEnv(),
		maxResults:          DefaultMaxResults,
		contextWindow:       DefaultContextWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func thresholdFromEnv() float64 {
	if v := os.Getenv("SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return DefaultSimilarityThreshold
}

// SearchRequest represents a semantic search request
type SearchRequest struct {
	Query      string
	Filters    map[string]any
	MaxResults int
	// ContextWindow overrides the service default when > 0; set to -1 to
	// disable context expansion for this request
	ContextWindow int
}

// SearchResult represents the outcome of a search. Status is always set:
// upstream failures surface as an error status with Error populated, never as
// a bare panic up the HTTP stack.
type SearchResult struct {
	Status       models.SearchStatus     `json:"status"`
	Query        string                  `json:"query"`
	Documents    []models.DocumentResult `json:"documents"`
	Matches      []models.RetrievedMatch `json:"matches"`
	TotalMatches int                     `json:"total_matches"`
	Error        string                  `json:"error,omitempty"`
}

// Search runs the full retrieval pipeline: embed the query, find neighbors,
// apply the similarity threshold, hydrate chunk and document metadata, expand
// context and group by source document.
func (s *RetrievalService) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	if s.embedder == nil || s.index == nil || s.chunks == nil || s.documents == nil {
		return nil, errors.New("retrieval service dependencies not set")
	}
	if req.Query == "" {
		return nil, errors.New("query text is required")
	}

	result := &SearchResult{Status: models.SearchStatusSuccess, Query: req.Query}

	vector, err := s.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		result.Status = models.SearchStatusError
		result.Error = fmt.Sprintf("query embedding failed: %v", err)
		return result, nil
	}
	if len(vector) == 0 {
		result.Status = models.SearchStatusError
		result.Error = "query embedding returned an empty vector"
		return result, nil
	}

	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	neighbors, err := s.index.Query(ctx, vector, maxResults, req.Filters)
	if err != nil {
		result.Status = models.SearchStatusError
		result.Error = fmt.Sprintf("vector query failed: %v", err)
		return result, nil
	}

	// Hard similarity cut, not a soft re-weighting
	kept := neighbors[:0]
	for _, n := range neighbors {
		if n.SimilarityScore >= s.similarityThreshold {
			kept = append(kept, n)
		}
	}

	if len(kept) == 0 {
		result.Status = models.SearchStatusNoResults
		return result, nil
	}

	matches, err := s.hydrate(ctx, kept)
	if err != nil {
		result.Status = models.SearchStatusError
		result.Error = fmt.Sprintf("hydration failed: %v", err)
		return result, nil
	}
	if len(matches) == 0 {
		result.Status = models.SearchStatusNoResults
		return result, nil
	}

	window := s.contextWindow
	if req.ContextWindow > 0 {
		window = req.ContextWindow
	} else if req.ContextWindow < 0 {
		window = 0
	}
	if window > 0 {
		s.attachContext(ctx, matches, window)
	}

	result.Matches = matches
	result.TotalMatches = len(matches)
	result.Documents = groupByDocument(matches)
	return result, nil
}

// hydrate resolves chunk text and document metadata for each neighbor. A
// neighbor with no chunk record or no document record indicates a partial
// write; it is logged and dropped, never surfaced half-populated.
func (s *RetrievalService) hydrate(ctx context.Context, neighbors []vectorindex.Neighbor) ([]models.RetrievedMatch, error) {
	ids := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		ids = append(ids, n.ID)
	}

	chunks, err := s.chunks.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	var matches []models.RetrievedMatch
	docIDs := make(map[string]uuid.UUID)
	for _, n := range neighbors {
		chunk, ok := chunks[n.ID]
		if !ok {
			log.Printf("Dropping match %s: no chunk metadata record", n.ID)
			continue
		}

		docID, err := uuid.Parse(chunk.DocumentID)
		if err != nil {
			log.Printf("Dropping match %s: malformed document id %q", n.ID, chunk.DocumentID)
			continue
		}
		docIDs[chunk.DocumentID] = docID

		matches = append(matches, models.RetrievedMatch{
			ChunkID:         n.ID,
			Distance:        n.Distance,
			SimilarityScore: n.SimilarityScore,
			Text:            chunk.Text,
			DocumentID:      chunk.DocumentID,
			ChunkIndex:      chunk.ChunkIndex,
			PageNumber:      chunk.PageNumber,
			SectionTitle:    chunk.SectionTitle,
		})
	}

	docs := s.fetchDocuments(ctx, docIDs)

	hydrated := matches[:0]
	for _, m := range matches {
		doc, ok := docs[m.DocumentID]
		if !ok {
			log.Printf("Dropping match %s: no document record for %s", m.ChunkID, m.DocumentID)
			continue
		}
		m.Document = doc
		hydrated = append(hydrated, m)
	}

	return hydrated, nil
}

// fetchDocuments loads document records with bounded concurrency. Individual
// failures drop only that document's matches.
func (s *RetrievalService) fetchDocuments(ctx context.Context, docIDs map[string]uuid.UUID) map[string]*models.Document {
	docs := make(map[string]*models.Document, len(docIDs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hydrationConcurrency)

	for key, id := range docIDs {
		g.Go(func() error {
			doc, err := s.documents.GetByID(gctx, id)
			if err != nil {
				log.Printf("Document lookup failed for %s: %v", key, err)
				return nil
			}
			mu.Lock()
			docs[key] = doc
			mu.Unlock()
			return nil
		})
	}

	g.Wait()
	return docs
}

// attachContext expands each match with its surrounding chunks. Expansion is
// best-effort: a failed range read leaves that match without context.
func (s *RetrievalService) attachContext(ctx context.Context, matches []models.RetrievedMatch, window int) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hydrationConcurrency)

	for i := range matches {
		g.Go(func() error {
			m := &matches[i]
			siblings, err := s.chunks.GetRange(gctx, m.DocumentID, m.ChunkIndex-window, m.ChunkIndex+window)
			if err != nil {
				log.Printf("Context expansion failed for %s: %v", m.ChunkID, err)
				return nil
			}
			for _, sibling := range siblings {
				m.ContextChunks = append(m.ContextChunks, models.ContextChunk{
					TextChunk:  sibling,
					IsOriginal: sibling.ChunkID == m.ChunkID,
				})
			}
			return nil
		})
	}

	g.Wait()
}

// ExpandContext fetches the ±window siblings for a set of matched chunk IDs,
// deduplicated across overlapping windows and sorted by (document, index).
// The original hits are flagged in the result.
func (s *RetrievalService) ExpandContext(ctx context.Context, chunkIDs []string, window int) ([]models.ContextChunk, error) {
	if s.chunks == nil {
		return nil, errors.New("chunk reader not set")
	}
	if window <= 0 {
		window = s.contextWindow
	}

	originals := make(map[string]bool, len(chunkIDs))
	type span struct {
		documentID string
		from, to   int
	}
	var spans []span
	for _, chunkID := range chunkIDs {
		docID, index, ok := models.ParseChunkID(chunkID)
		if !ok {
			log.Printf("Skipping context expansion for unparseable chunk id %q", chunkID)
			continue
		}
		originals[chunkID] = true
		spans = append(spans, span{documentID: docID, from: index - window, to: index + window})
	}

	seen := make(map[string]bool)
	var out []models.ContextChunk
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hydrationConcurrency)
	for _, sp := range spans {
		g.Go(func() error {
			siblings, err := s.chunks.GetRange(gctx, sp.documentID, sp.from, sp.to)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, sibling := range siblings {
				if seen[sibling.ChunkID] {
					continue
				}
				seen[sibling.ChunkID] = true
				out = append(out, models.ContextChunk{
					TextChunk:  sibling,
					IsOriginal: originals[sibling.ChunkID],
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].DocumentID != out[j].DocumentID {
			return out[i].DocumentID < out[j].DocumentID
		}
		return out[i].ChunkIndex < out[j].ChunkIndex
	})
	return out, nil
}

// groupByDocument groups matches by source document. Groups are ordered by
// their best similarity score; within a group chunks read in document order.
func groupByDocument(matches []models.RetrievedMatch) []models.DocumentResult {
	groups := make(map[string]*models.DocumentResult)
	var order []string

	for _, m := range matches {
		group, ok := groups[m.DocumentID]
		if !ok {
			group = &models.DocumentResult{DocumentID: m.DocumentID}
			if m.Document != nil {
				group.Title = m.Document.Title
				group.Author = m.Document.Author
				group.LegalArea = m.Document.LegalArea
				group.Edition = m.Document.Edition
				group.PublicationYear = m.Document.PublicationYear
			}
			groups[m.DocumentID] = group
			order = append(order, m.DocumentID)
		}
		if m.SimilarityScore > group.MaxSimilarityScore {
			group.MaxSimilarityScore = m.SimilarityScore
		}
		group.RelevantChunks = append(group.RelevantChunks, m)
	}

	results := make([]models.DocumentResult, 0, len(groups))
	for _, docID := range order {
		group := groups[docID]
		sort.Slice(group.RelevantChunks, func(i, j int) bool {
			return group.RelevantChunks[i].ChunkIndex < group.RelevantChunks[j].ChunkIndex
		})
		group.TotalChunksFound = len(group.RelevantChunks)
		results = append(results, *group)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].MaxSimilarityScore > results[j].MaxSimilarityScore
	})
	return results
}
