package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"lexfind-backend/models"
	"lexfind-backend/vectorindex"

	"github.com/google/uuid"
)

// fakeEmbedder returns canned vectors
type fakeEmbedder struct {
	queryVector []float64
	queryErr    error
	docErr      error
	dimension   int
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float64, error) {
	if f.docErr != nil {
		return nil, f.docErr
	}
	dim := f.dimension
	if dim == 0 {
		dim = 3
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		vec := make([]float64, dim)
		vec[0] = float64(i)
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, _ string) ([]float64, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.queryVector != nil {
		return f.queryVector, nil
	}
	return []float64{0.1, 0.2, 0.3}, nil
}

// fakeIndex records index traffic and returns canned results
type fakeIndex struct {
	mu        sync.Mutex
	neighbors []vectorindex.Neighbor
	queryErr  error
	addErr    error
	deleteErr error
	staged    bool
	stagedURI string

	added   []vectorindex.Entry
	deleted []string
}

func (f *fakeIndex) Add(_ context.Context, entries []vectorindex.Entry) (*vectorindex.AddOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return nil, f.addErr
	}
	f.added = append(f.added, entries...)
	return &vectorindex.AddOutcome{Count: len(entries), Staged: f.staged, StagedURI: f.stagedURI}, nil
}

func (f *fakeIndex) Query(_ context.Context, _ []float64, _ int, _ map[string]any) ([]vectorindex.Neighbor, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.neighbors, nil
}

func (f *fakeIndex) Delete(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, ids...)
	return nil
}

// fakeChunkStore keeps chunks in memory, keyed the way the repository is
type fakeChunkStore struct {
	mu       sync.Mutex
	chunks   map[string]models.TextChunk
	rangeErr error
	getErr   error
}

func newFakeChunkStore() *fakeChunkStore {
	return &fakeChunkStore{chunks: make(map[string]models.TextChunk)}
}

func (f *fakeChunkStore) put(chunks ...models.TextChunk) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range chunks {
		f.chunks[c.ChunkID] = c
	}
}

func (f *fakeChunkStore) CreateBatch(_ context.Context, chunks []models.TextChunk) error {
	f.put(chunks...)
	return nil
}

func (f *fakeChunkStore) GetByIDs(_ context.Context, chunkIDs []string) (map[string]models.TextChunk, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]models.TextChunk)
	for _, id := range chunkIDs {
		if c, ok := f.chunks[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func (f *fakeChunkStore) GetRange(_ context.Context, documentID string, fromIndex, toIndex int) ([]models.TextChunk, error) {
	if f.rangeErr != nil {
		return nil, f.rangeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.TextChunk
	for i := fromIndex; i <= toIndex; i++ {
		if i < 0 {
			continue
		}
		if c, ok := f.chunks[models.ChunkIDFor(documentID, i)]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeChunkStore) ListChunkIDs(_ context.Context, documentID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, c := range f.chunks {
		if c.DocumentID == documentID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeChunkStore) DeleteByDocument(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, c := range f.chunks {
		if c.DocumentID == documentID {
			delete(f.chunks, id)
		}
	}
	return nil
}

// fakeDocStore keeps document records in memory
type fakeDocStore struct {
	mu   sync.Mutex
	docs map[uuid.UUID]*models.Document
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{docs: make(map[uuid.UUID]*models.Document)}
}

func (f *fakeDocStore) Create(_ context.Context, doc *models.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc.ID = uuid.New()
	stored := *doc
	f.docs[doc.ID] = &stored
	return nil
}

func (f *fakeDocStore) GetByID(_ context.Context, id uuid.UUID) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s not found", id)
	}
	copied := *doc
	return &copied, nil
}

func (f *fakeDocStore) List(_ context.Context) ([]*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Document
	for _, doc := range f.docs {
		copied := *doc
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeDocStore) MarkCompleted(_ context.Context, id uuid.UUID, totalChunks int) error {
	return f.update(id, func(doc *models.Document) {
		doc.ProcessingStatus = models.StatusCompleted
		doc.TotalChunks = totalChunks
	})
}

func (f *fakeDocStore) MarkStaged(_ context.Context, id uuid.UUID, totalChunks int, stagedURI string) error {
	return f.update(id, func(doc *models.Document) {
		doc.ProcessingStatus = models.StatusStaged
		doc.TotalChunks = totalChunks
		doc.StagedURI = &stagedURI
	})
}

func (f *fakeDocStore) MarkFailed(_ context.Context, id uuid.UUID, message string) error {
	return f.update(id, func(doc *models.Document) {
		doc.ProcessingStatus = models.StatusFailed
		doc.ErrorMessage = &message
	})
}

func (f *fakeDocStore) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, id)
	return nil
}

func (f *fakeDocStore) update(id uuid.UUID, fn func(*models.Document)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return errors.New("document not found")
	}
	fn(doc)
	return nil
}

// fakeFileStore records uploads without touching disk
type fakeFileStore struct {
	uploads []string
	deleted []string
}

func (f *fakeFileStore) UploadDocument(_ context.Context, documentID uuid.UUID, filename string, data io.Reader) (string, error) {
	io.Copy(io.Discard, data)
	path := documentID.String() + "/" + filename
	f.uploads = append(f.uploads, path)
	return path, nil
}

func (f *fakeFileStore) Delete(_ context.Context, storagePath string) error {
	f.deleted = append(f.deleted, storagePath)
	return nil
}
