// Package embeddings produces dense vectors for chunk text and search queries
// via the Gemini embedding API.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/generative-ai-go/genai"
)

const (
	// DefaultModel is the Gemini embedding model
	DefaultModel = "gemini-embedding-001"

	// maxInputChars caps embedding input size; the API rejects oversized
	// payloads, so longer text is truncated rather than failed
	maxInputChars = 20000

	// apiBatchLimit is the Gemini batch API request limit
	apiBatchLimit = 100
)

// Embedder generates embedding vectors. Document and query embeddings use
// different task types so the model optimizes each side of the retrieval pair.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error)
	EmbedQuery(ctx context.Context, text string) ([]float64, error)
}

// GeminiEmbedder implements Embedder against the Gemini API
type GeminiEmbedder struct {
	client *genai.Client
	model  string
}

// NewGeminiEmbedder wraps an initialized Gemini client. The model name falls
// back to EMBEDDING_MODEL, then to the default.
func NewGeminiEmbedder(client *genai.Client, model string) (*GeminiEmbedder, error) {
	if client == nil {
		return nil, errors.New("gemini client is required")
	}
	if model == "" {
		model = os.Getenv("EMBEDDING_MODEL")
	}
	if model == "" {
		model = DefaultModel
	}
	return &GeminiEmbedder{client: client, model: model}, nil
}

// EmbedDocuments embeds a batch of chunk texts with the retrieval-document
// task type. The result always has one vector per input, in input order, all
// with the same dimension; anything else from the API is an error.
func (g *GeminiEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts provided")
	}

	em := g.client.EmbeddingModel(g.model)
	em.TaskType = genai.TaskTypeRetrievalDocument

	vectors := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += apiBatchLimit {
		stop := start + apiBatchLimit
		if stop > len(texts) {
			stop = len(texts)
		}

		batch := em.NewBatch()
		for _, text := range texts[start:stop] {
			batch.AddContent(genai.Text(truncate(text)))
		}

		resp, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("batch embedding failed: %w", err)
		}
		if len(resp.Embeddings) != stop-start {
			return nil, fmt.Errorf("got %d embeddings for %d texts", len(resp.Embeddings), stop-start)
		}

		for i, emb := range resp.Embeddings {
			if emb == nil || len(emb.Values) == 0 {
				return nil, fmt.Errorf("empty embedding for text at index %d", start+i)
			}
			vectors = append(vectors, toFloat64(emb.Values))
		}
	}

	if err := checkUniform(vectors); err != nil {
		return nil, err
	}
	return vectors, nil
}

// EmbedQuery embeds a single search query with the retrieval-query task type
func (g *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	if text == "" {
		return nil, errors.New("empty query text")
	}

	em := g.client.EmbeddingModel(g.model)
	em.TaskType = genai.TaskTypeRetrievalQuery

	resp, err := em.EmbedContent(ctx, genai.Text(truncate(text)))
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}
	if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, errors.New("empty query embedding")
	}

	return toFloat64(resp.Embedding.Values), nil
}

func truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= maxInputChars {
		return text
	}
	return string(runes[:maxInputChars])
}

func toFloat64(values []float32) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}

// checkUniform rejects a batch whose vectors disagree on dimension, which
// would corrupt the index
func checkUniform(vectors [][]float64) error {
	if len(vectors) == 0 {
		return nil
	}
	dimension := len(vectors[0])
	for i, vec := range vectors {
		if len(vec) != dimension {
			return fmt.Errorf("embedding %d has dimension %d, expected %d", i, len(vec), dimension)
		}
	}
	return nil
}
