package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Embedder produces embeddings through the Gemini API. It implements
// embed.Provider; the client handle is safe for concurrent reuse.
type Embedder struct {
	client *genai.Client
	model  string
}

func NewEmbedder(ctx context.Context, apiKey, model string) (*Embedder, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = "text-embedding-004"
	}
	return &Embedder{client: client, model: model}, nil
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	slog.DebugContext(ctx, "embedding content", "model", e.model, "length", len(text))
	em := e.client.EmbeddingModel(e.model)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		slog.ErrorContext(ctx, "embedding failed", "error", err)
		return nil, err
	}
	if res.Embedding == nil {
		return nil, fmt.Errorf("gemini returned no embedding for model %s", e.model)
	}
	return res.Embedding.Values, nil
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	slog.DebugContext(ctx, "embedding batch", "model", e.model, "count", len(texts))
	em := e.client.EmbeddingModel(e.model)

	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		slog.ErrorContext(ctx, "batch embedding failed", "error", err, "count", len(texts))
		return nil, err
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini returned %d embeddings for %d texts", len(res.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(res.Embeddings))
	for i, emb := range res.Embeddings {
		if emb == nil {
			return nil, fmt.Errorf("gemini returned empty embedding at position %d", i)
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}

func (e *Embedder) Close() error {
	return e.client.Close()
}
