package embed

import (
	"context"
	"fmt"
	"log/slog"
)

const DefaultBatchSize = 100

// Provider is the external embedding service. Both calls must return
// vectors in the same order as their input texts.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Batcher partitions chunk texts into bounded batches for the provider.
// It performs no retries; a failed batch fails the whole call and the
// caller decides what to do with the unit it was embedding.
type Batcher struct {
	provider  Provider
	batchSize int
	dimension int
}

// NewBatcher wraps provider. dimension is the expected vector size; pass 0
// to skip validation of returned vectors.
func NewBatcher(provider Provider, batchSize, dimension int) *Batcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Batcher{provider: provider, batchSize: batchSize, dimension: dimension}
}

// EmbedAll returns one vector per input text, in input order. Batches are
// dispatched sequentially; order is preserved across batch boundaries.
func (b *Batcher) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += b.batchSize {
		end := start + b.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		slog.DebugContext(ctx, "embedding batch", "batch", start/b.batchSize+1, "size", len(batch))
		result, err := b.provider.EmbedBatch(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("embed batch %d: %w", start/b.batchSize+1, err)
		}
		if len(result) != len(batch) {
			return nil, fmt.Errorf("embed batch %d: provider returned %d vectors for %d texts",
				start/b.batchSize+1, len(result), len(batch))
		}
		for i, vec := range result {
			if b.dimension > 0 && len(vec) != b.dimension {
				return nil, fmt.Errorf("embed batch %d: vector %d has dimension %d, want %d",
					start/b.batchSize+1, i, len(vec), b.dimension)
			}
		}
		vectors = append(vectors, result...)
	}
	return vectors, nil
}

// EmbedQuery embeds a single query string, bypassing batching.
func (b *Batcher) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vec, err := b.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if b.dimension > 0 && len(vec) != b.dimension {
		return nil, fmt.Errorf("embed query: vector has dimension %d, want %d", len(vec), b.dimension)
	}
	return vec, nil
}
