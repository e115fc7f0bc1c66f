package embed_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docquery/internal/embed"
)

// indexProvider returns a vector encoding the global position of each text,
// so ordering across batches can be asserted.
type indexProvider struct {
	calls      int
	batchSizes []int
	failOnCall int // 1-based; 0 means never fail
	next       float32
}

func (p *indexProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.calls++
	p.batchSizes = append(p.batchSizes, len(texts))
	if p.failOnCall > 0 && p.calls == p.failOnCall {
		return nil, errors.New("provider exploded")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{p.next}
		p.next++
	}
	return out, nil
}

func (p *indexProvider) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{42}, nil
}

func TestEmbedAll_OrderPreservedAcrossBatches(t *testing.T) {
	provider := &indexProvider{}
	b := embed.NewBatcher(provider, 100, 0)

	texts := make([]string, 250)
	for i := range texts {
		texts[i] = fmt.Sprintf("chunk %d", i)
	}

	vectors, err := b.EmbedAll(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 250)
	assert.Equal(t, 3, provider.calls)
	assert.Equal(t, []int{100, 100, 50}, provider.batchSizes)
	for i, vec := range vectors {
		assert.Equal(t, float32(i), vec[0], "vector %d out of order", i)
	}
}

func TestEmbedAll_Empty(t *testing.T) {
	provider := &indexProvider{}
	b := embed.NewBatcher(provider, 100, 0)

	vectors, err := b.EmbedAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
	assert.Zero(t, provider.calls)
}

func TestEmbedAll_BatchFailureFailsCall(t *testing.T) {
	provider := &indexProvider{failOnCall: 2}
	b := embed.NewBatcher(provider, 10, 0)

	texts := make([]string, 25)
	for i := range texts {
		texts[i] = "t"
	}

	_, err := b.EmbedAll(context.Background(), texts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embed batch 2")
	// No retry: exactly two calls were made.
	assert.Equal(t, 2, provider.calls)
}

type mismatchProvider struct{}

func (mismatchProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)-1), nil
}

func (mismatchProvider) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, nil
}

func TestEmbedAll_LengthMismatchRejected(t *testing.T) {
	b := embed.NewBatcher(mismatchProvider{}, 10, 0)

	_, err := b.EmbedAll(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 texts")
}

type fixedDimProvider struct{ dim int }

func (p fixedDimProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, p.dim)
	}
	return out, nil
}

func (p fixedDimProvider) Embed(_ context.Context, _ string) ([]float32, error) {
	return make([]float32, p.dim), nil
}

func TestEmbedAll_DimensionValidated(t *testing.T) {
	b := embed.NewBatcher(fixedDimProvider{dim: 3}, 10, 4)

	_, err := b.EmbedAll(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension 3, want 4")
}

func TestEmbedQuery(t *testing.T) {
	b := embed.NewBatcher(fixedDimProvider{dim: 4}, 10, 4)

	vec, err := b.EmbedQuery(context.Background(), "what is this?")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
}
