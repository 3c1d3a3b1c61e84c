package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashProvider_Deterministic(t *testing.T) {
	p := NewHashProvider(DefaultHashDimension)
	ctx := context.Background()

	a, err := p.Embed(ctx, "total revenue by distributor last quarter")
	require.NoError(t, err)
	b, err := p.Embed(ctx, "total revenue by distributor last quarter")
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestHashProvider_DifferentTextsDiffer(t *testing.T) {
	p := NewHashProvider(DefaultHashDimension)
	ctx := context.Background()

	a, err := p.Embed(ctx, "revenue by distributor")
	require.NoError(t, err)
	b, err := p.Embed(ctx, "inventory on hand by facility")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestHashProvider_Normalized(t *testing.T) {
	p := NewHashProvider(DefaultHashDimension)

	vec, err := p.Embed(context.Background(), "surgeon gross margin")
	require.NoError(t, err)
	require.Len(t, vec, DefaultHashDimension)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestHashProvider_EmbedBatch(t *testing.T) {
	p := NewHashProvider(DefaultHashDimension)
	ctx := context.Background()

	vectors, err := p.EmbedBatch(ctx, []string{"one", "two", "three"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	single, err := p.Embed(ctx, "two")
	require.NoError(t, err)
	assert.Equal(t, single, vectors[1])
}

func TestHashProvider_Dimension(t *testing.T) {
	assert.Equal(t, 128, NewHashProvider(128).Dimension())
}
