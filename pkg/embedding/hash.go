package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// DefaultHashDimension is the stable dimension of the fallback provider.
// Changing it forces a full index rebuild at startup.
const DefaultHashDimension = 256

// HashProvider derives vectors from token hashes. It preserves the Provider
// interface and a stable dimension so index builds work without an API key.
// This is a degraded-quality mode, not a correctness mode: related texts
// only score close when they share tokens.
type HashProvider struct {
	dim int
}

// NewHashProvider creates the deterministic fallback provider.
func NewHashProvider(dim int) *HashProvider {
	if dim <= 0 {
		dim = DefaultHashDimension
	}
	return &HashProvider{dim: dim}
}

// Embed maps text to a unit vector. Identical inputs always produce
// identical vectors.
func (p *HashProvider) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float64, p.dim)

	for _, token := range tokenize(text) {
		h := fnv.New64a()
		h.Write([]byte(token))
		state := h.Sum64()

		// Spread each token over a handful of positions with signed
		// weights drawn from an xorshift sequence seeded by the token.
		for i := 0; i < 4; i++ {
			state ^= state << 13
			state ^= state >> 7
			state ^= state << 17
			idx := int(state % uint64(p.dim))
			sign := 1.0
			if state&(1<<62) != 0 {
				sign = -1.0
			}
			vec[idx] += sign
		}
	}

	return normalize(vec), nil
}

// EmbedBatch embeds each text independently.
func (p *HashProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimension returns the fallback's fixed dimension.
func (p *HashProvider) Dimension() int { return p.dim }

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
}

func normalize(vec []float64) []float32 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	norm := math.Sqrt(sum)

	out := make([]float32, len(vec))
	if norm == 0 {
		return out
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}
