// Package vecindex stores schema descriptors with their embedding vectors
// and serves nearest-neighbour search by cosine distance.
package vecindex

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/meridianmed/insight-engine/pkg/apperrors"
	"github.com/meridianmed/insight-engine/pkg/models"
)

// Result is one search hit, distance ascending from the query.
type Result struct {
	Descriptor *models.TableDescriptor
	Distance   float64
}

type entry struct {
	descriptor *models.TableDescriptor
	vector     []float32
	combined   string
}

// Index is an in-memory cosine-distance index. Concurrent readers are fine;
// rebuilds take the write lock.
type Index struct {
	mu      sync.RWMutex
	dim     int
	entries map[string]entry
}

// New creates an index that accepts vectors of the given dimension.
func New(dim int) *Index {
	return &Index{
		dim:     dim,
		entries: make(map[string]entry),
	}
}

// Dimension returns the dimension every stored vector must have.
func (ix *Index) Dimension() int { return ix.dim }

// Index stores a descriptor with its vector, replacing any previous entry
// for the same table. A dimension mismatch is a validation error.
func (ix *Index) Index(desc *models.TableDescriptor, vector []float32) error {
	if len(vector) != ix.dim {
		return apperrors.New(apperrors.KindValidation,
			fmt.Sprintf("vector dimension %d does not match index dimension %d", len(vector), ix.dim))
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries[desc.TableName] = entry{
		descriptor: desc,
		vector:     vector,
		combined:   desc.CombinedText(),
	}
	return nil
}

// Search returns the k nearest descriptors sorted ascending by cosine
// distance, ties broken by table name for reproducibility. An empty index
// returns an empty slice, not an error.
func (ix *Index) Search(query []float32, k int) []Result {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	results := make([]Result, 0, len(ix.entries))
	for _, e := range ix.entries {
		results = append(results, Result{
			Descriptor: e.descriptor,
			Distance:   cosineDistance(query, e.vector),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Descriptor.TableName < results[j].Descriptor.TableName
	})

	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results
}

// Clear removes every entry.
func (ix *Index) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries = make(map[string]entry)
}

// Len returns the number of indexed descriptors.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// cosineDistance returns 1 - cosine similarity. Zero-norm vectors are
// maximally distant.
func cosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
