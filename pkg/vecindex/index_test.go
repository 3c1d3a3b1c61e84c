package vecindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianmed/insight-engine/pkg/apperrors"
	"github.com/meridianmed/insight-engine/pkg/models"
)

func desc(name string) *models.TableDescriptor {
	return &models.TableDescriptor{TableName: name, Dataset: "public"}
}

func TestIndex_SearchOrdersByDistance(t *testing.T) {
	ix := New(3)
	require.NoError(t, ix.Index(desc("sales_transactions"), []float32{1, 0, 0}))
	require.NoError(t, ix.Index(desc("distributors"), []float32{0.9, 0.1, 0}))
	require.NoError(t, ix.Index(desc("ap_invoices"), []float32{0, 0, 1}))

	results := ix.Search([]float32{1, 0, 0}, 3)
	require.Len(t, results, 3)
	assert.Equal(t, "sales_transactions", results[0].Descriptor.TableName)
	assert.Equal(t, "distributors", results[1].Descriptor.TableName)
	assert.Equal(t, "ap_invoices", results[2].Descriptor.TableName)
	assert.LessOrEqual(t, results[0].Distance, results[1].Distance)
}

func TestIndex_SearchRespectsK(t *testing.T) {
	ix := New(2)
	require.NoError(t, ix.Index(desc("a"), []float32{1, 0}))
	require.NoError(t, ix.Index(desc("b"), []float32{0, 1}))

	results := ix.Search([]float32{1, 0}, 1)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Descriptor.TableName)
}

func TestIndex_TieBreaksByName(t *testing.T) {
	ix := New(2)
	require.NoError(t, ix.Index(desc("zeta"), []float32{1, 0}))
	require.NoError(t, ix.Index(desc("alpha"), []float32{1, 0}))

	results := ix.Search([]float32{1, 0}, 2)
	require.Len(t, results, 2)
	assert.Equal(t, "alpha", results[0].Descriptor.TableName)
	assert.Equal(t, "zeta", results[1].Descriptor.TableName)
}

func TestIndex_EmptyIndexReturnsEmpty(t *testing.T) {
	ix := New(4)
	results := ix.Search([]float32{1, 0, 0, 0}, 5)
	assert.Empty(t, results)
}

func TestIndex_DimensionMismatch(t *testing.T) {
	ix := New(4)
	err := ix.Index(desc("a"), []float32{1, 0})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestIndex_ReindexReplaces(t *testing.T) {
	ix := New(2)
	require.NoError(t, ix.Index(desc("a"), []float32{1, 0}))
	require.NoError(t, ix.Index(desc("a"), []float32{0, 1}))
	assert.Equal(t, 1, ix.Len())

	results := ix.Search([]float32{0, 1}, 1)
	require.Len(t, results, 1)
	assert.InDelta(t, 0, results[0].Distance, 1e-6)
}

func TestIndex_Clear(t *testing.T) {
	ix := New(2)
	require.NoError(t, ix.Index(desc("a"), []float32{1, 0}))
	ix.Clear()
	assert.Equal(t, 0, ix.Len())
	assert.Empty(t, ix.Search([]float32{1, 0}, 1))
}
