package querylog

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianmed/insight-engine/pkg/models"
)

func record(id string, mode models.QueryMode) models.QueryExecutionRecord {
	return models.QueryExecutionRecord{ExecutionID: id, Mode: mode, Status: models.StatusCompleted}
}

func TestRing_AppendEvictsOldest(t *testing.T) {
	r := NewRing(3)
	for i := 0; i < 5; i++ {
		r.Append(record(fmt.Sprintf("e%d", i), models.ModeChat))
	}

	assert.Equal(t, 3, r.Len())
	records := r.List(0, 0, "")
	require.Len(t, records, 3)
	// Newest first; e0 and e1 were evicted.
	assert.Equal(t, "e4", records[0].ExecutionID)
	assert.Equal(t, "e2", records[2].ExecutionID)
}

func TestRing_ListNewestFirst(t *testing.T) {
	r := NewRing(10)
	r.Append(record("a", models.ModeChat))
	r.Append(record("b", models.ModeChat))

	records := r.List(0, 0, "")
	require.Len(t, records, 2)
	assert.Equal(t, "b", records[0].ExecutionID)
}

func TestRing_ModeFilter(t *testing.T) {
	r := NewRing(10)
	r.Append(record("a", models.ModeChat))
	r.Append(record("b", models.ModeResearch))
	r.Append(record("c", models.ModeChat))

	records := r.List(0, 0, models.ModeResearch)
	require.Len(t, records, 1)
	assert.Equal(t, "b", records[0].ExecutionID)
}

func TestRing_Paging(t *testing.T) {
	r := NewRing(10)
	for i := 0; i < 5; i++ {
		r.Append(record(fmt.Sprintf("e%d", i), models.ModeChat))
	}

	page := r.List(1, 2, "")
	require.Len(t, page, 2)
	assert.Equal(t, "e3", page[0].ExecutionID)
	assert.Equal(t, "e2", page[1].ExecutionID)

	assert.Empty(t, r.List(10, 2, ""))
}

func TestRing_Clear(t *testing.T) {
	r := NewRing(10)
	r.Append(record("a", models.ModeChat))
	r.Clear()
	assert.Equal(t, 0, r.Len())
}

func TestRing_ZeroCapacityUsesDefault(t *testing.T) {
	r := NewRing(0)
	for i := 0; i < DefaultCapacity+5; i++ {
		r.Append(record(fmt.Sprintf("e%d", i), models.ModeChat))
	}
	assert.Equal(t, DefaultCapacity, r.Len())
}
