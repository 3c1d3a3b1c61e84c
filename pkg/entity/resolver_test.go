package entity

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridianmed/insight-engine/pkg/models"
	"github.com/meridianmed/insight-engine/pkg/warehouse"
)

func newResolver() *Resolver {
	return NewResolver(zap.NewNop())
}

func TestResolve_CaseInsensitive(t *testing.T) {
	r := newResolver()
	r.Register(models.EntityRecord{
		CanonicalName: "Jane Smith",
		EntityClass:   models.ClassSurgeon,
		ColumnBinding: "s.surgeon_name",
	})

	for _, name := range []string{"Jane Smith", "jane smith", "JANE SMITH"} {
		rec := r.Resolve(name)
		require.NotNil(t, rec, "lookup %q", name)
		assert.Equal(t, "Jane Smith", rec.CanonicalName)
	}
}

func TestResolve_UnknownReturnsNil(t *testing.T) {
	assert.Nil(t, newResolver().Resolve("nobody"))
}

func TestRegister_SameClassReplaces(t *testing.T) {
	r := newResolver()
	r.Register(models.EntityRecord{CanonicalName: "Apex Medical", EntityClass: models.ClassDistributor, ColumnBinding: "old"})
	r.Register(models.EntityRecord{CanonicalName: "Apex Medical", EntityClass: models.ClassDistributor, ColumnBinding: "d.distributor_name"})

	assert.Equal(t, 1, r.Len())
	rec := r.Resolve("apex medical")
	require.NotNil(t, rec)
	assert.Equal(t, "d.distributor_name", rec.ColumnBinding)
}

func TestRegister_CollisionLastClassWins(t *testing.T) {
	r := newResolver()
	r.Register(models.EntityRecord{CanonicalName: "Mercy", EntityClass: models.ClassFacility, ColumnBinding: "f.facility_name"})
	r.Register(models.EntityRecord{CanonicalName: "Mercy", EntityClass: models.ClassDistributor, ColumnBinding: "d.distributor_name"})

	rec := r.Resolve("mercy")
	require.NotNil(t, rec)
	assert.Equal(t, models.ClassDistributor, rec.EntityClass)

	all := r.ResolveAll("mercy")
	require.Len(t, all, 2)
	assert.Equal(t, models.ClassFacility, all[0].EntityClass)
	assert.Equal(t, models.ClassDistributor, all[1].EntityClass)
}

func TestSimilar(t *testing.T) {
	r := newResolver()
	r.Register(models.EntityRecord{CanonicalName: "Mercy General", EntityClass: models.ClassFacility})
	r.Register(models.EntityRecord{CanonicalName: "Mercy West", EntityClass: models.ClassFacility})
	r.Register(models.EntityRecord{CanonicalName: "Mercy Devices", EntityClass: models.ClassVendor})

	t.Run("class restricted", func(t *testing.T) {
		matches := r.Similar("mercy", models.ClassFacility)
		assert.Len(t, matches, 2)
	})

	t.Run("plural class name", func(t *testing.T) {
		matches := r.Similar("mercy", "facilities")
		assert.Len(t, matches, 2)
	})

	t.Run("empty class matches everything", func(t *testing.T) {
		matches := r.Similar("mercy", "")
		assert.Len(t, matches, 3)
	})
}

// fakeWarehouse serves canned rows for seeding.
type fakeWarehouse struct {
	warehouse.Warehouse
	rowsByQuery map[string][]map[string]any
}

func (f *fakeWarehouse) Execute(_ context.Context, sql string, _ int) (*warehouse.QueryResult, error) {
	for fragment, rows := range f.rowsByQuery {
		if strings.Contains(sql, fragment) {
			return &warehouse.QueryResult{Rows: rows, RowCount: len(rows)}, nil
		}
	}
	return nil, assert.AnError
}

func TestSeed(t *testing.T) {
	wh := &fakeWarehouse{rowsByQuery: map[string][]map[string]any{
		"FROM surgeons": {
			{"surgeon_name": "Jane Smith"},
			{"surgeon_name": "Raj Patel"},
		},
		"FROM distributors": {
			{"distributor_name": "Apex Medical"},
		},
	}}

	r := newResolver()
	require.NoError(t, r.Seed(context.Background(), wh))

	// Sources without canned rows are skipped, not fatal.
	assert.Equal(t, 3, r.Len())

	rec := r.Resolve("Apex Medical")
	require.NotNil(t, rec)
	assert.Equal(t, models.ClassDistributor, rec.EntityClass)
	assert.Equal(t, "d.distributor_name", rec.ColumnBinding)
}
