// Package entity resolves bare names from user questions to their entity
// class and filter column. The lookup is an in-memory map seeded at boot
// from the warehouse's canonical person/place tables.
package entity

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/meridianmed/insight-engine/pkg/models"
	"github.com/meridianmed/insight-engine/pkg/warehouse"
)

// Resolver owns EntityRecords keyed case-insensitively by canonical name.
type Resolver struct {
	logger *zap.Logger

	mu     sync.RWMutex
	byName map[string][]models.EntityRecord
}

// NewResolver creates an empty resolver.
func NewResolver(logger *zap.Logger) *Resolver {
	return &Resolver{
		logger: logger.Named("entity"),
		byName: make(map[string][]models.EntityRecord),
	}
}

// Register adds a record. A second registration of the same name and class
// replaces the first. A registration under an existing name but different
// class is kept alongside it and logged: Resolve then answers with the
// class registered last, while ResolveAll exposes every class so the
// prompt composer can disambiguate.
func (r *Resolver) Register(rec models.EntityRecord) {
	key := strings.ToLower(rec.CanonicalName)

	r.mu.Lock()
	defer r.mu.Unlock()

	existing := r.byName[key]
	for i, e := range existing {
		if e.EntityClass == rec.EntityClass {
			existing[i] = rec
			return
		}
	}
	if len(existing) > 0 {
		r.logger.Info("entity name collision, class registered last wins",
			zap.String("name", rec.CanonicalName),
			zap.String("existing_class", string(existing[len(existing)-1].EntityClass)),
			zap.String("new_class", string(rec.EntityClass)))
	}
	r.byName[key] = append(existing, rec)
}

// Resolve returns the record for a name, or nil. On class collisions the
// class registered last wins.
func (r *Resolver) Resolve(name string) *models.EntityRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	records := r.byName[strings.ToLower(name)]
	if len(records) == 0 {
		return nil
	}
	rec := records[len(records)-1]
	return &rec
}

// ResolveAll returns every class registered under a name.
func (r *Resolver) ResolveAll(name string) []models.EntityRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	records := r.byName[strings.ToLower(name)]
	out := make([]models.EntityRecord, len(records))
	copy(out, records)
	return out
}

// Similar returns records whose name contains the partial, optionally
// restricted to a class. An empty class matches everything. Class names
// are singularised so "surgeons" restricts like "surgeon".
func (r *Resolver) Similar(partial string, class models.EntityClass) []models.EntityRecord {
	needle := strings.ToLower(partial)
	wantClass := models.EntityClass(inflection.Singular(string(class)))

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.EntityRecord
	for key, records := range r.byName {
		if !strings.Contains(key, needle) {
			continue
		}
		for _, rec := range records {
			if class == "" || rec.EntityClass == wantClass {
				out = append(out, rec)
			}
		}
	}
	return out
}

// Len returns the number of distinct names registered.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// seedSource names a canonical table and how its rows map to records.
type seedSource struct {
	table         string
	nameColumn    string
	entityClass   models.EntityClass
	columnBinding string
}

var seedSources = []seedSource{
	{"surgeons", "surgeon_name", models.ClassSurgeon, "s.surgeon_name"},
	{"distributors", "distributor_name", models.ClassDistributor, "d.distributor_name"},
	{"facilities", "facility_name", models.ClassFacility, "f.facility_name"},
	{"vendors", "vendor_name", models.ClassVendor, "v.vendor_name"},
	{"products", "product_name", models.ClassProduct, "p.product_name"},
}

// Seed loads canonical names from the warehouse. Missing tables are
// skipped with a log line; a warehouse without a vendors table is normal.
func (r *Resolver) Seed(ctx context.Context, wh warehouse.Warehouse) error {
	seeded := 0
	for _, src := range seedSources {
		result, err := wh.Execute(ctx,
			fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL", src.nameColumn, src.table, src.nameColumn),
			0)
		if err != nil {
			r.logger.Debug("entity seed source skipped",
				zap.String("table", src.table), zap.Error(err))
			continue
		}

		for _, row := range result.Rows {
			name, ok := row[src.nameColumn].(string)
			if !ok || name == "" {
				continue
			}
			r.Register(models.EntityRecord{
				CanonicalName: name,
				EntityClass:   src.entityClass,
				ColumnBinding: src.columnBinding,
				SourceURI:     fmt.Sprintf("warehouse://%s/%s", src.table, src.nameColumn),
			})
			seeded++
		}
	}

	r.logger.Info("entity resolver seeded", zap.Int("records", seeded))
	return nil
}
