// Package catalog caches warehouse schema metadata for the lifetime of the
// process. Invalidation is explicit via Refresh.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/meridianmed/insight-engine/pkg/apperrors"
	"github.com/meridianmed/insight-engine/pkg/models"
	"github.com/meridianmed/insight-engine/pkg/warehouse"
)

// Catalog is the schema catalog. Reads are cheap and concurrent; Refresh
// rebuilds the cache under the write lock.
type Catalog struct {
	wh     warehouse.Warehouse
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[string]*models.TableDescriptor
	names []string
}

// New creates an empty catalog; call Refresh before first use.
func New(wh warehouse.Warehouse, logger *zap.Logger) *Catalog {
	return &Catalog{
		wh:     wh,
		logger: logger.Named("catalog"),
		cache:  make(map[string]*models.TableDescriptor),
	}
}

// Refresh re-introspects the warehouse and swaps in the new descriptors.
func (c *Catalog) Refresh(ctx context.Context) error {
	tables, err := c.wh.ListTables(ctx)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}

	cache := make(map[string]*models.TableDescriptor, len(tables))
	names := make([]string, 0, len(tables))
	for _, t := range tables {
		desc, err := c.wh.DescribeTable(ctx, t.TableName)
		if err != nil {
			return fmt.Errorf("describe %s: %w", t.TableName, err)
		}
		desc.RowCount = t.RowCount
		if desc.Description == "" {
			desc.Description = t.Description
		}
		cache[t.TableName] = desc
		names = append(names, t.TableName)
	}
	sort.Strings(names)

	c.mu.Lock()
	c.cache = cache
	c.names = names
	c.mu.Unlock()

	c.logger.Info("catalog refreshed", zap.Int("tables", len(names)))
	return nil
}

// ListTables returns the cached table names, sorted.
func (c *Catalog) ListTables() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Describe returns the cached descriptor for a table, or not_found.
func (c *Catalog) Describe(tableName string) (*models.TableDescriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	desc, ok := c.cache[tableName]
	if !ok {
		return nil, apperrors.New(apperrors.KindNotFound,
			fmt.Sprintf("table %q not found", tableName))
	}
	return desc, nil
}

// DescribeAll returns every cached descriptor in name order.
func (c *Catalog) DescribeAll() []*models.TableDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*models.TableDescriptor, 0, len(c.names))
	for _, name := range c.names {
		out = append(out, c.cache[name])
	}
	return out
}

// Len returns the number of cached tables.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
