// Package warehouse defines the adapter interface the query pipeline uses
// to introspect, validate and execute against the analytics warehouse.
package warehouse

import (
	"context"

	"github.com/meridianmed/insight-engine/pkg/models"
)

// DryRunStats is the warehouse-side validation result: the statement was
// accepted and would scan roughly BytesProcessed bytes.
type DryRunStats struct {
	BytesProcessed int64
	EstimatedRows  int64
	EstimatedCost  float64
}

// QueryResult holds executed rows converted to language-neutral primitives:
// dates as ISO-8601 strings, precision-sensitive decimals as strings.
type QueryResult struct {
	Columns        []string
	Rows           []map[string]any
	RowCount       int
	BytesProcessed int64
}

// Warehouse is the capability each dialect adapter implements.
type Warehouse interface {
	// ListTables returns descriptors for every user table in the dataset,
	// without column detail.
	ListTables(ctx context.Context) ([]models.TableDescriptor, error)

	// DescribeTable returns the full descriptor for one table. Missing
	// tables surface as not_found.
	DescribeTable(ctx context.Context, tableName string) (*models.TableDescriptor, error)

	// DryRun validates the SQL without executing it and estimates cost.
	DryRun(ctx context.Context, sql string) (*DryRunStats, error)

	// Execute runs the SQL. rowCap caps the result set when the statement
	// has no LIMIT of its own; 0 means the adapter default.
	Execute(ctx context.Context, sql string, rowCap int) (*QueryResult, error)

	// Dialect names the SQL dialect for prompt composition.
	Dialect() string

	// Close releases the underlying pool.
	Close()
}
