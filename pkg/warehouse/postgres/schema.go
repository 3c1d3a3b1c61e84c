package postgres

import (
	"context"
	"fmt"

	"github.com/meridianmed/insight-engine/pkg/apperrors"
	"github.com/meridianmed/insight-engine/pkg/models"
)

// ListTables returns descriptors (without columns) for every base table in
// the configured dataset. Row counts come from pg_class.reltuples, which is
// an estimate but avoids COUNT(*) scans.
func (a *Adapter) ListTables(ctx context.Context) ([]models.TableDescriptor, error) {
	const query = `
		SELECT
			t.table_name,
			COALESCE(c.reltuples::bigint, 0) AS row_count,
			COALESCE(obj_description(c.oid, 'pg_class'), '') AS description
		FROM information_schema.tables t
		LEFT JOIN pg_class c ON c.relname = t.table_name
		LEFT JOIN pg_namespace n ON n.oid = c.relnamespace AND n.nspname = t.table_schema
		WHERE t.table_type = 'BASE TABLE'
		  AND t.table_schema = $1
		ORDER BY t.table_name
	`

	rows, err := a.pool.Query(ctx, query, a.dataset)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", classifyPgError(err))
	}
	defer rows.Close()

	var tables []models.TableDescriptor
	for rows.Next() {
		t := models.TableDescriptor{Project: a.project, Dataset: a.dataset}
		if err := rows.Scan(&t.TableName, &t.RowCount, &t.Description); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		if t.RowCount < 0 {
			t.RowCount = 0 // reltuples is -1 before the first analyze
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	return tables, nil
}

// DescribeTable returns the full descriptor for one table.
func (a *Adapter) DescribeTable(ctx context.Context, tableName string) (*models.TableDescriptor, error) {
	const query = `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES' AS is_nullable,
			COALESCE(col_description(pc.oid, c.ordinal_position), '') AS description
		FROM information_schema.columns c
		LEFT JOIN pg_class pc ON pc.relname = c.table_name
		LEFT JOIN pg_namespace pn ON pn.oid = pc.relnamespace AND pn.nspname = c.table_schema
		WHERE c.table_schema = $1
		  AND c.table_name = $2
		ORDER BY c.ordinal_position
	`

	rows, err := a.pool.Query(ctx, query, a.dataset, tableName)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", classifyPgError(err))
	}
	defer rows.Close()

	desc := &models.TableDescriptor{
		Project:   a.project,
		Dataset:   a.dataset,
		TableName: tableName,
	}
	for rows.Next() {
		var col models.ColumnDescriptor
		if err := rows.Scan(&col.Name, &col.Type, &col.Nullable, &col.Description); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		desc.Columns = append(desc.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	if len(desc.Columns) == 0 {
		return nil, apperrors.New(apperrors.KindNotFound,
			fmt.Sprintf("table %q not found in dataset %q", tableName, a.dataset))
	}

	// Row count and table comment from the list query path.
	const metaQuery = `
		SELECT COALESCE(c.reltuples::bigint, 0), COALESCE(obj_description(c.oid, 'pg_class'), '')
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relname = $2
	`
	if err := a.pool.QueryRow(ctx, metaQuery, a.dataset, tableName).
		Scan(&desc.RowCount, &desc.Description); err == nil && desc.RowCount < 0 {
		desc.RowCount = 0
	}

	return desc, nil
}
