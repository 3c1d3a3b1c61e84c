// Package mssql implements the warehouse adapter for SQL Server.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"

	"github.com/meridianmed/insight-engine/pkg/apperrors"
	"github.com/meridianmed/insight-engine/pkg/config"
	"github.com/meridianmed/insight-engine/pkg/models"
	sqlutil "github.com/meridianmed/insight-engine/pkg/sql"
	"github.com/meridianmed/insight-engine/pkg/warehouse"
)

func init() {
	warehouse.Register("mssql", func(ctx context.Context, cfg *config.WarehouseConfig, logger *zap.Logger) (warehouse.Warehouse, error) {
		return New(ctx, cfg, logger)
	})
}

// Adapter is the SQL Server warehouse adapter.
type Adapter struct {
	db      *sql.DB
	project string
	dataset string
	logger  *zap.Logger
}

// New connects to the warehouse and verifies the connection.
func New(ctx context.Context, cfg *config.WarehouseConfig, logger *zap.Logger) (*Adapter, error) {
	u := &url.URL{
		Scheme: "sqlserver",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
	}
	q := url.Values{}
	q.Set("database", cfg.Database)
	u.RawQuery = q.Encode()

	db, err := sql.Open("sqlserver", u.String())
	if err != nil {
		return nil, fmt.Errorf("open warehouse: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping warehouse: %w", err)
	}

	return &Adapter{
		db:      db,
		project: cfg.Project,
		dataset: cfg.Dataset,
		logger:  logger.Named("warehouse.mssql"),
	}, nil
}

// Dialect implements Warehouse.
func (a *Adapter) Dialect() string { return "tsql" }

// Close implements Warehouse.
func (a *Adapter) Close() { _ = a.db.Close() }

// ListTables returns descriptors for every base table in the dataset.
func (a *Adapter) ListTables(ctx context.Context) ([]models.TableDescriptor, error) {
	const query = `
		SELECT t.TABLE_NAME, COALESCE(SUM(p.rows), 0) AS row_count
		FROM INFORMATION_SCHEMA.TABLES t
		LEFT JOIN sys.tables st ON st.name = t.TABLE_NAME
		LEFT JOIN sys.partitions p ON p.object_id = st.object_id AND p.index_id IN (0, 1)
		WHERE t.TABLE_TYPE = 'BASE TABLE' AND t.TABLE_SCHEMA = @p1
		GROUP BY t.TABLE_NAME
		ORDER BY t.TABLE_NAME
	`

	rows, err := a.db.QueryContext(ctx, query, a.dataset)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", apperrors.Classify(err))
	}
	defer rows.Close()

	var tables []models.TableDescriptor
	for rows.Next() {
		t := models.TableDescriptor{Project: a.project, Dataset: a.dataset}
		if err := rows.Scan(&t.TableName, &t.RowCount); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// DescribeTable returns the full descriptor for one table.
func (a *Adapter) DescribeTable(ctx context.Context, tableName string) (*models.TableDescriptor, error) {
	const query = `
		SELECT COLUMN_NAME, DATA_TYPE, CASE WHEN IS_NULLABLE = 'YES' THEN 1 ELSE 0 END
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2
		ORDER BY ORDINAL_POSITION
	`

	rows, err := a.db.QueryContext(ctx, query, a.dataset, tableName)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", apperrors.Classify(err))
	}
	defer rows.Close()

	desc := &models.TableDescriptor{
		Project:   a.project,
		Dataset:   a.dataset,
		TableName: tableName,
	}
	for rows.Next() {
		var col models.ColumnDescriptor
		var nullable int
		if err := rows.Scan(&col.Name, &col.Type, &nullable); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		col.Nullable = nullable == 1
		desc.Columns = append(desc.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(desc.Columns) == 0 {
		return nil, apperrors.New(apperrors.KindNotFound,
			fmt.Sprintf("table %q not found in dataset %q", tableName, a.dataset))
	}
	return desc, nil
}

// DryRun validates the SQL through sp_describe_first_result_set, which
// compiles the statement without executing it. SQL Server exposes no byte
// estimate this way, so BytesProcessed stays zero and the scan-limit check
// passes by construction.
func (a *Adapter) DryRun(ctx context.Context, sqlText string) (*warehouse.DryRunStats, error) {
	rows, err := a.db.QueryContext(ctx, "EXEC sp_describe_first_result_set @tsql = @p1", sqlText)
	if err != nil {
		return nil, classifyMssqlError(err)
	}
	defer rows.Close()
	return &warehouse.DryRunStats{}, rows.Err()
}

// Execute runs the SQL, capping rows with TOP when the statement has no
// limit of its own and is not an aggregate.
func (a *Adapter) Execute(ctx context.Context, sqlText string, rowCap int) (*warehouse.QueryResult, error) {
	queryToRun := sqlText
	if rowCap > 0 && !sqlutil.HasRowLimit(sqlText) && !sqlutil.IsAggregate(sqlText) {
		queryToRun = fmt.Sprintf("SELECT TOP (%d) * FROM (%s) AS _capped", rowCap, sqlText)
	}

	rows, err := a.db.QueryContext(ctx, queryToRun)
	if err != nil {
		return nil, classifyMssqlError(err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			rowMap[col] = convertValue(values[i])
		}
		resultRows = append(resultRows, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyMssqlError(err)
	}

	return &warehouse.QueryResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

func convertValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case []byte:
		return string(val)
	default:
		return v
	}
}

func classifyMssqlError(err error) error {
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "incorrect syntax"):
		return apperrors.Wrap(apperrors.KindSyntax, err.Error(), err)
	case strings.Contains(lower, "invalid column name") || strings.Contains(lower, "invalid object name"):
		return apperrors.Wrap(apperrors.KindSemantic, err.Error(), err)
	case strings.Contains(lower, "permission"):
		return apperrors.Wrap(apperrors.KindPermission, err.Error(), err)
	default:
		return apperrors.Classify(err)
	}
}
