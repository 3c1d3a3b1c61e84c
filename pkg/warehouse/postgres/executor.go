package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/meridianmed/insight-engine/pkg/apperrors"
	"github.com/meridianmed/insight-engine/pkg/warehouse"
	sqlutil "github.com/meridianmed/insight-engine/pkg/sql"
)

// explainPlan mirrors the slice EXPLAIN (FORMAT JSON) returns.
type explainPlan []struct {
	Plan struct {
		TotalCost float64 `json:"Total Cost"`
		PlanRows  int64   `json:"Plan Rows"`
		PlanWidth int64   `json:"Plan Width"`
	} `json:"Plan"`
}

// DryRun validates the SQL with EXPLAIN and estimates the scan size as
// plan rows times average row width. The statement never executes.
func (a *Adapter) DryRun(ctx context.Context, sql string) (*warehouse.DryRunStats, error) {
	var raw []byte
	err := a.pool.QueryRow(ctx, "EXPLAIN (FORMAT JSON) "+sql).Scan(&raw)
	if err != nil {
		return nil, classifyPgError(err)
	}

	var plan explainPlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, fmt.Errorf("parse explain output: %w", err)
	}
	if len(plan) == 0 {
		return nil, fmt.Errorf("empty explain output")
	}

	p := plan[0].Plan
	return &warehouse.DryRunStats{
		BytesProcessed: p.PlanRows * p.PlanWidth,
		EstimatedRows:  p.PlanRows,
		EstimatedCost:  p.TotalCost,
	}, nil
}

// Execute runs the SQL, capping rows when the statement has no LIMIT and is
// not an aggregate. Execution is at-most-once per call; cancelling ctx
// cancels the running statement.
func (a *Adapter) Execute(ctx context.Context, sql string, rowCap int) (*warehouse.QueryResult, error) {
	queryToRun := sqlutil.ApplyRowCap(sql, rowCap)

	rows, err := a.pool.Query(ctx, queryToRun)
	if err != nil {
		return nil, classifyPgError(err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = string(fd.Name)
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}

		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			rowMap[col] = convertValue(values[i])
		}
		resultRows = append(resultRows, rowMap)
	}
	if err := rows.Err(); err != nil {
		if ctx.Err() != nil {
			e := apperrors.Wrap(apperrors.KindValidation, "query cancelled", err)
			e.Cancelled = true
			return nil, e
		}
		return nil, classifyPgError(err)
	}

	return &warehouse.QueryResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

// convertValue maps warehouse types to language-neutral primitives. Dates
// become ISO-8601 strings; numerics that would lose precision as float64
// become strings.
func convertValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		if s, err := numericString(val); err == nil {
			return s
		}
		return nil
	case *big.Int:
		return val.String()
	case [16]byte: // uuid
		return fmt.Sprintf("%x-%x-%x-%x-%x", val[0:4], val[4:6], val[6:8], val[8:10], val[10:16])
	default:
		return v
	}
}

func numericString(n pgtype.Numeric) (string, error) {
	val, err := n.Value()
	if err != nil {
		return "", err
	}
	if s, ok := val.(string); ok {
		return s, nil
	}
	return fmt.Sprintf("%v", val), nil
}
