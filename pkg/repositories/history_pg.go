package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/meridianmed/insight-engine/pkg/database"
	"github.com/meridianmed/insight-engine/pkg/models"
)

// PgQueryHistoryRepository persists execution records in
// engine_query_history.
type PgQueryHistoryRepository struct {
	db     *database.DB
	logger *zap.Logger
}

var _ QueryHistoryRepository = (*PgQueryHistoryRepository)(nil)

// NewPgQueryHistoryRepository creates a Postgres-backed history repository.
func NewPgQueryHistoryRepository(db *database.DB, logger *zap.Logger) *PgQueryHistoryRepository {
	return &PgQueryHistoryRepository{db: db, logger: logger.Named("history")}
}

func (r *PgQueryHistoryRepository) Save(ctx context.Context, rec *models.QueryExecutionRecord) error {
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	var endedAt *time.Time
	if !rec.EndedAt.IsZero() {
		endedAt = &rec.EndedAt
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO engine_query_history
			(execution_id, question, sql_text, tables_used, mode, status,
			 bytes_processed, cost_estimate, row_count, error_message,
			 metadata, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.ExecutionID, rec.Question, rec.SQL, rec.TablesUsed, rec.Mode,
		rec.Status, rec.BytesProcessed, rec.CostEstimate, rec.RowCount,
		rec.Error, metadata, rec.StartedAt, endedAt)
	if err != nil {
		return fmt.Errorf("insert query history: %w", err)
	}
	return nil
}

func (r *PgQueryHistoryRepository) Recent(ctx context.Context, limit int) ([]models.QueryExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT execution_id, question, sql_text, tables_used, mode, status,
		       bytes_processed, cost_estimate, row_count, error_message,
		       metadata, started_at, ended_at
		FROM engine_query_history
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("select query history: %w", err)
	}
	defer rows.Close()

	records := []models.QueryExecutionRecord{}
	for rows.Next() {
		var rec models.QueryExecutionRecord
		var metadata []byte
		var endedAt *time.Time
		if err := rows.Scan(&rec.ExecutionID, &rec.Question, &rec.SQL,
			&rec.TablesUsed, &rec.Mode, &rec.Status, &rec.BytesProcessed,
			&rec.CostEstimate, &rec.RowCount, &rec.Error, &metadata,
			&rec.StartedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		if endedAt != nil {
			rec.EndedAt = *endedAt
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
				r.logger.Warn("history metadata corrupt, skipping",
					zap.String("execution_id", rec.ExecutionID), zap.Error(err))
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// NoopQueryHistoryRepository discards records. Used when the engine runs
// without a store.
type NoopQueryHistoryRepository struct{}

var _ QueryHistoryRepository = (*NoopQueryHistoryRepository)(nil)

func (NoopQueryHistoryRepository) Save(context.Context, *models.QueryExecutionRecord) error {
	return nil
}

func (NoopQueryHistoryRepository) Recent(context.Context, int) ([]models.QueryExecutionRecord, error) {
	return []models.QueryExecutionRecord{}, nil
}
