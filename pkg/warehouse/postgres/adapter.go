// Package postgres implements the warehouse adapter for PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/meridianmed/insight-engine/pkg/apperrors"
	"github.com/meridianmed/insight-engine/pkg/config"
	"github.com/meridianmed/insight-engine/pkg/warehouse"
)

func init() {
	warehouse.Register("postgres", func(ctx context.Context, cfg *config.WarehouseConfig, logger *zap.Logger) (warehouse.Warehouse, error) {
		return New(ctx, cfg, logger)
	})
}

// Adapter is the PostgreSQL warehouse adapter.
type Adapter struct {
	pool    *pgxpool.Pool
	project string
	dataset string
	logger  *zap.Logger
}

// New connects to the warehouse and verifies the connection.
func New(ctx context.Context, cfg *config.WarehouseConfig, logger *zap.Logger) (*Adapter, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("connect to warehouse: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping warehouse: %w", err)
	}

	return &Adapter{
		pool:    pool,
		project: cfg.Project,
		dataset: cfg.Dataset,
		logger:  logger.Named("warehouse.postgres"),
	}, nil
}

// Dialect implements Warehouse.
func (a *Adapter) Dialect() string { return "postgresql" }

// Close implements Warehouse.
func (a *Adapter) Close() { a.pool.Close() }

// classifyPgError maps SQLSTATE codes onto the shared taxonomy.
func classifyPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return apperrors.Classify(err)
	}

	switch pgErr.Code {
	case "42601": // syntax_error
		return apperrors.Wrap(apperrors.KindSyntax, pgErr.Message, err)
	case "42703", "42P01", "42883": // undefined column / table / function
		return apperrors.Wrap(apperrors.KindSemantic, pgErr.Message, err)
	case "42702", "42725": // ambiguous column / function
		return apperrors.Wrap(apperrors.KindAmbiguous, pgErr.Message, err)
	case "42501": // insufficient_privilege
		return apperrors.Wrap(apperrors.KindPermission, pgErr.Message, err)
	case "57014": // query_canceled (statement timeout)
		return apperrors.Wrap(apperrors.KindTimeout, pgErr.Message, err)
	case "3D000": // invalid_catalog_name
		return apperrors.Wrap(apperrors.KindNotFound, pgErr.Message, err)
	default:
		return apperrors.Classify(err)
	}
}
