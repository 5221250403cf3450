package migration

import (
	"context"

	"factorcorr/internal"
	"factorcorr/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
	logger  *internal.Logger
}

// NewRunner creates a new migration runner
func NewRunner(logger *internal.Logger) *MigrationRunner {
	if logger == nil {
		logger = internal.NopLogger()
	}
	return &MigrationRunner{
		version: "1.0.0",
		logger:  logger.WithField("component", "migration"),
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createFactorSeriesTable(ctx, db); err != nil {
		return errors.DatabaseError("create factor_series table", err)
	}

	if err := r.createCorrelationMatricesTable(ctx, db); err != nil {
		return errors.DatabaseError("create correlation_matrices table", err)
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.DatabaseError("create indexes", err)
	}

	r.logger.Info("schema at version %s", r.version)
	return nil
}

func (r *MigrationRunner) createFactorSeriesTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS factor_series (
			sport VARCHAR(50) NOT NULL,
			league VARCHAR(100) NOT NULL,
			factor_a VARCHAR(255) NOT NULL,
			factor_b VARCHAR(255) NOT NULL,
			observed_at TIMESTAMP WITH TIME ZONE NOT NULL,
			value_a DOUBLE PRECISION NOT NULL,
			value_b DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			PRIMARY KEY (sport, league, factor_a, factor_b, observed_at)
		)
	`)
	return err
}

func (r *MigrationRunner) createCorrelationMatricesTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS correlation_matrices (
			id VARCHAR(64) PRIMARY KEY,
			sport VARCHAR(50) NOT NULL,
			league VARCHAR(100) NOT NULL,
			factors JSONB NOT NULL,
			matrix JSONB NOT NULL,
			computed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_series_league ON factor_series(sport, league)",
		"CREATE INDEX IF NOT EXISTS idx_series_observed_at ON factor_series(observed_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_matrices_league_computed ON correlation_matrices(sport, league, computed_at DESC)",
	}

	for _, idxSQL := range indexes {
		if _, err := db.ExecContext(ctx, idxSQL); err != nil {
			// index failures are not fatal
			r.logger.WithError(err).Warn("failed to create index")
		}
	}

	return nil
}
