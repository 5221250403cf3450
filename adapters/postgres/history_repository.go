package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"factorcorr/domain/core"
	"factorcorr/domain/factor"
	apperrors "factorcorr/internal/errors"
	"factorcorr/ports"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// HistoryRepository serves factor series and correlation matrices from PostgreSQL
type HistoryRepository struct {
	db *sqlx.DB
}

var (
	_ ports.HistoryProvider = (*HistoryRepository)(nil)
	_ ports.HistoryWriter   = (*HistoryRepository)(nil)
)

// NewHistoryRepository wraps an open connection
func NewHistoryRepository(db *sqlx.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Connect opens and pings a postgres connection
func Connect(ctx context.Context, url string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, apperrors.DatabaseError("connect", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

type matrixRow struct {
	ID         string    `db:"id"`
	Sport      string    `db:"sport"`
	League     string    `db:"league"`
	Factors    []byte    `db:"factors"`
	Matrix     []byte    `db:"matrix"`
	ComputedAt time.Time `db:"computed_at"`
}

type seriesRow struct {
	ObservedAt time.Time `db:"observed_at"`
	ValueA     float64   `db:"value_a"`
	ValueB     float64   `db:"value_b"`
}

func (r matrixRow) toDomain() (*factor.CorrelationMatrix, error) {
	m := &factor.CorrelationMatrix{
		ID:         core.MatrixID(r.ID),
		Sport:      r.Sport,
		League:     r.League,
		ComputedAt: r.ComputedAt,
	}
	if err := json.Unmarshal(r.Factors, &m.Factors); err != nil {
		return nil, fmt.Errorf("failed to unmarshal factors: %w", err)
	}
	if err := json.Unmarshal(r.Matrix, &m.Values); err != nil {
		return nil, fmt.Errorf("failed to unmarshal matrix: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("stored matrix %s: %w", r.ID, err)
	}
	return m, nil
}

func toMatrixRow(m *factor.CorrelationMatrix) (matrixRow, error) {
	factors, err := json.Marshal(m.Factors)
	if err != nil {
		return matrixRow{}, fmt.Errorf("failed to marshal factors: %w", err)
	}
	values, err := json.Marshal(m.Values)
	if err != nil {
		return matrixRow{}, fmt.Errorf("failed to marshal matrix: %w", err)
	}
	return matrixRow{
		ID:         m.ID.String(),
		Sport:      m.Sport,
		League:     m.League,
		Factors:    factors,
		Matrix:     values,
		ComputedAt: m.ComputedAt,
	}, nil
}

func toSample(rows []seriesRow) factor.TimeSeriesSample {
	out := make(factor.TimeSeriesSample, len(rows))
	for i, r := range rows {
		out[i] = factor.Point{Date: r.ObservedAt.UTC(), ValueA: r.ValueA, ValueB: r.ValueB}
	}
	return out
}

// LatestMatrix returns the most recently computed matrix for a league
func (r *HistoryRepository) LatestMatrix(ctx context.Context, sport, league string) (*factor.CorrelationMatrix, error) {
	query := `SELECT id, sport, league, factors, matrix, computed_at
	FROM correlation_matrices
	WHERE sport = $1 AND league = $2
	ORDER BY computed_at DESC
	LIMIT 1`

	var row matrixRow
	if err := r.db.GetContext(ctx, &row, query, sport, league); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s/%s", core.ErrMatrixNotFound, sport, league)
		}
		return nil, apperrors.DatabaseError("get matrix", err)
	}
	return row.toDomain()
}

// SeriesForPair returns the paired history ordered by observation time
func (r *HistoryRepository) SeriesForPair(ctx context.Context, sport, league, factorA, factorB string) (factor.TimeSeriesSample, error) {
	query := `SELECT observed_at, value_a, value_b
	FROM factor_series
	WHERE sport = $1 AND league = $2 AND factor_a = $3 AND factor_b = $4
	ORDER BY observed_at ASC`

	var rows []seriesRow
	if err := r.db.SelectContext(ctx, &rows, query, sport, league, factorA, factorB); err != nil {
		return nil, apperrors.DatabaseError("query series", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s/%s %s~%s", core.ErrSeriesNotFound, sport, league, factorA, factorB)
	}
	return toSample(rows), nil
}

// ListPairs returns every factor pair with stored history
func (r *HistoryRepository) ListPairs(ctx context.Context, sport, league string) ([]factor.Pair, error) {
	query := `SELECT DISTINCT factor_a, factor_b
	FROM factor_series
	WHERE sport = $1 AND league = $2
	ORDER BY factor_a, factor_b`

	var pairs []factor.Pair
	if err := r.db.SelectContext(ctx, &pairs, query, sport, league); err != nil {
		return nil, apperrors.DatabaseError("list pairs", err)
	}
	return pairs, nil
}

// SaveMatrix stores a matrix, assigning an id and timestamp when missing
func (r *HistoryRepository) SaveMatrix(ctx context.Context, m *factor.CorrelationMatrix) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.ID == "" {
		m.ID = core.MatrixID(core.NewID())
	}
	if m.ComputedAt.IsZero() {
		m.ComputedAt = time.Now().UTC()
	}
	row, err := toMatrixRow(m)
	if err != nil {
		return err
	}

	query := `INSERT INTO correlation_matrices (id, sport, league, factors, matrix, computed_at)
	VALUES (:id, :sport, :league, :factors, :matrix, :computed_at)
	ON CONFLICT (id) DO UPDATE SET
		factors = EXCLUDED.factors,
		matrix = EXCLUDED.matrix,
		computed_at = EXCLUDED.computed_at`

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return apperrors.DatabaseError("save matrix", err)
	}
	return nil
}

// AppendSeries upserts observations for a pair and returns how many rows were written
func (r *HistoryRepository) AppendSeries(ctx context.Context, sport, league string, pair factor.Pair, series factor.TimeSeriesSample) (int, error) {
	if len(series) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, apperrors.DatabaseError("begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `INSERT INTO factor_series
		(sport, league, factor_a, factor_b, observed_at, value_a, value_b)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (sport, league, factor_a, factor_b, observed_at) DO UPDATE SET
		value_a = EXCLUDED.value_a,
		value_b = EXCLUDED.value_b`)
	if err != nil {
		return 0, apperrors.DatabaseError("prepare insert", err)
	}
	defer stmt.Close()

	written := 0
	for _, p := range series {
		if _, err := stmt.ExecContext(ctx, sport, league, pair.FactorA, pair.FactorB, p.Date.UTC(), p.ValueA, p.ValueB); err != nil {
			return written, apperrors.DatabaseError("insert observation "+p.Date.Format(time.RFC3339), err)
		}
		written++
	}
	if err := tx.Commit(); err != nil {
		return 0, apperrors.DatabaseError("commit series", err)
	}
	return written, nil
}
