package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"factorcorr/domain/core"
	"factorcorr/domain/factor"
	apperrors "factorcorr/internal/errors"
	"factorcorr/internal/migration"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatrixRow_RoundTrip(t *testing.T) {
	m := &factor.CorrelationMatrix{
		ID:         "m-1",
		Sport:      "football",
		League:     "nfl",
		Factors:    []string{"rest_days", "turnovers"},
		Values:     [][]float64{{1, -0.4}, {-0.4, 1}},
		ComputedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	row, err := toMatrixRow(m)
	require.NoError(t, err)
	assert.JSONEq(t, `["rest_days","turnovers"]`, string(row.Factors))

	back, err := row.toDomain()
	require.NoError(t, err)
	assert.Equal(t, m, back)
}

func TestMatrixRow_RejectsNonSquare(t *testing.T) {
	row := matrixRow{
		ID:      "bad",
		Factors: []byte(`["a","b"]`),
		Matrix:  []byte(`[[1,0.5],[0.5]]`),
	}
	_, err := row.toDomain()
	assert.ErrorIs(t, err, core.ErrShapeMismatch)
}

func TestToSample(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	rows := []seriesRow{
		{ObservedAt: time.Date(2025, 1, 1, 19, 0, 0, 0, loc), ValueA: 1, ValueB: 2},
		{ObservedAt: time.Date(2025, 1, 2, 19, 0, 0, 0, loc), ValueA: 3, ValueB: 4},
	}
	s := toSample(rows)
	require.Len(t, s, 2)
	assert.Equal(t, time.UTC, s[0].Date.Location())
	assert.Equal(t, 3.0, s[1].ValueA)
	assert.Equal(t, 4.0, s[1].ValueB)
}

func TestHistoryRepository_DatabaseErrors(t *testing.T) {
	// sqlx.Open does not dial; closing the pool makes every call fail locally
	db, err := sqlx.Open("postgres", "postgres://unused@localhost/unused?sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, db.Close())
	repo := NewHistoryRepository(db)
	ctx := context.Background()

	_, err = repo.LatestMatrix(ctx, "nba", "east")
	assert.Equal(t, apperrors.CodeDatabaseError, apperrors.GetCode(err))
	assert.NotErrorIs(t, err, core.ErrMatrixNotFound)

	_, err = repo.SeriesForPair(ctx, "nba", "east", "pace", "points")
	assert.Equal(t, apperrors.CodeDatabaseError, apperrors.GetCode(err))

	_, err = repo.ListPairs(ctx, "nba", "east")
	assert.Equal(t, apperrors.CodeDatabaseError, apperrors.GetCode(err))

	_, err = repo.AppendSeries(ctx, "nba", "east", factor.Pair{FactorA: "pace", FactorB: "points"},
		factor.TimeSeriesSample{{Date: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), ValueA: 1, ValueB: 2}})
	assert.Equal(t, apperrors.CodeDatabaseError, apperrors.GetCode(err))
	assert.Contains(t, err.Error(), "begin transaction failed")
}

// Runs against a real database when FACTORCORR_TEST_DATABASE_URL is set.
func TestHistoryRepository_Postgres(t *testing.T) {
	url := os.Getenv("FACTORCORR_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("FACTORCORR_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := Connect(ctx, url)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, migration.NewRunner(nil).Run(ctx, db))

	league := "test-" + core.NewID().String()
	repo := NewHistoryRepository(db)
	pair := factor.Pair{FactorA: "pace", FactorB: "points"}
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var series factor.TimeSeriesSample
	for i := 0; i < 5; i++ {
		series = append(series, factor.Point{Date: start.AddDate(0, 0, i), ValueA: float64(i), ValueB: float64(2 * i)})
	}

	n, err := repo.AppendSeries(ctx, "basketball", league, pair, series)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	// re-appending upserts instead of duplicating
	_, err = repo.AppendSeries(ctx, "basketball", league, pair, series[:2])
	require.NoError(t, err)

	got, err := repo.SeriesForPair(ctx, "basketball", league, "pace", "points")
	require.NoError(t, err)
	assert.Len(t, got, 5)

	pairs, err := repo.ListPairs(ctx, "basketball", league)
	require.NoError(t, err)
	assert.Equal(t, []factor.Pair{pair}, pairs)

	_, err = repo.LatestMatrix(ctx, "basketball", league)
	assert.ErrorIs(t, err, core.ErrMatrixNotFound)

	m := &factor.CorrelationMatrix{
		Sport: "basketball", League: league,
		Factors: []string{"pace", "points"},
		Values:  [][]float64{{1, 0.8}, {0.8, 1}},
	}
	require.NoError(t, repo.SaveMatrix(ctx, m))
	latest, err := repo.LatestMatrix(ctx, "basketball", league)
	require.NoError(t, err)
	assert.Equal(t, m.Values, latest.Values)

	_, err = repo.SeriesForPair(ctx, "basketball", league, "pace", "missing")
	assert.ErrorIs(t, err, core.ErrSeriesNotFound)
}
