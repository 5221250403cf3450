package ports

import (
	"context"

	"factorcorr/domain/factor"
)

// HistoryProvider reads correlation matrices and paired series published by the correlation engine
type HistoryProvider interface {
	LatestMatrix(ctx context.Context, sport, league string) (*factor.CorrelationMatrix, error)
	SeriesForPair(ctx context.Context, sport, league, factorA, factorB string) (factor.TimeSeriesSample, error)
	ListPairs(ctx context.Context, sport, league string) ([]factor.Pair, error)
}

// HistoryWriter is the import side of the history store
type HistoryWriter interface {
	SaveMatrix(ctx context.Context, m *factor.CorrelationMatrix) error
	AppendSeries(ctx context.Context, sport, league string, pair factor.Pair, series factor.TimeSeriesSample) (int, error)
}
