package main

import (
	"context"
	"log"
	"os"
	"time"

	"factorcorr/adapters/excel"
	"factorcorr/adapters/postgres"
	"factorcorr/internal"
	"factorcorr/internal/migration"
)

func main() {
	if len(os.Args) != 2 && len(os.Args) < 5 {
		log.Fatal("Usage: migrate <database_url> [<sport> <league> <series_file> [matrix_file]]")
	}

	logger := internal.NewLoggerFromConfig(os.Getenv("LOG_LEVEL"), "text").WithField("component", "migrate")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	err := run(ctx, logger, os.Args[1:])
	cancel()
	if err != nil {
		logger.WithError(err).Error("migrate failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *internal.Logger, args []string) error {
	db, err := postgres.Connect(ctx, args[0])
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migration.NewRunner(logger).Run(ctx, db); err != nil {
		return err
	}
	if len(args) == 1 {
		logger.Info("schema is up to date")
		return nil
	}

	sport, league, seriesFile := args[1], args[2], args[3]
	repo := postgres.NewHistoryRepository(db)
	logger = logger.WithFields(map[string]interface{}{"sport": sport, "league": league})

	logger.Info("importing factor history from %s", seriesFile)
	groups, err := excel.NewDataReader(seriesFile, logger).ReadSeriesFile(excel.DefaultExcelConfig())
	if err != nil {
		return err
	}

	imported, skipped := 0, 0
	for _, g := range groups {
		n, err := repo.AppendSeries(ctx, sport, league, g.Pair, g.Series)
		if err != nil {
			logger.WithError(err).WithField("pair", g.Pair.Key()).Warn("pair import failed")
			skipped++
			continue
		}
		imported += n
	}
	logger.Info("imported %d observations across %d pairs (%d pairs failed)", imported, len(groups)-skipped, skipped)

	if len(args) > 4 {
		m, err := excel.NewDataReader(args[4], logger).ReadMatrix()
		if err != nil {
			return err
		}
		m.Sport, m.League = sport, league
		if err := repo.SaveMatrix(ctx, m); err != nil {
			return err
		}
		logger.Info("stored %dx%d correlation matrix %s", m.Size(), m.Size(), m.ID)
	}
	return nil
}
