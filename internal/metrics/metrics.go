package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PredictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "factorcorr_predictions_total",
		Help: "Correlation predictions by outcome (ok, cached, invalid, error)",
	}, []string{"outcome"})

	PredictionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "factorcorr_prediction_duration_seconds",
		Help:    "Latency of a single correlation prediction",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	TrainingRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "factorcorr_training_runs_total",
		Help: "Training runs by status (success, failed, rejected)",
	}, []string{"status"})

	TrainingEpochs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "factorcorr_training_epochs",
		Help:    "Epochs run per training call",
		Buckets: []float64{1, 5, 10, 20, 50, 100},
	})

	LastValidationLoss = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "factorcorr_last_validation_loss",
		Help: "Validation loss of the best epoch of the last successful training run",
	})

	CounterfactualRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "factorcorr_counterfactual_requests_total",
		Help: "Counterfactual propagations by outcome (ok, degraded)",
	}, []string{"outcome"})

	NonLinearityFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "factorcorr_nonlinearity_fallbacks_total",
		Help: "Non-linearity estimates replaced by the safe default, by reason",
	}, []string{"reason"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "factorcorr_prediction_cache_lookups_total",
		Help: "Prediction cache lookups by result (hit, miss, error)",
	}, []string{"result"})

	RegistryTransfers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "factorcorr_registry_transfers_total",
		Help: "Model registry uploads and downloads by backend, direction and status",
	}, []string{"backend", "direction", "status"})
)
