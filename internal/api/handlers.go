package api

import (
	"net/http"
	"path/filepath"
	"strings"

	"factorcorr/app"
	"factorcorr/domain/factor"
	"factorcorr/internal"
	apperrors "factorcorr/internal/errors"

	"github.com/gin-gonic/gin"
)

// BatchPredictRequest wraps several prediction inputs
type BatchPredictRequest struct {
	Requests []factor.PredictionRequest `json:"requests" binding:"required"`
}

// TrainRequest carries labelled examples and optional overrides
type TrainRequest struct {
	Examples []factor.TrainingExample `json:"examples" binding:"required"`
	Options  factor.TrainingOptions   `json:"options"`
}

// HistoryTrainRequest trains from stored league history
type HistoryTrainRequest struct {
	Sport   string                 `json:"sport" binding:"required"`
	League  string                 `json:"league" binding:"required"`
	Options factor.TrainingOptions `json:"options"`
}

// EvaluateRequest carries labelled examples
type EvaluateRequest struct {
	Examples []factor.TrainingExample `json:"examples" binding:"required"`
}

// AnalyzeRequest asks for model-free statistics of one pair's history
type AnalyzeRequest struct {
	Sequence factor.TimeSeriesSample `json:"sequence" binding:"required"`
	MaxLag   int                     `json:"maxLag"`
}

// SaveRequest optionally names a subdirectory of the model directory
type SaveRequest struct {
	Dir string `json:"dir"`
}

// LoadRequest names a snapshot directory relative to the model directory
type LoadRequest struct {
	Path string `json:"path" binding:"required"`
}

// FetchRequest names a registry version; empty means latest
type FetchRequest struct {
	Version string `json:"version"`
}

// CorrelationHandler exposes the correlation service over HTTP
type CorrelationHandler struct {
	service *app.CorrelationService
	events  *TrainingEventBroadcaster
	logger  *internal.Logger
}

// NewCorrelationHandler creates the handler; events may be nil
func NewCorrelationHandler(service *app.CorrelationService, events *TrainingEventBroadcaster, logger *internal.Logger) *CorrelationHandler {
	if logger == nil {
		logger = internal.NopLogger()
	}
	return &CorrelationHandler{service: service, events: events, logger: logger.WithField("component", "http")}
}

// Predict handles POST /api/v1/predict
func (h *CorrelationHandler) Predict(c *gin.Context) {
	var req factor.PredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	result, err := h.service.Predict(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// PredictBatch handles POST /api/v1/predict/batch
func (h *CorrelationHandler) PredictBatch(c *gin.Context) {
	var req BatchPredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	results, err := h.service.PredictBatch(c.Request.Context(), req.Requests)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// Counterfactual handles POST /api/v1/counterfactual. Degraded results are still 200.
func (h *CorrelationHandler) Counterfactual(c *gin.Context) {
	var req factor.CounterfactualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, h.service.Counterfactual(c.Request.Context(), req))
}

// Analyze handles POST /api/v1/analyze
func (h *CorrelationHandler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	analysis, err := h.service.Analyze(req.Sequence, req.MaxLag)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

// Train handles POST /api/v1/train
func (h *CorrelationHandler) Train(c *gin.Context) {
	var req TrainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rec, err := h.service.Train(c.Request.Context(), req.Examples, req.Options)
	h.finished(err)
	if err != nil {
		respondError(c, err)
		return
	}
	m := h.service.Model()
	c.JSON(http.StatusOK, gin.H{"record": rec, "modelId": m.ID(), "version": m.Version()})
}

// TrainFromHistory handles POST /api/v1/train/history
func (h *CorrelationHandler) TrainFromHistory(c *gin.Context) {
	var req HistoryTrainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rec, err := h.service.TrainFromHistory(c.Request.Context(), req.Sport, req.League, req.Options)
	h.finished(err)
	if err != nil {
		respondError(c, err)
		return
	}
	m := h.service.Model()
	c.JSON(http.StatusOK, gin.H{"record": rec, "modelId": m.ID(), "version": m.Version()})
}

func (h *CorrelationHandler) finished(err error) {
	if h.events != nil {
		h.events.Finished(err)
	}
}

// Evaluate handles POST /api/v1/evaluate
func (h *CorrelationHandler) Evaluate(c *gin.Context) {
	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	report, err := h.service.Evaluate(c.Request.Context(), req.Examples)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetModel handles GET /api/v1/model
func (h *CorrelationHandler) GetModel(c *gin.Context) {
	m := h.service.Model()
	body := gin.H{"state": m.State(), "metadata": m.Metadata()}
	if err := m.LastError(); err != nil {
		body["lastError"] = err.Error()
	}
	c.JSON(http.StatusOK, body)
}

// SaveModel handles POST /api/v1/model/save
func (h *CorrelationHandler) SaveModel(c *gin.Context) {
	var req SaveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	root := h.service.Model().SnapshotRoot()
	dir, err := underRoot(root, req.Dir)
	if err != nil {
		respondError(c, err)
		return
	}
	path, err := h.service.Save(c.Request.Context(), dir)
	if err != nil {
		respondError(c, err)
		return
	}
	name, err := filepath.Rel(root, path)
	if err != nil {
		name = filepath.Base(path)
	}
	c.JSON(http.StatusOK, gin.H{"path": path, "name": filepath.ToSlash(name)})
}

// LoadModel handles POST /api/v1/model/load
func (h *CorrelationHandler) LoadModel(c *gin.Context) {
	var req LoadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	path, err := underRoot(h.service.Model().SnapshotRoot(), req.Path)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.service.Load(c.Request.Context(), path); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.service.Model().Metadata())
}

// PublishModel handles POST /api/v1/model/publish
func (h *CorrelationHandler) PublishModel(c *gin.Context) {
	remote, err := h.service.Publish(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"remote": remote})
}

// FetchModel handles POST /api/v1/model/fetch
func (h *CorrelationHandler) FetchModel(c *gin.Context) {
	var req FetchRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	if err := h.service.Fetch(c.Request.Context(), req.Version); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.service.Model().Metadata())
}

// underRoot resolves a client supplied relative path inside root. Absolute paths
// and parent segments are rejected so requests cannot reach the rest of the host.
func underRoot(root, rel string) (string, error) {
	if rel == "" {
		return root, nil
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, `\`) {
		return "", apperrors.InvalidInput("snapshot path must be relative to the model directory")
	}
	for _, seg := range strings.FieldsFunc(rel, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return "", apperrors.InvalidInput("snapshot path must not contain '..'")
		}
	}
	return filepath.Join(root, filepath.FromSlash(rel)), nil
}
