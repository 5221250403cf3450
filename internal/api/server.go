package api

import (
	"time"

	"factorcorr/internal"

	"github.com/gin-gonic/gin"
)

// NewRouter builds the public API engine
func NewRouter(h *CorrelationHandler, hub *SSEHub, topic string, logger *internal.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/predict", h.Predict)
		v1.POST("/predict/batch", h.PredictBatch)
		v1.POST("/counterfactual", h.Counterfactual)
		v1.POST("/analyze", h.Analyze)
		v1.POST("/train", h.Train)
		v1.POST("/train/history", h.TrainFromHistory)
		v1.POST("/evaluate", h.Evaluate)

		v1.GET("/model", h.GetModel)
		v1.POST("/model/save", h.SaveModel)
		v1.POST("/model/load", h.LoadModel)
		v1.POST("/model/publish", h.PublishModel)
		v1.POST("/model/fetch", h.FetchModel)

		if hub != nil {
			v1.GET("/train/events", hub.HandleSSE(topic))
		}
	}
	return router
}

func requestLogger(logger *internal.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = internal.NopLogger()
	}
	logger = logger.WithField("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("request served")
	}
}
