package api

import (
	"context"
	"errors"
	"net/http"

	"factorcorr/domain/core"
	apperrors "factorcorr/internal/errors"

	"github.com/gin-gonic/gin"
)

// classify maps domain errors onto an HTTP status and error code
func classify(err error) (int, string) {
	switch {
	case core.IsInputError(err), errors.Is(err, core.ErrNoTrainingData):
		return http.StatusBadRequest, apperrors.CodeInvalidInput
	case errors.Is(err, core.ErrTrainingInProgress), errors.Is(err, core.ErrModelNotReady),
		errors.Is(err, core.ErrSnapshotExists):
		return http.StatusConflict, apperrors.CodeModelState
	case core.IsNotFoundError(err):
		return http.StatusNotFound, apperrors.CodeNotFound
	case core.IsNumericalError(err):
		return http.StatusUnprocessableEntity, apperrors.CodeInternalError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, apperrors.CodeInternalError
	}
	switch code := apperrors.GetCode(err); code {
	case "UNKNOWN":
	case apperrors.CodeInvalidInput:
		return http.StatusBadRequest, code
	case apperrors.CodeModelState:
		return http.StatusConflict, code
	case apperrors.CodeExternalService:
		return http.StatusBadGateway, code
	default:
		return http.StatusInternalServerError, code
	}
	return http.StatusInternalServerError, apperrors.CodeInternalError
}

func respondError(c *gin.Context, err error) {
	status, code := classify(err)
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error(), "code": apperrors.CodeInvalidInput})
}
