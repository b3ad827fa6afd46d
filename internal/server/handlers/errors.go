package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/fournil/internal/domain/models"
	"github.com/mamadbah2/fournil/internal/service/batches"
)

// respondError maps service errors onto HTTP responses.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var (
		validation *models.ValidationError
		transition *models.TransitionError
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "field": validation.Field})
	case errors.As(err, &transition):
		c.JSON(http.StatusConflict, gin.H{
			"error":  err.Error(),
			"status": transition.From,
			"action": transition.Action,
		})
	case errors.Is(err, models.ErrDuplicateBatchNumber):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, batches.ErrConcurrentUpdate):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "retryable": true})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, models.ErrStoreUnavailable):
		logger.Warn("store unavailable", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable, try again", "retryable": true})
	default:
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context, logger *zap.Logger, err error) {
	logger.Warn("invalid request body", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
}

func parseShiftParam(raw string) (models.Shift, error) {
	if raw == "" {
		return "", nil
	}
	return models.ParseShift(raw)
}
