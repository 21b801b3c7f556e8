package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"shelfcast/internal/domain"
	"shelfcast/internal/ml/ensemble"
	"shelfcast/internal/ml/inference"
	"shelfcast/internal/ml/training"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidFeatureRow),
		errors.Is(err, domain.ErrInvalidInventoryInput),
		errors.Is(err, domain.ErrInvalidHorizon):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrMissingPredictor),
		errors.Is(err, domain.ErrInsufficientModels),
		errors.Is(err, ensemble.ErrNoSnapshot),
		errors.Is(err, inference.ErrNoActiveConfig):
		return http.StatusServiceUnavailable
	case errors.Is(err, training.ErrTrainingInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	if code := domain.ErrorCode(err); code != "" {
		body["code"] = code
	}
	c.JSON(statusFor(err), body)
}
