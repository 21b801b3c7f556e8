package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// TriggerTraining godoc
// @Summary      Retrain the ensemble now
// @Description  Runs an immediate retraining cycle: refreshes features, fits each model, recomputes inverse-RMSE weights, activates and reloads the new ensemble
// @Tags         ml
// @Produce      json
// @Success      200  {object}  training.Result
// @Failure      409  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /api/ml/train [post]
func (h *Handler) TriggerTraining(c *gin.Context) {
	if h.trainer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ml training service unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.trigger-training")
	defer span.End()

	result, err := h.trainer.TrainAll(ctx, h.now())
	if err != nil {
		span.RecordError(err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
