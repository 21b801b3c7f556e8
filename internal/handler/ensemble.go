package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type EnsembleResponse struct {
	Version      int                `json:"version"`
	Weights      map[string]float64 `json:"weights"`
	RMSE         map[string]float64 `json:"rmse"`
	Predictors   []string           `json:"predictors"`
	FeatureNames []string           `json:"feature_names"`
	LoadedAt     string             `json:"loaded_at"`
}

// GetEnsemble godoc
// @Summary      Active ensemble
// @Description  Returns the installed ensemble snapshot: version, weights, validation RMSE and loaded predictors
// @Tags         ensemble
// @Produce      json
// @Success      200  {object}  EnsembleResponse
// @Failure      503  {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /api/ensemble [get]
func (h *Handler) GetEnsemble(c *gin.Context) {
	if h.snapshots == nil || h.snapshots.Current() == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no ensemble loaded"})
		return
	}
	snap := h.snapshots.Current()
	preds := make([]string, 0, len(snap.Predictors))
	for _, k := range snap.Weights.Models() {
		if _, ok := snap.Predictors[k]; ok {
			preds = append(preds, k)
		}
	}
	c.JSON(http.StatusOK, EnsembleResponse{
		Version:      snap.Version,
		Weights:      snap.Weights,
		RMSE:         snap.Errors,
		Predictors:   preds,
		FeatureNames: snap.FeatureNames,
		LoadedAt:     snap.LoadedAt.Format(time.RFC3339),
	})
}

// ReloadEnsemble godoc
// @Summary      Reload the ensemble
// @Description  Rebuilds the snapshot from the active configuration and installs it; on failure the current snapshot keeps serving
// @Tags         ensemble
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /api/ensemble/reload [post]
func (h *Handler) ReloadEnsemble(c *gin.Context) {
	if h.reloader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ensemble reload unavailable"})
		return
	}
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.reload-ensemble")
	defer span.End()

	snap, err := h.reloader.Reload(ctx)
	if err != nil {
		span.RecordError(err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": snap.Version, "weights": snap.Weights})
}
