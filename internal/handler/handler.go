package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"shelfcast/internal/decision"
	"shelfcast/internal/domain"
	"shelfcast/internal/ml/ensemble"
	"shelfcast/internal/ml/training"
)

type DecisionService interface {
	Decide(ctx context.Context, req decision.Request) (domain.DecisionRecord, error)
}

type SnapshotReader interface {
	Current() *ensemble.Snapshot
}

type EnsembleReloader interface {
	Reload(ctx context.Context) (*ensemble.Snapshot, error)
}

type TrainingRunner interface {
	TrainAll(ctx context.Context, now time.Time) (training.Result, error)
}

type Advisor interface {
	Suggest(ctx context.Context, rec domain.DecisionRecord) (string, error)
}

type Handler struct {
	tracer        trace.Tracer
	decisions     DecisionService
	snapshots     SnapshotReader
	reloader      EnsembleReloader
	trainer       TrainingRunner
	advisor       Advisor
	historicalStd float64
	logger        zerolog.Logger
	now           func() time.Time
}

func New(tracer trace.Tracer, decisions DecisionService, snapshots SnapshotReader, logger zerolog.Logger) *Handler {
	return &Handler{
		tracer:        tracer,
		decisions:     decisions,
		snapshots:     snapshots,
		historicalStd: 2000,
		logger:        logger.With().Str("component", "http").Logger(),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (h *Handler) SetReloader(r EnsembleReloader)     { h.reloader = r }
func (h *Handler) SetTrainingRunner(r TrainingRunner) { h.trainer = r }
func (h *Handler) SetAdvisor(a Advisor)               { h.advisor = a }

// SetDefaultHistoricalStd sets the demand deviation used when a request
// leaves historical_std out.
func (h *Handler) SetDefaultHistoricalStd(v float64) {
	if v >= 0 {
		h.historicalStd = v
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine, apiKey string) {
	r.GET("/health", h.Health)

	api := r.Group("/api", APIKeyAuth(apiKey))
	api.POST("/decisions", h.Decide)
	api.GET("/ensemble", h.GetEnsemble)
	api.POST("/ensemble/reload", h.ReloadEnsemble)
	api.POST("/ml/train", h.TriggerTraining)
}
