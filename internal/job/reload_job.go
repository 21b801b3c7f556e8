package job

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type EnsembleReloader interface {
	ReloadIfChanged(ctx context.Context) (bool, error)
}

// ReloadJob polls the ensemble source and installs a new snapshot whenever
// the active config version moves.
type ReloadJob struct {
	tracer       trace.Tracer
	reloader     EnsembleReloader
	pollInterval time.Duration
	logger       zerolog.Logger
}

func NewReloadJob(tracer trace.Tracer, reloader EnsembleReloader, pollInterval time.Duration, logger zerolog.Logger) *ReloadJob {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	return &ReloadJob{
		tracer:       tracer,
		reloader:     reloader,
		pollInterval: pollInterval,
		logger:       logger.With().Str("job", "ensemble-reload").Logger(),
	}
}

func (j *ReloadJob) Start(ctx context.Context) {
	if j.reloader == nil {
		j.logger.Info().Msg("ensemble reload job disabled: no reloader")
		<-ctx.Done()
		return
	}

	j.runOnce(ctx)
	ticker := time.NewTicker(j.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *ReloadJob) runOnce(ctx context.Context) {
	ctx, span := j.tracer.Start(ctx, "ensemble-reload-job.run-once")
	defer span.End()

	changed, err := j.reloader.ReloadIfChanged(ctx)
	if err != nil {
		j.logger.Error().Err(err).Msg("ensemble reload poll failed")
		return
	}
	if changed {
		j.logger.Info().Msg("ensemble reloaded")
	}
}
