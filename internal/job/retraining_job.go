package job

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"shelfcast/internal/ml/training"
)

type Trainer interface {
	TrainAll(ctx context.Context, now time.Time) (training.Result, error)
}

// RetrainingJob runs one training cycle a day at a fixed UTC hour.
type RetrainingJob struct {
	tracer    trace.Tracer
	trainer   Trainer
	trainHour int
	logger    zerolog.Logger
	now       func() time.Time
}

func NewRetrainingJob(tracer trace.Tracer, trainer Trainer, trainHourUTC int, logger zerolog.Logger) *RetrainingJob {
	if trainHourUTC < 0 || trainHourUTC > 23 {
		trainHourUTC = 0
	}
	return &RetrainingJob{
		tracer:    tracer,
		trainer:   trainer,
		trainHour: trainHourUTC,
		logger:    logger.With().Str("job", "retraining").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (j *RetrainingJob) Start(ctx context.Context) {
	if j.trainer == nil {
		j.logger.Info().Msg("retraining job disabled: no trainer")
		<-ctx.Done()
		return
	}
	for {
		wait := time.Until(nextRunUTC(j.now(), j.trainHour))
		if wait < time.Second {
			wait = time.Second
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			j.runOnce(ctx)
		}
	}
}

func (j *RetrainingJob) runOnce(ctx context.Context) {
	ctx, span := j.tracer.Start(ctx, "retraining-job.run-once")
	defer span.End()

	res, err := j.trainer.TrainAll(ctx, j.now())
	if err != nil {
		j.logger.Error().Err(err).Msg("retraining failed, previous ensemble stays active")
		return
	}
	ev := j.logger.Info().
		Int("ensemble_version", res.EnsembleVersion).
		Int("samples", res.SampleCount).
		Interface("rmse", res.Errors).
		Interface("weights", res.Weights)
	if res.ReloadError != "" {
		ev = ev.Str("reload_error", res.ReloadError)
	}
	ev.Msg("retraining complete")
}

func nextRunUTC(now time.Time, hour int) time.Time {
	now = now.UTC()
	run := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !run.After(now) {
		run = run.Add(24 * time.Hour)
	}
	return run
}
