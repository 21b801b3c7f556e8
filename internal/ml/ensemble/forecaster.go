package ensemble

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"shelfcast/internal/domain"
	"shelfcast/internal/ml/common"
)

// ErrNoSnapshot is returned while no ensemble has been loaded.
var ErrNoSnapshot = errors.New("no ensemble snapshot loaded")

type Forecaster struct {
	tracer trace.Tracer
	store  *Store
	policy MissingPolicy
	logger zerolog.Logger
}

func NewForecaster(tracer trace.Tracer, store *Store, policy MissingPolicy, logger zerolog.Logger) *Forecaster {
	if policy == "" {
		policy = PolicyStrict
	}
	return &Forecaster{
		tracer: tracer,
		store:  store,
		policy: policy,
		logger: logger.With().Str("component", "ensemble").Logger(),
	}
}

// Forecast blends the installed predictors for row. The next-period value is
// the blend rounded to 2dp; month and quarter are 4x and 12x that value.
func (f *Forecaster) Forecast(ctx context.Context, row domain.FeatureRow) (domain.ForecastResult, error) {
	_, span := f.tracer.Start(ctx, "ensemble.forecast")
	defer span.End()

	snap := f.store.Current()
	if snap == nil {
		span.SetStatus(codes.Error, ErrNoSnapshot.Error())
		return domain.ForecastResult{}, ErrNoSnapshot
	}
	span.SetAttributes(
		attribute.Int("ensemble.version", snap.Version),
		attribute.Int("store", row.Store),
		attribute.Int("dept", row.Dept),
	)

	base, missing, err := Blend(row, snap.Weights, snap.Predictors, f.policy)
	if len(missing) > 0 && err == nil {
		f.logger.Warn().
			Int("version", snap.Version).
			Str("missing", strings.Join(missing, ",")).
			Msg("weighted models have no predictor, renormalized over the rest")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.ForecastResult{}, err
	}

	period := common.Round2(base)
	return domain.ForecastResult{
		NextPeriodSales:  period,
		NextMonthSales:   common.Scale(period, 4),
		NextQuarterSales: common.Scale(period, 12),
		ModelVersion:     snap.Version,
	}, nil
}

func (f *Forecaster) Store() *Store { return f.store }
