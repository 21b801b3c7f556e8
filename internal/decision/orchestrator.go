package decision

import (
	"context"

	"github.com/rs/zerolog"

	"shelfcast/internal/domain"
	"shelfcast/internal/inventory"
)

type Forecaster interface {
	Forecast(ctx context.Context, row domain.FeatureRow) (domain.ForecastResult, error)
}

type Options struct {
	// NormalizeHorizon divides a month or quarter forecast back to one
	// week of demand before it reaches the optimizer.
	NormalizeHorizon bool
	ServiceLevelZ    float64
	LeadTimeDays     int
}

// Request is one decision query. A nil ServiceLevelZ or LeadTimeDays uses
// the orchestrator's defaults; a set value is passed to the optimizer as is.
type Request struct {
	Features      domain.FeatureRow `json:"features"`
	CurrentStock  float64           `json:"current_stock"`
	HistoricalStd float64           `json:"historical_std"`
	Horizon       domain.Horizon    `json:"horizon"`
	ServiceLevelZ *float64          `json:"service_level_z,omitempty"`
	LeadTimeDays  *int              `json:"lead_time_days,omitempty"`
}

type Orchestrator struct {
	forecaster Forecaster
	opts       Options
	logger     zerolog.Logger
}

func NewOrchestrator(forecaster Forecaster, opts Options, logger zerolog.Logger) *Orchestrator {
	if opts.ServiceLevelZ <= 0 {
		opts.ServiceLevelZ = inventory.DefaultServiceLevelZ
	}
	if opts.LeadTimeDays <= 0 {
		opts.LeadTimeDays = inventory.DefaultLeadTimeDays
	}
	return &Orchestrator{
		forecaster: forecaster,
		opts:       opts,
		logger:     logger.With().Str("component", "decision").Logger(),
	}
}

// Decide forecasts demand for the request's feature row and sizes inventory
// against the forecast for the requested horizon.
//
// Without NormalizeHorizon a MONTH or QUARTER forecast is handed to the
// optimizer as if it were one week of demand, so the reorder point scales with
// it. A warning is logged on every such call.
func (o *Orchestrator) Decide(ctx context.Context, req Request) (domain.Decision, error) {
	horizon := req.Horizon
	if horizon == "" {
		horizon = domain.HorizonWeek
	}

	forecast, err := o.forecaster.Forecast(ctx, req.Features)
	if err != nil {
		return domain.Decision{}, err
	}

	predicted, err := horizon.Select(forecast)
	if err != nil {
		return domain.Decision{}, err
	}
	if horizon != domain.HorizonWeek {
		if o.opts.NormalizeHorizon {
			predicted /= float64(horizon.Weeks())
		} else {
			o.logger.Warn().
				Str("horizon", string(horizon)).
				Float64("predicted_sales", predicted).
				Msg("multi-week forecast passed to optimizer as weekly demand")
		}
	}

	in := inventory.Input{
		CurrentStock:   req.CurrentStock,
		PredictedSales: predicted,
		HistoricalStd:  req.HistoricalStd,
		ServiceLevelZ:  o.opts.ServiceLevelZ,
		LeadTimeDays:   o.opts.LeadTimeDays,
	}
	if req.ServiceLevelZ != nil {
		in.ServiceLevelZ = *req.ServiceLevelZ
	}
	if req.LeadTimeDays != nil {
		in.LeadTimeDays = *req.LeadTimeDays
	}

	state, err := inventory.CalculateMetrics(in)
	if err != nil {
		return domain.Decision{}, err
	}

	return domain.Decision{
		Forecast:       forecast,
		Inventory:      state,
		Horizon:        horizon,
		PredictedSales: predicted,
	}, nil
}
