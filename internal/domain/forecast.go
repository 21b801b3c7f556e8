package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// ErrorScore maps a model key to its held-out RMSE.
type ErrorScore map[string]float64

// WeightSet maps a model key to its blending weight.
type WeightSet map[string]float64

// WeightTolerance bounds how far a weight set may drift from summing to 1,
// and how far stored weights may drift from ones recomputed from errors.
const WeightTolerance = 1e-6

// Models returns the model keys in sorted order.
func (w WeightSet) Models() []string {
	out := make([]string, 0, len(w))
	for k := range w {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (w WeightSet) Sum() float64 {
	total := 0.0
	for _, k := range w.Models() {
		total += w[k]
	}
	return total
}

// Validate checks every weight is in [0,1] and that the set sums to 1.
func (w WeightSet) Validate() error {
	if len(w) == 0 {
		return &InsufficientModelsError{}
	}
	for _, k := range w.Models() {
		v := w[k]
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("weight for %q out of range: %v", k, v)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > WeightTolerance {
		return fmt.Errorf("weights sum to %.9f, must sum to 1", sum)
	}
	return nil
}

// Clone returns an independent copy.
func (w WeightSet) Clone() WeightSet {
	out := make(WeightSet, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

func (e ErrorScore) Clone() ErrorScore {
	out := make(ErrorScore, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// ForecastResult holds the three horizon projections of one blended estimate.
// Month and quarter are linear extrapolations of the period value (x4, x12)
// under a stationary-demand assumption, not separately learned horizons.
type ForecastResult struct {
	NextPeriodSales  float64 `json:"next_period_sales"`
	NextMonthSales   float64 `json:"next_month_sales"`
	NextQuarterSales float64 `json:"next_3_month_sales"`
	ModelVersion     int     `json:"model_version,omitempty"`
}

// Horizon selects which forecast field feeds the inventory optimizer.
type Horizon string

const (
	HorizonWeek    Horizon = "WEEK"
	HorizonMonth   Horizon = "MONTH"
	HorizonQuarter Horizon = "QUARTER"
)

// ParseHorizon accepts week, month, quarter (or 3months), case-insensitively.
// An empty string means WEEK.
func ParseHorizon(s string) (Horizon, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "week":
		return HorizonWeek, nil
	case "month":
		return HorizonMonth, nil
	case "quarter", "3months", "3_months":
		return HorizonQuarter, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidHorizon, s)
	}
}

// Weeks is the number of forecast periods the horizon spans.
func (h Horizon) Weeks() int {
	switch h {
	case HorizonMonth:
		return 4
	case HorizonQuarter:
		return 12
	default:
		return 1
	}
}

// Select returns the forecast field for the horizon.
func (h Horizon) Select(f ForecastResult) (float64, error) {
	switch h {
	case HorizonWeek:
		return f.NextPeriodSales, nil
	case HorizonMonth:
		return f.NextMonthSales, nil
	case HorizonQuarter:
		return f.NextQuarterSales, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidHorizon, string(h))
	}
}
