package common

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"

	"shelfcast/internal/domain"
)

const (
	ModelKeyLGBM    = "lgbm"
	ModelKeyXGB     = "xgb"
	ModelKeyProphet = "prophet"

	FeatureSpecVersion = "sales-v1"
)

// ModelKeys lists the predictor families the retraining cycle produces.
var ModelKeys = []string{ModelKeyLGBM, ModelKeyXGB, ModelKeyProphet}

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// Scale multiplies a 2dp value by an integer factor without reintroducing
// binary rounding noise.
func Scale(v float64, factor int64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v * float64(factor)
	}
	f, _ := decimal.NewFromFloat(v).Mul(decimal.NewFromInt(factor)).Round(2).Float64()
	return f
}

// FeatureVector maps row into the order given by names. An unknown name is
// reported as the missing feature.
func FeatureVector(row domain.FeatureRow, names []string) ([]float64, error) {
	out := make([]float64, len(names))
	for i, name := range names {
		v, ok := row.Lookup(name)
		if !ok {
			return nil, &domain.InvalidFeatureRowError{Feature: name}
		}
		out[i] = v
	}
	return out, nil
}

// RMSE is the root mean squared error between predictions and labels.
func RMSE(pred, actual []float64) (float64, error) {
	if len(pred) != len(actual) {
		return 0, fmt.Errorf("rmse length mismatch: %d predictions, %d labels", len(pred), len(actual))
	}
	if len(pred) == 0 {
		return 0, fmt.Errorf("rmse of empty sample")
	}
	return floats.Distance(pred, actual, 2) / math.Sqrt(float64(len(pred))), nil
}
