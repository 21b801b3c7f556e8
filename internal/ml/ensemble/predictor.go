package ensemble

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"shelfcast/internal/domain"
)

// Predictor is the capability every model family exposes to the ensemble.
// Regression families read features by name from row; time-series families
// read only date.
type Predictor interface {
	Predict(row domain.FeatureRow, date time.Time) (float64, error)
}

// PredictorFunc adapts a plain function to Predictor.
type PredictorFunc func(row domain.FeatureRow, date time.Time) (float64, error)

func (f PredictorFunc) Predict(row domain.FeatureRow, date time.Time) (float64, error) {
	return f(row, date)
}

// MissingPolicy decides what happens when a weighted model has no predictor.
type MissingPolicy string

const (
	// PolicyStrict fails the forecast with MissingPredictor.
	PolicyStrict MissingPolicy = "strict"
	// PolicyRenormalize blends over the available predictors only.
	PolicyRenormalize MissingPolicy = "renormalize"
)

func ParseMissingPolicy(s string) (MissingPolicy, error) {
	switch MissingPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyStrict:
		return PolicyStrict, nil
	case PolicyRenormalize:
		return PolicyRenormalize, nil
	default:
		return "", fmt.Errorf("unknown missing predictor policy %q", s)
	}
}

// Blend returns the weighted sum of every weighted model's estimate for row at
// full precision, together with the weighted models that had no predictor.
// Under PolicyRenormalize the missing models' weight is redistributed over the
// rest in proportion to their weights.
func Blend(row domain.FeatureRow, weights domain.WeightSet, predictors map[string]Predictor, policy MissingPolicy) (float64, []string, error) {
	if len(weights) == 0 {
		return 0, nil, &domain.InsufficientModelsError{}
	}
	date, err := row.Date()
	if err != nil {
		return 0, nil, err
	}

	models := weights.Models()
	var missing, available []string
	for _, m := range models {
		if predictors[m] == nil {
			missing = append(missing, m)
			continue
		}
		available = append(available, m)
	}
	if len(missing) > 0 && (policy != PolicyRenormalize || len(available) == 0) {
		return 0, missing, &domain.MissingPredictorError{Model: missing[0]}
	}

	norm := 1.0
	if len(missing) > 0 {
		norm = 0
		for _, m := range available {
			norm += weights[m]
		}
		if norm <= 0 {
			return 0, missing, &domain.InsufficientModelsError{Considered: len(models)}
		}
	}

	base := 0.0
	for _, m := range available {
		est, err := predictors[m].Predict(row, date)
		if err != nil {
			return 0, missing, &domain.PredictionError{Model: m, Err: err}
		}
		if math.IsNaN(est) || math.IsInf(est, 0) {
			return 0, missing, &domain.PredictionError{Model: m, Err: errors.New("non-finite estimate")}
		}
		base += weights[m] / norm * est
	}
	return base, missing, nil
}
