package ensemble

import (
	"math"

	"shelfcast/internal/domain"
)

// CalculateWeights converts per-model validation errors into inverse-error
// blending weights. Models with a non-positive or non-finite error are not
// usable and get no weight. It never falls back to equal weights.
func CalculateWeights(errs domain.ErrorScore) (domain.WeightSet, error) {
	inv := make(map[string]float64, len(errs))
	total := 0.0
	for model, e := range errs {
		if math.IsNaN(e) || math.IsInf(e, 0) || e <= 0 {
			continue
		}
		inv[model] = 1 / e
		total += inv[model]
	}
	if len(inv) == 0 {
		return nil, &domain.InsufficientModelsError{Considered: len(errs)}
	}

	weights := make(domain.WeightSet, len(inv))
	for model, v := range inv {
		weights[model] = v / total
	}
	return weights, nil
}

// WeightsMatch reports whether stored weights agree with the weights derived
// from errs within tol.
func WeightsMatch(stored domain.WeightSet, errs domain.ErrorScore, tol float64) (bool, error) {
	derived, err := CalculateWeights(errs)
	if err != nil {
		return false, err
	}
	if len(derived) != len(stored) {
		return false, nil
	}
	for model, w := range derived {
		s, ok := stored[model]
		if !ok || math.Abs(s-w) > tol {
			return false, nil
		}
	}
	return true, nil
}
