package domain

import (
	"errors"
	"fmt"
)

// Error codes surfaced to API callers.
const (
	CodeInsufficientModels    = "INSUFFICIENT_MODELS"
	CodeMissingPredictor      = "MISSING_PREDICTOR"
	CodeInvalidFeatureRow     = "INVALID_FEATURE_ROW"
	CodeInvalidInventoryInput = "INVALID_INVENTORY_INPUT"
	CodePredictionFailed      = "PREDICTION_FAILED"
)

var (
	ErrInsufficientModels    = errors.New("insufficient models")
	ErrMissingPredictor      = errors.New("missing predictor")
	ErrInvalidFeatureRow     = errors.New("invalid feature row")
	ErrInvalidInventoryInput = errors.New("invalid inventory input")
	ErrPredictionFailed      = errors.New("prediction failed")
	ErrInvalidHorizon        = errors.New("invalid horizon")
)

// Coder is implemented by every typed engine error.
type Coder interface {
	Code() string
}

// InsufficientModelsError reports that no model had a usable validation error,
// so no weight set can be formed.
type InsufficientModelsError struct {
	Considered int
}

func (e *InsufficientModelsError) Error() string {
	return fmt.Sprintf("insufficient models: none of %d candidates has a positive validation error", e.Considered)
}

func (e *InsufficientModelsError) Code() string { return CodeInsufficientModels }

func (e *InsufficientModelsError) Is(target error) bool { return target == ErrInsufficientModels }

// MissingPredictorError reports a weighted model with no predictor instance.
type MissingPredictorError struct {
	Model string
}

func (e *MissingPredictorError) Error() string {
	return fmt.Sprintf("missing predictor for weighted model %q", e.Model)
}

func (e *MissingPredictorError) Code() string { return CodeMissingPredictor }

func (e *MissingPredictorError) Is(target error) bool { return target == ErrMissingPredictor }

// InvalidFeatureRowError names the feature that is absent or malformed.
type InvalidFeatureRowError struct {
	Feature string
	Reason  string
}

func (e *InvalidFeatureRowError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid feature row: missing feature %q", e.Feature)
	}
	return fmt.Sprintf("invalid feature row: feature %q %s", e.Feature, e.Reason)
}

func (e *InvalidFeatureRowError) Code() string { return CodeInvalidFeatureRow }

func (e *InvalidFeatureRowError) Is(target error) bool { return target == ErrInvalidFeatureRow }

// InvalidInventoryInputError names the optimizer input that violated its precondition.
type InvalidInventoryInputError struct {
	Field string
	Value float64
}

func (e *InvalidInventoryInputError) Error() string {
	return fmt.Sprintf("invalid inventory input: %s=%v", e.Field, e.Value)
}

func (e *InvalidInventoryInputError) Code() string { return CodeInvalidInventoryInput }

func (e *InvalidInventoryInputError) Is(target error) bool { return target == ErrInvalidInventoryInput }

// PredictionError wraps a failure raised by one model's predictor.
type PredictionError struct {
	Model string
	Err   error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("predictor %q failed: %v", e.Model, e.Err)
}

func (e *PredictionError) Code() string { return CodePredictionFailed }

func (e *PredictionError) Is(target error) bool { return target == ErrPredictionFailed }

func (e *PredictionError) Unwrap() error { return e.Err }

// ErrorCode returns the code of the first typed engine error in err's chain.
// Feature-row problems raised inside a predictor win over the wrapping
// PredictionError so callers see the offending feature name.
func ErrorCode(err error) string {
	var fr *InvalidFeatureRowError
	if errors.As(err, &fr) {
		return fr.Code()
	}
	var c Coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return ""
}
