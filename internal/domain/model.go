package domain

import "time"

// ModelVersion is one trained predictor artifact in the registry.
type ModelVersion struct {
	ID                 int64
	ModelKey           string
	Version            int
	FeatureSpecVersion string
	TrainedFrom        time.Time
	TrainedTo          time.Time
	TrainedAt          time.Time
	HyperparamsJSON    string
	MetricsJSON        string
	ArtifactFormat     string
	ArtifactBlob       []byte
	IsActive           bool
	ActivatedAt        *time.Time
	CreatedAt          time.Time
}

// EnsembleConfig is the per-retraining-cycle configuration the forecaster
// reads: validation errors, the weights derived from them, the feature list
// the regression predictors were fit on, and the model versions it blends.
type EnsembleConfig struct {
	ID            int64          `json:"id,omitempty"`
	Version       int            `json:"version"`
	Errors        ErrorScore     `json:"rmse"`
	Weights       WeightSet      `json:"weights"`
	FeatureNames  []string       `json:"feature_names,omitempty"`
	ModelVersions map[string]int `json:"model_versions,omitempty"`
	IsActive      bool           `json:"is_active,omitempty"`
	ActivatedAt   *time.Time     `json:"activated_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at,omitempty"`
}
