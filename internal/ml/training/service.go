package training

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"shelfcast/internal/domain"
	"shelfcast/internal/ml/common"
	"shelfcast/internal/ml/ensemble"
	"shelfcast/internal/ml/features"
	"shelfcast/internal/ml/models/gbm"
	"shelfcast/internal/ml/models/seasonal"
)

// ErrTrainingInProgress is returned when a run is requested while another
// one has not finished.
var ErrTrainingInProgress = errors.New("training already in progress")

type FeatureStore interface {
	ListHistory(ctx context.Context, from, to time.Time) ([]features.Record, error)
	UpsertRows(ctx context.Context, obs []domain.SalesObservation) error
	ListLabeledRows(ctx context.Context, from, to time.Time) ([]domain.SalesObservation, error)
}

type ModelRegistry interface {
	NextVersion(ctx context.Context, modelKey string) (int, error)
	InsertModelVersion(ctx context.Context, model domain.ModelVersion) (*domain.ModelVersion, error)
	NextEnsembleVersion(ctx context.Context) (int, error)
	InsertEnsembleConfig(ctx context.Context, cfg domain.EnsembleConfig) (*domain.EnsembleConfig, error)
	ActivateEnsembleConfig(ctx context.Context, version int) error
}

// ArtifactWriter mirrors a finished run into an artifact directory.
type ArtifactWriter interface {
	WriteModel(modelKey string, blob []byte) error
	WriteEnsembleConfig(cfg domain.EnsembleConfig) error
}

type Reloader interface {
	Reload(ctx context.Context) (*ensemble.Snapshot, error)
}

type MetricsRecorder interface {
	RecordTrainingRMSE(model string, rmse float64)
}

type Config struct {
	TrainWindowDays int
	MinTrainSamples int
	// HoldoutFraction is the share of the most recent rows scored, not fit.
	HoldoutFraction float64
}

type ModelResult struct {
	ModelKey string  `json:"model_key"`
	Version  int     `json:"version,omitempty"`
	RMSE     float64 `json:"rmse,omitempty"`
	Error    string  `json:"error,omitempty"`
}

type Result struct {
	EnsembleVersion int               `json:"ensemble_version"`
	Errors          domain.ErrorScore `json:"rmse"`
	Weights         domain.WeightSet  `json:"weights"`
	Models          []ModelResult     `json:"models"`
	FeatureRows     int               `json:"feature_rows"`
	SampleCount     int               `json:"sample_count"`
	TestCount       int               `json:"test_count"`
	ReloadError     string            `json:"reload_error,omitempty"`
}

type fitted struct {
	candidate
	blob []byte
}

type trainedModel interface {
	ensemble.Predictor
	MarshalBinary() ([]byte, error)
}

type candidate struct {
	key         string
	format      string
	hyperparams any
	fit         func(train []domain.SalesObservation, names []string) (trainedModel, error)
}

type Service struct {
	tracer    trace.Tracer
	features  FeatureStore
	registry  ModelRegistry
	reloader  Reloader
	metrics   MetricsRecorder
	artifacts ArtifactWriter
	engine    *features.Engine
	cfg       Config
	logger    zerolog.Logger
	running   sync.Mutex
}

func NewService(
	tracer trace.Tracer,
	featureStore FeatureStore,
	registry ModelRegistry,
	reloader Reloader,
	metrics MetricsRecorder,
	cfg Config,
	logger zerolog.Logger,
) *Service {
	if cfg.TrainWindowDays <= 0 {
		cfg.TrainWindowDays = 730
	}
	if cfg.MinTrainSamples <= 0 {
		cfg.MinTrainSamples = 500
	}
	if cfg.HoldoutFraction <= 0 || cfg.HoldoutFraction >= 1 {
		cfg.HoldoutFraction = 0.2
	}
	return &Service{
		tracer:   tracer,
		features: featureStore,
		registry: registry,
		reloader: reloader,
		metrics:  metrics,
		engine:   features.NewEngine(),
		cfg:      cfg,
		logger:   logger.With().Str("component", "ml-training").Logger(),
	}
}

// MirrorTo also writes every activated run to w.
func (s *Service) MirrorTo(w ArtifactWriter) {
	s.artifacts = w
}

var buildCandidates = candidates

func candidates() []candidate {
	lgbm := gbm.DefaultTrainOptions()
	xgb := gbm.XGBTrainOptions()
	prophet := seasonal.DefaultTrainOptions()
	return []candidate{
		{key: common.ModelKeyLGBM, format: "json/gbm-v1", hyperparams: lgbm, fit: fitGBM(lgbm)},
		{key: common.ModelKeyXGB, format: "json/gbm-v1", hyperparams: xgb, fit: fitGBM(xgb)},
		{key: common.ModelKeyProphet, format: "json/seasonal-v1", hyperparams: prophet, fit: fitSeasonal(prophet)},
	}
}

func fitGBM(opts gbm.TrainOptions) func([]domain.SalesObservation, []string) (trainedModel, error) {
	return func(train []domain.SalesObservation, names []string) (trainedModel, error) {
		x, y, err := buildDataset(train, names)
		if err != nil {
			return nil, err
		}
		m, err := gbm.Train(x, y, names, opts)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

func fitSeasonal(opts seasonal.TrainOptions) func([]domain.SalesObservation, []string) (trainedModel, error) {
	return func(train []domain.SalesObservation, _ []string) (trainedModel, error) {
		points := make([]seasonal.Point, len(train))
		for i := range train {
			points[i] = seasonal.Point{Date: train[i].Date, Value: train[i].WeeklySales}
		}
		m, err := seasonal.Train(points, opts)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

// RefreshFeatures rebuilds the feature rows for the training window from raw
// weekly history and stores them.
func (s *Service) RefreshFeatures(ctx context.Context, now time.Time) (int, error) {
	ctx, span := s.tracer.Start(ctx, "ml-training.refresh-features")
	defer span.End()

	to := now.UTC()
	from := to.AddDate(0, 0, -s.cfg.TrainWindowDays-7*features.MinHistoryWeeks)
	history, err := s.features.ListHistory(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("list sales history: %w", err)
	}
	rows := s.engine.BuildRows(history)
	if err := s.features.UpsertRows(ctx, rows); err != nil {
		return 0, fmt.Errorf("store feature rows: %w", err)
	}
	span.SetAttributes(attribute.Int("features.rows", len(rows)))
	return len(rows), nil
}

// TrainAll refreshes features, fits every predictor family on the oldest
// rows, scores each on the most recent ones and activates a new ensemble
// weighted by inverse hold-out RMSE. Families that fail are left out; when
// none succeed nothing is persisted or activated.
func (s *Service) TrainAll(ctx context.Context, now time.Time) (Result, error) {
	if !s.running.TryLock() {
		return Result{}, ErrTrainingInProgress
	}
	defer s.running.Unlock()

	ctx, span := s.tracer.Start(ctx, "ml-training.train-all")
	defer span.End()

	refreshed, err := s.RefreshFeatures(ctx, now)
	if err != nil {
		return Result{}, err
	}

	to := now.UTC()
	from := to.AddDate(0, 0, -s.cfg.TrainWindowDays)
	rows, err := s.features.ListLabeledRows(ctx, from, to)
	if err != nil {
		return Result{}, fmt.Errorf("list labeled rows: %w", err)
	}
	if len(rows) < s.cfg.MinTrainSamples {
		return Result{}, fmt.Errorf("not enough labeled samples: got %d need >= %d", len(rows), s.cfg.MinTrainSamples)
	}

	train, test := chronologicalSplit(rows, s.cfg.HoldoutFraction)
	if len(train) == 0 || len(test) == 0 {
		return Result{}, errors.New("dataset split produced empty partitions")
	}

	names := domain.FeatureNames()
	result := Result{
		Errors:      domain.ErrorScore{},
		FeatureRows: refreshed,
		SampleCount: len(rows),
		TestCount:   len(test),
	}
	models := make(map[string]fitted)
	for _, c := range buildCandidates() {
		rmse, blob, err := evaluate(c, train, test, names)
		if err != nil {
			s.logger.Warn().Err(err).Str("model", c.key).Msg("model excluded from ensemble")
			result.Models = append(result.Models, ModelResult{ModelKey: c.key, Error: err.Error()})
			continue
		}
		result.Errors[c.key] = rmse
		models[c.key] = fitted{candidate: c, blob: blob}
		if s.metrics != nil {
			s.metrics.RecordTrainingRMSE(c.key, rmse)
		}
	}

	weights, err := ensemble.CalculateWeights(result.Errors)
	if err != nil {
		return result, err
	}
	result.Weights = weights

	if err := s.persist(ctx, &result, models, from, to, names); err != nil {
		return result, err
	}
	span.SetAttributes(attribute.Int("ensemble.version", result.EnsembleVersion))

	s.logger.Info().
		Int("version", result.EnsembleVersion).
		Interface("rmse", result.Errors).
		Interface("weights", result.Weights).
		Int("samples", result.SampleCount).
		Msg("ensemble activated")

	if s.reloader != nil {
		if _, err := s.reloader.Reload(ctx); err != nil {
			result.ReloadError = err.Error()
		}
	}
	return result, nil
}

func evaluate(c candidate, train, test []domain.SalesObservation, names []string) (float64, []byte, error) {
	m, err := c.fit(train, names)
	if err != nil {
		return 0, nil, fmt.Errorf("train %s: %w", c.key, err)
	}
	pred := make([]float64, len(test))
	actual := make([]float64, len(test))
	for i := range test {
		p, err := m.Predict(test[i].Features, test[i].Date)
		if err != nil {
			return 0, nil, fmt.Errorf("score %s: %w", c.key, err)
		}
		pred[i] = p
		actual[i] = test[i].WeeklySales
	}
	rmse, err := common.RMSE(pred, actual)
	if err != nil {
		return 0, nil, fmt.Errorf("score %s: %w", c.key, err)
	}
	blob, err := m.MarshalBinary()
	if err != nil {
		return 0, nil, fmt.Errorf("marshal %s: %w", c.key, err)
	}
	return rmse, blob, nil
}

func (s *Service) persist(ctx context.Context, result *Result, models map[string]fitted, from, to time.Time, names []string) error {
	versions := make(map[string]int, len(result.Weights))
	for _, key := range result.Weights.Models() {
		version, err := s.registry.NextVersion(ctx, key)
		if err != nil {
			return err
		}
		m := models[key]
		hyperJSON, err := json.Marshal(m.hyperparams)
		if err != nil {
			return fmt.Errorf("encode %s hyperparams: %w", key, err)
		}
		metricJSON, err := json.Marshal(map[string]float64{
			"rmse":   result.Errors[key],
			"weight": result.Weights[key],
			"n_test": float64(result.TestCount),
		})
		if err != nil {
			return fmt.Errorf("encode %s metrics: %w", key, err)
		}
		inserted, err := s.registry.InsertModelVersion(ctx, domain.ModelVersion{
			ModelKey:           key,
			Version:            version,
			FeatureSpecVersion: common.FeatureSpecVersion,
			TrainedFrom:        from,
			TrainedTo:          to,
			HyperparamsJSON:    string(hyperJSON),
			MetricsJSON:        string(metricJSON),
			ArtifactFormat:     m.format,
			ArtifactBlob:       m.blob,
		})
		if err != nil {
			return fmt.Errorf("insert %s v%d: %w", key, version, err)
		}
		versions[key] = inserted.Version
		result.Models = append(result.Models, ModelResult{ModelKey: key, Version: inserted.Version, RMSE: result.Errors[key]})
	}
	sort.Slice(result.Models, func(i, j int) bool { return result.Models[i].ModelKey < result.Models[j].ModelKey })

	ensembleVersion, err := s.registry.NextEnsembleVersion(ctx)
	if err != nil {
		return err
	}
	cfg := domain.EnsembleConfig{
		Version:       ensembleVersion,
		Errors:        result.Errors,
		Weights:       result.Weights,
		FeatureNames:  names,
		ModelVersions: versions,
	}
	if _, err := s.registry.InsertEnsembleConfig(ctx, cfg); err != nil {
		return fmt.Errorf("insert ensemble config v%d: %w", ensembleVersion, err)
	}
	if err := s.registry.ActivateEnsembleConfig(ctx, ensembleVersion); err != nil {
		return fmt.Errorf("activate ensemble config v%d: %w", ensembleVersion, err)
	}
	result.EnsembleVersion = ensembleVersion

	if s.artifacts != nil {
		for _, key := range result.Weights.Models() {
			if err := s.artifacts.WriteModel(key, models[key].blob); err != nil {
				s.logger.Error().Err(err).Str("model", key).Msg("mirror model artifact")
			}
		}
		if err := s.artifacts.WriteEnsembleConfig(cfg); err != nil {
			s.logger.Error().Err(err).Msg("mirror ensemble config")
		}
	}
	return nil
}

func buildDataset(rows []domain.SalesObservation, names []string) ([][]float64, []float64, error) {
	x := make([][]float64, 0, len(rows))
	y := make([]float64, 0, len(rows))
	for i := range rows {
		v, err := common.FeatureVector(rows[i].Features, names)
		if err != nil {
			return nil, nil, err
		}
		x = append(x, v)
		y = append(y, rows[i].WeeklySales)
	}
	return x, y, nil
}

// chronologicalSplit orders rows by date and holds out the most recent
// fraction. Both partitions are non-empty when there are at least two rows.
func chronologicalSplit(rows []domain.SalesObservation, holdout float64) (train, test []domain.SalesObservation) {
	n := len(rows)
	if n < 2 {
		return rows, nil
	}
	sorted := append([]domain.SalesObservation(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	cut := int(float64(n) * (1 - holdout))
	if cut < 1 {
		cut = 1
	}
	if cut >= n {
		cut = n - 1
	}
	return sorted[:cut], sorted[cut:]
}
