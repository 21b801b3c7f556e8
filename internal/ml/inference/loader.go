package inference

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"shelfcast/internal/domain"
	"shelfcast/internal/ml/common"
	"shelfcast/internal/ml/ensemble"
	"shelfcast/internal/ml/models/gbm"
	"shelfcast/internal/ml/models/seasonal"
)

// ErrNoActiveConfig is returned when the source has no active ensemble config.
var ErrNoActiveConfig = errors.New("no active ensemble config")

// Source is where ensemble configs and model artifacts live: the Postgres
// registry or an artifact directory.
type Source interface {
	GetActiveEnsembleConfig(ctx context.Context) (*domain.EnsembleConfig, error)
	GetModel(ctx context.Context, modelKey string, version int) (*domain.ModelVersion, error)
}

type Recorder interface {
	RecordSnapshot(version int, weights map[string]float64)
	RecordReload(result string)
}

// Decoder turns an artifact blob into a predictor.
type Decoder func(blob []byte) (ensemble.Predictor, error)

// DefaultDecoders maps each model key to the family that serves it.
func DefaultDecoders() map[string]Decoder {
	decodeGBM := func(blob []byte) (ensemble.Predictor, error) {
		m, err := gbm.UnmarshalBinary(blob)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	return map[string]Decoder{
		common.ModelKeyLGBM: decodeGBM,
		common.ModelKeyXGB:  decodeGBM,
		common.ModelKeyProphet: func(blob []byte) (ensemble.Predictor, error) {
			m, err := seasonal.UnmarshalBinary(blob)
			if err != nil {
				return nil, err
			}
			return m, nil
		},
	}
}

type Loader struct {
	tracer   trace.Tracer
	source   Source
	store    *ensemble.Store
	decoders map[string]Decoder
	recorder Recorder
	logger   zerolog.Logger
}

func NewLoader(tracer trace.Tracer, source Source, store *ensemble.Store, recorder Recorder, logger zerolog.Logger) *Loader {
	return &Loader{
		tracer:   tracer,
		source:   source,
		store:    store,
		decoders: DefaultDecoders(),
		recorder: recorder,
		logger:   logger.With().Str("component", "ensemble-loader").Logger(),
	}
}

// Build reads the active config and its artifacts into a new snapshot
// without installing it.
func (l *Loader) Build(ctx context.Context) (*ensemble.Snapshot, error) {
	ctx, span := l.tracer.Start(ctx, "ensemble-loader.build")
	defer span.End()

	if l.source == nil {
		return nil, fmt.Errorf("ensemble loader has no source")
	}
	cfg, err := l.source.GetActiveEnsembleConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("read ensemble config: %w", err)
	}
	if cfg == nil {
		return nil, ErrNoActiveConfig
	}
	span.SetAttributes(attribute.Int("ensemble.version", cfg.Version))

	weights, err := resolveWeights(cfg)
	if err != nil {
		return nil, fmt.Errorf("ensemble config v%d: %w", cfg.Version, err)
	}

	names := cfg.FeatureNames
	if len(names) == 0 {
		names = domain.FeatureNames()
	}

	predictors := make(map[string]ensemble.Predictor, len(weights))
	for _, key := range weights.Models() {
		decode, ok := l.decoders[key]
		if !ok {
			l.logger.Warn().Str("model", key).Msg("no decoder for weighted model")
			continue
		}
		mv, err := l.source.GetModel(ctx, key, cfg.ModelVersions[key])
		if err != nil {
			return nil, fmt.Errorf("read %s artifact: %w", key, err)
		}
		if mv == nil || len(mv.ArtifactBlob) == 0 {
			l.logger.Warn().Str("model", key).Int("version", cfg.ModelVersions[key]).Msg("weighted model has no artifact")
			continue
		}
		p, err := decode(mv.ArtifactBlob)
		if err != nil {
			return nil, fmt.Errorf("decode %s artifact v%d: %w", key, mv.Version, err)
		}
		predictors[key] = p
	}

	return ensemble.NewSnapshot(cfg.Version, cfg.Errors, weights, names, predictors)
}

// Reload builds a snapshot and installs it. On failure the installed
// snapshot stays in place.
func (l *Loader) Reload(ctx context.Context) (*ensemble.Snapshot, error) {
	ctx, span := l.tracer.Start(ctx, "ensemble-loader.reload")
	defer span.End()

	snap, err := l.Build(ctx)
	if err != nil {
		l.record("error")
		l.logger.Error().Err(err).Int("kept_version", l.store.Version()).Msg("ensemble reload failed")
		return nil, err
	}
	prev := l.store.Swap(snap)
	l.record("ok")
	if l.recorder != nil {
		l.recorder.RecordSnapshot(snap.Version, snap.Weights)
	}

	ev := l.logger.Info().Int("version", snap.Version).Interface("weights", snap.Weights)
	if prev != nil {
		ev = ev.Int("previous_version", prev.Version)
	}
	ev.Msg("ensemble snapshot installed")
	return snap, nil
}

// ActiveVersion is the version of the config the source currently marks
// active, or 0 when there is none.
func (l *Loader) ActiveVersion(ctx context.Context) (int, error) {
	cfg, err := l.source.GetActiveEnsembleConfig(ctx)
	if err != nil || cfg == nil {
		return 0, err
	}
	return cfg.Version, nil
}

// ReloadIfChanged reloads only when the active version differs from the
// installed one.
func (l *Loader) ReloadIfChanged(ctx context.Context) (bool, error) {
	active, err := l.ActiveVersion(ctx)
	if err != nil {
		return false, err
	}
	if active == 0 || active == l.store.Version() {
		return false, nil
	}
	if _, err := l.Reload(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (l *Loader) Store() *ensemble.Store { return l.store }

func (l *Loader) record(result string) {
	if l.recorder != nil {
		l.recorder.RecordReload(result)
	}
}

// resolveWeights derives weights from errors when none are stored, and
// otherwise checks that the stored weights agree with the stored errors.
func resolveWeights(cfg *domain.EnsembleConfig) (domain.WeightSet, error) {
	if len(cfg.Weights) == 0 {
		return ensemble.CalculateWeights(cfg.Errors)
	}
	if len(cfg.Errors) > 0 {
		ok, err := ensemble.WeightsMatch(cfg.Weights, cfg.Errors, domain.WeightTolerance)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("stored weights %v do not match errors %v", cfg.Weights, cfg.Errors)
		}
	}
	return cfg.Weights.Clone(), nil
}
