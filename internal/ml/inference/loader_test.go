package inference

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"shelfcast/internal/domain"
	"shelfcast/internal/ml/common"
	"shelfcast/internal/ml/ensemble"
	"shelfcast/internal/ml/models/seasonal"
)

type fakeSource struct {
	cfg     *domain.EnsembleConfig
	cfgErr  error
	models  map[string][]byte
	fetched map[string]int
}

func (f *fakeSource) GetActiveEnsembleConfig(ctx context.Context) (*domain.EnsembleConfig, error) {
	return f.cfg, f.cfgErr
}

func (f *fakeSource) GetModel(ctx context.Context, modelKey string, version int) (*domain.ModelVersion, error) {
	if f.fetched == nil {
		f.fetched = map[string]int{}
	}
	f.fetched[modelKey] = version
	blob, ok := f.models[modelKey]
	if !ok {
		return nil, nil
	}
	return &domain.ModelVersion{ModelKey: modelKey, Version: version, ArtifactBlob: blob}, nil
}

type fakeRecorder struct {
	reloads  []string
	versions []int
}

func (r *fakeRecorder) RecordSnapshot(version int, weights map[string]float64) {
	r.versions = append(r.versions, version)
}

func (r *fakeRecorder) RecordReload(result string) {
	r.reloads = append(r.reloads, result)
}

func constantDecoder(v float64) Decoder {
	return func(blob []byte) (ensemble.Predictor, error) {
		if string(blob) == "corrupt" {
			return nil, errors.New("bad artifact")
		}
		return ensemble.PredictorFunc(func(domain.FeatureRow, time.Time) (float64, error) { return v, nil }), nil
	}
}

func flatSeasonalBlob(t *testing.T, value float64) []byte {
	t.Helper()
	start := time.Date(2011, 1, 7, 0, 0, 0, 0, time.UTC)
	m, err := seasonal.Train([]seasonal.Point{
		{Date: start, Value: value},
		{Date: start.AddDate(0, 0, 7), Value: value},
	}, seasonal.DefaultTrainOptions())
	require.NoError(t, err)
	blob, err := m.MarshalBinary()
	require.NoError(t, err)
	return blob
}

func newTestLoader(src Source, rec Recorder) *Loader {
	l := NewLoader(trace.NewNoopTracerProvider().Tracer("test"), src, ensemble.NewStore(nil), rec, zerolog.Nop())
	l.decoders[common.ModelKeyLGBM] = constantDecoder(20000)
	l.decoders[common.ModelKeyXGB] = constantDecoder(21000)
	return l
}

func threeModelConfig(version int) *domain.EnsembleConfig {
	errs := domain.ErrorScore{"lgbm": 2, "xgb": 4, "prophet": 4}
	return &domain.EnsembleConfig{
		Version:       version,
		Errors:        errs,
		Weights:       domain.WeightSet{"lgbm": 0.5, "xgb": 0.25, "prophet": 0.25},
		ModelVersions: map[string]int{"lgbm": 3, "xgb": 2, "prophet": 1},
	}
}

func TestReloadInstallsSnapshot(t *testing.T) {
	src := &fakeSource{
		cfg: threeModelConfig(7),
		models: map[string][]byte{
			"lgbm":    []byte("{}"),
			"xgb":     []byte("{}"),
			"prophet": flatSeasonalBlob(t, 100),
		},
	}
	rec := &fakeRecorder{}
	l := newTestLoader(src, rec)

	snap, err := l.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, snap.Version)
	assert.Equal(t, 7, l.Store().Version())
	assert.Len(t, snap.Predictors, 3)
	assert.Equal(t, domain.FeatureNames(), snap.FeatureNames)
	assert.Equal(t, map[string]int{"lgbm": 3, "xgb": 2, "prophet": 1}, src.fetched)
	assert.Equal(t, []string{"ok"}, rec.reloads)
	assert.Equal(t, []int{7}, rec.versions)

	got, err := snap.Predictors["prophet"].Predict(domain.FeatureRow{}, time.Date(2012, 3, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.InDelta(t, 100, got, 1e-6)
}

func TestBuildDerivesMissingWeights(t *testing.T) {
	cfg := threeModelConfig(2)
	cfg.Weights = nil
	src := &fakeSource{cfg: cfg, models: map[string][]byte{"lgbm": []byte("{}")}}
	l := newTestLoader(src, nil)

	snap, err := l.Build(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.5, snap.Weights["lgbm"], 1e-9)
	assert.InDelta(t, 0.25, snap.Weights["xgb"], 1e-9)
	assert.InDelta(t, 0.25, snap.Weights["prophet"], 1e-9)
	// models without an artifact are left for the forecaster's missing policy
	assert.Len(t, snap.Predictors, 1)
	assert.Nil(t, l.Store().Current(), "build must not install")
}

func TestReloadFailureKeepsInstalledSnapshot(t *testing.T) {
	src := &fakeSource{cfg: threeModelConfig(1), models: map[string][]byte{"lgbm": []byte("{}")}}
	rec := &fakeRecorder{}
	l := newTestLoader(src, rec)
	_, err := l.Reload(context.Background())
	require.NoError(t, err)

	cases := map[string]func(){
		"weights disagree with errors": func() {
			cfg := threeModelConfig(2)
			cfg.Weights = domain.WeightSet{"lgbm": 0.4, "xgb": 0.3, "prophet": 0.3}
			src.cfg = cfg
		},
		"no usable errors": func() {
			src.cfg = &domain.EnsembleConfig{Version: 3, Errors: domain.ErrorScore{"lgbm": 0}}
		},
		"corrupt artifact": func() {
			src.cfg = threeModelConfig(4)
			src.models["lgbm"] = []byte("corrupt")
		},
		"source error": func() {
			src.cfg, src.cfgErr = nil, errors.New("connection refused")
		},
	}
	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			src.cfgErr = nil
			src.models = map[string][]byte{"lgbm": []byte("{}")}
			setup()
			_, err := l.Reload(context.Background())
			require.Error(t, err)
			assert.Equal(t, 1, l.Store().Version())
		})
	}
	assert.Equal(t, []string{"ok", "error", "error", "error", "error"}, rec.reloads)
}

func TestBuildWithoutActiveConfig(t *testing.T) {
	l := newTestLoader(&fakeSource{}, nil)
	_, err := l.Build(context.Background())
	require.ErrorIs(t, err, ErrNoActiveConfig)
}

func TestReloadIfChanged(t *testing.T) {
	src := &fakeSource{cfg: threeModelConfig(1), models: map[string][]byte{"lgbm": []byte("{}")}}
	l := newTestLoader(src, nil)

	changed, err := l.ReloadIfChanged(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = l.ReloadIfChanged(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)

	src.cfg = threeModelConfig(2)
	changed, err = l.ReloadIfChanged(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 2, l.Store().Version())
}

func TestDefaultDecodersCoverModelKeys(t *testing.T) {
	d := DefaultDecoders()
	for _, key := range common.ModelKeys {
		_, ok := d[key]
		assert.True(t, ok, "decoder for %s", key)
	}
	_, err := d[common.ModelKeyProphet]([]byte("not json"))
	assert.Error(t, err)
}
