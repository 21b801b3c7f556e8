package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"shelfcast/internal/domain"
)

const (
	EnsembleConfigFile = "ensemble_config.json"
	FeatureListFile    = "feature_list.json"
)

// ModelFile is the artifact file name for a model key.
func ModelFile(modelKey string) string {
	return modelKey + "_model.json"
}

type ensembleFile struct {
	Version       int               `json:"version,omitempty"`
	RMSE          domain.ErrorScore `json:"rmse"`
	Weights       domain.WeightSet  `json:"weights"`
	ModelVersions map[string]int    `json:"model_versions,omitempty"`
}

// FileStore keeps one ensemble configuration and its model artifacts in a
// directory. It serves the same reads as the Postgres registry so the loader
// can run without a database.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) Dir() string { return s.dir }

// GetActiveEnsembleConfig returns nil, nil when no config file exists.
func (s *FileStore) GetActiveEnsembleConfig(ctx context.Context) (*domain.EnsembleConfig, error) {
	var f ensembleFile
	ok, err := s.readJSON(EnsembleConfigFile, &f)
	if err != nil || !ok {
		return nil, err
	}

	var names []string
	if _, err := s.readJSON(FeatureListFile, &names); err != nil {
		return nil, err
	}

	version := f.Version
	if version <= 0 {
		version = 1
	}
	return &domain.EnsembleConfig{
		Version:       version,
		Errors:        f.RMSE,
		Weights:       f.Weights,
		FeatureNames:  names,
		ModelVersions: f.ModelVersions,
		IsActive:      true,
	}, nil
}

// GetModel returns the single stored artifact for modelKey; the directory
// holds one version per key, so version is ignored. Missing files are nil, nil.
func (s *FileStore) GetModel(ctx context.Context, modelKey string, version int) (*domain.ModelVersion, error) {
	blob, err := os.ReadFile(filepath.Join(s.dir, ModelFile(modelKey)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s artifact: %w", modelKey, err)
	}
	return &domain.ModelVersion{
		ModelKey:       modelKey,
		Version:        version,
		ArtifactFormat: "json",
		ArtifactBlob:   blob,
		IsActive:       true,
	}, nil
}

// WriteEnsembleConfig writes the config and feature list files.
func (s *FileStore) WriteEnsembleConfig(cfg domain.EnsembleConfig) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	f := ensembleFile{
		Version:       cfg.Version,
		RMSE:          cfg.Errors,
		Weights:       cfg.Weights,
		ModelVersions: cfg.ModelVersions,
	}
	if err := s.writeJSON(EnsembleConfigFile, f); err != nil {
		return err
	}
	if len(cfg.FeatureNames) > 0 {
		return s.writeJSON(FeatureListFile, cfg.FeatureNames)
	}
	return nil
}

func (s *FileStore) WriteModel(modelKey string, blob []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	return writeAtomic(filepath.Join(s.dir, ModelFile(modelKey)), blob)
}

func (s *FileStore) readJSON(name string, v any) (bool, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

func (s *FileStore) writeJSON(name string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(filepath.Join(s.dir, name), raw)
}

// writeAtomic renames a temp file into place so readers never see a torn file.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
