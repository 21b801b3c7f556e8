package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"shelfcast/internal/domain"
)

const ensembleColumns = `id, version, errors_json, weights_json, feature_names_json,
       model_versions_json, is_active, activated_at, created_at`

func (r *Repository) NextEnsembleVersion(ctx context.Context) (int, error) {
	_, span := r.tracer.Start(ctx, "model-registry.next-ensemble-version")
	defer span.End()

	var version int
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) + 1 FROM ensemble_configs`).Scan(&version)
	return version, err
}

func (r *Repository) InsertEnsembleConfig(ctx context.Context, cfg domain.EnsembleConfig) (*domain.EnsembleConfig, error) {
	_, span := r.tracer.Start(ctx, "model-registry.insert-ensemble")
	defer span.End()

	if cfg.Version <= 0 {
		return nil, errors.New("ensemble config version must be positive")
	}
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	errs, err := json.Marshal(cfg.Errors)
	if err != nil {
		return nil, err
	}
	weights, err := json.Marshal(cfg.Weights)
	if err != nil {
		return nil, err
	}
	names, err := json.Marshal(cfg.FeatureNames)
	if err != nil {
		return nil, err
	}
	versions, err := json.Marshal(cfg.ModelVersions)
	if err != nil {
		return nil, err
	}

	return scanEnsemble(r.pool.QueryRow(ctx, `
INSERT INTO ensemble_configs (
    version, errors_json, weights_json, feature_names_json, model_versions_json, is_active
) VALUES ($1, $2, $3, $4, $5, FALSE)
RETURNING `+ensembleColumns,
		cfg.Version, string(errs), string(weights), string(names), string(versions),
	))
}

// GetActiveEnsembleConfig returns nil, nil until a config has been activated.
func (r *Repository) GetActiveEnsembleConfig(ctx context.Context) (*domain.EnsembleConfig, error) {
	_, span := r.tracer.Start(ctx, "model-registry.get-active-ensemble")
	defer span.End()

	cfg, err := scanEnsemble(r.pool.QueryRow(ctx, `
SELECT `+ensembleColumns+`
FROM ensemble_configs
WHERE is_active = TRUE
ORDER BY version DESC
LIMIT 1`))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return cfg, err
}

// ActivateEnsembleConfig makes version the active configuration and activates
// every model version it references, in one transaction.
func (r *Repository) ActivateEnsembleConfig(ctx context.Context, version int) error {
	_, span := r.tracer.Start(ctx, "model-registry.activate-ensemble")
	defer span.End()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var raw string
	if err := tx.QueryRow(ctx, `SELECT model_versions_json FROM ensemble_configs WHERE version = $1`, version).Scan(&raw); err != nil {
		return fmt.Errorf("load ensemble v%d: %w", version, err)
	}
	var models map[string]int
	if err := json.Unmarshal([]byte(raw), &models); err != nil {
		return fmt.Errorf("decode ensemble v%d model versions: %w", version, err)
	}
	for key, v := range models {
		if err := activateModel(ctx, tx, key, v); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE ensemble_configs SET is_active = FALSE, activated_at = NULL WHERE is_active = TRUE`); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE ensemble_configs SET is_active = TRUE, activated_at = NOW() WHERE version = $1`, version); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func scanEnsemble(r row) (*domain.EnsembleConfig, error) {
	var (
		out                                   domain.EnsembleConfig
		errs, weights, names, modelVersionRaw string
	)
	if err := r.Scan(
		&out.ID,
		&out.Version,
		&errs,
		&weights,
		&names,
		&modelVersionRaw,
		&out.IsActive,
		&out.ActivatedAt,
		&out.CreatedAt,
	); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		name string
		raw  string
		dst  any
	}{
		{"errors_json", errs, &out.Errors},
		{"weights_json", weights, &out.Weights},
		{"feature_names_json", names, &out.FeatureNames},
		{"model_versions_json", modelVersionRaw, &out.ModelVersions},
	} {
		if f.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return nil, fmt.Errorf("decode ensemble v%d %s: %w", out.Version, f.name, err)
		}
	}
	out.CreatedAt = out.CreatedAt.UTC()
	out.ActivatedAt = utcPtr(out.ActivatedAt)
	return &out, nil
}
