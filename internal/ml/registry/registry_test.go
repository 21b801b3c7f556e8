package registry

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"

	"shelfcast/internal/domain"
)

type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.vals) {
		return errors.New("scan arity mismatch")
	}
	for i := range dest {
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(r.vals[i]))
	}
	return nil
}

type execCall struct {
	sql  string
	args []any
}

type fakeTx struct {
	pgx.Tx
	rows       []fakeRow
	execs      []execCall
	affected   int64
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.execs = append(t.execs, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("UPDATE " + strconv.FormatInt(t.affected, 10)), nil
}

func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	r := t.rows[0]
	t.rows = t.rows[1:]
	return r
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakePool struct {
	rows    []fakeRow
	queries []string
	args    [][]any
	tx      *fakeTx
}

func (p *fakePool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (p *fakePool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	p.queries = append(p.queries, sql)
	p.args = append(p.args, args)
	r := p.rows[0]
	p.rows = p.rows[1:]
	return r
}

func (p *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	return p.tx, nil
}

func newTestRepo(p *fakePool) *Repository {
	return NewRepository(p, trace.NewNoopTracerProvider().Tracer("test"))
}

func modelRow(key string, version int, active bool) fakeRow {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	var activatedAt *time.Time
	if active {
		activatedAt = &now
	}
	return fakeRow{vals: []any{
		int64(9), key, version, "sales-v1",
		now, now, now,
		`{"max_depth":5}`, `{"rmse":1800.5}`,
		"json/gbm-v1", []byte(`{"trees":[]}`),
		active, activatedAt, now,
	}}
}

func TestGetModelByVersionAndActive(t *testing.T) {
	p := &fakePool{rows: []fakeRow{modelRow("lgbm", 3, false), modelRow("xgb", 5, true)}}
	repo := newTestRepo(p)

	m, err := repo.GetModel(context.Background(), "lgbm", 3)
	if err != nil {
		t.Fatalf("get model: %v", err)
	}
	if m.ModelKey != "lgbm" || m.Version != 3 || m.TrainedAt.Location() != time.UTC {
		t.Fatalf("unexpected model %+v", m)
	}
	if !strings.Contains(p.queries[0], "version = $2") {
		t.Fatalf("expected version lookup, got %s", p.queries[0])
	}

	m, err = repo.GetModel(context.Background(), "xgb", 0)
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if !m.IsActive || m.ActivatedAt == nil || m.ActivatedAt.Location() != time.UTC {
		t.Fatalf("expected active model with UTC activation time, got %+v", m)
	}
	if !strings.Contains(p.queries[1], "is_active = TRUE") {
		t.Fatalf("expected active lookup, got %s", p.queries[1])
	}
}

func TestGetModelMissingIsNil(t *testing.T) {
	p := &fakePool{rows: []fakeRow{{err: pgx.ErrNoRows}}}
	m, err := newTestRepo(p).GetActiveModel(context.Background(), "prophet")
	if err != nil || m != nil {
		t.Fatalf("expected nil, nil, got %+v, %v", m, err)
	}
}

func TestInsertModelVersionValidates(t *testing.T) {
	repo := newTestRepo(&fakePool{})
	if _, err := repo.InsertModelVersion(context.Background(), domain.ModelVersion{ModelKey: "lgbm"}); err == nil {
		t.Fatal("expected invalid payload error")
	}

	p := &fakePool{rows: []fakeRow{modelRow("lgbm", 1, false)}}
	repo = newTestRepo(p)
	out, err := repo.InsertModelVersion(context.Background(), domain.ModelVersion{
		ModelKey:     "lgbm",
		Version:      1,
		ArtifactBlob: []byte("{}"),
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if out.ID != 9 {
		t.Fatalf("expected returned row, got %+v", out)
	}
	if got := p.args[0][6]; got != "{}" {
		t.Fatalf("expected empty hyperparams to default to {}, got %v", got)
	}
}

func ensembleRow(version int, active bool) fakeRow {
	now := time.Now()
	return fakeRow{vals: []any{
		int64(1), version,
		`{"lgbm":2,"xgb":1}`,
		`{"lgbm":0.3333333333333333,"xgb":0.6666666666666666}`,
		`["Store","Dept","Lag_1"]`,
		`{"lgbm":4,"xgb":4}`,
		active, (*time.Time)(nil), now,
	}}
}

func TestGetActiveEnsembleConfig(t *testing.T) {
	p := &fakePool{rows: []fakeRow{ensembleRow(4, true)}}
	cfg, err := newTestRepo(p).GetActiveEnsembleConfig(context.Background())
	if err != nil {
		t.Fatalf("get active ensemble: %v", err)
	}
	if cfg.Version != 4 || cfg.Errors["xgb"] != 1 || len(cfg.FeatureNames) != 3 || cfg.ModelVersions["lgbm"] != 4 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if err := cfg.Weights.Validate(); err != nil {
		t.Fatalf("decoded weights invalid: %v", err)
	}

	p = &fakePool{rows: []fakeRow{{err: pgx.ErrNoRows}}}
	cfg, err = newTestRepo(p).GetActiveEnsembleConfig(context.Background())
	if err != nil || cfg != nil {
		t.Fatalf("expected nil, nil, got %+v, %v", cfg, err)
	}
}

func TestInsertEnsembleConfigRejectsBadWeights(t *testing.T) {
	repo := newTestRepo(&fakePool{})
	_, err := repo.InsertEnsembleConfig(context.Background(), domain.EnsembleConfig{
		Version: 1,
		Weights: domain.WeightSet{"lgbm": 0.9, "xgb": 0.9},
	})
	if err == nil {
		t.Fatal("expected weight validation error")
	}
}

func TestActivateEnsembleConfigActivatesModels(t *testing.T) {
	tx := &fakeTx{rows: []fakeRow{{vals: []any{`{"lgbm":4}`}}}, affected: 1}
	p := &fakePool{tx: tx}

	if err := newTestRepo(p).ActivateEnsembleConfig(context.Background(), 4); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if !tx.committed || tx.rolledBack {
		t.Fatalf("expected commit, got committed=%v rolledBack=%v", tx.committed, tx.rolledBack)
	}
	if len(tx.execs) != 4 {
		t.Fatalf("expected 2 model + 2 ensemble updates, got %d", len(tx.execs))
	}
	if !strings.Contains(tx.execs[1].sql, "ml_model_versions SET is_active = TRUE") || tx.execs[1].args[1] != 4 {
		t.Fatalf("unexpected model activation %+v", tx.execs[1])
	}
}

func TestActivateEnsembleConfigUnknownModelRollsBack(t *testing.T) {
	tx := &fakeTx{rows: []fakeRow{{vals: []any{`{"lgbm":99}`}}}, affected: 0}
	p := &fakePool{tx: tx}

	err := newTestRepo(p).ActivateEnsembleConfig(context.Background(), 4)
	if !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected no rows error, got %v", err)
	}
	if tx.committed || !tx.rolledBack {
		t.Fatal("expected rollback without commit")
	}
}
