package features

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"

	"shelfcast/internal/domain"
)

type fakeRows struct {
	pgx.Rows
	data [][]any
	pos  int
}

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos <= len(r.data)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.pos-1]
	for i := range dest {
		switch d := dest[i].(type) {
		case *time.Time:
			*d = row[i].(time.Time)
		case *[]byte:
			*d = row[i].([]byte)
		case *float64:
			*d = row[i].(float64)
		}
	}
	return nil
}

func (r *fakeRows) Err() error { return nil }
func (r *fakeRows) Close()     {}

type fakePool struct {
	execSQL  []string
	execArgs [][]any
	rows     *fakeRows
	queryArg []any
}

func (p *fakePool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.execSQL = append(p.execSQL, sql)
	p.execArgs = append(p.execArgs, args)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (p *fakePool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	p.queryArg = args
	return p.rows, nil
}

func TestUpsertRowsEncodesFeatures(t *testing.T) {
	p := &fakePool{}
	repo := NewRepository(p, trace.NewNoopTracerProvider().Tracer("test"))
	date := time.Date(2012, 11, 2, 0, 0, 0, 0, time.UTC)

	err := repo.UpsertRows(context.Background(), []domain.SalesObservation{{
		Date:        date,
		Features:    domain.FeatureRow{Store: 3, Dept: 9, Lag1: 1234.5},
		WeeklySales: 1500,
	}})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if len(p.execSQL) != 1 || !strings.Contains(p.execSQL[0], "ON CONFLICT (store, dept, week_date)") {
		t.Fatalf("unexpected statements %v", p.execSQL)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(p.execArgs[0][3].(string)), &decoded); err != nil {
		t.Fatalf("features_json is not json: %v", err)
	}
	if decoded["Lag_1"] != 1234.5 {
		t.Fatalf("expected Lag_1 under its feature name, got %v", decoded)
	}

	if err := repo.UpsertRows(context.Background(), nil); err != nil || len(p.execSQL) != 1 {
		t.Fatalf("empty upsert must be a no-op")
	}
}

func TestListLabeledRowsDecodes(t *testing.T) {
	date := time.Date(2012, 11, 2, 0, 0, 0, 0, time.FixedZone("EST", -5*3600))
	p := &fakePool{rows: &fakeRows{data: [][]any{
		{date, []byte(`{"Store":3,"Dept":9,"Lag_1":1234.5,"Year":2012,"Month":11,"Day":2}`), 1500.0},
	}}}
	repo := NewRepository(p, trace.NewNoopTracerProvider().Tracer("test"))

	from := time.Date(2012, 1, 1, 0, 0, 0, 0, time.UTC)
	got, err := repo.ListLabeledRows(context.Background(), from, from.AddDate(1, 0, 0))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 row, got %d", len(got))
	}
	if got[0].Features.Lag1 != 1234.5 || got[0].Features.Store != 3 || got[0].WeeklySales != 1500 {
		t.Fatalf("unexpected observation %+v", got[0])
	}
	if got[0].Date.Location() != time.UTC {
		t.Fatalf("expected UTC date, got %s", got[0].Date.Location())
	}
	if p.queryArg[0].(time.Time) != from {
		t.Fatalf("expected from bound %s, got %v", from, p.queryArg[0])
	}
}
