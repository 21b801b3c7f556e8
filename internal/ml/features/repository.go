package features

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"

	"shelfcast/internal/domain"
)

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Repository struct {
	pool   pool
	tracer trace.Tracer
}

func NewRepository(pool pool, tracer trace.Tracer) *Repository {
	return &Repository{pool: pool, tracer: tracer}
}

// ListHistory returns raw weekly records in [from, to].
func (r *Repository) ListHistory(ctx context.Context, from, to time.Time) ([]Record, error) {
	_, span := r.tracer.Start(ctx, "sales-feature-repo.list-history")
	defer span.End()

	rows, err := r.pool.Query(ctx, `
SELECT store, dept, week_date, weekly_sales, is_holiday,
       temperature, fuel_price,
       markdown1, markdown2, markdown3, markdown4, markdown5,
       cpi, unemployment, size
FROM sales_history
WHERE week_date >= $1 AND week_date <= $2
ORDER BY store, dept, week_date`, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.Store,
			&rec.Dept,
			&rec.Date,
			&rec.WeeklySales,
			&rec.IsHoliday,
			&rec.Temperature,
			&rec.FuelPrice,
			&rec.MarkDown[0],
			&rec.MarkDown[1],
			&rec.MarkDown[2],
			&rec.MarkDown[3],
			&rec.MarkDown[4],
			&rec.CPI,
			&rec.Unemployment,
			&rec.Size,
		); err != nil {
			return nil, err
		}
		rec.Date = rec.Date.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UpsertRows stores labeled feature rows keyed by store, dept and week.
func (r *Repository) UpsertRows(ctx context.Context, obs []domain.SalesObservation) error {
	if len(obs) == 0 {
		return nil
	}
	_, span := r.tracer.Start(ctx, "sales-feature-repo.upsert")
	defer span.End()

	for i := range obs {
		o := obs[i]
		raw, err := json.Marshal(o.Features)
		if err != nil {
			return fmt.Errorf("encode features for %d/%d %s: %w", o.Features.Store, o.Features.Dept, o.Date.Format(time.DateOnly), err)
		}
		if _, err := r.pool.Exec(ctx, `
INSERT INTO sales_features (store, dept, week_date, features_json, weekly_sales, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW())
ON CONFLICT (store, dept, week_date) DO UPDATE SET
    features_json = EXCLUDED.features_json,
    weekly_sales = EXCLUDED.weekly_sales,
    updated_at = NOW()`,
			o.Features.Store,
			o.Features.Dept,
			o.Date.UTC(),
			string(raw),
			o.WeeklySales,
		); err != nil {
			return err
		}
	}
	return nil
}

// ListLabeledRows returns feature rows in [from, to] in chronological order.
func (r *Repository) ListLabeledRows(ctx context.Context, from, to time.Time) ([]domain.SalesObservation, error) {
	_, span := r.tracer.Start(ctx, "sales-feature-repo.list-labeled")
	defer span.End()

	rows, err := r.pool.Query(ctx, `
SELECT week_date, features_json, weekly_sales
FROM sales_features
WHERE week_date >= $1
  AND week_date <= $2
  AND weekly_sales IS NOT NULL
ORDER BY week_date ASC, store ASC, dept ASC`, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanObservations(rows)
}

func scanObservations(rows pgx.Rows) ([]domain.SalesObservation, error) {
	result := make([]domain.SalesObservation, 0)
	for rows.Next() {
		var (
			obs domain.SalesObservation
			raw []byte
		)
		if err := rows.Scan(&obs.Date, &raw, &obs.WeeklySales); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &obs.Features); err != nil {
			return nil, fmt.Errorf("decode features_json: %w", err)
		}
		obs.Date = obs.Date.UTC()
		result = append(result, obs)
	}
	return result, rows.Err()
}
