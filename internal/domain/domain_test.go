package domain

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"
)

func fullRow() FeatureRow {
	return FeatureRow{
		Store: 1, Dept: 1, Temperature: 42.5, FuelPrice: 3.1, CPI: 211, Unemployment: 8.1, Size: 151315,
		Lag1: 20000, Lag2: 20000, Lag3: 20000, Lag4: 20000, Lag8: 20000, Lag12: 20000, Lag16: 20000, Lag20: 20000, Lag24: 20000,
		RollingMean4: 20000, RollingStd4: 1000, RollingMean12: 20000, RollingStd12: 1500,
	}.WithCalendar(time.Date(2012, 11, 2, 0, 0, 0, 0, time.UTC))
}

func TestFeatureNamesCanonicalOrder(t *testing.T) {
	names := FeatureNames()
	if len(names) != 31 {
		t.Fatalf("expected 31 features, got %d", len(names))
	}
	if names[0] != "Store" || names[1] != "Dept" || names[len(names)-1] != "RollingStd_12" {
		t.Fatalf("unexpected order: %v", names)
	}
}

func TestLookupByName(t *testing.T) {
	row := fullRow()
	if v, ok := row.Lookup("Fuel_Price"); !ok || v != 3.1 {
		t.Fatalf("Lookup(Fuel_Price) = %v, %v", v, ok)
	}
	if v, ok := row.Lookup("Lag_24"); !ok || v != 20000 {
		t.Fatalf("Lookup(Lag_24) = %v, %v", v, ok)
	}
	if _, ok := row.Lookup("Lag_5"); ok {
		t.Fatal("unknown feature must not resolve")
	}
}

func TestParseFeatureRowRoundTrip(t *testing.T) {
	row := fullRow()
	got, err := ParseFeatureRow(row.Values())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != row {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, row)
	}
}

func TestParseFeatureRowErrors(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(map[string]float64)
		feature string
	}{
		{"first missing in canonical order", func(m map[string]float64) { delete(m, "Lag_3"); delete(m, "CPI") }, "CPI"},
		{"not finite", func(m map[string]float64) { m["Temperature"] = math.NaN() }, "Temperature"},
		{"fractional integer", func(m map[string]float64) { m["Week"] = 44.5 }, "Week"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			values := fullRow().Values()
			tc.mutate(values)
			_, err := ParseFeatureRow(values)
			var fr *InvalidFeatureRowError
			if !errors.As(err, &fr) {
				t.Fatalf("expected InvalidFeatureRowError, got %v", err)
			}
			if fr.Feature != tc.feature {
				t.Fatalf("expected feature %s, got %s", tc.feature, fr.Feature)
			}
			if !errors.Is(err, ErrInvalidFeatureRow) {
				t.Fatal("expected errors.Is ErrInvalidFeatureRow")
			}
		})
	}
}

func TestWithCalendarAndDate(t *testing.T) {
	row := FeatureRow{}.WithCalendar(time.Date(2012, 11, 2, 0, 0, 0, 0, time.UTC))
	if row.Year != 2012 || row.Month != 11 || row.Day != 2 || row.Week != 44 {
		t.Fatalf("unexpected calendar: %+v", row)
	}
	// Friday, counting from Monday = 0.
	if row.DayOfWeek != 4 {
		t.Fatalf("expected DayOfWeek 4, got %d", row.DayOfWeek)
	}
	d, err := row.Date()
	if err != nil || !d.Equal(time.Date(2012, 11, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("Date() = %v, %v", d, err)
	}

	row.Day = 31
	if _, err := row.Date(); err == nil {
		t.Fatal("November 31 must be rejected")
	}
	row.Month = 13
	if _, err := row.Date(); err == nil {
		t.Fatal("month 13 must be rejected")
	}
}

func TestParseHorizon(t *testing.T) {
	cases := map[string]Horizon{
		"":        HorizonWeek,
		"week":    HorizonWeek,
		"MONTH":   HorizonMonth,
		"quarter": HorizonQuarter,
		"3months": HorizonQuarter,
	}
	for in, want := range cases {
		got, err := ParseHorizon(in)
		if err != nil || got != want {
			t.Fatalf("ParseHorizon(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := ParseHorizon("year"); !errors.Is(err, ErrInvalidHorizon) {
		t.Fatalf("expected ErrInvalidHorizon, got %v", err)
	}
}

func TestHorizonSelect(t *testing.T) {
	f := ForecastResult{NextPeriodSales: 1, NextMonthSales: 4, NextQuarterSales: 12}
	for h, want := range map[Horizon]float64{HorizonWeek: 1, HorizonMonth: 4, HorizonQuarter: 12} {
		got, err := h.Select(f)
		if err != nil || got != want {
			t.Fatalf("%s.Select = %v, %v", h, got, err)
		}
		if float64(h.Weeks()) != want {
			t.Fatalf("%s.Weeks = %d", h, h.Weeks())
		}
	}
	if _, err := Horizon("DAY").Select(f); !errors.Is(err, ErrInvalidHorizon) {
		t.Fatalf("expected ErrInvalidHorizon, got %v", err)
	}
}

func TestWeightSetValidate(t *testing.T) {
	if err := (WeightSet{"lgbm": 0.5, "xgb": 0.25, "prophet": 0.25}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (WeightSet{"lgbm": 0.5, "xgb": 0.4}).Validate(); err == nil {
		t.Fatal("weights summing to 0.9 must be rejected")
	}
	if err := (WeightSet{"lgbm": 0.5, "xgb": 0.5 - WeightTolerance/2}).Validate(); err != nil {
		t.Fatalf("drift inside tolerance must be accepted: %v", err)
	}
	if err := (WeightSet{"lgbm": 0.5, "xgb": 0.5 - 2*WeightTolerance}).Validate(); err == nil {
		t.Fatal("drift beyond tolerance must be rejected")
	}
	if err := (WeightSet{"lgbm": 1.2, "xgb": -0.2}).Validate(); err == nil {
		t.Fatal("out of range weights must be rejected")
	}
	if err := (WeightSet{}).Validate(); !errors.Is(err, ErrInsufficientModels) {
		t.Fatalf("empty set must be InsufficientModels, got %v", err)
	}
}

func TestDecisionRecord(t *testing.T) {
	d := Decision{
		Forecast:  ForecastResult{NextPeriodSales: 14000, NextMonthSales: 56000, NextQuarterSales: 168000, ModelVersion: 3},
		Inventory: InventoryState{SafetyStock: 8730.98, ReorderPoint: 22730.98, StockStatus: StatusUnderstock, RecommendedOrderQty: 22630.98},
		Horizon:   HorizonWeek,
	}
	rec := d.Record()
	if rec.ModelVersion != 3 || rec.NextQuarterSales != 168000 || rec.ReorderPoint != 22730.98 || rec.StockStatus != StatusUnderstock {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestStatusLabel(t *testing.T) {
	if StatusOutOfStock.Label() != "OUT OF STOCK" || StatusReorderRecommended.Label() != "REORDER RECOMMENDED" || StatusHealthy.Label() != "HEALTHY" {
		t.Fatal("unexpected labels")
	}
}

func TestErrorCode(t *testing.T) {
	inner := &InvalidFeatureRowError{Feature: "Lag_1"}
	wrapped := fmt.Errorf("forecast: %w", &PredictionError{Model: "lgbm", Err: inner})
	if got := ErrorCode(wrapped); got != CodeInvalidFeatureRow {
		t.Fatalf("feature row error should win, got %s", got)
	}
	if got := ErrorCode(&MissingPredictorError{Model: "xgb"}); got != CodeMissingPredictor {
		t.Fatalf("got %s", got)
	}
	if got := ErrorCode(errors.New("plain")); got != "" {
		t.Fatalf("plain errors have no code, got %s", got)
	}
	if !errors.Is(wrapped, ErrPredictionFailed) {
		t.Fatal("expected errors.Is ErrPredictionFailed")
	}
}
