package domain

import (
	"math"
	"time"
)

// FeatureRow is one store/department/week feature vector as produced by the
// upstream feature pipeline. Predictors read it by feature name, never by
// position.
type FeatureRow struct {
	Store        int     `json:"Store"`
	Dept         int     `json:"Dept"`
	IsHoliday    bool    `json:"IsHoliday"`
	Temperature  float64 `json:"Temperature"`
	FuelPrice    float64 `json:"Fuel_Price"`
	MarkDown1    float64 `json:"MarkDown1"`
	MarkDown2    float64 `json:"MarkDown2"`
	MarkDown3    float64 `json:"MarkDown3"`
	MarkDown4    float64 `json:"MarkDown4"`
	MarkDown5    float64 `json:"MarkDown5"`
	CPI          float64 `json:"CPI"`
	Unemployment float64 `json:"Unemployment"`
	Size         float64 `json:"Size"`

	Year      int `json:"Year"`
	Month     int `json:"Month"`
	Week      int `json:"Week"`
	Day       int `json:"Day"`
	DayOfWeek int `json:"DayOfWeek"`

	Lag1  float64 `json:"Lag_1"`
	Lag2  float64 `json:"Lag_2"`
	Lag3  float64 `json:"Lag_3"`
	Lag4  float64 `json:"Lag_4"`
	Lag8  float64 `json:"Lag_8"`
	Lag12 float64 `json:"Lag_12"`
	Lag16 float64 `json:"Lag_16"`
	Lag20 float64 `json:"Lag_20"`
	Lag24 float64 `json:"Lag_24"`

	RollingMean4  float64 `json:"RollingMean_4"`
	RollingStd4   float64 `json:"RollingStd_4"`
	RollingMean12 float64 `json:"RollingMean_12"`
	RollingStd12  float64 `json:"RollingStd_12"`
}

// SalesObservation is a labeled feature row used for training and hold-out scoring.
type SalesObservation struct {
	Date        time.Time
	Features    FeatureRow
	WeeklySales float64
}

type featureField struct {
	name     string
	integral bool
	get      func(r *FeatureRow) float64
	set      func(r *FeatureRow, v float64)
}

var featureFields = []featureField{
	{"Store", true, func(r *FeatureRow) float64 { return float64(r.Store) }, func(r *FeatureRow, v float64) { r.Store = int(v) }},
	{"Dept", true, func(r *FeatureRow) float64 { return float64(r.Dept) }, func(r *FeatureRow, v float64) { r.Dept = int(v) }},
	{"IsHoliday", true, func(r *FeatureRow) float64 { return boolToFloat(r.IsHoliday) }, func(r *FeatureRow, v float64) { r.IsHoliday = v != 0 }},
	{"Temperature", false, func(r *FeatureRow) float64 { return r.Temperature }, func(r *FeatureRow, v float64) { r.Temperature = v }},
	{"Fuel_Price", false, func(r *FeatureRow) float64 { return r.FuelPrice }, func(r *FeatureRow, v float64) { r.FuelPrice = v }},
	{"MarkDown1", false, func(r *FeatureRow) float64 { return r.MarkDown1 }, func(r *FeatureRow, v float64) { r.MarkDown1 = v }},
	{"MarkDown2", false, func(r *FeatureRow) float64 { return r.MarkDown2 }, func(r *FeatureRow, v float64) { r.MarkDown2 = v }},
	{"MarkDown3", false, func(r *FeatureRow) float64 { return r.MarkDown3 }, func(r *FeatureRow, v float64) { r.MarkDown3 = v }},
	{"MarkDown4", false, func(r *FeatureRow) float64 { return r.MarkDown4 }, func(r *FeatureRow, v float64) { r.MarkDown4 = v }},
	{"MarkDown5", false, func(r *FeatureRow) float64 { return r.MarkDown5 }, func(r *FeatureRow, v float64) { r.MarkDown5 = v }},
	{"CPI", false, func(r *FeatureRow) float64 { return r.CPI }, func(r *FeatureRow, v float64) { r.CPI = v }},
	{"Unemployment", false, func(r *FeatureRow) float64 { return r.Unemployment }, func(r *FeatureRow, v float64) { r.Unemployment = v }},
	{"Size", false, func(r *FeatureRow) float64 { return r.Size }, func(r *FeatureRow, v float64) { r.Size = v }},
	{"Year", true, func(r *FeatureRow) float64 { return float64(r.Year) }, func(r *FeatureRow, v float64) { r.Year = int(v) }},
	{"Month", true, func(r *FeatureRow) float64 { return float64(r.Month) }, func(r *FeatureRow, v float64) { r.Month = int(v) }},
	{"Week", true, func(r *FeatureRow) float64 { return float64(r.Week) }, func(r *FeatureRow, v float64) { r.Week = int(v) }},
	{"Day", true, func(r *FeatureRow) float64 { return float64(r.Day) }, func(r *FeatureRow, v float64) { r.Day = int(v) }},
	{"DayOfWeek", true, func(r *FeatureRow) float64 { return float64(r.DayOfWeek) }, func(r *FeatureRow, v float64) { r.DayOfWeek = int(v) }},
	{"Lag_1", false, func(r *FeatureRow) float64 { return r.Lag1 }, func(r *FeatureRow, v float64) { r.Lag1 = v }},
	{"Lag_2", false, func(r *FeatureRow) float64 { return r.Lag2 }, func(r *FeatureRow, v float64) { r.Lag2 = v }},
	{"Lag_3", false, func(r *FeatureRow) float64 { return r.Lag3 }, func(r *FeatureRow, v float64) { r.Lag3 = v }},
	{"Lag_4", false, func(r *FeatureRow) float64 { return r.Lag4 }, func(r *FeatureRow, v float64) { r.Lag4 = v }},
	{"Lag_8", false, func(r *FeatureRow) float64 { return r.Lag8 }, func(r *FeatureRow, v float64) { r.Lag8 = v }},
	{"Lag_12", false, func(r *FeatureRow) float64 { return r.Lag12 }, func(r *FeatureRow, v float64) { r.Lag12 = v }},
	{"Lag_16", false, func(r *FeatureRow) float64 { return r.Lag16 }, func(r *FeatureRow, v float64) { r.Lag16 = v }},
	{"Lag_20", false, func(r *FeatureRow) float64 { return r.Lag20 }, func(r *FeatureRow, v float64) { r.Lag20 = v }},
	{"Lag_24", false, func(r *FeatureRow) float64 { return r.Lag24 }, func(r *FeatureRow, v float64) { r.Lag24 = v }},
	{"RollingMean_4", false, func(r *FeatureRow) float64 { return r.RollingMean4 }, func(r *FeatureRow, v float64) { r.RollingMean4 = v }},
	{"RollingStd_4", false, func(r *FeatureRow) float64 { return r.RollingStd4 }, func(r *FeatureRow, v float64) { r.RollingStd4 = v }},
	{"RollingMean_12", false, func(r *FeatureRow) float64 { return r.RollingMean12 }, func(r *FeatureRow, v float64) { r.RollingMean12 = v }},
	{"RollingStd_12", false, func(r *FeatureRow) float64 { return r.RollingStd12 }, func(r *FeatureRow, v float64) { r.RollingStd12 = v }},
}

var featureIndex map[string]int

func init() {
	featureIndex = make(map[string]int, len(featureFields))
	for i, f := range featureFields {
		featureIndex[f.name] = i
	}
}

// FeatureNames returns the canonical feature list in training order.
func FeatureNames() []string {
	out := make([]string, len(featureFields))
	for i, f := range featureFields {
		out[i] = f.name
	}
	return out
}

// Lookup returns the value of the named feature.
func (r FeatureRow) Lookup(name string) (float64, bool) {
	i, ok := featureIndex[name]
	if !ok {
		return 0, false
	}
	return featureFields[i].get(&r), true
}

// Values returns the row as a name -> value map.
func (r FeatureRow) Values() map[string]float64 {
	out := make(map[string]float64, len(featureFields))
	for _, f := range featureFields {
		out[f.name] = f.get(&r)
	}
	return out
}

// ParseFeatureRow builds a row from a name -> value map. Every canonical
// feature must be present; unknown names are ignored.
func ParseFeatureRow(values map[string]float64) (FeatureRow, error) {
	var row FeatureRow
	for _, f := range featureFields {
		v, ok := values[f.name]
		if !ok {
			return FeatureRow{}, &InvalidFeatureRowError{Feature: f.name}
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return FeatureRow{}, &InvalidFeatureRowError{Feature: f.name, Reason: "is not a finite number"}
		}
		if f.integral && v != math.Trunc(v) {
			return FeatureRow{}, &InvalidFeatureRowError{Feature: f.name, Reason: "must be an integer"}
		}
		f.set(&row, v)
	}
	return row, nil
}

// Date returns the calendar date encoded in the Year/Month/Day fields.
func (r FeatureRow) Date() (time.Time, error) {
	if r.Year <= 0 {
		return time.Time{}, &InvalidFeatureRowError{Feature: "Year", Reason: "must be positive"}
	}
	if r.Month < 1 || r.Month > 12 {
		return time.Time{}, &InvalidFeatureRowError{Feature: "Month", Reason: "must be in 1..12"}
	}
	d := time.Date(r.Year, time.Month(r.Month), r.Day, 0, 0, 0, 0, time.UTC)
	if r.Day < 1 || d.Month() != time.Month(r.Month) {
		return time.Time{}, &InvalidFeatureRowError{Feature: "Day", Reason: "is not a valid day of the month"}
	}
	return d, nil
}

// WithCalendar fills the calendar features from d. DayOfWeek counts from
// Monday = 0.
func (r FeatureRow) WithCalendar(d time.Time) FeatureRow {
	d = d.UTC()
	_, week := d.ISOWeek()
	r.Year = d.Year()
	r.Month = int(d.Month())
	r.Week = week
	r.Day = d.Day()
	r.DayOfWeek = (int(d.Weekday()) + 6) % 7
	return r
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
