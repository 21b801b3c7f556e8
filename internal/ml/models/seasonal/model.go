package seasonal

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"shelfcast/internal/domain"
)

const weeksPerYear = 53

// Point is one dated observation.
type Point struct {
	Date  time.Time
	Value float64
}

type TrainOptions struct {
	// MinWeekSamples is how many residuals a week-of-year needs before its
	// offset is trusted; weeks below it get offset 0.
	MinWeekSamples int `json:"min_week_samples"`
}

func DefaultTrainOptions() TrainOptions {
	return TrainOptions{MinWeekSamples: 1}
}

type artifact struct {
	Origin      time.Time             `json:"origin"`
	Intercept   float64               `json:"intercept"`
	Slope       float64               `json:"slope_per_day"`
	WeekOffsets [weeksPerYear]float64 `json:"week_offsets"`
	WeekCounts  [weeksPerYear]int     `json:"week_counts"`
	Options     TrainOptions          `json:"options"`
}

// Model is a date-only demand curve: a linear trend over days plus an
// additive week-of-year seasonal offset. It ignores every feature but the date.
type Model struct {
	artifact artifact
}

// Train averages points per calendar day, fits the trend by least squares and
// takes the mean detrended value per ISO week as that week's offset.
func Train(points []Point, opts TrainOptions) (*Model, error) {
	if opts.MinWeekSamples <= 0 {
		opts.MinWeekSamples = DefaultTrainOptions().MinWeekSamples
	}
	series := aggregateByDay(points)
	if len(series) < 2 {
		return nil, errors.New("seasonal model needs at least two distinct dates")
	}

	origin := series[0].Date
	xs := make([]float64, len(series))
	ys := make([]float64, len(series))
	for i, p := range series {
		xs[i] = daysSince(origin, p.Date)
		ys[i] = p.Value
	}
	intercept, slope := stat.LinearRegression(xs, ys, nil, false)
	if math.IsNaN(intercept) || math.IsNaN(slope) {
		return nil, errors.New("trend fit did not converge")
	}

	a := artifact{Origin: origin, Intercept: intercept, Slope: slope, Options: opts}
	var sums [weeksPerYear]float64
	for i, p := range series {
		w := weekIndex(p.Date)
		sums[w] += ys[i] - (intercept + slope*xs[i])
		a.WeekCounts[w]++
	}
	for w := range sums {
		if a.WeekCounts[w] >= opts.MinWeekSamples {
			a.WeekOffsets[w] = sums[w] / float64(a.WeekCounts[w])
		}
	}
	return &Model{artifact: a}, nil
}

func aggregateByDay(points []Point) []Point {
	type acc struct {
		sum float64
		n   int
	}
	days := make(map[time.Time]*acc)
	for _, p := range points {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) || p.Date.IsZero() {
			continue
		}
		d := truncateDay(p.Date)
		a, ok := days[d]
		if !ok {
			a = &acc{}
			days[d] = a
		}
		a.sum += p.Value
		a.n++
	}
	out := make([]Point, 0, len(days))
	for d, a := range days {
		out = append(out, Point{Date: d, Value: a.sum / float64(a.n)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// PredictDate returns trend plus the seasonal offset for date.
func (m *Model) PredictDate(date time.Time) float64 {
	a := m.artifact
	x := daysSince(a.Origin, truncateDay(date))
	return a.Intercept + a.Slope*x + a.WeekOffsets[weekIndex(date)]
}

// Predict satisfies the ensemble predictor capability; only date is used.
func (m *Model) Predict(_ domain.FeatureRow, date time.Time) (float64, error) {
	if m == nil {
		return 0, errors.New("nil model")
	}
	if date.IsZero() {
		return 0, &domain.InvalidFeatureRowError{Feature: "Year", Reason: "date is required"}
	}
	return m.PredictDate(date), nil
}

func (m *Model) MarshalBinary() ([]byte, error) {
	if m == nil {
		return nil, errors.New("nil model")
	}
	return json.Marshal(m.artifact)
}

func UnmarshalBinary(blob []byte) (*Model, error) {
	if len(blob) == 0 {
		return nil, errors.New("empty artifact")
	}
	var a artifact
	if err := json.Unmarshal(blob, &a); err != nil {
		return nil, err
	}
	if a.Origin.IsZero() {
		return nil, errors.New("invalid artifact: missing origin")
	}
	if math.IsNaN(a.Intercept) || math.IsNaN(a.Slope) {
		return nil, fmt.Errorf("invalid artifact: trend %v + %v*t", a.Intercept, a.Slope)
	}
	return &Model{artifact: a}, nil
}

func (m *Model) Trend() (intercept, slopePerDay float64) {
	return m.artifact.Intercept, m.artifact.Slope
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysSince(origin, t time.Time) float64 {
	return t.Sub(origin).Hours() / 24
}

func weekIndex(t time.Time) int {
	_, w := t.UTC().ISOWeek()
	return w - 1
}
