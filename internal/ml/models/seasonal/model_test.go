package seasonal

import (
	"errors"
	"math"
	"testing"
	"time"

	"shelfcast/internal/domain"
)

var origin = time.Date(2010, 2, 5, 0, 0, 0, 0, time.UTC)

func weeklySeries(weeks int, fn func(i int, d time.Time) float64) []Point {
	pts := make([]Point, 0, weeks)
	for i := 0; i < weeks; i++ {
		d := origin.AddDate(0, 0, 7*i)
		pts = append(pts, Point{Date: d, Value: fn(i, d)})
	}
	return pts
}

func TestTrainRecoversLinearTrend(t *testing.T) {
	pts := weeklySeries(120, func(i int, _ time.Time) float64 { return 15000 + 70*float64(i) })
	m, err := Train(pts, DefaultTrainOptions())
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}
	intercept, slope := m.Trend()
	if math.Abs(intercept-15000) > 1e-6 || math.Abs(slope-10) > 1e-9 {
		t.Fatalf("expected 15000 + 10/day, got %.4f + %.6f/day", intercept, slope)
	}

	next := origin.AddDate(0, 0, 7*120)
	if got := m.PredictDate(next); math.Abs(got-(15000+70*120)) > 1e-6 {
		t.Fatalf("unexpected extrapolation %.4f", got)
	}
}

func TestTrainLearnsWeekOfYearOffsets(t *testing.T) {
	// Flat demand with a holiday spike in ISO week 47.
	pts := weeklySeries(156, func(_ int, d time.Time) float64 {
		if _, w := d.ISOWeek(); w == 47 {
			return 30000
		}
		return 20000
	})
	m, err := Train(pts, DefaultTrainOptions())
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}

	spike := time.Date(2013, 11, 22, 0, 0, 0, 0, time.UTC)
	if _, w := spike.ISOWeek(); w != 47 {
		t.Fatalf("fixture date is in week %d", w)
	}
	normal := time.Date(2013, 6, 14, 0, 0, 0, 0, time.UTC)
	if diff := m.PredictDate(spike) - m.PredictDate(normal); diff < 9000 {
		t.Fatalf("expected week-47 uplift near 10000, got %.1f", diff)
	}
}

func TestTrainAveragesSameDay(t *testing.T) {
	pts := []Point{
		{Date: origin, Value: 100},
		{Date: origin.Add(5 * time.Hour), Value: 300},
		{Date: origin.AddDate(0, 0, 7), Value: 200},
		{Date: origin.AddDate(0, 0, 14), Value: math.NaN()},
	}
	m, err := Train(pts, DefaultTrainOptions())
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}
	if _, slope := m.Trend(); math.Abs(slope) > 1e-9 {
		t.Fatalf("expected flat trend after averaging, got slope %.6f", slope)
	}
}

func TestPredictUsesOnlyDate(t *testing.T) {
	pts := weeklySeries(60, func(i int, _ time.Time) float64 { return 1000 + float64(i) })
	m, err := Train(pts, DefaultTrainOptions())
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}
	d := origin.AddDate(0, 0, 70)
	a, _ := m.Predict(domain.FeatureRow{Store: 1, Lag1: 5}, d)
	b, _ := m.Predict(domain.FeatureRow{Store: 40, Lag1: 90000}, d)
	if a != b {
		t.Fatalf("features must not change the estimate: %.4f vs %.4f", a, b)
	}

	_, err = m.Predict(domain.FeatureRow{}, time.Time{})
	if !errors.Is(err, domain.ErrInvalidFeatureRow) {
		t.Fatalf("expected invalid feature row for zero date, got %v", err)
	}
}

func TestArtifactRoundTripAndValidation(t *testing.T) {
	pts := weeklySeries(80, func(i int, _ time.Time) float64 { return 500 + 3*float64(i%13) })
	m, err := Train(pts, DefaultTrainOptions())
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}
	blob, err := m.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	restored, err := UnmarshalBinary(blob)
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	d := origin.AddDate(1, 3, 0)
	if diff := math.Abs(restored.PredictDate(d) - m.PredictDate(d)); diff > 1e-9 {
		t.Fatalf("roundtrip changed prediction by %.8f", diff)
	}

	if _, err := UnmarshalBinary([]byte(`{"intercept":1}`)); err == nil {
		t.Fatal("expected missing origin error")
	}
	if _, err := Train([]Point{{Date: origin, Value: 1}}, TrainOptions{}); err == nil {
		t.Fatal("expected error for a single date")
	}
}
