package features

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"shelfcast/internal/domain"
)

var (
	lagWeeks       = []int{1, 2, 3, 4, 8, 12, 16, 20, 24}
	rollingWindows = []int{4, 12}
)

// MinHistoryWeeks is how many prior weeks a row needs before every lag and
// rolling feature is defined.
const MinHistoryWeeks = 24

// Record is one raw store/department week: the sales figure plus the
// covariates the feature row carries through unchanged.
type Record struct {
	Store        int
	Dept         int
	Date         time.Time
	WeeklySales  float64
	IsHoliday    bool
	Temperature  float64
	FuelPrice    float64
	MarkDown     [5]float64
	CPI          float64
	Unemployment float64
	Size         float64
}

type seriesKey struct{ store, dept int }

type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// BuildRows turns raw weekly records into labeled observations. Each
// store/department series is ordered by date; lags and rolling statistics
// only look at earlier weeks. Weeks without full history are skipped.
func (e *Engine) BuildRows(records []Record) []domain.SalesObservation {
	series := make(map[seriesKey][]Record)
	for _, r := range records {
		if r.Date.IsZero() {
			continue
		}
		k := seriesKey{r.Store, r.Dept}
		series[k] = append(series[k], r)
	}

	keys := make([]seriesKey, 0, len(series))
	for k := range series {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].store != keys[j].store {
			return keys[i].store < keys[j].store
		}
		return keys[i].dept < keys[j].dept
	})

	out := make([]domain.SalesObservation, 0, len(records))
	for _, k := range keys {
		s := series[k]
		sort.Slice(s, func(i, j int) bool { return s[i].Date.Before(s[j].Date) })
		sales := make([]float64, len(s))
		for i := range s {
			sales[i] = s[i].WeeklySales
		}
		for i := MinHistoryWeeks; i < len(s); i++ {
			out = append(out, domain.SalesObservation{
				Date:        s[i].Date.UTC(),
				Features:    buildRow(s[i], sales[:i]),
				WeeklySales: s[i].WeeklySales,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// buildRow derives the feature row for rec from the sales of the weeks
// strictly before it.
func buildRow(rec Record, prior []float64) domain.FeatureRow {
	row := domain.FeatureRow{
		Store:        rec.Store,
		Dept:         rec.Dept,
		IsHoliday:    rec.IsHoliday,
		Temperature:  rec.Temperature,
		FuelPrice:    rec.FuelPrice,
		MarkDown1:    rec.MarkDown[0],
		MarkDown2:    rec.MarkDown[1],
		MarkDown3:    rec.MarkDown[2],
		MarkDown4:    rec.MarkDown[3],
		MarkDown5:    rec.MarkDown[4],
		CPI:          rec.CPI,
		Unemployment: rec.Unemployment,
		Size:         rec.Size,
	}.WithCalendar(rec.Date)

	n := len(prior)
	lags := make(map[int]float64, len(lagWeeks))
	for _, l := range lagWeeks {
		lags[l] = prior[n-l]
	}
	row.Lag1, row.Lag2, row.Lag3, row.Lag4 = lags[1], lags[2], lags[3], lags[4]
	row.Lag8, row.Lag12, row.Lag16, row.Lag20, row.Lag24 = lags[8], lags[12], lags[16], lags[20], lags[24]

	for _, w := range rollingWindows {
		window := prior[n-w:]
		mean, std := stat.MeanStdDev(window, nil)
		switch w {
		case 4:
			row.RollingMean4, row.RollingStd4 = mean, std
		case 12:
			row.RollingMean12, row.RollingStd12 = mean, std
		}
	}
	return row
}
