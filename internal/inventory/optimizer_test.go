package inventory

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelfcast/internal/domain"
)

func TestCalculateMetricsUnderstock(t *testing.T) {
	got, err := CalculateMetrics(Input{
		CurrentStock:   100,
		PredictedSales: 14000,
		HistoricalStd:  2000,
		ServiceLevelZ:  1.65,
		LeadTimeDays:   7,
	})
	require.NoError(t, err)

	safety := 1.65 * 2000 * math.Sqrt(7)
	reorder := 2000*7 + safety
	assert.Equal(t, 2000.0, got.AvgDailyDemand)
	assert.InDelta(t, safety, got.SafetyStock, 0.005)
	assert.InDelta(t, reorder, got.ReorderPoint, 0.005)
	assert.Equal(t, domain.StatusUnderstock, got.StockStatus)
	assert.InDelta(t, reorder-100, got.RecommendedOrderQty, 0.005)
	assert.Equal(t, 8730.98, got.SafetyStock)
}

func TestCalculateMetricsStatusBoundaries(t *testing.T) {
	// std=1, z=1, lead=4: S=2, R=pred/7*4+2. pred=70 gives R=42.
	base := Input{PredictedSales: 70, HistoricalStd: 1, ServiceLevelZ: 1, LeadTimeDays: 4}
	cases := []struct {
		stock float64
		want  domain.StockStatus
		order float64
	}{
		{0, domain.StatusOutOfStock, 42},
		{1.5, domain.StatusUnderstock, 40.5},
		{2, domain.StatusReorderRecommended, 40},
		{41.99, domain.StatusReorderRecommended, 0.01},
		{42, domain.StatusHealthy, 0},
		{500, domain.StatusHealthy, 0},
	}
	for _, tc := range cases {
		in := base
		in.CurrentStock = tc.stock
		got, err := CalculateMetrics(in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got.StockStatus, "stock=%v", tc.stock)
		assert.InDelta(t, tc.order, got.RecommendedOrderQty, 1e-9, "stock=%v", tc.stock)
	}
}

func TestCalculateMetricsZeroDemand(t *testing.T) {
	got, err := CalculateMetrics(NewInput(0, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOutOfStock, got.StockStatus)
	assert.Equal(t, 0.0, got.RecommendedOrderQty)
	assert.Equal(t, 0.0, got.ReorderPoint)

	got, err = CalculateMetrics(NewInput(5, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusHealthy, got.StockStatus)
}

func TestCalculateMetricsMonotonicInStd(t *testing.T) {
	prev := -1.0
	for _, std := range []float64{0, 10, 250, 1000, 5000} {
		got, err := CalculateMetrics(NewInput(1000, 7000, std))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got.SafetyStock, prev)
		assert.GreaterOrEqual(t, got.ReorderPoint, got.SafetyStock)
		prev = got.SafetyStock
	}
}

func TestCalculateMetricsRejectsInvalidInput(t *testing.T) {
	cases := map[string]Input{
		"current_stock":   {CurrentStock: -1, LeadTimeDays: 7},
		"predicted_sales": {PredictedSales: math.Inf(1), LeadTimeDays: 7},
		"historical_std":  {HistoricalStd: -2, LeadTimeDays: 7},
		"service_level_z": {ServiceLevelZ: math.NaN(), LeadTimeDays: 7},
		"lead_time_days":  {LeadTimeDays: -3},
	}
	for field, in := range cases {
		_, err := CalculateMetrics(in)
		if !errors.Is(err, domain.ErrInvalidInventoryInput) {
			t.Fatalf("%s: expected invalid inventory input, got %v", field, err)
		}
		var ie *domain.InvalidInventoryInputError
		require.True(t, errors.As(err, &ie))
		assert.Equal(t, field, ie.Field)
	}
}

func TestCalculateMetricsAcceptsNegativeForecastAndZ(t *testing.T) {
	got, err := CalculateMetrics(Input{
		CurrentStock:   100,
		PredictedSales: -35.5,
		HistoricalStd:  2000,
		ServiceLevelZ:  1.65,
		LeadTimeDays:   7,
	})
	require.NoError(t, err)
	assert.InDelta(t, -5.07, got.AvgDailyDemand, 1e-9)
	assert.InDelta(t, 8730.98, got.SafetyStock, 1e-9)
	assert.Equal(t, domain.StatusUnderstock, got.StockStatus)
	assert.Greater(t, got.RecommendedOrderQty, 0.0)

	got, err = CalculateMetrics(Input{
		CurrentStock:   10,
		PredictedSales: 70,
		HistoricalStd:  1,
		ServiceLevelZ:  -1,
		LeadTimeDays:   4,
	})
	require.NoError(t, err)
	assert.InDelta(t, -2, got.SafetyStock, 1e-9)
	assert.InDelta(t, 38, got.ReorderPoint, 1e-9)
	assert.Equal(t, domain.StatusReorderRecommended, got.StockStatus)
	assert.InDelta(t, 28, got.RecommendedOrderQty, 1e-9)
}

func TestCalculateMetricsTinyShortfallOrdersOneCent(t *testing.T) {
	got, err := CalculateMetrics(Input{
		CurrentStock:   13999.999,
		PredictedSales: 14000,
		HistoricalStd:  0,
		ServiceLevelZ:  1.65,
		LeadTimeDays:   7,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReorderRecommended, got.StockStatus)
	assert.Equal(t, 0.01, got.RecommendedOrderQty)
}

func TestCalculateMetricsOrderZeroOnlyWhenHealthy(t *testing.T) {
	// S = 2, R = 42; sweep across and past both thresholds.
	for stock := 0.0; stock <= 50; stock += 0.0007 {
		got, err := CalculateMetrics(Input{
			CurrentStock:   stock,
			PredictedSales: 70,
			HistoricalStd:  1,
			ServiceLevelZ:  1,
			LeadTimeDays:   4,
		})
		require.NoError(t, err)
		healthy := got.StockStatus == domain.StatusHealthy
		if healthy != (got.RecommendedOrderQty == 0) {
			t.Fatalf("stock %v: status %s with order %v", stock, got.StockStatus, got.RecommendedOrderQty)
		}
	}
}
