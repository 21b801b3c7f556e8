package inventory

import (
	"math"

	"shelfcast/internal/domain"
	"shelfcast/internal/ml/common"
)

const (
	DefaultServiceLevelZ = 1.65 // ~95% service level
	DefaultLeadTimeDays  = 7
	DaysPerPeriod        = 7

	minOrderQty = 0.01
)

// Input is one stock position plus the weekly demand forecast for it.
// PredictedSales is demand for one 7-day period.
type Input struct {
	CurrentStock   float64
	PredictedSales float64
	HistoricalStd  float64
	ServiceLevelZ  float64
	LeadTimeDays   int
}

// NewInput returns an Input with the default service level and lead time.
func NewInput(currentStock, predictedSales, historicalStd float64) Input {
	return Input{
		CurrentStock:   currentStock,
		PredictedSales: predictedSales,
		HistoricalStd:  historicalStd,
		ServiceLevelZ:  DefaultServiceLevelZ,
		LeadTimeDays:   DefaultLeadTimeDays,
	}
}

func (in Input) validate() error {
	// Forecasts may be negative (returns outweigh sales) and z is the
	// caller's choice, so those two only have to be finite.
	checks := []struct {
		field string
		value float64
		ok    func(float64) bool
	}{
		{"current_stock", in.CurrentStock, nonNegative},
		{"predicted_sales", in.PredictedSales, anyFinite},
		{"historical_std", in.HistoricalStd, nonNegative},
		{"service_level_z", in.ServiceLevelZ, anyFinite},
		{"lead_time_days", float64(in.LeadTimeDays), func(v float64) bool { return v > 0 }},
	}
	for _, c := range checks {
		if math.IsNaN(c.value) || math.IsInf(c.value, 0) || !c.ok(c.value) {
			return &domain.InvalidInventoryInputError{Field: c.field, Value: c.value}
		}
	}
	return nil
}

func nonNegative(v float64) bool { return v >= 0 }

func anyFinite(float64) bool { return true }

// CalculateMetrics derives safety stock, reorder point, stock status and the
// recommended order quantity. Status is decided on unrounded values; the
// returned quantities are rounded to 2dp, except that a positive shortfall
// is never reported as a zero order.
//
// The order is 0 exactly when the status is HEALTHY as long as the reorder
// point is positive and not below safety stock. With zero demand and zero
// std the reorder point is 0, so an empty shelf is OUT_OF_STOCK with a
// recommended quantity of 0. A negative forecast puts the reorder point
// under safety stock, and stock between the two is UNDERSTOCK with order 0.
func CalculateMetrics(in Input) (domain.InventoryState, error) {
	if err := in.validate(); err != nil {
		return domain.InventoryState{}, err
	}

	lead := float64(in.LeadTimeDays)
	avgDaily := in.PredictedSales / DaysPerPeriod
	safety := in.ServiceLevelZ * in.HistoricalStd * math.Sqrt(lead)
	reorder := avgDaily*lead + safety

	status := classify(in.CurrentStock, safety, reorder)
	order := 0.0
	if status != domain.StatusHealthy {
		order = math.Max(0, reorder-in.CurrentStock)
	}

	return domain.InventoryState{
		CurrentStock:        in.CurrentStock,
		AvgDailyDemand:      common.Round2(avgDaily),
		SafetyStock:         common.Round2(safety),
		ReorderPoint:        common.Round2(reorder),
		StockStatus:         status,
		RecommendedOrderQty: orderQty(order),
	}, nil
}

// orderQty rounds to 2dp but keeps any positive shortfall at least one cent.
func orderQty(order float64) float64 {
	q := common.Round2(order)
	if order > 0 && q < minOrderQty {
		return minOrderQty
	}
	return q
}

func classify(stock, safety, reorder float64) domain.StockStatus {
	switch {
	case stock <= 0:
		return domain.StatusOutOfStock
	case stock < safety:
		return domain.StatusUnderstock
	case stock >= reorder:
		return domain.StatusHealthy
	default:
		return domain.StatusReorderRecommended
	}
}
