package domain

// StockStatus classifies current stock against safety stock and reorder point.
type StockStatus string

const (
	StatusOutOfStock         StockStatus = "OUT_OF_STOCK"
	StatusUnderstock         StockStatus = "UNDERSTOCK"
	StatusHealthy            StockStatus = "HEALTHY"
	StatusReorderRecommended StockStatus = "REORDER_RECOMMENDED"
)

// Label is the human-readable form used in advice text.
func (s StockStatus) Label() string {
	switch s {
	case StatusOutOfStock:
		return "OUT OF STOCK"
	case StatusReorderRecommended:
		return "REORDER RECOMMENDED"
	default:
		return string(s)
	}
}

// InventoryState is the optimizer output. Stock quantities are unit counts.
type InventoryState struct {
	CurrentStock        float64     `json:"current_stock"`
	AvgDailyDemand      float64     `json:"avg_daily_demand"`
	SafetyStock         float64     `json:"safety_stock"`
	ReorderPoint        float64     `json:"reorder_point"`
	StockStatus         StockStatus `json:"stock_status"`
	RecommendedOrderQty float64     `json:"recommended_order_qty"`
}

// Decision combines one forecast with the inventory state derived from it.
type Decision struct {
	Forecast       ForecastResult `json:"forecast"`
	Inventory      InventoryState `json:"inventory"`
	Horizon        Horizon        `json:"horizon"`
	PredictedSales float64        `json:"predicted_sales"`
}

// DecisionRecord is the flat record handed to presentation and advice
// consumers. Sales fields are currency, stock fields are unit counts.
type DecisionRecord struct {
	Store               int         `json:"store,omitempty"`
	Dept                int         `json:"dept,omitempty"`
	Horizon             Horizon     `json:"horizon"`
	ModelVersion        int         `json:"model_version,omitempty"`
	NextPeriodSales     float64     `json:"next_period_sales"`
	NextMonthSales      float64     `json:"next_month_sales"`
	NextQuarterSales    float64     `json:"next_3_month_sales"`
	ReorderPoint        float64     `json:"reorder_point"`
	SafetyStock         float64     `json:"safety_stock"`
	StockStatus         StockStatus `json:"stock_status"`
	RecommendedOrderQty float64     `json:"recommended_order_qty"`
}

// Record flattens the decision.
func (d Decision) Record() DecisionRecord {
	return DecisionRecord{
		Horizon:             d.Horizon,
		ModelVersion:        d.Forecast.ModelVersion,
		NextPeriodSales:     d.Forecast.NextPeriodSales,
		NextMonthSales:      d.Forecast.NextMonthSales,
		NextQuarterSales:    d.Forecast.NextQuarterSales,
		ReorderPoint:        d.Inventory.ReorderPoint,
		SafetyStock:         d.Inventory.SafetyStock,
		StockStatus:         d.Inventory.StockStatus,
		RecommendedOrderQty: d.Inventory.RecommendedOrderQty,
	}
}
