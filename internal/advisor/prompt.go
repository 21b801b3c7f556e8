package advisor

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"shelfcast/internal/domain"
)

const systemPrompt = `You are a retail inventory planning assistant. You interpret a sales forecast and the inventory metrics derived from it for one store department.

Rules:
- Base every statement on the numbers provided. Never invent data.
- Sales figures are currency; stock figures are units.
- Give a concise, actionable business recommendation in 2-3 sentences.`

// BuildPrompt renders the decision as the user message.
func BuildPrompt(rec domain.DecisionRecord) string {
	var sb strings.Builder
	sb.WriteString("Analyze the following sales forecast and inventory data")
	if rec.Store > 0 {
		fmt.Fprintf(&sb, " for store %d, department %d", rec.Store, rec.Dept)
	}
	sb.WriteString(":\n\nForecast:\n")
	fmt.Fprintf(&sb, "- Next Week: %.2f\n", rec.NextPeriodSales)
	fmt.Fprintf(&sb, "- Next Month: %.2f\n", rec.NextMonthSales)
	fmt.Fprintf(&sb, "- Next 3 Months: %.2f\n", rec.NextQuarterSales)
	sb.WriteString("\nInventory:\n")
	fmt.Fprintf(&sb, "- Status: %s\n", rec.StockStatus.Label())
	fmt.Fprintf(&sb, "- Reorder Point: %.2f\n", rec.ReorderPoint)
	fmt.Fprintf(&sb, "- Safety Stock: %.2f\n", rec.SafetyStock)
	fmt.Fprintf(&sb, "- Recommended Order Qty: %.2f\n", rec.RecommendedOrderQty)
	fmt.Fprintf(&sb, "- Planning Horizon: %s\n", strings.ToLower(string(rec.Horizon)))
	return sb.String()
}

// SummaryLine is one headed paragraph of the human-readable decision summary.
type SummaryLine struct {
	Heading string
	Text    string
}

// Summary renders the decision the way planners read it, ending with the
// advisor's action plan when one is given.
func Summary(rec domain.DecisionRecord, predicted float64, suggestion string) []SummaryLine {
	lines := []SummaryLine{
		{"Expected Sales Trend", fmt.Sprintf("The forecast indicates a demand of $%s for the selected period.", formatMoney(predicted))},
		{"Stockout Risk", fmt.Sprintf("Current status is %s.", rec.StockStatus.Label())},
		{"Safety Stock Need", fmt.Sprintf("Maintain at least %.0f units as safety stock.", rec.SafetyStock)},
		{"Reorder Point Details", fmt.Sprintf("A reorder should be triggered if stock falls below %.0f units.", rec.ReorderPoint)},
	}
	if suggestion != "" {
		lines = append(lines, SummaryLine{"Final Action Plan", suggestion})
	}
	return lines
}

var money = message.NewPrinter(language.English)

// formatMoney renders v with two decimals and thousands separators.
func formatMoney(v float64) string {
	return money.Sprintf("%.2f", v)
}
