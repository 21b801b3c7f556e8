package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"shelfcast/internal/advisor"
	"shelfcast/internal/domain"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(24)
	valueStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
	headingStyle = lipgloss.NewStyle().Bold(true).Underline(true)

	statusColors = map[domain.StockStatus]lipgloss.Color{
		domain.StatusOutOfStock:         lipgloss.Color("196"),
		domain.StatusUnderstock:         lipgloss.Color("208"),
		domain.StatusHealthy:            lipgloss.Color("42"),
		domain.StatusReorderRecommended: lipgloss.Color("220"),
	}
)

func renderPanel(title string, rows [][2]string) string {
	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, titleStyle.Render(title))
	for _, r := range rows {
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(r[0]), valueStyle.Render(r[1])))
	}
	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func renderStatus(s domain.StockStatus) string {
	style := valueStyle
	if c, ok := statusColors[s]; ok {
		style = style.Foreground(c)
	}
	return style.Render(s.Label())
}

func renderDecision(rec domain.DecisionRecord, predicted float64, suggestion string) string {
	title := "Decision"
	if rec.Store > 0 {
		title = fmt.Sprintf("Decision for store %d, dept %d", rec.Store, rec.Dept)
	}
	if rec.ModelVersion > 0 {
		title += fmt.Sprintf(" (ensemble v%d)", rec.ModelVersion)
	}

	rows := [][2]string{
		{"Next week sales", fmt.Sprintf("%.2f", rec.NextPeriodSales)},
		{"Next month sales", fmt.Sprintf("%.2f", rec.NextMonthSales)},
		{"Next 3 months sales", fmt.Sprintf("%.2f", rec.NextQuarterSales)},
		{"Horizon", strings.ToLower(string(rec.Horizon))},
		{"Safety stock", fmt.Sprintf("%.2f", rec.SafetyStock)},
		{"Reorder point", fmt.Sprintf("%.2f", rec.ReorderPoint)},
		{"Recommended order", fmt.Sprintf("%.2f", rec.RecommendedOrderQty)},
	}
	panel := renderPanel(title, rows)
	status := lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render("Stock status"), renderStatus(rec.StockStatus))

	var sb strings.Builder
	sb.WriteString(panel)
	sb.WriteString("\n")
	sb.WriteString(status)
	sb.WriteString("\n")
	for _, line := range advisor.Summary(rec, predicted, suggestion) {
		sb.WriteString("\n")
		sb.WriteString(headingStyle.Render(line.Heading))
		sb.WriteString("\n")
		sb.WriteString(line.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}
