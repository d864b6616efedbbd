package stats

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/massfit/internal/fit"
)

var (
	cardStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
	cardTitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cardValueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
)

// RenderSummaryCards renders the headline numbers of a fit as bordered cards,
// in one row when width allows.
func RenderSummaryCards(res *fit.Result, gof GoodnessOfFit, events int, width int) string {
	status := res.Status
	if !res.Converged {
		status += " (!)"
	}
	cards := []string{
		metricCard("Events", fmt.Sprintf("%d", events)),
		metricCard("Floated", fmt.Sprintf("%d", res.NFloat())),
		metricCard("chi2/ndof", fmt.Sprintf("%.3f", gof.Ratio())),
		metricCard("p-value", fmt.Sprintf("%.3g", gof.PValue)),
		metricCard("Status", status),
	}
	if width < 80 {
		return strings.Join(cards, "\n")
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func metricCard(label, value string) string {
	content := fmt.Sprintf("%s\n%s", cardTitleStyle.Render(label), cardValueStyle.Render(value))
	return cardStyle.Render(content)
}
