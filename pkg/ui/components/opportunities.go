package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

// OpportunityRow is one analyzer verdict in the feed, newest first.
type OpportunityRow struct {
	Timestamp string
	Block     uint64
	Route     string
	Provider  string
	NetProfit decimal.Decimal
	Viable    bool
	Reason    string
}

// OpportunitiesComponent renders the verdict feed with scrollback.
type OpportunitiesComponent struct {
	rows     []OpportunityRow
	maxRows  int
	offset   int
	pageSize int
}

// NewOpportunitiesComponent creates a component keeping up to maxRows
// verdicts.
func NewOpportunitiesComponent(maxRows int) *OpportunitiesComponent {
	return &OpportunitiesComponent{
		rows:     make([]OpportunityRow, 0),
		maxRows:  maxRows,
		pageSize: 10,
	}
}

// Add prepends a verdict and drops the oldest beyond capacity.
func (o *OpportunitiesComponent) Add(row OpportunityRow) {
	o.rows = append([]OpportunityRow{row}, o.rows...)
	if len(o.rows) > o.maxRows {
		o.rows = o.rows[:o.maxRows]
	}
	o.offset = 0
}

// Clear empties the feed.
func (o *OpportunitiesComponent) Clear() {
	o.rows = o.rows[:0]
	o.offset = 0
}

// ScrollUp moves the window toward older entries.
func (o *OpportunitiesComponent) ScrollUp() {
	if o.offset+o.pageSize < len(o.rows) {
		o.offset++
	}
}

// ScrollDown moves the window toward newer entries.
func (o *OpportunitiesComponent) ScrollDown() {
	if o.offset > 0 {
		o.offset--
	}
}

// View renders the visible slice of the feed.
func (o *OpportunitiesComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	viableStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	rejectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))

	var sb strings.Builder
	sb.WriteString(headerStyle.Render("OPPORTUNITIES"))
	sb.WriteString("\n\n")

	if len(o.rows) == 0 {
		sb.WriteString(dimStyle.Render("  No opportunities yet..."))
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("  %-8s  %-8s  %-26s  %12s  %s\n",
		"Time", "Block", "Route", "Net", "Verdict"))
	sb.WriteString(dimStyle.Render("  "+strings.Repeat("─", 68)) + "\n")

	end := o.offset + o.pageSize
	if end > len(o.rows) {
		end = len(o.rows)
	}
	for _, row := range o.rows[o.offset:end] {
		verdict := viableStyle.Render("✓ " + row.Provider)
		if !row.Viable {
			verdict = rejectedStyle.Render("✗ " + row.Reason)
		}
		sb.WriteString(fmt.Sprintf("  %-8s  %-8s  %-26s  %12s  %s\n",
			row.Timestamp,
			fmt.Sprintf("#%d", row.Block),
			row.Route,
			row.NetProfit.StringFixed(4),
			verdict,
		))
	}

	if o.offset > 0 {
		sb.WriteString(dimStyle.Render(fmt.Sprintf("  … %d newer\n", o.offset)))
	}

	return sb.String()
}
