// Package components provides reusable dashboard components.
package components

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

// PriceRow is the latest observation for one monitored pool.
type PriceRow struct {
	Label string
	Price decimal.Decimal
	Block uint64
	Stale bool
}

// PricesComponent renders the per-pool price table.
type PricesComponent struct {
	rows map[string]PriceRow
}

// NewPricesComponent creates an empty prices component.
func NewPricesComponent() *PricesComponent {
	return &PricesComponent{rows: make(map[string]PriceRow)}
}

// Update replaces the row for the pool, keeping any stale flag.
func (p *PricesComponent) Update(row PriceRow) {
	if prev, ok := p.rows[row.Label]; ok {
		row.Stale = prev.Stale
	}
	p.rows[row.Label] = row
}

// SetStale flags or clears a pool's staleness.
func (p *PricesComponent) SetStale(label string, stale bool) {
	row, ok := p.rows[label]
	if !ok {
		row = PriceRow{Label: label}
	}
	row.Stale = stale
	p.rows[label] = row
}

// View renders the price table sorted by pool label.
func (p *PricesComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	staleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F59E0B"))
	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))

	var sb strings.Builder
	sb.WriteString(headerStyle.Render("POOL PRICES"))
	sb.WriteString("\n\n")

	if len(p.rows) == 0 {
		sb.WriteString(dimStyle.Render("  Waiting for price data..."))
		return sb.String()
	}

	labels := make([]string, 0, len(p.rows))
	for label := range p.rows {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	sb.WriteString(fmt.Sprintf("  %-24s  %14s  %10s  %s\n", "Pool", "Price", "Block", "Status"))
	sb.WriteString(dimStyle.Render("  "+strings.Repeat("─", 58)) + "\n")

	for _, label := range labels {
		row := p.rows[label]
		status := okStyle.Render("fresh")
		if row.Stale {
			status = staleStyle.Render("STALE")
		}
		sb.WriteString(fmt.Sprintf("  %-24s  %14s  %10s  %s\n",
			row.Label,
			row.Price.StringFixed(6),
			fmt.Sprintf("#%d", row.Block),
			status,
		))
	}

	return sb.String()
}
