package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

// Stats are the session counters shown in the status bar.
type Stats struct {
	PriceUpdates uint64
	Found        uint64
	Rejected     uint64
	Submitted    uint64
	Confirmed    uint64
	Reverted     uint64
	Profits      uint64
	BestNet      decimal.Decimal
	LastBlock    uint64
	Connection   string
}

// StatsComponent renders the session counters.
type StatsComponent struct {
	stats Stats
}

// NewStatsComponent creates an empty stats component.
func NewStatsComponent() *StatsComponent {
	return &StatsComponent{}
}

// RecordPrice bumps the update counter and the latest block.
func (s *StatsComponent) RecordPrice(block uint64) {
	s.stats.PriceUpdates++
	if block > s.stats.LastBlock {
		s.stats.LastBlock = block
	}
}

// RecordFound bumps the found counter and tracks the best net profit.
func (s *StatsComponent) RecordFound(net decimal.Decimal) {
	s.stats.Found++
	if net.GreaterThan(s.stats.BestNet) {
		s.stats.BestNet = net
	}
}

// RecordRejected bumps the rejected counter.
func (s *StatsComponent) RecordRejected() {
	s.stats.Rejected++
}

// RecordExecution bumps the lifecycle counter matching the status.
func (s *StatsComponent) RecordExecution(status string) {
	switch status {
	case "submitted":
		s.stats.Submitted++
	case "confirmed":
		s.stats.Confirmed++
	case "reverted":
		s.stats.Reverted++
	}
}

// RecordProfitEvent bumps the realized profit counter.
func (s *StatsComponent) RecordProfitEvent() {
	s.stats.Profits++
}

// SetConnection records the chain connection state.
func (s *StatsComponent) SetConnection(state string) {
	s.stats.Connection = state
}

// View renders the counters as one status line.
func (s *StatsComponent) View() string {
	valueStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF"))
	profitStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#10B981"))

	best := ""
	if s.stats.BestNet.IsPositive() {
		best = "  │  Best: " + profitStyle.Render(s.stats.BestNet.StringFixed(4))
	}

	conn := ""
	if s.stats.Connection != "" {
		conn = "  │  Chain: " + valueStyle.Render(s.stats.Connection)
	}

	exec := ""
	if s.stats.Submitted > 0 {
		exec = fmt.Sprintf("  │  Tx: %s sent / %s ok / %s rev",
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Submitted)),
			profitStyle.Render(fmt.Sprintf("%d", s.stats.Confirmed)),
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Reverted)))
	}

	return fmt.Sprintf("Block: %s  │  Updates: %s  │  Found: %s  │  Rejected: %s%s%s%s",
		valueStyle.Render(fmt.Sprintf("#%d", s.stats.LastBlock)),
		valueStyle.Render(fmt.Sprintf("%d", s.stats.PriceUpdates)),
		profitStyle.Render(fmt.Sprintf("%d", s.stats.Found)),
		valueStyle.Render(fmt.Sprintf("%d", s.stats.Rejected)),
		best,
		conn,
		exec,
	)
}
