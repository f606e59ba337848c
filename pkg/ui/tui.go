package ui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ndmikkelsen/flashloaner/pkg/ui/components"
)

// verdictCapacity bounds the opportunity feed scrollback.
const verdictCapacity = 100

// Model is the main Bubble Tea model for the dashboard.
type Model struct {
	prices        *components.PricesComponent
	opportunities *components.OpportunitiesComponent
	stats         *components.StatsComponent
	keys          KeyMap

	showRejections bool
	width          int
	height         int
	quitting       bool
	lastUpdate     time.Time
}

// New creates a dashboard model.
func New() Model {
	return Model{
		prices:         components.NewPricesComponent(),
		opportunities:  components.NewOpportunitiesComponent(verdictCapacity),
		stats:          components.NewStatsComponent(),
		keys:           DefaultKeyMap(),
		showRejections: true,
	}
}

// Init starts the redraw ticker.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(time.Time) tea.Msg {
		return TickMsg{}
	})
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Clear):
			m.opportunities.Clear()
		case key.Matches(msg, m.keys.Rejections):
			m.showRejections = !m.showRejections
		case key.Matches(msg, m.keys.Up):
			m.opportunities.ScrollUp()
		case key.Matches(msg, m.keys.Down):
			m.opportunities.ScrollDown()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		return m, tickCmd()

	case PriceMsg:
		if msg.Snapshot != nil {
			s := msg.Snapshot
			m.prices.Update(components.PriceRow{
				Label: s.Pool.Label(),
				Price: s.Price,
				Block: s.BlockNumber,
			})
			m.stats.RecordPrice(s.BlockNumber)
			m.lastUpdate = time.Now()
		}

	case PoolHealthMsg:
		m.prices.SetStale(msg.Label, msg.Stale)
		m.lastUpdate = time.Now()

	case OpportunityMsg:
		if msg.Opportunity != nil {
			opp := msg.Opportunity
			m.opportunities.Add(components.OpportunityRow{
				Timestamp: opp.DetectedAt.Format("15:04:05"),
				Block:     opp.BlockNumber,
				Route:     opp.Path.Label(),
				Provider:  opp.Provider.Name,
				NetProfit: opp.NetProfit,
				Viable:    true,
			})
			m.stats.RecordFound(opp.NetProfit)
			m.lastUpdate = time.Now()
		}

	case RejectionMsg:
		if msg.Rejection != nil {
			m.stats.RecordRejected()
			if m.showRejections {
				rej := msg.Rejection
				m.opportunities.Add(components.OpportunityRow{
					Timestamp: rej.Timestamp.Format("15:04:05"),
					Route:     rej.RouteLabel(),
					NetProfit: rej.NetProfit,
					Viable:    false,
					Reason:    rej.Reason,
				})
			}
			m.lastUpdate = time.Now()
		}

	case ConnectionMsg:
		m.stats.SetConnection(msg.State)
		m.lastUpdate = time.Now()

	case ExecutionMsg:
		m.stats.RecordExecution(msg.Status)
		m.lastUpdate = time.Now()

	case ProfitMsg:
		m.stats.RecordProfitEvent()
		m.lastUpdate = time.Now()
	}

	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return "\n  Goodbye!\n\n"
	}

	var b strings.Builder

	b.WriteString(TitleStyle.Render(" Flash Loan Arbitrage "))
	b.WriteString("\n\n")

	b.WriteString(m.stats.View())
	if !m.lastUpdate.IsZero() {
		ago := time.Since(m.lastUpdate).Round(time.Second)
		b.WriteString(MutedStyle.Render("  │  Updated " + ago.String() + " ago"))
	}
	b.WriteString("\n\n")

	left := m.prices.View()
	right := m.opportunities.View()

	if m.width > 110 {
		leftBox := BoxStyle.Width(m.width/3 - 2).Render(left)
		rightBox := BoxStyle.Width(2*m.width/3 - 2).Render(right)
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, leftBox, rightBox))
	} else {
		width := m.width - 4
		if width < 40 {
			width = 40
		}
		b.WriteString(BoxStyle.Width(width).Render(left))
		b.WriteString("\n")
		b.WriteString(BoxStyle.Width(width).Render(right))
	}

	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("q: quit • c: clear • r: rejections • ↑↓: scroll"))

	return b.String()
}

// Program holds the running Bubble Tea program for external senders.
var Program *tea.Program

// Run starts the Bubble Tea program and blocks until it exits.
func Run() error {
	Program = tea.NewProgram(New(), tea.WithAltScreen())
	_, err := Program.Run()
	return err
}

// Send delivers a message to the running program, if any.
func Send(msg tea.Msg) {
	if Program != nil {
		Program.Send(msg)
	}
}

// Quit stops the running program, if any.
func Quit() {
	if Program != nil {
		Program.Quit()
	}
}
