// Package tui renders a live terminal view of recorded webhook deliveries.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/branchguard/branchguard/internal/ledger"
)

// --- Styles ---

var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD"))

	statusOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	statusRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))
	statusFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	statusIgnored = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1)
)

// DeliverySource is the slice of the ledger the watch view reads from.
type DeliverySource interface {
	Recent(ctx context.Context, limit int) ([]ledger.Delivery, error)
}

// Model is the BubbleTea model for the watch view. It polls the delivery
// ledger instead of subscribing to a stream; the ledger is the source of
// truth either way.
type Model struct {
	deliveries DeliverySource
	statePath  string

	width  int
	height int

	rows        []ledger.Delivery
	lastRefresh time.Time
	lastError   string

	deliveryTable table.Model
}

type deliveriesMsg []ledger.Delivery
type errMsg error
type tickMsg time.Time

const pollInterval = 2 * time.Second

// NewWatch creates a watch model reading from the given ledger.
func NewWatch(deliveries DeliverySource, statePath string) *Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "Repository", Width: 28},
			{Title: "Branch", Width: 14},
			{Title: "Status", Width: 10},
			{Title: "Age", Width: 8},
			{Title: "Detail", Width: 40},
		}),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return &Model{
		deliveries:    deliveries,
		statePath:     statePath,
		deliveryTable: t,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.fetchDeliveries(),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.fetchDeliveries()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.deliveryTable.SetWidth(m.width - 6)

	case deliveriesMsg:
		m.rows = msg
		m.lastRefresh = time.Now()
		m.lastError = ""
		m.updateTable()
		return m, tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })

	case tickMsg:
		return m, m.fetchDeliveries()

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
	}

	m.deliveryTable, cmd = m.deliveryTable.Update(msg)
	return m, cmd
}

func (m *Model) updateTable() {
	rows := make([]table.Row, 0, len(m.rows))
	for _, d := range m.rows {
		rows = append(rows, table.Row{
			statusSymbol(d.Status),
			d.Repository,
			d.Branch,
			string(d.Status),
			time.Since(d.CreatedAt).Round(time.Second).String(),
			d.Detail,
		})
	}
	m.deliveryTable.SetRows(rows)
}

func statusSymbol(s ledger.Status) string {
	switch s {
	case ledger.StatusCompleted:
		return statusOK.Render("●")
	case ledger.StatusProtecting:
		return statusRunning.Render("◉")
	case ledger.StatusFailed:
		return statusFailed.Render("∅")
	case ledger.StatusIgnored:
		return statusIgnored.Render("○")
	}
	return "○"
}

// --- View ---

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	header := m.renderHeader()
	deliveriesView := borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render(fmt.Sprintf("Deliveries (%s)", m.statePath)),
			m.deliveryTable.View(),
		),
	)

	var errBar string
	if m.lastError != "" {
		errBar = statusFailed.Render(fmt.Sprintf(" ⚠ %s", m.lastError))
	}

	help := lipgloss.NewStyle().Foreground(lipgloss.Color("241")).
		Render(" [q] Quit • [r] Refresh • [↑/↓] Scroll")

	parts := []string{header, deliveriesView}
	if errBar != "" {
		parts = append(parts, errBar)
	}
	parts = append(parts, help)

	return docStyle.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (m Model) renderHeader() string {
	var completed, failed, inflight, ignored int
	for _, d := range m.rows {
		switch d.Status {
		case ledger.StatusCompleted:
			completed++
		case ledger.StatusFailed:
			failed++
		case ledger.StatusProtecting:
			inflight++
		case ledger.StatusIgnored:
			ignored++
		}
	}

	refreshed := "never"
	if !m.lastRefresh.IsZero() {
		refreshed = m.lastRefresh.Format("15:04:05")
	}

	items := []string{
		fmt.Sprintf("Protected: %s", statusOK.Render(fmt.Sprint(completed))),
		fmt.Sprintf("Failed: %s", statusFailed.Render(fmt.Sprint(failed))),
		fmt.Sprintf("In flight: %d  Ignored: %d", inflight, ignored),
		fmt.Sprintf("Refreshed: %s", refreshed),
	}

	cell := (m.width - 4) / 4
	return borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinHorizontal(lipgloss.Top,
			lipgloss.NewStyle().Width(cell).Render(items[0]),
			lipgloss.NewStyle().Width(cell).Render(items[1]),
			lipgloss.NewStyle().Width(cell).Render(items[2]),
			lipgloss.NewStyle().Width(cell).Render(items[3]),
		),
	)
}

// --- Commands ---

func (m Model) fetchDeliveries() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		rows, err := m.deliveries.Recent(ctx, 50)
		if err != nil {
			return errMsg(err)
		}
		return deliveriesMsg(rows)
	}
}
