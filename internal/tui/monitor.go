// Package tui renders a terminal monitor for pipeline runs: one screen with
// the run header and a row per job, refreshed from the persisted run state on
// a fixed tick. The monitor is read-only; it never drives the engine.
package tui

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mfeuerstein/releasegate/internal/pipeline/engine"
	"github.com/mfeuerstein/releasegate/internal/pipeline/resolver"
)

const refreshInterval = 2 * time.Second

var (
	titleStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	statusGoodStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4CAF50"))
	statusBadStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	statusWaitStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F7B801"))
	badgeSucceeded    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Render("ok")
	badgeFailed       = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Render("fail")
	badgeSkipped      = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999")).Render("skip")
	badgeBlocked      = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Render("wait")
	badgeReady        = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Render("ready")
	detailStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	errStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	helpStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
	badgeWidth        = 5
	monitorTitle      = "releasegate"
	noRunsPlaceholder = "no runs recorded yet"
)

// StateSource is the read side of the engine's state store.
type StateSource interface {
	Load(runID string) (engine.State, error)
	Latest() (engine.State, error)
}

type stateMsg struct {
	state engine.State
	err   error
}

type tickMsg time.Time

// Model is the bubbletea model behind the run monitor.
type Model struct {
	source StateSource
	// runID pins the monitor to one run; empty follows the latest run.
	runID  string
	state  engine.State
	loaded bool
	err    error
	spin   spinner.Model
}

// NewModel builds a monitor over a state source. An empty runID follows
// whichever run updated last.
func NewModel(source StateSource, runID string) Model {
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF"))
	return Model{source: source, runID: runID, spin: spin}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.loadCmd())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.loadCmd()
		}
	case stateMsg:
		m.err = msg.err
		if msg.err == nil {
			m.state = msg.state
			m.loaded = true
		}
		return m, tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
	case tickMsg:
		return m, m.loadCmd()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(monitorTitle))
	b.WriteString("\n\n")
	switch {
	case m.err != nil && !m.loaded:
		b.WriteString(errStyle.Render(fmt.Sprintf("error: %v", m.err)))
		b.WriteString("\n")
	case !m.loaded:
		b.WriteString(m.spin.View())
		b.WriteString(" loading run state\n")
	default:
		m.renderRun(&b)
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("r refresh · q quit"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderRun(b *strings.Builder) {
	if m.state.RunID == "" {
		b.WriteString(detailStyle.Render(noRunsPlaceholder))
		b.WriteString("\n")
		return
	}
	fmt.Fprintf(b, "run %s  %s %s\n", m.state.RunID, m.state.Event.Kind, m.state.Event.Ref)
	fmt.Fprintf(b, "status %s", styleRunStatus(m.state.Status))
	if m.state.StatusReason != "" {
		fmt.Fprintf(b, "  %s", detailStyle.Render(m.state.StatusReason))
	}
	b.WriteString("\n\n")
	for _, node := range m.state.Nodes {
		badge := m.jobBadge(node)
		fmt.Fprintf(b, "  %-*s %s", badgeWidth, badge, node.Name)
		if node.LastRun != nil && node.LastRun.Message != "" {
			fmt.Fprintf(b, "  %s", detailStyle.Render(node.LastRun.Message))
		} else if len(node.BlockedBy) > 0 {
			blockers := append([]string{}, node.BlockedBy...)
			sort.Strings(blockers)
			fmt.Fprintf(b, "  %s", detailStyle.Render("waiting on "+strings.Join(blockers, ", ")))
		}
		b.WriteString("\n")
	}
}

func (m Model) jobBadge(node engine.JobStatus) string {
	switch node.State {
	case resolver.NodeStateSucceeded:
		return badgeSucceeded
	case resolver.NodeStateFailed:
		return badgeFailed
	case resolver.NodeStateSkipped:
		return badgeSkipped
	case resolver.NodeStateRunning:
		return m.spin.View()
	case resolver.NodeStateReady:
		return badgeReady
	default:
		return badgeBlocked
	}
}

func styleRunStatus(status engine.RunStatus) string {
	switch status {
	case engine.RunStatusSucceeded:
		return statusGoodStyle.Render(string(status))
	case engine.RunStatusFailed:
		return statusBadStyle.Render(string(status))
	case engine.RunStatusBlocked:
		return statusWaitStyle.Render(string(status))
	default:
		return statusWaitStyle.Render(string(status))
	}
}

func (m Model) loadCmd() tea.Cmd {
	return func() tea.Msg {
		var (
			state engine.State
			err   error
		)
		if m.runID != "" {
			state, err = m.source.Load(m.runID)
		} else {
			state, err = m.source.Latest()
		}
		if errors.Is(err, engine.ErrStateNotFound) {
			return stateMsg{state: engine.State{}}
		}
		return stateMsg{state: state, err: err}
	}
}

// Run starts the monitor and blocks until the user quits.
func Run(source StateSource, runID string) error {
	program := tea.NewProgram(NewModel(source, runID), tea.WithAltScreen())
	_, err := program.Run()
	return err
}
