package reporter

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ppiankov/goldrun/internal/task"
)

// TUI styles
var (
	headerStyle   = lipgloss.NewStyle().Bold(true)
	failedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // red
	runStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("14")) // cyan
	passStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))  // gray
	selectedStyle = lipgloss.NewStyle().Reverse(true)
	detailStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("7")).PaddingLeft(4)
	pauseStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	doneStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
)

const (
	refreshInterval = 500 * time.Millisecond

	// header, progress and help lines
	chromeLines = 3
	minRows     = 3
)

type tickMsg time.Time

// DoneMsg tells the TUI the batch has finished.
type DoneMsg struct{}

// TUIModel is the Bubbletea model for the live batch display. Rows are
// grouped problems first; the selected row can be expanded to show where
// the case's output and baseline live.
type TUIModel struct {
	engine     string
	getResults func() []*task.CaseResult
	cancelRun  func() // called on 'q' while the batch is still running

	rows   []*task.CaseResult // display order
	cursor int
	offset int
	detail bool
	paused bool
	done   bool
	frame  int
	width  int
	height int
}

// NewTUIModel creates a new TUI model.
func NewTUIModel(engine string, getResults func() []*task.CaseResult, cancelRun func()) TUIModel {
	return TUIModel{
		engine:     engine,
		getResults: getResults,
		cancelRun:  cancelRun,
		rows:       displayOrder(getResults()),
	}
}

// Init implements tea.Model.
func (m TUIModel) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model.
func (m TUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		m.frame++
		if !m.paused {
			m.refresh()
		}
		return m, tick()

	case DoneMsg:
		m.done = true
		m.refresh()

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.follow()
	}
	return m, nil
}

func (m TUIModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.cancelRun != nil && !m.done {
			m.cancelRun()
		}
		return m, tea.Quit
	case "p", " ":
		m.paused = !m.paused
	case "enter", "d":
		m.detail = !m.detail
	case "j", "down":
		m.move(1)
	case "k", "up":
		m.move(-1)
	case "pgdown":
		m.move(m.pageRows())
	case "pgup":
		m.move(-m.pageRows())
	case "g", "home":
		m.move(-len(m.rows))
	case "G", "end":
		m.move(len(m.rows))
	}
	return m, nil
}

// refresh reloads results, keeping the same case selected when it is
// still present.
func (m *TUIModel) refresh() {
	var selected string
	if cur := m.selected(); cur != nil {
		selected = cur.Case
	}
	m.rows = displayOrder(m.getResults())
	for i, r := range m.rows {
		if r.Case == selected {
			m.cursor = i
			break
		}
	}
	m.move(0)
}

func (m *TUIModel) move(delta int) {
	m.cursor += delta
	if m.cursor >= len(m.rows) {
		m.cursor = len(m.rows) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	m.follow()
}

// follow scrolls so the cursor row is on screen.
func (m *TUIModel) follow() {
	page := m.pageRows()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+page {
		m.offset = m.cursor - page + 1
	}
	if maxOffset := len(m.rows) - page; m.offset > maxOffset {
		m.offset = max(maxOffset, 0)
	}
}

func (m TUIModel) selected() *task.CaseResult {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return nil
	}
	return m.rows[m.cursor]
}

// pageRows is the number of case rows that fit beside the header, help,
// detail pane and both scroll hints.
func (m TUIModel) pageRows() int {
	n := m.height - chromeLines - 2
	if m.detail {
		n -= len(detailLines(m.selected()))
	}
	return max(n, minRows)
}

// View implements tea.Model.
func (m TUIModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var lines []string
	header := fmt.Sprintf("goldrun: %d cases, engine %s", len(m.rows), m.engine)
	if m.paused {
		header += "  " + pauseStyle.Render("⏸ PAUSED")
	}
	if m.done {
		header += "  " + doneStyle.Render("done")
	}
	lines = append(lines, headerStyle.Render(header), m.progressLine())

	end := min(m.offset+m.pageRows(), len(m.rows))
	if m.offset > 0 {
		lines = append(lines, dimStyle.Render(fmt.Sprintf("  ↑ %d more above", m.offset)))
	}
	spinner := spinnerFrames[m.frame%len(spinnerFrames)]
	for i := m.offset; i < end; i++ {
		res := m.rows[i]
		style := styleFor(groupOf(res.State))
		if i == m.cursor {
			style = style.Inherit(selectedStyle)
		}
		lines = append(lines, style.Render(caseRow(res, spinner)))
		if i == m.cursor && m.detail {
			for _, d := range detailLines(res) {
				lines = append(lines, detailStyle.Render(d))
			}
		}
	}
	if end < len(m.rows) {
		lines = append(lines, dimStyle.Render(fmt.Sprintf("  ↓ %d more below", len(m.rows)-end)))
	}

	// keep the help line pinned to the bottom
	for len(lines) < m.height-1 {
		lines = append(lines, "")
	}

	help := "  ↑↓/jk: select  enter: details  g/G: top/bottom  p: pause  q: quit"
	if m.done {
		help = "  ↑↓/jk: select  enter: details  q: close"
	}
	lines = append(lines, dimStyle.Render(help))
	return strings.Join(lines, "\n")
}

// detailLines describes where a case's files are and why it ended the
// way it did.
func detailLines(res *task.CaseResult) []string {
	if res == nil {
		return nil
	}
	out := []string{"config:   " + res.ConfigPath}
	if res.NewDir != "" {
		out = append(out, "new:      "+res.NewDir)
	}
	if res.BaselineDir != "" {
		out = append(out, "baseline: "+res.BaselineDir)
	}
	if len(res.OnlyNew) > 0 {
		out = append(out, "only new: "+strings.Join(res.OnlyNew, ", "))
	}
	if len(res.OnlyBaseline) > 0 {
		out = append(out, "only baseline: "+strings.Join(res.OnlyBaseline, ", "))
	}
	if res.Error != "" {
		out = append(out, "error:    "+res.Error)
	}
	if res.StderrLog != "" {
		out = append(out, "stderr:   "+res.StderrLog)
	}
	return out
}

func (m TUIModel) progressLine() string {
	text, groups := countProgress(m.rows).parts()
	for i := range text {
		text[i] = styleFor(groups[i]).Render(text[i])
	}
	return "  " + strings.Join(text, "  ")
}

func styleFor(g group) lipgloss.Style {
	switch g {
	case groupProblem:
		return failedStyle
	case groupActive:
		return runStyle
	case groupPassed:
		return passStyle
	default:
		return dimStyle
	}
}
