// Package historyui provides the Bubble Tea browser for recorded fits.
package historyui

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/massfit/internal/model"
	"github.com/verte-zerg/massfit/internal/stats"
	"github.com/verte-zerg/massfit/internal/store"
)

const (
	tabRuns = iota
	tabParams
	tabTrend
)

const plotHeight = 10

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
)

// Source is the part of the history store the browser reads.
type Source interface {
	ListRuns(ctx context.Context, cfg model.HistoryConfig) ([]model.RunRecord, error)
	ListParams(ctx context.Context, runID string) ([]model.ParamRecord, error)
	ParamHistory(ctx context.Context, name string, runIDs ...string) ([]model.ParamPoint, error)
}

var _ Source = (*store.Store)(nil)

// Model implements the Bubble Tea history browser.
type Model struct {
	src Source
	cfg model.HistoryConfig

	runs   []model.RunRecord
	params []model.ParamRecord
	trend  []model.ParamPoint
	errMsg string

	tabs       []string
	activeTab  int
	runTable   table.Model
	paramTable table.Model
	trendView  viewport.Model

	width  int
	height int

	paramInputMode bool
	paramInput     textinput.Model
}

// NewModel constructs a browser over src. cfg.Param, when set, is the
// parameter shown on the trend tab.
func NewModel(src Source, cfg model.HistoryConfig) *Model {
	m := &Model{
		src:  src,
		cfg:  cfg,
		tabs: []string{"Runs", "Parameters", "Trend"},
	}
	m.runTable = newTable(runColumns())
	m.runTable.Focus()
	m.paramTable = newTable(paramColumns())
	m.trendView = viewport.New(0, 0)
	m.paramInput = textinput.New()
	m.paramInput.Prompt = "Parameter: "
	m.paramInput.Placeholder = "nsig"
	m.paramInput.Cursor.SetMode(cursor.CursorBlink)
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		m.renderTrend()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.paramInputMode {
			return m.updateParamInput(msg)
		}
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "left", "h":
			m.moveTab(-1)
			return m, tea.ClearScreen
		case "right", "l":
			m.moveTab(1)
			return m, tea.ClearScreen
		case "/":
			m.paramInputMode = true
			m.paramInput.SetValue(m.cfg.Param)
			return m, m.paramInput.Focus()
		case "enter":
			if m.activeTab == tabParams {
				if row := m.paramTable.SelectedRow(); len(row) > 0 {
					m.selectParam(row[0])
					m.activeTab = tabTrend
					return m, tea.ClearScreen
				}
			}
			return m, nil
		}
		return m.updateActive(msg)
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderHeader(), m.width, headerHeight)
	body := fitLines(m.renderBody(), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

func (m *Model) updateActive(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.activeTab {
	case tabRuns:
		before := m.runTable.Cursor()
		m.runTable, cmd = m.runTable.Update(msg)
		if m.runTable.Cursor() != before {
			m.loadParams()
		}
	case tabParams:
		m.paramTable, cmd = m.paramTable.Update(msg)
	default:
		m.trendView, cmd = m.trendView.Update(msg)
	}
	return m, cmd
}

func (m *Model) updateParamInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.paramInputMode = false
		m.paramInput.Blur()
		return m, nil
	case tea.KeyEnter:
		m.paramInputMode = false
		m.paramInput.Blur()
		m.selectParam(strings.TrimSpace(m.paramInput.Value()))
		m.activeTab = tabTrend
		return m, tea.ClearScreen
	}
	var cmd tea.Cmd
	m.paramInput, cmd = m.paramInput.Update(msg)
	return m, cmd
}

func (m *Model) moveTab(delta int) {
	next := m.activeTab + delta
	if next < 0 {
		next = len(m.tabs) - 1
	}
	if next >= len(m.tabs) {
		next = 0
	}
	m.activeTab = next
	m.runTable.Blur()
	m.paramTable.Blur()
	switch m.activeTab {
	case tabRuns:
		m.runTable.Focus()
	case tabParams:
		m.paramTable.Focus()
	}
}

func (m *Model) selectParam(name string) {
	m.cfg.Param = name
	m.loadTrend()
	m.renderTrend()
}

// refresh reloads runs and selects the most recent one.
func (m *Model) refresh() {
	runs, err := m.src.ListRuns(context.Background(), m.cfg)
	if err != nil {
		m.errMsg = err.Error()
		return
	}
	m.errMsg = ""
	m.runs = runs
	m.runTable.SetRows(runRows(runs))
	if len(runs) > 0 {
		m.runTable.SetCursor(len(runs) - 1)
	}
	m.loadParams()
	m.loadTrend()
	m.renderTrend()
}

func (m *Model) selectedRun() (model.RunRecord, bool) {
	i := m.runTable.Cursor()
	if i < 0 || i >= len(m.runs) {
		return model.RunRecord{}, false
	}
	return m.runs[i], true
}

func (m *Model) loadParams() {
	run, ok := m.selectedRun()
	if !ok {
		m.params = nil
		m.paramTable.SetRows(nil)
		return
	}
	params, err := m.src.ListParams(context.Background(), run.ID)
	if err != nil {
		m.errMsg = err.Error()
		return
	}
	m.params = params
	m.paramTable.SetRows(paramRows(params))
	m.paramTable.SetCursor(0)
}

func (m *Model) loadTrend() {
	m.trend = nil
	if m.cfg.Param == "" || len(m.runs) == 0 {
		return
	}
	ids := make([]string, len(m.runs))
	for i, r := range m.runs {
		ids[i] = r.ID
	}
	trend, err := m.src.ParamHistory(context.Background(), m.cfg.Param, ids...)
	if err != nil {
		m.errMsg = err.Error()
		return
	}
	m.trend = trend
}

func (m *Model) renderTrend() {
	width := m.width
	if width <= 0 {
		width = 80
	}
	m.trendView.SetContent(renderTrend(m.cfg.Param, m.trend, width))
}

func renderTrend(param string, trend []model.ParamPoint, width int) string {
	if param == "" {
		return "No parameter selected. Press enter on the Parameters tab or / to pick one."
	}
	if len(trend) == 0 {
		return fmt.Sprintf("No recorded values for %s.", param)
	}
	values := make([]float64, len(trend))
	errs := make([]float64, len(trend))
	for i, p := range trend {
		values[i] = p.Value
		errs[i] = p.Error
	}
	var buf bytes.Buffer
	last := trend[len(trend)-1]
	title := fmt.Sprintf("%s over %d fits (last %.6g ± %.2g)", param, len(values), last.Value, last.Error)
	err := stats.Plot(&buf, title, []stats.Series{
		{Name: param, Values: values},
		{Name: "avg5", Values: stats.MovingAverage(values, 5)},
	}, stats.PlotOptions{Width: stats.PlotWidthFor(width), Height: plotHeight, Shared: true})
	if err != nil {
		return fmt.Sprintf("Failed to render trend: %v", err)
	}
	fmt.Fprintf(&buf, "\nerror  %s\n", stats.Sparkline(errs))
	return strings.TrimRight(buf.String(), "\n")
}

func runColumns() []table.Column {
	return []table.Column{
		{Title: "Ended", Width: 16},
		{Title: "Run", Width: 8},
		{Title: "Events", Width: 10},
		{Title: "Seed", Width: 8},
		{Title: "Status", Width: 16},
		{Title: "chi2/ndof", Width: 9},
		{Title: "Floated", Width: 7},
	}
}

func runRows(runs []model.RunRecord) []table.Row {
	rows := make([]table.Row, 0, len(runs))
	for _, r := range runs {
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		rows = append(rows, table.Row{
			r.EndedAt.Local().Format("2006-01-02 15:04"),
			id,
			fmt.Sprintf("%d", r.Events),
			fmt.Sprintf("%d", r.Seed),
			r.Status,
			fmt.Sprintf("%.3f", r.Chi2NDOF),
			fmt.Sprintf("%d", r.NFloat),
		})
	}
	return rows
}

func paramColumns() []table.Column {
	return []table.Column{
		{Title: "Parameter", Width: 10},
		{Title: "Value", Width: 12},
		{Title: "Error", Width: 10},
		{Title: "Initial", Width: 12},
		{Title: "Range", Width: 20},
		{Title: "Limit", Width: 5},
	}
}

func paramRows(params []model.ParamRecord) []table.Row {
	rows := make([]table.Row, 0, len(params))
	for _, p := range params {
		limit := ""
		if p.AtLimit {
			limit = "yes"
		}
		rows = append(rows, table.Row{
			p.Name,
			fmt.Sprintf("%.6g", p.Value),
			fmt.Sprintf("%.2g", p.Error),
			fmt.Sprintf("%.6g", p.Initial),
			fmt.Sprintf("[%g, %g]", p.Min, p.Max),
			limit,
		})
	}
	return rows
}

func newTable(cols []table.Column) table.Model {
	t := table.New(table.WithColumns(cols), table.WithHeight(1))
	t.SetStyles(tableStyles())
	return t
}

func tableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	tabsHeight := max(1, lipgloss.Height(activeNavStyle.Render("X")))
	headerHeight = tabsHeight + 1
	footerHeight = 1
	if m.errMsg != "" {
		footerHeight++
	}
	bodyHeight = max(1, m.height-headerHeight-footerHeight)
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, bodyHeight, _ := m.layoutHeights()
	// One line goes to the table header border.
	for _, t := range []*table.Model{&m.runTable, &m.paramTable} {
		t.SetWidth(m.width)
		t.SetHeight(max(1, bodyHeight-1))
	}
	m.trendView.Width = m.width
	m.trendView.Height = bodyHeight
	m.paramInput.Width = max(10, m.width-lipgloss.Width(m.paramInput.Prompt)-2)
}

func (m *Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderHeader() string {
	tabs := padLines(m.renderTabs(), m.width)
	return tabs + "\n" + headerStyle.Render(truncateLine(m.summary(), m.width))
}

func (m *Model) summary() string {
	last := "all"
	if m.cfg.Last > 0 {
		last = fmt.Sprintf("%d", m.cfg.Last)
	}
	param := m.cfg.Param
	if param == "" {
		param = "none"
	}
	selected := "none"
	if run, ok := m.selectedRun(); ok {
		selected = run.ID
	}
	return fmt.Sprintf("Fits: %d (last=%s)  run=%s  param=%s", len(m.runs), last, selected, param)
}

func (m *Model) renderBody() string {
	if m.paramInputMode {
		return "Trend parameter (enter to apply, esc to cancel)\n" + m.paramInput.View()
	}
	switch m.activeTab {
	case tabRuns:
		if len(m.runs) == 0 {
			return "No recorded fits. Enable with history = true in the config or --history."
		}
		return tableMutedStyle.Render(m.runTable.View())
	case tabParams:
		if len(m.params) == 0 {
			return "No parameters recorded for the selected run."
		}
		return tableMutedStyle.Render(m.paramTable.View())
	}
	return m.trendView.View()
}

func (m *Model) renderFooter() string {
	help := "Nav: left/right  Move: up/down  Trend param: /  Quit: q"
	if m.activeTab == tabParams {
		help = "Nav: left/right  Move: up/down  Show trend: enter  Trend param: /  Quit: q"
	}
	out := headerStyle.Render(help)
	if m.errMsg != "" {
		out += "\n" + errorStyle.Render(m.errMsg)
	}
	return out
}

func padLines(s string, width int) string {
	if width <= 0 || s == "" {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	return strings.Join(lines, "\n")
}

func padLine(line string, width int) string {
	lineWidth := lipgloss.Width(line)
	if lineWidth < width {
		return line + strings.Repeat(" ", width-lineWidth)
	}
	return line
}

func fitLines(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

func truncateLine(s string, width int) string {
	if width <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}
