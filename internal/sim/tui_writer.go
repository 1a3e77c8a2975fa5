package sim

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/rot226/simulator-lora-sfrd-2.0/internal/config"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// logMsg carries a log line for the viewport.
type logMsg struct{ line string }

// statsMsg carries the statistics of one step.
type statsMsg struct{ StepStats }

// summaryMsg carries the run summary once finalized.
type summaryMsg struct{ Summary }

// adminMsg reports admin UI status.
type adminMsg struct{ active bool }

const (
	maxLogLines  = 1000
	pdrTrendSize = 5
)

// TUIWriter renders step statistics using a bubbletea TUI.
type TUIWriter struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewTUIWriter starts a bubbletea program and returns a TUIWriter. Quitting
// the UI interrupts the process so the run stops like on Ctrl+C.
func NewTUIWriter(cfg *config.SimulationConfig) *TUIWriter {
	w := &TUIWriter{done: make(chan struct{})}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newTUIModel(cfg), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// Write implements StatsWriter.
func (w *TUIWriter) Write(st StepStats) error {
	w.program.Send(statsMsg{st})
	w.program.Send(logMsg{line: formatStepLine(st)})
	return nil
}

// WriteEvents logs every finished transmission.
func (w *TUIWriter) WriteEvents(events []Event) error {
	for _, e := range events {
		w.program.Send(logMsg{line: formatEventLine(e)})
	}
	return nil
}

// WriteSummary shows the run summary in the footer.
func (w *TUIWriter) WriteSummary(s Summary) error {
	w.program.Send(summaryMsg{s})
	return nil
}

// SetAdminStatus implements AdminStatusWriter.
func (w *TUIWriter) SetAdminStatus(active bool) {
	w.program.Send(adminMsg{active: active})
}

// Close stops the UI and waits for it to exit.
func (w *TUIWriter) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

func formatStepLine(st StepStats) string {
	line := fmt.Sprintf("%s[t=%8.1f]%s %sstep=%d%s %ssent=%d%s %sdelivered=%d%s %scollided=%d%s %sno_cov=%d%s %sdeferred=%d%s",
		colorGray, st.Time, colorReset,
		colorBlue, st.Step, colorReset,
		colorCyan, st.Sent, colorReset,
		colorGreen, st.Delivered, colorReset,
		colorRed, st.Collided, colorReset,
		colorYellow, st.NoCoverage, colorReset,
		colorMagenta, st.Deferred, colorReset,
	)
	if st.Phase != "" {
		line += fmt.Sprintf(" %sphase=%s%s", colorGray, st.Phase, colorReset)
	}
	return line
}

func formatEventLine(e Event) string {
	result := colorGreen
	switch e.Result {
	case ResultCollision:
		result = colorRed
	case ResultNoCoverage:
		result = colorYellow
	}
	line := fmt.Sprintf("  node=%d seq=%d %sSF%d%s %.3f-%.3fs %s%s%s",
		e.NodeID, e.Seq, sfColor(e.SF), e.SF, colorReset, e.Start, e.End, result, e.Result, colorReset)
	if e.Result == ResultSuccess {
		line += fmt.Sprintf(" gw=%d rssi=%.1fdBm", e.GatewayID, e.BestRSSI)
	}
	return line
}

type tuiModel struct {
	cfg          *config.SimulationConfig
	table        table.Model
	vp           viewport.Model
	logs         []string
	latest       StepStats
	totals       Totals
	pdrTrend     []float64
	final        *Summary
	admin        bool
	wrap         bool
	autoscroll   bool
	summary      bool
	help         bool
	header       string
	headerHeight int
	height       int
}

func newTUIModel(cfg *config.SimulationConfig) tuiModel {
	cols := []table.Column{
		{Title: "Config", Width: 14},
		{Title: "Value", Width: 12},
		{Title: "Config", Width: 14},
		{Title: "Value", Width: 12},
	}
	rows := []table.Row{
		{"Nodes", fmt.Sprintf("%d", cfg.Nodes.Count), "Gateways", fmt.Sprintf("%d", cfg.Gateways.Count)},
		{"Area (m)", fmt.Sprintf("%.0f", cfg.Area.SizeM), "Steps", fmt.Sprintf("%d", cfg.Run.Steps)},
		{"Traffic", cfg.Nodes.TrafficMode, "Interval (s)", fmt.Sprintf("%.1f", cfg.Nodes.Interval)},
		{"SF Policy", cfg.Nodes.SFPolicy, "Duty Cycle", cfg.DutyCycle.Policy},
	}
	t := table.New(table.WithColumns(cols), table.WithRows(rows), table.WithHeight(len(rows)+1))
	return tuiModel{
		cfg:        cfg,
		table:      t,
		vp:         viewport.New(0, 0),
		autoscroll: true,
	}
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.height = msg.Height
		m.header = m.table.View()
		m.headerHeight = lipgloss.Height(m.header)
		m.updateViewportHeight()
		m.refreshViewport()
	case tea.KeyMsg:
		if m.help {
			switch msg.String() {
			case "?", "h", "esc":
				m.help = false
				m.updateViewportHeight()
			}
			return m, nil
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
			return m, nil
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
			}
			return m, nil
		case "t":
			m.summary = !m.summary
			m.updateViewportHeight()
			return m, nil
		case "h", "?":
			m.help = !m.help
			return m, nil
		}
		if !m.autoscroll {
			switch msg.String() {
			case "j", "down":
				m.vp.LineDown(1)
			case "k", "up":
				m.vp.LineUp(1)
			case "pgdown", "ctrl+n":
				m.vp.LineDown(10)
			case "pgup", "ctrl+p":
				m.vp.LineUp(10)
			default:
				var cmd tea.Cmd
				m.vp, cmd = m.vp.Update(msg)
				return m, cmd
			}
		}
		return m, nil
	case logMsg:
		m.logs = append(m.logs, msg.line)
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
		m.refreshViewport()
	case statsMsg:
		m.latest = msg.StepStats
		m.totals.add(msg.StepStats)
		if msg.Sent > 0 {
			m.pdrTrend = append(m.pdrTrend, float64(msg.Delivered)/float64(msg.Sent))
			if len(m.pdrTrend) > pdrTrendSize {
				m.pdrTrend = m.pdrTrend[len(m.pdrTrend)-pdrTrendSize:]
			}
		}
	case summaryMsg:
		s := msg.Summary
		m.final = &s
		m.summary = true
		m.updateViewportHeight()
	case adminMsg:
		m.admin = msg.active
	}
	return m, nil
}

func (m *tuiModel) updateViewportHeight() {
	bottomHeight := lipgloss.Height(m.renderBottom())
	h := m.height - m.headerHeight - bottomHeight - 2
	if h < 0 {
		h = 0
	}
	m.vp.Height = h
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshViewport() {
	var lines []string
	for _, l := range m.logs {
		if m.wrap {
			lines = append(lines, wordwrap.String(l, m.vp.Width))
		} else {
			lines = append(lines, l)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m tuiModel) View() string {
	if m.help {
		return m.renderHelp()
	}
	divider := strings.Repeat("─", m.vp.Width)
	return strings.Join([]string{
		m.header,
		divider,
		m.vp.View(),
		divider,
		m.renderBottom(),
	}, "\n")
}

func (m tuiModel) renderSummary() string {
	if m.final != nil {
		s := m.final
		return fmt.Sprintf("%sFINAL%s %ssent=%d%s %sdelivered=%d%s %scollisions=%d%s %sno_cov=%d%s %spdr=%.2f%%%s %savg_delay=%.4fs%s",
			colorBlue, colorReset,
			colorCyan, s.Sent, colorReset,
			colorGreen, s.Delivered, colorReset,
			colorRed, s.Collisions, colorReset,
			colorYellow, s.NoCoverage, colorReset,
			colorMagenta, s.PDRPct, colorReset,
			colorGray, s.AvgDelay, colorReset)
	}
	var trend []string
	for _, v := range m.pdrTrend {
		trend = append(trend, fmt.Sprintf("%.2f", v))
	}
	line := fmt.Sprintf("%sTOTALS%s %ssent=%d%s %sdelivered=%d%s %scollided=%d%s %sdeferred=%d%s %spdr=%.1f%%%s",
		colorBlue, colorReset,
		colorCyan, m.totals.Sent, colorReset,
		colorGreen, m.totals.Delivered, colorReset,
		colorRed, m.totals.Collided, colorReset,
		colorMagenta, m.totals.Deferred, colorReset,
		colorYellow, m.totals.PDR()*100, colorReset)
	if len(trend) > 0 {
		line = fmt.Sprintf("%s %strend=[%s]%s", line, colorGray, strings.Join(trend, ","), colorReset)
	}
	return line
}

func indicator(on bool) string {
	c := lipgloss.Color("9")
	if on {
		c = lipgloss.Color("10")
	}
	return lipgloss.NewStyle().Foreground(c).Render("●")
}

func (m tuiModel) renderBottom() string {
	state := fmt.Sprintf("%sSTEP%s %d/%d %st=%.1fs%s",
		colorBlue, colorReset, m.latest.Step, m.cfg.Run.Steps, colorGray, m.latest.Time, colorReset)
	if m.latest.Phase != "" {
		state += fmt.Sprintf(" %sphase=%s%s", colorMagenta, m.latest.Phase, colorReset)
	}
	line := fmt.Sprintf("%s | Admin UI %s | Wrap %s | Scroll %s | Summary %s | Help %s",
		state, indicator(m.admin), indicator(m.wrap), indicator(m.autoscroll), indicator(m.summary), indicator(m.help))
	if m.summary {
		return fmt.Sprintf("%s\n%s", m.renderSummary(), line)
	}
	return line
}

func (m tuiModel) renderHelp() string {
	lines := []string{
		"Key Bindings:",
		" q  quit",
		" w  toggle wrap for log lines",
		" s  toggle auto-scroll",
		" t  toggle summary footer",
		" h/? toggle this help view",
		"",
		"When auto-scroll is disabled:",
		" j/k or up/down    scroll one line",
		" pgdown/pgup       scroll a page",
	}
	return strings.Join(lines, "\n")
}
