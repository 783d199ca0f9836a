package main

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/armseq/pkg/motion"
	"github.com/gwillem/armseq/pkg/robot"
	"github.com/gwillem/armseq/pkg/sequencer"
)

const (
	headerHeight = 3 // title + progress + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border

	authoritySet = "authority"
	// chart every Nth state; the loop publishes far faster than a terminal redraws
	chartEvery = 10
)

// Joint colors, left arm warm, right arm cool.
var jointColors = map[robot.Joint]string{
	robot.LeftShoulderPitch:  "196",
	robot.LeftShoulderRoll:   "208",
	robot.LeftShoulderYaw:    "214",
	robot.LeftElbow:          "226",
	robot.RightShoulderPitch: "21",
	robot.RightShoulderRoll:  "33",
	robot.RightShoulderYaw:   "45",
	robot.RightElbow:         "51",
	robot.WaistYaw:           "201",
}

const authorityColor = "15"

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type runModel struct {
	seq       *sequencer.Sequencer
	program   motion.Program
	chart     *streamlinechart.Model
	width     int // terminal width
	height    int // terminal height
	logs      []string
	state     sequencer.State
	seen      int
	releasing bool
	done      bool
}

// Messages from the sequencer
type stateMsg sequencer.State
type logMsg string
type runDoneMsg struct{ err error }

func waitForState(seq *sequencer.Sequencer) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-seq.States())
	}
}

func waitForLog(seq *sequencer.Sequencer) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-seq.Logs())
	}
}

func newRunModel(seq *sequencer.Sequencer, program motion.Program) runModel {
	// radians, authority fits in the upper half
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-3.2, 3.2),
	)
	for _, j := range robot.AllJoints() {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(jointColors[j]))
		chart.SetDataSetStyles(j.String(), runes.ThinLineStyle, style)
	}
	chart.SetDataSetStyles(authoritySet, runes.ThinLineStyle,
		lipgloss.NewStyle().Foreground(lipgloss.Color(authorityColor)))

	return runModel{
		seq:     seq,
		program: program,
		chart:   &chart,
	}
}

func (m *runModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *runModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20 // default size before we know terminal size
	}
	width = max(m.width-borderSize-2, 40)
	height = max(m.height-headerHeight-legendHeight-footerHeight-borderSize, 10)
	return width, height
}

func (m runModel) Init() tea.Cmd {
	return tea.Batch(
		waitForState(m.seq),
		waitForLog(m.seq),
	)
}

func (m runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chart.Resize(m.chartSize())
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			// The run keeps going until authority is released.
			if !m.releasing && m.seq.Interrupt() {
				m.releasing = true
				m.addLog("Interrupt requested, releasing authority...")
			}
			return m, nil
		}

	case stateMsg:
		m.state = sequencer.State(msg)
		m.seen++
		if m.seen%chartEvery == 1 {
			for _, j := range robot.AllJoints() {
				m.chart.PushDataSet(j.String(), m.state.Pose[j])
			}
			m.chart.PushDataSet(authoritySet, m.state.Authority*3)
			m.chart.DrawAll()
		}
		return m, waitForState(m.seq)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.seq)

	case runDoneMsg:
		m.done = true
		return m, tea.Quit
	}

	return m, nil
}

func (m runModel) View() string {
	if m.done {
		return fmt.Sprintf("Program %s stopped after %d frames.\n", m.program.Name, m.state.Frames)
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("armseq"))
	sb.WriteString(fmt.Sprintf(" - %s @ %s tick", m.program.Name, m.seq.Tick()))
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n")
	sb.WriteString(statusStyle.Render(fmt.Sprintf("segment %d/%d %-12s frame %d/%d  authority %.3f",
		m.state.Segment+1, len(m.program.Segments), m.state.Label,
		m.state.Frames, m.state.Total, m.state.Authority)))
	sb.WriteString("\n\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Legend
	sb.WriteString(renderLegend())
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20)).
		Foreground(lipgloss.Color("9")) // bright red

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("Press 'q' to interrupt")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func renderLegend() string {
	var items []string
	for _, j := range robot.AllJoints() {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(jointColors[j])).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+j.String())
	}
	colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(authorityColor)).Bold(true)
	items = append(items, colorStyle.Render("━━")+" "+authoritySet+" x3")
	return strings.Join(items, "  ")
}
