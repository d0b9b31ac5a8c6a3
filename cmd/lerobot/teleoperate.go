package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/lerobot-bimanual/pkg/bimanual"
	"github.com/gwillem/lerobot-bimanual/pkg/robot"
	"github.com/gwillem/lerobot-bimanual/pkg/teleop"
)

type TeleoperateCommand struct {
	Hz     int  `long:"hz" default:"60" description:"Control loop frequency"`
	Mirror bool `long:"mirror" description:"Mirror mode: invert shoulder_pan and wrist_roll positions"`
}

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
	labelHeight  = 1 // arm name above each chart
)

// Motor colors - distinct colors for each motor
var motorColors = map[robot.MotorName]string{
	robot.ShoulderPan:  "196", // red
	robot.ShoulderLift: "208", // orange
	robot.ElbowFlex:    "226", // yellow
	robot.WristFlex:    "46",  // green
	robot.WristRoll:    "51",  // cyan
	robot.Gripper:      "201", // magenta
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

var chartArms = []string{bimanual.Left, bimanual.Right}

type teleopModel struct {
	ctrl          *teleop.Controller
	charts        map[string]*streamlinechart.Model // per arm
	width         int                               // terminal width
	height        int                               // terminal height
	logs          []string                          // last N log messages
	quitting      bool
	lastPositions map[string]float64 // track previous positions to detect movement
}

func (m *teleopModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// hasMovement checks if any position has changed from the last state
func (m *teleopModel) hasMovement(positions map[string]float64) bool {
	if m.lastPositions == nil {
		return true // first reading, consider it movement
	}
	for key, pos := range positions {
		if lastPos, ok := m.lastPositions[key]; !ok || pos != lastPos {
			return true
		}
	}
	return false
}

// armPositions picks the motor positions out of a bimanual observation,
// keyed "<arm>_<motor>.pos".
func armPositions(obs robot.Observation) map[string]float64 {
	positions := make(map[string]float64)
	for _, arm := range chartArms {
		for _, motor := range robot.AllMotors() {
			key := bimanual.Prefix(arm) + motor.PosKey()
			if v, ok := obs[key].(float64); ok {
				positions[key] = v
			}
		}
	}
	return positions
}

// Messages from the controller
type stateMsg teleop.State
type logMsg string

func waitForState(ctrl *teleop.Controller) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-ctrl.States())
	}
}

func waitForLog(ctrl *teleop.Controller) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-ctrl.Logs())
	}
}

// chartSize calculates the size of each chart based on terminal dimensions.
// The charts sit side by side.
func (m *teleopModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 40, 20 // default size before we know terminal size
	}
	width = m.width/len(chartArms) - borderSize - 2
	if width < 30 {
		width = 30
	}
	height = m.height - headerHeight - labelHeight - legendHeight - footerHeight - borderSize
	if height < 10 {
		height = 10
	}
	return width, height
}

func (m *teleopModel) resizeCharts() {
	w, h := m.chartSize()
	for _, chart := range m.charts {
		chart.Resize(w, h)
	}
}

func initialTeleopModel(ctrl *teleop.Controller) teleopModel {
	charts := make(map[string]*streamlinechart.Model, len(chartArms))
	for _, arm := range chartArms {
		chart := streamlinechart.New(40, 20,
			streamlinechart.WithYRange(-100, 100),
		)
		for _, name := range robot.AllMotors() {
			style := lipgloss.NewStyle().Foreground(lipgloss.Color(motorColors[name]))
			chart.SetDataSetStyles(string(name), runes.ThinLineStyle, style)
		}
		charts[arm] = &chart
	}

	return teleopModel{
		ctrl:   ctrl,
		charts: charts,
	}
}

func (m teleopModel) Init() tea.Cmd {
	return tea.Batch(
		waitForState(m.ctrl),
		waitForLog(m.ctrl),
	)
}

func (m teleopModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeCharts()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case stateMsg:
		state := teleop.State(msg)
		positions := armPositions(state.Observation)
		// Only update charts if there's movement (freeze when idle)
		if len(positions) > 0 && m.hasMovement(positions) {
			for _, arm := range chartArms {
				chart := m.charts[arm]
				for _, motor := range robot.AllMotors() {
					if pos, ok := positions[bimanual.Prefix(arm)+motor.PosKey()]; ok {
						chart.PushDataSet(string(motor), pos)
					}
				}
				chart.DrawAll()
			}
			m.lastPositions = positions
		}
		return m, waitForState(m.ctrl)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.ctrl)
	}

	return m, nil
}

func (m teleopModel) View() string {
	if m.quitting {
		return "Teleoperation stopped.\n"
	}

	var sb strings.Builder

	sb.WriteString(titleStyle.Render("LeRobot Teleoperate"))
	sb.WriteString(fmt.Sprintf(" - bimanual - %d Hz", m.ctrl.Hz()))
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n\n")

	panes := make([]string, 0, len(chartArms))
	for _, arm := range chartArms {
		panes = append(panes, lipgloss.JoinVertical(lipgloss.Left,
			statusStyle.Render(arm),
			chartStyle.Render(m.charts[arm].View()),
		))
	}
	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, panes...))
	sb.WriteString("\n")

	sb.WriteString(renderLegend())
	sb.WriteString("\n")

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20)).
		Foreground(lipgloss.Color("9")) // bright red

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("Press 'q' to quit")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func renderLegend() string {
	var items []string
	for _, name := range robot.AllMotors() {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(motorColors[name])).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+string(name))
	}
	return strings.Join(items, "  ")
}

func (c *TeleoperateCommand) Execute(args []string) error {
	ws, err := loadWorkspace(opts.Config)
	if err != nil {
		return err
	}
	log, closeLog, err := newLogger(true)
	if err != nil {
		return err
	}
	defer closeLog()

	leader, err := newCoordinator(ws, RoleLeader, nil, log)
	if err != nil {
		return err
	}
	follower, err := newCoordinator(ws, RoleFollower, nil, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := leader.Connect(ctx, false); err != nil {
		_ = leader.Rollback(ctx)
		return fmt.Errorf("connect leader: %w", err)
	}
	if err := follower.Connect(ctx, false); err != nil {
		_ = follower.Rollback(ctx)
		_ = leader.Disconnect(ctx)
		return fmt.Errorf("connect follower: %w", err)
	}
	fmt.Printf("Loaded configuration from %s\n", opts.Config)

	ctrl, err := teleop.NewController(leader, follower, teleop.Config{
		Hz:     c.Hz,
		Mirror: c.Mirror,
		Logger: log,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := ctrl.Close(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Disconnect: %v\n", err)
		}
	}()

	p := tea.NewProgram(initialTeleopModel(ctrl), tea.WithAltScreen())

	done := make(chan error, 1)
	go func() {
		err := ctrl.Start(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			p.Quit()
		}
		done <- err
	}()

	_, runErr := p.Run()
	cancel()

	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("controller: %w", err)
	}
	if runErr != nil {
		return fmt.Errorf("run program: %w", runErr)
	}
	return nil
}
