package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/lerobot-bimanual/pkg/robot"
)

type CalibrateCommand struct {
	Leader   bool `long:"leader" description:"Only calibrate the leader arms"`
	Follower bool `long:"follower" description:"Only calibrate the follower arms"`
}

func (c *CalibrateCommand) roles() []string {
	switch {
	case c.Leader && !c.Follower:
		return []string{RoleLeader}
	case c.Follower && !c.Leader:
		return []string{RoleFollower}
	}
	return []string{RoleLeader, RoleFollower}
}

func (c *CalibrateCommand) Execute(args []string) error {
	ws, err := loadWorkspace(opts.Config)
	if err != nil {
		return err
	}
	log, closeLog, err := newLogger(false)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx := context.Background()
	for _, role := range c.roles() {
		fmt.Println()
		fmt.Println(subHeaderStyle.Render(fmt.Sprintf("━━━ Calibrating %s arms ━━━", role)))
		fmt.Println()

		coord, err := newCoordinator(ws, role, tuiRecorder{}, log)
		if err != nil {
			return err
		}
		if err := coord.Connect(ctx, false); err != nil {
			_ = coord.Rollback(ctx)
			return fmt.Errorf("connect %s: %w", role, err)
		}
		calErr := coord.Calibrate(ctx)
		if err := errors.Join(calErr, coord.Disconnect(ctx)); err != nil {
			return fmt.Errorf("calibrate %s: %w", role, err)
		}
		fmt.Printf("%s arms calibrated.\n", role)
	}
	return nil
}

// tuiRecorder records joint ranges with a live table the operator watches
// while moving the arm.
type tuiRecorder struct{}

var errCalibrationAborted = fmt.Errorf("%w: aborted by operator", robot.ErrCalibration)

func (tuiRecorder) RecordRanges(ctx context.Context, arm string, sample robot.RawSampler) (map[robot.MotorName]int, map[robot.MotorName]int, error) {
	fmt.Printf("Calibrating %s\n", arm)
	fmt.Println(subHeaderStyle.Render("Record range of motion"))
	fmt.Println("Move each joint to its minimum AND maximum positions.")
	fmt.Println("Explore the full range of motion for all joints.")
	fmt.Println()

	start, err := sample(ctx)
	if err != nil {
		return nil, nil, err
	}
	model := newCalibrationModel(ctx, robot.AllMotors(), sample, start)

	p := tea.NewProgram(model, tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", robot.ErrCalibration, err)
	}
	cm := final.(calibrationModel)
	if cm.aborted {
		return nil, nil, errCalibrationAborted
	}
	return cm.ranges.mins, cm.ranges.maxs, nil
}

// rangeTracker keeps the extremes of every motor seen so far.
type rangeTracker struct {
	cur, mins, maxs map[robot.MotorName]int
}

func newRangeTracker(start map[robot.MotorName]int) rangeTracker {
	t := rangeTracker{
		cur:  make(map[robot.MotorName]int, len(start)),
		mins: make(map[robot.MotorName]int, len(start)),
		maxs: make(map[robot.MotorName]int, len(start)),
	}
	t.observe(start)
	return t
}

func (t rangeTracker) observe(positions map[robot.MotorName]int) {
	for name, pos := range positions {
		t.cur[name] = pos
		if lo, ok := t.mins[name]; !ok || pos < lo {
			t.mins[name] = pos
		}
		if hi, ok := t.maxs[name]; !ok || pos > hi {
			t.maxs[name] = pos
		}
	}
}

func (t rangeTracker) size(name robot.MotorName) int {
	return t.maxs[name] - t.mins[name]
}

// Calibration TUI model
type calibrationModel struct {
	ctx      context.Context
	motors   []robot.MotorName
	sample   robot.RawSampler
	ranges   rangeTracker
	lastErr  error
	quitting bool
	aborted  bool
}

type tickMsg time.Time

func newCalibrationModel(ctx context.Context, motors []robot.MotorName, sample robot.RawSampler, start map[robot.MotorName]int) calibrationModel {
	return calibrationModel{
		ctx:    ctx,
		motors: motors,
		sample: sample,
		ranges: newRangeTracker(start),
	}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m calibrationModel) Init() tea.Cmd {
	return tick()
}

func (m calibrationModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			m.quitting = true
			return m, tea.Quit
		case "q", "ctrl+c":
			m.quitting = true
			m.aborted = true
			return m, tea.Quit
		}

	case tickMsg:
		positions, err := m.sample(m.ctx)
		m.lastErr = err
		if err == nil {
			m.ranges.observe(positions)
		}
		return m, tick()
	}

	return m, nil
}

func (m calibrationModel) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder

	tableMotorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCurrentStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)
	tableRangeGoodStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	tableRangeLowStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)

	rows := make([][]string, 0, len(m.motors))
	sizes := make([]int, 0, len(m.motors))
	for _, name := range m.motors {
		size := m.ranges.size(name)
		sizes = append(sizes, size)
		rows = append(rows, []string{
			string(name),
			fmt.Sprintf("%d", m.ranges.cur[name]),
			fmt.Sprintf("%d", m.ranges.mins[name]),
			fmt.Sprintf("%d", m.ranges.maxs[name]),
			fmt.Sprintf("%d", size),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Motor", "Current", "Min", "Max", "Range").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			switch col {
			case 0:
				return tableMotorStyle
			case 1:
				return tableCurrentStyle
			case 4:
				if row >= 0 && row < len(sizes) && sizes[row] > 500 {
					return tableRangeGoodStyle
				}
				return tableRangeLowStyle
			default:
				return tableCellStyle
			}
		})

	sb.WriteString(t.Render())
	sb.WriteString("\n\n")
	if m.lastErr != nil {
		sb.WriteString(tableRangeLowStyle.Render("Read error: " + m.lastErr.Error()))
		sb.WriteString("\n")
	}
	sb.WriteString(dimStyle.Render("Press Enter when done, q to abort"))

	return sb.String()
}
