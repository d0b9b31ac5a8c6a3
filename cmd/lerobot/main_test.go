package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/lerobot-bimanual/pkg/bimanual"
	"github.com/gwillem/lerobot-bimanual/pkg/robot"
)

func TestLoadWorkspace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lerobot.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"leader": {"left_port": "/dev/ttyACM0", "right_port": "/dev/ttyACM1", "passive": false},
		"follower": {"id": "bench", "left_port": "/dev/ttyACM2", "right_port": "/dev/ttyACM3", "max_relative_target": 8}
	}`), 0o644))

	ws, err := loadWorkspace(path)
	require.NoError(t, err)

	assert.True(t, ws.Leader.Passive, "leader is always passive")
	assert.Equal(t, "leader", ws.Leader.Name(), "default id survives a file without one")
	assert.Equal(t, "bench_right", ws.Follower.ArmID(bimanual.Right))
	require.NotNil(t, ws.Follower.MaxRelativeTarget)
	assert.Equal(t, 8.0, *ws.Follower.MaxRelativeTarget)

	cfg, err := ws.Config(RoleFollower)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM2", cfg.LeftPort)

	_, err = ws.Config("observer")
	assert.ErrorIs(t, err, robot.ErrConfiguration)
}

func TestLoadWorkspace_Missing(t *testing.T) {
	_, err := loadWorkspace(filepath.Join(t.TempDir(), "lerobot.json"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestWorkspace_SaveThenConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lerobot.json")
	ws := defaultWorkspace()
	ws.Leader.LeftPort, ws.Leader.RightPort = "/dev/a", "/dev/b"
	require.NoError(t, ws.Save(path))

	got, err := loadWorkspace(path)
	require.NoError(t, err)
	_, err = got.Config(RoleLeader)
	assert.NoError(t, err)
	_, err = got.Config(RoleFollower)
	assert.ErrorIs(t, err, robot.ErrConfiguration, "follower ports not assigned yet")
}

func TestNewCoordinator(t *testing.T) {
	ws := defaultWorkspace()
	ws.Follower.LeftPort, ws.Follower.RightPort = "/dev/a", "/dev/b"

	coord, err := newCoordinator(ws, RoleFollower, tuiRecorder{}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.Equal(t, "follower", coord.Name())

	left, ok := coord.Arm(bimanual.Left)
	require.True(t, ok)
	assert.Equal(t, "follower_left", left.Name())
	assert.False(t, left.(*robot.SO101).Config().Passive)
}

func TestHasMotorIDs(t *testing.T) {
	assert.True(t, hasMotorIDs([]int{6, 5, 4, 3, 2, 1}))
	assert.False(t, hasMotorIDs([]int{1, 2, 3, 4, 5}))
	assert.False(t, hasMotorIDs([]int{1, 2, 3, 4, 5, 7}))
}

func TestSlotOptions(t *testing.T) {
	options := slotOptions(map[string]string{"leader/left": "/dev/a"})
	var keys []string
	for _, o := range options {
		keys = append(keys, o.Value)
	}
	assert.Equal(t, []string{"leader/right", "follower/left", "follower/right", "skip"}, keys)
}

func TestCalibrateRoles(t *testing.T) {
	assert.Equal(t, []string{RoleLeader, RoleFollower}, (&CalibrateCommand{}).roles())
	assert.Equal(t, []string{RoleLeader}, (&CalibrateCommand{Leader: true}).roles())
	assert.Equal(t, []string{RoleFollower}, (&CalibrateCommand{Follower: true}).roles())
	assert.Equal(t, []string{RoleLeader, RoleFollower}, (&CalibrateCommand{Leader: true, Follower: true}).roles())
}

func TestRangeTracker(t *testing.T) {
	tr := newRangeTracker(map[robot.MotorName]int{robot.Gripper: 2000})
	tr.observe(map[robot.MotorName]int{robot.Gripper: 1500})
	tr.observe(map[robot.MotorName]int{robot.Gripper: 2600})
	tr.observe(map[robot.MotorName]int{robot.Gripper: 2100})

	assert.Equal(t, 1500, tr.mins[robot.Gripper])
	assert.Equal(t, 2600, tr.maxs[robot.Gripper])
	assert.Equal(t, 2100, tr.cur[robot.Gripper])
	assert.Equal(t, 1100, tr.size(robot.Gripper))
}

func TestCalibrationModel(t *testing.T) {
	readings := []map[robot.MotorName]int{
		{robot.ShoulderPan: 1000},
		{robot.ShoulderPan: 3000},
	}
	sample := func(context.Context) (map[robot.MotorName]int, error) {
		if len(readings) == 0 {
			return nil, errors.New("bus timeout")
		}
		r := readings[0]
		readings = readings[1:]
		return r, nil
	}

	var m tea.Model = newCalibrationModel(context.Background(), robot.AllMotors(), sample, map[robot.MotorName]int{robot.ShoulderPan: 2000})
	for range 3 {
		m, _ = m.Update(tickMsg{})
	}
	cm := m.(calibrationModel)
	assert.Equal(t, 1000, cm.ranges.mins[robot.ShoulderPan])
	assert.Equal(t, 3000, cm.ranges.maxs[robot.ShoulderPan])
	assert.EqualError(t, cm.lastErr, "bus timeout")
	assert.Contains(t, cm.View(), "Read error")

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.False(t, m.(calibrationModel).aborted)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.True(t, m.(calibrationModel).aborted)
}

func TestFeatureRows(t *testing.T) {
	obs := robot.Features{
		"left_gripper.pos": {DType: "float32"},
		"top":              {DType: "image", Shape: []int{480, 640, 3}},
	}
	act := robot.Features{"left_gripper.pos": {DType: "float32"}}

	assert.Equal(t, [][]string{
		{"left_gripper.pos", "float32", "-", "yes", "yes"},
		{"top", "image", "(480, 640, 3)", "yes", ""},
	}, featureRows(obs, act))
}

func TestStatusRows(t *testing.T) {
	status := []bimanual.DeviceStatus{
		{Name: bimanual.Left, Kind: "arm", Connected: true},
		{Name: "top", Kind: "camera"},
	}
	rep := bimanual.Report{Steps: []bimanual.StepResult{
		{Name: "arm left", Status: bimanual.StepDone},
		{Name: "camera top", Status: bimanual.StepFailed, Err: errors.New("no device")},
	}}

	assert.Equal(t, [][]string{
		{bimanual.Left, "arm", "yes", "done"},
		{"top", "camera", "", "failed: no device"},
	}, statusRows(status, rep))
}

func TestArmPositions(t *testing.T) {
	got := armPositions(robot.Observation{
		"left_shoulder_pan.pos":  12.5,
		"right_gripper.pos":      -3.0,
		"top":                    "frame",
		"left_unknown.pos":       1.0,
		"right_shoulder_pan.pos": float32(1), // not produced by the driver
	})
	assert.Equal(t, map[string]float64{
		"left_shoulder_pan.pos": 12.5,
		"right_gripper.pos":     -3.0,
	}, got)
}

func TestTeleopModelHasMovement(t *testing.T) {
	m := &teleopModel{}
	pos := map[string]float64{"left_gripper.pos": 1}
	assert.True(t, m.hasMovement(pos))
	m.lastPositions = pos
	assert.False(t, m.hasMovement(map[string]float64{"left_gripper.pos": 1}))
	assert.True(t, m.hasMovement(map[string]float64{"left_gripper.pos": 2}))
}
