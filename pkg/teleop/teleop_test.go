package teleop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/lerobot-bimanual/pkg/robot"
	"github.com/gwillem/lerobot-bimanual/pkg/robot/robottest"
)

func pair(t *testing.T, cfg Config) (*Controller, *robottest.Robot, *robottest.Robot) {
	t.Helper()
	rec := &robottest.Recorder{}
	leader := robottest.NewRobot("leader", rec).WithMotors("shoulder_pan", "elbow_flex", "wrist_roll")
	follower := robottest.NewRobot("follower", rec).WithMotors("shoulder_pan", "elbow_flex", "wrist_roll")
	leader.Connected, follower.Connected = true, true
	leader.Observation = robot.Observation{
		"shoulder_pan.pos": 10.0,
		"elbow_flex.pos":   20.0,
		"wrist_roll.pos":   float32(-30),
		"top":              "frame",
	}

	c, err := NewController(leader, follower, cfg)
	require.NoError(t, err)
	return c, leader, follower
}

func TestNewController_Defaults(t *testing.T) {
	c, _, _ := pair(t, Config{})
	assert.Equal(t, DefaultHz, c.Hz())

	_, err := NewController(nil, robottest.NewRobot("f", nil), Config{})
	assert.ErrorIs(t, err, robot.ErrConfiguration)
}

func TestController_Step(t *testing.T) {
	c, _, follower := pair(t, Config{Hz: 30})
	require.NoError(t, c.prepare(context.Background()))

	c.step(context.Background())

	require.Len(t, follower.Received, 1)
	want := robot.Action{"shoulder_pan.pos": 10, "elbow_flex.pos": 20, "wrist_roll.pos": -30}
	assert.Equal(t, want, follower.Received[0])

	s := <-c.States()
	assert.NoError(t, s.Error)
	assert.Equal(t, want, s.Applied)
	assert.Equal(t, "frame", s.Observation["top"])
}

func TestController_StepMirror(t *testing.T) {
	c, _, follower := pair(t, Config{Mirror: true})
	require.NoError(t, c.prepare(context.Background()))

	c.step(context.Background())

	require.Len(t, follower.Received, 1)
	assert.Equal(t, robot.Action{"shoulder_pan.pos": -10, "elbow_flex.pos": 20, "wrist_roll.pos": 30}, follower.Received[0])
}

func TestController_StepReadError(t *testing.T) {
	c, leader, follower := pair(t, Config{})
	require.NoError(t, c.prepare(context.Background()))
	leader.Fail["get_observation"] = robot.ErrCommunication

	c.step(context.Background())

	assert.Empty(t, follower.Received)
	s := <-c.States()
	assert.ErrorIs(t, s.Error, robot.ErrCommunication)
}

func TestController_StateChannelKeepsLatest(t *testing.T) {
	c, leader, _ := pair(t, Config{})
	require.NoError(t, c.prepare(context.Background()))

	c.step(context.Background())
	leader.Observation["elbow_flex.pos"] = 99.0
	c.step(context.Background())

	s := <-c.States()
	assert.Equal(t, 99.0, s.Applied["elbow_flex.pos"])
}

func TestController_StartRequiresConnection(t *testing.T) {
	c, leader, _ := pair(t, Config{})
	leader.Connected = false

	err := c.Start(context.Background())
	assert.ErrorIs(t, err, robot.ErrNotConnected)
}

func TestController_StartRuns(t *testing.T) {
	c, _, follower := pair(t, Config{Hz: 200})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.Start(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotEmpty(t, follower.Received)

	var logs []string
	for len(c.Logs()) > 0 {
		logs = append(logs, <-c.Logs())
	}
	assert.NotEmpty(t, logs)
}

func TestController_StartFollowerConfigureFails(t *testing.T) {
	c, _, follower := pair(t, Config{})
	follower.Fail["configure"] = errors.New("torque")

	err := c.Start(context.Background())
	assert.Error(t, err)

	// The failed start does not leave the controller marked running.
	follower.Fail["configure"] = nil
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Start(ctx), context.Canceled)
}

func TestController_Close(t *testing.T) {
	c, leader, follower := pair(t, Config{})
	follower.Fail["disconnect"] = robot.ErrNotConnected

	err := c.Close(context.Background())
	assert.ErrorIs(t, err, robot.ErrNotConnected)
	assert.False(t, leader.IsConnected())
}

func TestMirrored(t *testing.T) {
	assert.True(t, Mirrored("shoulder_pan.pos"))
	assert.True(t, Mirrored("left_wrist_roll.pos"))
	assert.False(t, Mirrored("elbow_flex.pos"))
	assert.False(t, Mirrored("shoulder_pan.vel"))
}
