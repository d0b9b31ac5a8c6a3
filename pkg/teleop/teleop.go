// Package teleop provides teleoperation control for robot arms.
package teleop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gwillem/lerobot-bimanual/pkg/robot"
)

// DefaultHz is the control frequency used when none is configured.
const DefaultHz = 60

// State represents the current state of teleoperation.
type State struct {
	// Observation is the leader's observation for this tick.
	Observation robot.Observation
	// Applied is the action the follower reported as applied.
	Applied   robot.Action
	Timestamp time.Time
	Error     error
}

// Controller manages the teleoperation control loop.
type Controller struct {
	leader   robot.Robot
	follower robot.Robot
	hz       int
	mirror   bool
	log      *slog.Logger

	mu      sync.Mutex
	running bool
	keys    map[string]bool
	stateCh chan State
	logCh   chan string
}

// Config holds configuration for the controller.
type Config struct {
	Hz     int
	Mirror bool // Invert shoulder_pan and wrist_roll
	Logger *slog.Logger
}

// NewController creates a controller copying the leader's joint positions
// onto the follower. Both robots are owned by the controller from here on.
func NewController(leader, follower robot.Robot, cfg Config) (*Controller, error) {
	if leader == nil || follower == nil {
		return nil, fmt.Errorf("%w: leader and follower are required", robot.ErrConfiguration)
	}
	if cfg.Hz <= 0 {
		cfg.Hz = DefaultHz
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	return &Controller{
		leader:   leader,
		follower: follower,
		hz:       cfg.Hz,
		mirror:   cfg.Mirror,
		log:      cfg.Logger.With("leader", leader.Name(), "follower", follower.Name()),
		stateCh:  make(chan State, 1),
		logCh:    make(chan string, 10),
	}, nil
}

// Close stops the controller and disconnects both robots.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	var errs []error
	if err := c.leader.Disconnect(ctx); err != nil {
		errs = append(errs, fmt.Errorf("disconnect leader: %w", err))
	}
	if err := c.follower.Disconnect(ctx); err != nil {
		errs = append(errs, fmt.Errorf("disconnect follower: %w", err))
	}
	return errors.Join(errs...)
}

// States returns a channel that receives state updates.
func (c *Controller) States() <-chan State {
	return c.stateCh
}

// Logs returns a channel that receives log messages.
func (c *Controller) Logs() <-chan string {
	return c.logCh
}

// Hz returns the control frequency.
func (c *Controller) Hz() int {
	return c.hz
}

func (c *Controller) logf(level slog.Level, format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	c.log.Log(context.Background(), level, text)

	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), text)
	select {
	case c.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Start begins the teleoperation control loop. Both robots must be
// connected. It returns when ctx is done.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("already running")
	}
	c.running = true
	c.mu.Unlock()

	if err := c.prepare(ctx); err != nil {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return err
	}

	c.logf(slog.LevelInfo, "Teleoperation started at %d Hz", c.hz)

	ticker := time.NewTicker(time.Second / time.Duration(c.hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case <-ticker.C:
			c.step(ctx)
		}
	}
}

func (c *Controller) prepare(ctx context.Context) error {
	if !c.leader.IsConnected() {
		return fmt.Errorf("leader %s: %w", c.leader.Name(), robot.ErrNotConnected)
	}
	if !c.follower.IsConnected() {
		return fmt.Errorf("follower %s: %w", c.follower.Name(), robot.ErrNotConnected)
	}

	features, err := c.follower.ActionFeatures()
	if err != nil {
		return fmt.Errorf("follower action features: %w", err)
	}
	c.keys = make(map[string]bool, len(features))
	for key := range features {
		c.keys[key] = true
	}

	if err := c.leader.Configure(ctx); err != nil {
		c.logf(slog.LevelWarn, "Warning: failed to configure leader: %v", err)
	} else {
		c.logf(slog.LevelInfo, "Leader configured")
	}
	if err := c.follower.Configure(ctx); err != nil {
		return fmt.Errorf("configure follower: %w", err)
	}
	c.logf(slog.LevelInfo, "Follower configured")
	return nil
}

func (c *Controller) step(ctx context.Context) {
	obs, err := c.leader.GetObservation(ctx)
	if err != nil {
		c.logf(slog.LevelWarn, "Read error: %v", err)
		c.sendState(State{Error: err, Timestamp: time.Now()})
		return
	}

	applied, err := c.follower.SendAction(ctx, c.actionFor(obs))
	if err != nil {
		c.logf(slog.LevelWarn, "Write error: %v", err)
	}

	c.sendState(State{
		Observation: obs,
		Applied:     applied,
		Timestamp:   time.Now(),
		Error:       err,
	})
}

// actionFor turns a leader observation into a follower action, keeping the
// numeric entries the follower accepts.
func (c *Controller) actionFor(obs robot.Observation) robot.Action {
	action := make(robot.Action, len(c.keys))
	for key, v := range obs {
		if !c.keys[key] {
			continue
		}
		pos, ok := toFloat(v)
		if !ok {
			continue
		}
		if c.mirror && Mirrored(key) {
			pos = -pos
		}
		action[key] = pos
	}
	return action
}

// Mirrored reports whether a position key is inverted in mirror mode.
func Mirrored(key string) bool {
	return strings.HasSuffix(key, robot.ShoulderPan.PosKey()) ||
		strings.HasSuffix(key, robot.WristRoll.PosKey())
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

func (c *Controller) sendState(s State) {
	select {
	case c.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-c.stateCh:
		default:
		}
		c.stateCh <- s
	}
}

func (c *Controller) shutdown() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	c.logf(slog.LevelInfo, "Teleoperation stopped")
}
