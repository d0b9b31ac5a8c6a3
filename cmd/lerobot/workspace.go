package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/gwillem/lerobot-bimanual/pkg/bimanual"
	"github.com/gwillem/lerobot-bimanual/pkg/robot"
)

// Workspace is the lerobot.json file written by setup: one bimanual robot
// moved by hand and one that follows it.
type Workspace struct {
	Leader   bimanual.Config `json:"leader" mapstructure:"leader"`
	Follower bimanual.Config `json:"follower" mapstructure:"follower"`
}

// Robot roles.
const (
	RoleLeader   = "leader"
	RoleFollower = "follower"
)

func defaultWorkspace() Workspace {
	return Workspace{
		Leader:   bimanual.Config{ID: ptr("leader"), Passive: true},
		Follower: bimanual.Config{ID: ptr("follower")},
	}
}

func loadWorkspace(path string) (Workspace, error) {
	v := bimanual.NewViper(path)
	if err := v.ReadInConfig(); err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return Workspace{}, fmt.Errorf("no configuration at %s, run 'lerobot setup' first: %w", path, fs.ErrNotExist)
		}
		return Workspace{}, fmt.Errorf("%w: read %s: %w", robot.ErrConfiguration, path, err)
	}

	ws := defaultWorkspace()
	if err := v.Unmarshal(&ws); err != nil {
		return Workspace{}, fmt.Errorf("%w: parse %s: %w", robot.ErrConfiguration, path, err)
	}
	// The leader is moved by hand whatever the file says.
	ws.Leader.Passive = true
	return ws, nil
}

// Config returns the robot configuration for a role.
func (w Workspace) Config(role string) (bimanual.Config, error) {
	var cfg bimanual.Config
	switch role {
	case RoleLeader:
		cfg = w.Leader
	case RoleFollower:
		cfg = w.Follower
	default:
		return cfg, fmt.Errorf("%w: unknown role %q", robot.ErrConfiguration, role)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", role, err)
	}
	return cfg, nil
}

func (w Workspace) Save(path string) error {
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return fmt.Errorf("encode workspace: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// newCoordinator builds the bimanual robot for a role. The recorder is used
// by Calibrate and may be nil.
func newCoordinator(ws Workspace, role string, rec robot.RangeRecorder, log *slog.Logger) (*bimanual.Coordinator, error) {
	cfg, err := ws.Config(role)
	if err != nil {
		return nil, err
	}
	log = log.With("role", role)
	return bimanual.NewFromConfig(cfg,
		bimanual.WithLogger(log),
		bimanual.WithArmFactory(func(ac robot.ArmConfig) (robot.Robot, error) {
			armOpts := []robot.Option{robot.WithLogger(log)}
			if rec != nil {
				armOpts = append(armOpts, robot.WithRangeRecorder(rec))
			}
			return robot.NewSO101(ac, armOpts...)
		}),
	)
}

func ptr[T any](v T) *T { return &v }
