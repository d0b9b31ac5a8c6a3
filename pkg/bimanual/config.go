package bimanual

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/gwillem/lerobot-bimanual/pkg/camera"
	"github.com/gwillem/lerobot-bimanual/pkg/robot"
)

// DefaultName is the robot name used when no id is configured.
const DefaultName = "so101_bimanual"

// Config holds the configuration of a two-arm SO-101 robot.
type Config struct {
	// ID is the base identity; each arm's calibration id derives from it.
	ID        *string `json:"id,omitempty" mapstructure:"id"`
	LeftPort  string  `json:"left_port" mapstructure:"left_port"`
	RightPort string  `json:"right_port" mapstructure:"right_port"`

	// Shared by both arms.
	MaxRelativeTarget         *float64 `json:"max_relative_target,omitempty" mapstructure:"max_relative_target"`
	DisableTorqueOnDisconnect *bool    `json:"disable_torque_on_disconnect,omitempty" mapstructure:"disable_torque_on_disconnect"`
	CalibrationDir            string   `json:"calibration_dir,omitempty" mapstructure:"calibration_dir"`
	Passive                   bool     `json:"passive,omitempty" mapstructure:"passive"`

	Cameras []camera.Config `json:"cameras,omitempty" mapstructure:"cameras"`

	UnroutedKeys             UnroutedPolicy `json:"unrouted_keys,omitempty" mapstructure:"unrouted_keys"`
	RollbackOnConnectFailure bool           `json:"rollback_on_connect_failure,omitempty" mapstructure:"rollback_on_connect_failure"`
	ParallelConnect          bool           `json:"parallel_connect,omitempty" mapstructure:"parallel_connect"`
}

// Name returns the configured id, or DefaultName.
func (c Config) Name() string {
	if c.ID != nil && *c.ID != "" {
		return *c.ID
	}
	return DefaultName
}

// ArmID derives an arm's identity: "<id>_<arm>", or "<arm>_arm" without an id.
func (c Config) ArmID(arm string) string {
	if c.ID != nil && *c.ID != "" {
		return *c.ID + "_" + arm
	}
	return arm + "_arm"
}

// ArmConfigs derives the per-arm configurations. Both arms share the
// tunables and differ in port and identity.
func (c Config) ArmConfigs() (left, right robot.ArmConfig) {
	arm := func(name, port string) robot.ArmConfig {
		return robot.ArmConfig{
			Port:                      port,
			ID:                        c.ArmID(name),
			MaxRelativeTarget:         c.MaxRelativeTarget,
			DisableTorqueOnDisconnect: c.DisableTorqueOnDisconnect,
			CalibrationDir:            c.CalibrationDir,
			Passive:                   c.Passive,
		}
	}
	return arm(Left, c.LeftPort), arm(Right, c.RightPort)
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.LeftPort) == "" || strings.TrimSpace(c.RightPort) == "" {
		return fmt.Errorf("%w: left_port and right_port are required", robot.ErrConfiguration)
	}
	if c.LeftPort == c.RightPort {
		return fmt.Errorf("%w: left_port and right_port are both %s", robot.ErrConfiguration, c.LeftPort)
	}
	if c.MaxRelativeTarget != nil && *c.MaxRelativeTarget <= 0 {
		return fmt.Errorf("%w: max_relative_target must be positive, got %f", robot.ErrConfiguration, *c.MaxRelativeTarget)
	}
	if err := c.UnroutedKeys.Validate(); err != nil {
		return err
	}

	names := make([]string, 0, len(c.Cameras))
	seen := make(map[string]bool, len(c.Cameras))
	for _, cam := range c.Cameras {
		if cam.Name == "" {
			return fmt.Errorf("%w: camera name is required", robot.ErrConfiguration)
		}
		if seen[cam.Name] {
			return fmt.Errorf("%w: duplicate camera name %q", robot.ErrConfiguration, cam.Name)
		}
		seen[cam.Name] = true
		names = append(names, cam.Name)
	}
	return validateNames([]string{Left, Right}, names)
}

// envKeys can be overridden from the environment as LEROBOT_<KEY>.
var envKeys = []string{
	"id",
	"left_port",
	"right_port",
	"max_relative_target",
	"disable_torque_on_disconnect",
	"calibration_dir",
	"unrouted_keys",
	"rollback_on_connect_failure",
	"parallel_connect",
}

// NewViper returns a viper instance reading the given file with LEROBOT_
// environment overrides.
func NewViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("LEROBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig reads and validates a configuration file (JSON, TOML or YAML).
func LoadConfig(path string) (Config, error) {
	v := NewViper(path)
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("%w: read config: %w", robot.ErrConfiguration, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: unmarshal config: %w", robot.ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
