package robot

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultCalibrationDir is where calibration files live when an arm config
// does not name a directory.
const DefaultCalibrationDir = "calibration"

// ArmConfig holds configuration for a single arm.
type ArmConfig struct {
	Port string `json:"port" mapstructure:"port"`
	ID   string `json:"id" mapstructure:"id"`

	// MaxRelativeTarget bounds how far a goal may be from the present
	// position, in normalized units. Nil disables clamping.
	MaxRelativeTarget         *float64 `json:"max_relative_target,omitempty" mapstructure:"max_relative_target"`
	DisableTorqueOnDisconnect *bool    `json:"disable_torque_on_disconnect,omitempty" mapstructure:"disable_torque_on_disconnect"`
	CalibrationDir            string   `json:"calibration_dir,omitempty" mapstructure:"calibration_dir"`

	// Passive arms keep torque off and are moved by hand (leader arms).
	Passive bool `json:"passive,omitempty" mapstructure:"passive"`
}

// Validate checks the arm configuration.
func (c ArmConfig) Validate() error {
	if strings.TrimSpace(c.Port) == "" {
		return fmt.Errorf("%w: arm %q: port is required", ErrConfiguration, c.ID)
	}
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: arm on %s: id is required", ErrConfiguration, c.Port)
	}
	if strings.ContainsAny(c.ID, `/\`) {
		return fmt.Errorf("%w: arm id %q must not contain path separators", ErrConfiguration, c.ID)
	}
	if c.MaxRelativeTarget != nil && *c.MaxRelativeTarget <= 0 {
		return fmt.Errorf("%w: arm %q: max_relative_target must be positive, got %f", ErrConfiguration, c.ID, *c.MaxRelativeTarget)
	}
	return nil
}

// GetDisableTorqueOnDisconnect returns the configured value or the default (true).
func (c ArmConfig) GetDisableTorqueOnDisconnect() bool {
	if c.DisableTorqueOnDisconnect == nil {
		return true
	}
	return *c.DisableTorqueOnDisconnect
}

// GetCalibrationDir returns the configured directory or DefaultCalibrationDir.
func (c ArmConfig) GetCalibrationDir() string {
	if c.CalibrationDir == "" {
		return DefaultCalibrationDir
	}
	return c.CalibrationDir
}

// CalibrationPath is the file the arm's calibration is stored in.
func (c ArmConfig) CalibrationPath() string {
	return filepath.Join(c.GetCalibrationDir(), c.ID+".json")
}
