package robot

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestArmConfig_Validate(t *testing.T) {
	neg := -1.0
	pos := 5.0
	tests := []struct {
		name    string
		cfg     ArmConfig
		wantErr bool
	}{
		{"valid", ArmConfig{Port: "/dev/ttyACM0", ID: "arm1_left"}, false},
		{"valid with limit", ArmConfig{Port: "/dev/ttyACM0", ID: "a", MaxRelativeTarget: &pos}, false},
		{"missing port", ArmConfig{ID: "a"}, true},
		{"blank id", ArmConfig{Port: "/dev/ttyACM0", ID: "  "}, true},
		{"id with separator", ArmConfig{Port: "/dev/ttyACM0", ID: "../a"}, true},
		{"negative limit", ArmConfig{Port: "/dev/ttyACM0", ID: "a", MaxRelativeTarget: &neg}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrConfiguration) {
				t.Errorf("Validate() error = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestArmConfig_Defaults(t *testing.T) {
	cfg := ArmConfig{Port: "/dev/ttyACM0", ID: "arm1_right"}

	if !cfg.GetDisableTorqueOnDisconnect() {
		t.Error("torque should be disabled on disconnect by default")
	}
	if got, want := cfg.CalibrationPath(), filepath.Join(DefaultCalibrationDir, "arm1_right.json"); got != want {
		t.Errorf("CalibrationPath() = %q, want %q", got, want)
	}

	off := false
	cfg.DisableTorqueOnDisconnect = &off
	cfg.CalibrationDir = "/tmp/cal"
	if cfg.GetDisableTorqueOnDisconnect() {
		t.Error("explicit false should be kept")
	}
	if got := cfg.CalibrationPath(); got != "/tmp/cal/arm1_right.json" {
		t.Errorf("CalibrationPath() = %q", got)
	}
}
