package robot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// MotorCalibration holds calibration data for a single motor.
type MotorCalibration struct {
	ID           int `json:"id"`
	DriveMode    int `json:"drive_mode"`
	HomingOffset int `json:"homing_offset"`
	RangeMin     int `json:"range_min"`
	RangeMax     int `json:"range_max"`
}

// Calibration holds calibration data for all motors, keyed by motor name.
type Calibration map[MotorName]MotorCalibration

// RawSampler reads raw (unnormalized) positions from every motor.
type RawSampler func(ctx context.Context) (map[MotorName]int, error)

// RangeRecorder drives the operator part of calibration: it samples
// positions while the operator moves each joint through its range and
// returns the extremes seen once the operator is done.
type RangeRecorder interface {
	RecordRanges(ctx context.Context, arm string, sample RawSampler) (mins, maxs map[MotorName]int, err error)
}

// LoadCalibration loads calibration data from a JSON file.
func LoadCalibration(path string) (Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calibration file: %w", err)
	}

	var raw map[string]MotorCalibration
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse calibration JSON: %w", err)
	}

	cal := make(Calibration, len(raw))
	for name, mc := range raw {
		cal[MotorName(name)] = mc
	}

	return cal, nil
}

// Save writes the calibration to path, creating parent directories.
func (c Calibration) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create calibration dir: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode calibration: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// CalibrationFromRanges builds a calibration for the SO-101 motors, assigning
// servo IDs 1-6 in AllMotors order.
func CalibrationFromRanges(mins, maxs map[MotorName]int) (Calibration, error) {
	cal := make(Calibration, len(AllMotors()))
	for i, name := range AllMotors() {
		lo, okLo := mins[name]
		hi, okHi := maxs[name]
		if !okLo || !okHi {
			return nil, fmt.Errorf("no range recorded for %s", name)
		}
		if hi <= lo {
			return nil, fmt.Errorf("empty range for %s: min %d, max %d", name, lo, hi)
		}
		cal[name] = MotorCalibration{
			ID:       i + 1,
			RangeMin: lo,
			RangeMax: hi,
		}
	}
	return cal, nil
}

// Normalize converts a raw servo position to a normalized value in the range [-100, 100].
func (c MotorCalibration) Normalize(raw int) float64 {
	rangeSize := float64(c.RangeMax - c.RangeMin)
	if rangeSize == 0 {
		return 0
	}
	return (float64(raw-c.RangeMin)/rangeSize)*200 - 100
}

// Denormalize converts a normalized value [-100, 100] to a raw servo position.
func (c MotorCalibration) Denormalize(norm float64) int {
	rangeSize := float64(c.RangeMax - c.RangeMin)
	return int((norm+100)/200*rangeSize) + c.RangeMin
}

// MotorIDs returns the servo IDs for all motors in the calibration.
func (c Calibration) MotorIDs() []int {
	ids := make([]int, 0, len(c))
	// AllMotors keeps the order stable
	for _, name := range AllMotors() {
		if mc, ok := c[name]; ok {
			ids = append(ids, mc.ID)
		}
	}
	return ids
}

// ByID returns motor name and calibration for a given servo ID.
func (c Calibration) ByID(id int) (MotorName, MotorCalibration, bool) {
	for name, mc := range c {
		if mc.ID == id {
			return name, mc, true
		}
	}
	return "", MotorCalibration{}, false
}

// DefaultMotorIDs are the servo IDs of an SO-101 arm.
func DefaultMotorIDs() []int {
	ids := make([]int, len(AllMotors()))
	for i := range ids {
		ids[i] = i + 1
	}
	return ids
}
