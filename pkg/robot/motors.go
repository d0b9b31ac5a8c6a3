// Package robot provides the robot capability interface and the SO-101 arm driver.
package robot

import "strings"

// MotorName identifies a motor in the arm.
type MotorName string

// Motor names for the SO-101 arm.
const (
	ShoulderPan  MotorName = "shoulder_pan"
	ShoulderLift MotorName = "shoulder_lift"
	ElbowFlex    MotorName = "elbow_flex"
	WristFlex    MotorName = "wrist_flex"
	WristRoll    MotorName = "wrist_roll"
	Gripper      MotorName = "gripper"
)

const posSuffix = ".pos"

// AllMotors returns all motor names in order (matching servo IDs 1-6).
func AllMotors() []MotorName {
	return []MotorName{
		ShoulderPan,
		ShoulderLift,
		ElbowFlex,
		WristFlex,
		WristRoll,
		Gripper,
	}
}

// PosKey returns the observation/action key for the motor's position.
func (m MotorName) PosKey() string {
	return string(m) + posSuffix
}

// MotorFromKey parses a "<motor>.pos" key.
func MotorFromKey(key string) (MotorName, bool) {
	name, ok := strings.CutSuffix(key, posSuffix)
	if !ok {
		return "", false
	}
	for _, m := range AllMotors() {
		if string(m) == name {
			return m, true
		}
	}
	return "", false
}

// motorFeatures is the SO-101 schema: one float per motor position.
func motorFeatures() Features {
	f := make(Features, len(AllMotors()))
	for _, m := range AllMotors() {
		f[m.PosKey()] = Feature{DType: "float32"}
	}
	return f
}
