// Package lerobot provides bimanual teleoperation for SO-101 robot arms.
//
// This is a Go implementation compatible with HuggingFace LeRobot. Two
// SO-101 arms, plus optional cameras, are driven as a single robot whose
// channel keys are namespaced per arm ("left_shoulder_pan.pos"). A pair of
// leader arms moved by hand controls a pair of follower arms in real time.
//
// # Installation
//
//	go install github.com/gwillem/lerobot-bimanual/cmd/lerobot@latest
//
// # Usage
//
// First, run setup to detect the four arms, assign them to leader/follower
// and left/right, and calibrate them:
//
//	lerobot setup
//
// Inspect the combined feature schema, optionally connecting every device:
//
//	lerobot info --connect
//
// Then start teleoperation:
//
//	lerobot teleoperate
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/lerobot: CLI with setup, calibrate, info and teleoperate commands
//   - pkg/robot: Robot interface, SO-101 arm driver, calibration, and errors
//   - pkg/robot/robottest: Instrumented robot and camera fakes for tests
//   - pkg/camera: Cameras, camera factory, and the ffmpeg capture camera
//   - pkg/bimanual: Coordinator presenting several arms and cameras as one robot
//   - pkg/teleop: Teleoperation controller
package lerobot
