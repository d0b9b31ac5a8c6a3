// Package camera provides the cameras attached to a robot and the factory
// that builds them from configuration.
package camera

import (
	"context"
	"fmt"
	"image"

	"github.com/gwillem/lerobot-bimanual/pkg/robot"
)

// Camera captures frames from one video device.
type Camera interface {
	Connect(ctx context.Context) error
	Read(ctx context.Context) (image.Image, error)
	Disconnect(ctx context.Context) error
	IsConnected() bool
	// Feature describes the frames Read returns.
	Feature() robot.Feature
}

// Config holds configuration for a single camera.
type Config struct {
	Name   string `json:"name" mapstructure:"name"`
	Type   string `json:"type" mapstructure:"type"`
	Device string `json:"device" mapstructure:"device"`
	Width  int    `json:"width,omitempty" mapstructure:"width"`
	Height int    `json:"height,omitempty" mapstructure:"height"`
	FPS    int    `json:"fps,omitempty" mapstructure:"fps"`
}

// Named is a camera and the key its frames are reported under.
type Named struct {
	Name   string
	Camera Camera
}

// Set is an ordered collection of uniquely named cameras.
// A nil *Set is an empty set.
type Set struct {
	cams []Named
}

// NewSet builds a set, keeping the given order.
func NewSet(cams ...Named) (*Set, error) {
	seen := make(map[string]bool, len(cams))
	for _, c := range cams {
		if c.Name == "" {
			return nil, fmt.Errorf("%w: camera name is required", robot.ErrConfiguration)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("%w: duplicate camera name %q", robot.ErrConfiguration, c.Name)
		}
		if c.Camera == nil {
			return nil, fmt.Errorf("%w: camera %q is nil", robot.ErrConfiguration, c.Name)
		}
		seen[c.Name] = true
	}
	return &Set{cams: append([]Named(nil), cams...)}, nil
}

// Len returns the number of cameras.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.cams)
}

// All returns the cameras in order.
func (s *Set) All() []Named {
	if s == nil {
		return nil
	}
	return append([]Named(nil), s.cams...)
}

// Names returns the camera names in order.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.cams))
	for i, c := range s.cams {
		names[i] = c.Name
	}
	return names
}

// Get looks a camera up by name.
func (s *Set) Get(name string) (Camera, bool) {
	if s == nil {
		return nil, false
	}
	for _, c := range s.cams {
		if c.Name == name {
			return c.Camera, true
		}
	}
	return nil, false
}
