// Package robottest provides instrumented robot and camera fakes.
package robottest

import (
	"context"
	"fmt"
	"image"
	"maps"
	"sync"

	"github.com/gwillem/lerobot-bimanual/pkg/robot"
)

// Recorder collects calls from several fakes in the order they happen.
type Recorder struct {
	mu    sync.Mutex
	calls []string
}

// Record appends a call.
func (r *Recorder) Record(format string, args ...any) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

// Calls returns the calls recorded so far.
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// Reset forgets all recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// Robot is a robot.Robot whose responses are set by the test. Calls are
// recorded as "<id>.<method>", connect as "<id>.connect(<calibrate>)".
type Robot struct {
	ID  string
	Rec *Recorder

	ObsFeatures robot.Features
	ActFeatures robot.Features
	FeaturesErr error

	Observation robot.Observation
	// Apply, when set, rewrites an incoming action into the applied one.
	Apply func(robot.Action) robot.Action

	// Fail maps a method name (connect, configure, calibrate,
	// get_observation, send_action, disconnect) to the error it returns.
	Fail map[string]error

	Connected bool
	Received  []robot.Action
}

var _ robot.Robot = (*Robot)(nil)

// NewRobot returns a fake with empty schemas.
func NewRobot(id string, rec *Recorder) *Robot {
	return &Robot{
		ID:          id,
		Rec:         rec,
		ObsFeatures: robot.Features{},
		ActFeatures: robot.Features{},
		Observation: robot.Observation{},
		Fail:        map[string]error{},
	}
}

// WithMotors sets observation and action schemas to "<motor>.pos" floats.
func (r *Robot) WithMotors(motors ...string) *Robot {
	for _, m := range motors {
		r.ObsFeatures[m+".pos"] = robot.Feature{DType: "float32"}
		r.ActFeatures[m+".pos"] = robot.Feature{DType: "float32"}
	}
	return r
}

func (r *Robot) Name() string { return r.ID }

func (r *Robot) ObservationFeatures() (robot.Features, error) {
	if r.FeaturesErr != nil {
		return nil, r.FeaturesErr
	}
	return r.ObsFeatures.Clone(), nil
}

func (r *Robot) ActionFeatures() (robot.Features, error) {
	if r.FeaturesErr != nil {
		return nil, r.FeaturesErr
	}
	return r.ActFeatures.Clone(), nil
}

func (r *Robot) Connect(ctx context.Context, calibrate bool) error {
	r.Rec.Record("%s.connect(%t)", r.ID, calibrate)
	if err := r.Fail["connect"]; err != nil {
		return err
	}
	r.Connected = true
	return nil
}

func (r *Robot) Configure(ctx context.Context) error {
	r.Rec.Record("%s.configure", r.ID)
	return r.Fail["configure"]
}

func (r *Robot) Calibrate(ctx context.Context) error {
	r.Rec.Record("%s.calibrate", r.ID)
	return r.Fail["calibrate"]
}

func (r *Robot) GetObservation(ctx context.Context) (robot.Observation, error) {
	r.Rec.Record("%s.get_observation", r.ID)
	if err := r.Fail["get_observation"]; err != nil {
		return nil, err
	}
	return maps.Clone(r.Observation), nil
}

func (r *Robot) SendAction(ctx context.Context, action robot.Action) (robot.Action, error) {
	r.Rec.Record("%s.send_action", r.ID)
	r.Received = append(r.Received, maps.Clone(action))
	if err := r.Fail["send_action"]; err != nil {
		return nil, err
	}
	if r.Apply != nil {
		return r.Apply(maps.Clone(action)), nil
	}
	return maps.Clone(action), nil
}

func (r *Robot) Disconnect(ctx context.Context) error {
	r.Rec.Record("%s.disconnect", r.ID)
	if err := r.Fail["disconnect"]; err != nil {
		return err
	}
	r.Connected = false
	return nil
}

func (r *Robot) IsConnected() bool { return r.Connected }

// Camera is a fake camera returning a fixed frame. Calls are recorded as
// "<name>.<method>".
type Camera struct {
	Name  string
	Rec   *Recorder
	Frame image.Image
	Feat  robot.Feature
	// Fail maps connect, read or disconnect to the error returned.
	Fail map[string]error

	Connected bool
}

// NewCamera returns a fake camera producing a blank h×w frame.
func NewCamera(name string, rec *Recorder, h, w int) *Camera {
	return &Camera{
		Name:  name,
		Rec:   rec,
		Frame: image.NewRGBA(image.Rect(0, 0, w, h)),
		Feat:  robot.Feature{DType: "image", Shape: []int{h, w, 3}},
		Fail:  map[string]error{},
	}
}

func (c *Camera) Connect(ctx context.Context) error {
	c.Rec.Record("%s.connect", c.Name)
	if err := c.Fail["connect"]; err != nil {
		return err
	}
	c.Connected = true
	return nil
}

func (c *Camera) Read(ctx context.Context) (image.Image, error) {
	c.Rec.Record("%s.read", c.Name)
	if err := c.Fail["read"]; err != nil {
		return nil, err
	}
	return c.Frame, nil
}

func (c *Camera) Disconnect(ctx context.Context) error {
	c.Rec.Record("%s.disconnect", c.Name)
	if err := c.Fail["disconnect"]; err != nil {
		return err
	}
	c.Connected = false
	return nil
}

func (c *Camera) IsConnected() bool { return c.Connected }

func (c *Camera) Feature() robot.Feature { return c.Feat }
