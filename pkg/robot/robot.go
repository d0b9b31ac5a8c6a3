package robot

import "context"

// Feature describes one observation or action channel.
type Feature struct {
	DType string `json:"dtype"`
	Shape []int  `json:"shape,omitempty"`
}

// Features maps a channel key to its descriptor.
type Features map[string]Feature

// Observation holds one sample per channel. Motor readings are float64,
// camera frames are image.Image.
type Observation map[string]any

// Action holds target values keyed by channel.
type Action map[string]float64

// Robot is the lifecycle and I/O contract shared by single arms and
// composites of several devices.
type Robot interface {
	// Name identifies the robot, e.g. its calibration id.
	Name() string

	ObservationFeatures() (Features, error)
	ActionFeatures() (Features, error)

	Connect(ctx context.Context, calibrate bool) error
	Configure(ctx context.Context) error
	Calibrate(ctx context.Context) error
	GetObservation(ctx context.Context) (Observation, error)
	// SendAction returns the action actually applied, which may differ
	// from the request when the driver clamps goals.
	SendAction(ctx context.Context, action Action) (Action, error)
	Disconnect(ctx context.Context) error
	IsConnected() bool
}

// Clone returns a shallow copy of f.
func (f Features) Clone() Features {
	out := make(Features, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}
