// Package bimanual presents several arms and a set of cameras as one robot.
//
// Every arm's channel keys are namespaced with the arm's name ("left_",
// "right_"); camera frames are reported under the camera name. Lifecycle
// calls fan out to the devices in a fixed order: arms in configuration
// order, then cameras. Connect and Disconnect are recorded as a Report so a
// partially connected robot can be inspected, resumed or rolled back.
package bimanual

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gwillem/lerobot-bimanual/pkg/camera"
	"github.com/gwillem/lerobot-bimanual/pkg/robot"
)

var _ robot.Robot = (*Coordinator)(nil)

// Arm is a named sub-robot. Its keys are namespaced with Prefix(Name).
type Arm struct {
	Name  string
	Robot robot.Robot
}

// ArmFactory builds an arm driver from its derived configuration.
type ArmFactory func(cfg robot.ArmConfig) (robot.Robot, error)

// DeviceStatus reports the connection state of one device.
type DeviceStatus struct {
	Name      string
	Kind      string // "arm" or "camera"
	Connected bool
}

// Coordinator drives its arms and cameras as a single robot. It is not safe
// for concurrent use.
type Coordinator struct {
	name     string
	arms     []Arm
	cams     *camera.Set
	policy   UnroutedPolicy
	rollback bool
	parallel bool
	log      *slog.Logger

	lastConnect    *Report
	lastDisconnect *Report
}

type options struct {
	log        *slog.Logger
	policy     UnroutedPolicy
	rollback   bool
	parallel   bool
	armFactory ArmFactory
	camFactory *camera.Factory
}

// Option configures a Coordinator.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithUnroutedPolicy sets how SendAction treats keys outside every arm namespace.
func WithUnroutedPolicy(p UnroutedPolicy) Option {
	return func(o *options) { o.policy = p }
}

// WithRollbackOnConnectFailure disconnects the already connected devices
// when Connect fails.
func WithRollbackOnConnectFailure(on bool) Option {
	return func(o *options) { o.rollback = on }
}

// WithParallelConnect connects and disconnects the arms concurrently.
// Cameras stay sequential, and so does Connect when it may calibrate.
func WithParallelConnect(on bool) Option {
	return func(o *options) { o.parallel = on }
}

// WithArmFactory replaces the SO-101 driver used by NewFromConfig.
func WithArmFactory(f ArmFactory) Option {
	return func(o *options) { o.armFactory = f }
}

// WithCameraFactory replaces the camera factory used by NewFromConfig.
func WithCameraFactory(f *camera.Factory) Option {
	return func(o *options) { o.camFactory = f }
}

func buildOptions(opts []Option) options {
	o := options{
		log:    slog.New(slog.DiscardHandler),
		policy: UnroutedDrop,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.policy == "" {
		o.policy = UnroutedDrop
	}
	return o
}

// New builds a coordinator over the given arms, in order, and cameras.
// No I/O happens.
func New(name string, arms []Arm, cams *camera.Set, opts ...Option) (*Coordinator, error) {
	o := buildOptions(opts)
	if err := o.policy.Validate(); err != nil {
		return nil, err
	}

	names := make([]string, len(arms))
	for i, a := range arms {
		if a.Robot == nil {
			return nil, fmt.Errorf("%w: arm %q has no driver", robot.ErrConfiguration, a.Name)
		}
		names[i] = a.Name
	}
	if err := validateNames(names, cams.Names()); err != nil {
		return nil, err
	}

	return &Coordinator{
		name:     name,
		arms:     append([]Arm(nil), arms...),
		cams:     cams,
		policy:   o.policy,
		rollback: o.rollback,
		parallel: o.parallel,
		log:      o.log.With("robot", name),
	}, nil
}

// NewFromConfig builds the left and right SO-101 arms and the configured
// cameras. No I/O happens.
func NewFromConfig(cfg Config, opts ...Option) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base := []Option{
		WithUnroutedPolicy(cfg.UnroutedKeys),
		WithRollbackOnConnectFailure(cfg.RollbackOnConnectFailure),
		WithParallelConnect(cfg.ParallelConnect),
	}
	opts = append(base, opts...)
	o := buildOptions(opts)

	newArm := o.armFactory
	if newArm == nil {
		newArm = func(ac robot.ArmConfig) (robot.Robot, error) {
			return robot.NewSO101(ac, robot.WithLogger(o.log))
		}
	}
	camFactory := o.camFactory
	if camFactory == nil {
		camFactory = camera.DefaultFactory()
	}

	leftCfg, rightCfg := cfg.ArmConfigs()
	left, err := newArm(leftCfg)
	if err != nil {
		return nil, fmt.Errorf("create left arm: %w", err)
	}
	right, err := newArm(rightCfg)
	if err != nil {
		return nil, fmt.Errorf("create right arm: %w", err)
	}
	cams, err := camFactory.Make(cfg.Cameras)
	if err != nil {
		return nil, fmt.Errorf("create cameras: %w", err)
	}

	return New(cfg.Name(), []Arm{
		{Name: Left, Robot: left},
		{Name: Right, Robot: right},
	}, cams, opts...)
}

func (c *Coordinator) Name() string { return c.name }

// Arms returns the arms in order.
func (c *Coordinator) Arms() []Arm { return append([]Arm(nil), c.arms...) }

// Arm returns the named arm's driver.
func (c *Coordinator) Arm(name string) (robot.Robot, bool) {
	for _, a := range c.arms {
		if a.Name == name {
			return a.Robot, true
		}
	}
	return nil, false
}

// Cameras returns the camera set.
func (c *Coordinator) Cameras() *camera.Set { return c.cams }

func (c *Coordinator) armNames() []string {
	names := make([]string, len(c.arms))
	for i, a := range c.arms {
		names[i] = a.Name
	}
	return names
}

// ObservationFeatures merges every arm's observation schema under its
// prefix with each camera's frame descriptor under the camera name.
func (c *Coordinator) ObservationFeatures() (robot.Features, error) {
	features := robot.Features{}
	for _, a := range c.arms {
		f, err := a.Robot.ObservationFeatures()
		if err != nil {
			return nil, fmt.Errorf("arm %s: observation features: %w", a.Name, err)
		}
		if err := mergePrefixed(features, Prefix(a.Name), f); err != nil {
			return nil, err
		}
	}
	for _, cam := range c.cams.All() {
		if _, dup := features[cam.Name]; dup {
			return nil, fmt.Errorf("%w: key %q produced twice", robot.ErrConfiguration, cam.Name)
		}
		features[cam.Name] = cam.Camera.Feature()
	}
	return features, nil
}

// ActionFeatures merges every arm's action schema under its prefix.
// Cameras take no actions.
func (c *Coordinator) ActionFeatures() (robot.Features, error) {
	features := robot.Features{}
	for _, a := range c.arms {
		f, err := a.Robot.ActionFeatures()
		if err != nil {
			return nil, fmt.Errorf("arm %s: action features: %w", a.Name, err)
		}
		if err := mergePrefixed(features, Prefix(a.Name), f); err != nil {
			return nil, err
		}
	}
	return features, nil
}

func armStep(a Arm) string { return "arm " + a.Name }
func cameraStep(n camera.Named) string { return "camera " + n.Name }

func (c *Coordinator) connectSaga(calibrate bool) *saga {
	s := &saga{op: "connect", mode: failFast, parallel: c.parallel, log: c.log}
	// An arm may calibrate with the operator while connecting, so only
	// plain connects run concurrently.
	for _, a := range c.arms {
		s.steps = append(s.steps, step{
			name:       armStep(a),
			do:         func(ctx context.Context) error { return a.Robot.Connect(ctx, calibrate) },
			undo:       a.Robot.Disconnect,
			concurrent: !calibrate,
		})
	}
	for _, cam := range c.cams.All() {
		s.steps = append(s.steps, step{
			name: cameraStep(cam),
			do:   cam.Camera.Connect,
			undo: cam.Camera.Disconnect,
		})
	}
	return s
}

func (c *Coordinator) disconnectSaga() *saga {
	s := &saga{op: "disconnect", mode: bestEffort, parallel: c.parallel, log: c.log}
	for _, a := range c.arms {
		s.steps = append(s.steps, step{name: armStep(a), do: a.Robot.Disconnect, concurrent: true})
	}
	for _, cam := range c.cams.All() {
		s.steps = append(s.steps, step{name: cameraStep(cam), do: cam.Camera.Disconnect})
	}
	return s
}

// Connect connects each arm (passing calibrate through), then each camera.
// It stops at the first failure; devices connected before it stay
// connected unless rollback on failure is enabled. LastConnect describes
// which devices were reached.
func (c *Coordinator) Connect(ctx context.Context, calibrate bool) error {
	return c.connect(ctx, calibrate, nil)
}

// ResumeConnect retries the last Connect, skipping devices it already
// connected. Without a previous Connect, or after a Disconnect, it behaves
// like Connect.
func (c *Coordinator) ResumeConnect(ctx context.Context, calibrate bool) error {
	return c.connect(ctx, calibrate, c.lastConnect)
}

func (c *Coordinator) connect(ctx context.Context, calibrate bool, prior *Report) error {
	s := c.connectSaga(calibrate)
	rep, err := s.run(ctx, prior)
	if err != nil && c.rollback {
		if rbErr := s.compensate(ctx, &rep); rbErr != nil {
			c.lastConnect = &rep
			return fmt.Errorf("%w (rollback: %w)", err, rbErr)
		}
	}
	c.lastConnect = &rep
	if err == nil {
		c.log.Info("connected", "arms", len(c.arms), "cameras", c.cams.Len())
	}
	return err
}

// Rollback disconnects, in reverse order, the devices the last Connect
// connected. After a Disconnect there is nothing to roll back.
func (c *Coordinator) Rollback(ctx context.Context) error {
	if c.lastConnect == nil {
		return nil
	}
	return c.connectSaga(false).compensate(ctx, c.lastConnect)
}

// LastConnect returns the record of the most recent Connect or ResumeConnect,
// if no Disconnect came after it.
func (c *Coordinator) LastConnect() (Report, bool) {
	if c.lastConnect == nil {
		return Report{}, false
	}
	return c.lastConnect.clone(), true
}

// LastDisconnect returns the record of the most recent Disconnect.
func (c *Coordinator) LastDisconnect() (Report, bool) {
	if c.lastDisconnect == nil {
		return Report{}, false
	}
	return c.lastDisconnect.clone(), true
}

// Configure configures each arm in order, stopping at the first failure.
func (c *Coordinator) Configure(ctx context.Context) error {
	for _, a := range c.arms {
		if err := a.Robot.Configure(ctx); err != nil {
			return &StepError{Op: "configure", Step: armStep(a), Err: err}
		}
	}
	return nil
}

// Calibrate calibrates the arms one after another. Calibration may need
// the operator, so it never runs concurrently; a failure stops the sequence.
func (c *Coordinator) Calibrate(ctx context.Context) error {
	for _, a := range c.arms {
		c.log.Info("calibrating arm", "arm", a.Name, "id", a.Robot.Name())
		if err := a.Robot.Calibrate(ctx); err != nil {
			return &StepError{Op: "calibrate", Step: armStep(a), Err: err}
		}
	}
	return nil
}

// GetObservation samples each arm, then each camera, sequentially. Samples
// are not simultaneous.
func (c *Coordinator) GetObservation(ctx context.Context) (robot.Observation, error) {
	obs := robot.Observation{}
	for _, a := range c.arms {
		o, err := a.Robot.GetObservation(ctx)
		if err != nil {
			return nil, &StepError{Op: "get_observation", Step: armStep(a), Err: err}
		}
		if err := mergePrefixed(obs, Prefix(a.Name), o); err != nil {
			return nil, err
		}
	}
	for _, cam := range c.cams.All() {
		frame, err := cam.Camera.Read(ctx)
		if err != nil {
			return nil, &StepError{Op: "get_observation", Step: cameraStep(cam), Err: err}
		}
		if _, dup := obs[cam.Name]; dup {
			return nil, fmt.Errorf("%w: key %q produced twice", robot.ErrConfiguration, cam.Name)
		}
		obs[cam.Name] = frame
	}
	return obs, nil
}

// Split partitions an action by arm, stripping the arm prefix from each key.
// Keys outside every arm namespace are returned sorted.
func (c *Coordinator) Split(action robot.Action) (map[string]robot.Action, []string) {
	return split(c.armNames(), action)
}

// SendAction routes each key to its arm and returns the actions the arms
// report as applied, re-prefixed. Arms with no keys are not called. Keys
// matching no arm are handled per the unrouted policy.
func (c *Coordinator) SendAction(ctx context.Context, action robot.Action) (robot.Action, error) {
	routed, unrouted := c.Split(action)
	if len(unrouted) > 0 {
		switch c.policy {
		case UnroutedError:
			return nil, fmt.Errorf("%w: action keys outside every arm namespace: %v", robot.ErrProtocol, unrouted)
		case UnroutedWarn:
			c.log.Warn("dropping unrouted action keys", "keys", unrouted)
		}
	}

	sent := robot.Action{}
	for _, a := range c.arms {
		sub := routed[a.Name]
		if len(sub) == 0 {
			continue
		}
		applied, err := a.Robot.SendAction(ctx, sub)
		if err != nil {
			return nil, &StepError{Op: "send_action", Step: armStep(a), Err: err}
		}
		if err := mergePrefixed(sent, Prefix(a.Name), applied); err != nil {
			return nil, err
		}
	}
	return sent, nil
}

// Disconnect disconnects every arm, then every camera, whatever their
// state. A failure does not stop the remaining devices; all failures are
// returned joined. The last connect record is discarded.
func (c *Coordinator) Disconnect(ctx context.Context) error {
	rep, err := c.disconnectSaga().run(ctx, nil)
	c.lastDisconnect = &rep
	c.lastConnect = nil
	if err == nil {
		c.log.Info("disconnected")
	}
	return err
}

// IsConnected reports whether every arm is connected. Cameras are not
// considered; see Status.
func (c *Coordinator) IsConnected() bool {
	for _, a := range c.arms {
		if !a.Robot.IsConnected() {
			return false
		}
	}
	return true
}

// Status reports the connection state of every arm and camera.
func (c *Coordinator) Status() []DeviceStatus {
	status := make([]DeviceStatus, 0, len(c.arms)+c.cams.Len())
	for _, a := range c.arms {
		status = append(status, DeviceStatus{Name: a.Name, Kind: "arm", Connected: a.Robot.IsConnected()})
	}
	for _, cam := range c.cams.All() {
		status = append(status, DeviceStatus{Name: cam.Name, Kind: "camera", Connected: cam.Camera.IsConnected()})
	}
	return status
}
