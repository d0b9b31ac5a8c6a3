package robot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
)

var _ Robot = (*SO101)(nil)

// SO101 drives one SO-101 arm. It is not safe for concurrent use.
type SO101 struct {
	cfg      ArmConfig
	openBus  BusOpener
	recorder RangeRecorder
	log      *slog.Logger

	bus         Bus
	calibration Calibration
}

// Option configures an SO101.
type Option func(*SO101)

// WithBusOpener replaces the Feetech serial bus, mostly for tests.
func WithBusOpener(open BusOpener) Option {
	return func(s *SO101) { s.openBus = open }
}

// WithRangeRecorder sets the operator interaction used by Calibrate.
func WithRangeRecorder(r RangeRecorder) Option {
	return func(s *SO101) { s.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *SO101) { s.log = l }
}

// NewSO101 creates an arm driver. No I/O happens until Connect.
func NewSO101(cfg ArmConfig, opts ...Option) (*SO101, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &SO101{
		cfg:     cfg,
		openBus: OpenFeetechBus,
		log:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("arm", cfg.ID)
	return s, nil
}

func (s *SO101) Name() string { return s.cfg.ID }

// Config returns the arm's configuration.
func (s *SO101) Config() ArmConfig { return s.cfg }

func (s *SO101) ObservationFeatures() (Features, error) { return motorFeatures(), nil }

func (s *SO101) ActionFeatures() (Features, error) { return motorFeatures(), nil }

func (s *SO101) IsConnected() bool { return s.bus != nil }

// IsCalibrated reports whether calibration data is loaded.
func (s *SO101) IsCalibrated() bool { return len(s.calibration) > 0 }

// Connect opens the bus, loads the stored calibration and configures the
// motors. When calibrate is set and no calibration is stored, Calibrate runs
// first. On failure the bus is closed again.
func (s *SO101) Connect(ctx context.Context, calibrate bool) error {
	if s.IsConnected() {
		return fmt.Errorf("arm %s: %w", s.cfg.ID, ErrAlreadyConnected)
	}

	// A stored calibration names the servo IDs on the bus
	ids := DefaultMotorIDs()
	cal, err := LoadCalibration(s.cfg.CalibrationPath())
	switch {
	case err == nil:
		if len(cal) > 0 {
			ids = cal.MotorIDs()
		}
	case errors.Is(err, fs.ErrNotExist):
		s.log.Info("no calibration file", "path", s.cfg.CalibrationPath())
	default:
		s.log.Warn("ignoring unreadable calibration", "path", s.cfg.CalibrationPath(), "err", err)
	}

	bus, err := s.openBus(s.cfg.Port, ids)
	if err != nil {
		return fmt.Errorf("%w: arm %s on %s: %w", ErrConnection, s.cfg.ID, s.cfg.Port, err)
	}
	s.bus = bus
	s.calibration = cal

	if !s.IsCalibrated() && calibrate {
		if err := s.Calibrate(ctx); err != nil {
			s.closeBus()
			return err
		}
	}

	if err := s.Configure(ctx); err != nil {
		s.closeBus()
		return err
	}

	s.log.Info("connected", "port", s.cfg.Port, "calibrated", s.IsCalibrated())
	return nil
}

// Configure sets motor torque: on for driven arms, off for passive ones.
func (s *SO101) Configure(ctx context.Context) error {
	if !s.IsConnected() {
		return fmt.Errorf("arm %s: %w", s.cfg.ID, ErrNotConnected)
	}
	if s.cfg.Passive {
		if err := s.bus.DisableAll(ctx); err != nil {
			return fmt.Errorf("%w: arm %s: disable torque: %w", ErrCommunication, s.cfg.ID, err)
		}
		return nil
	}
	if err := s.bus.EnableAll(ctx); err != nil {
		return fmt.Errorf("%w: arm %s: enable torque: %w", ErrCommunication, s.cfg.ID, err)
	}
	return nil
}

// Calibrate records each joint's range of motion with the operator and
// stores the result in the arm's calibration file.
func (s *SO101) Calibrate(ctx context.Context) error {
	if !s.IsConnected() {
		return fmt.Errorf("arm %s: %w", s.cfg.ID, ErrNotConnected)
	}
	if s.recorder == nil {
		return fmt.Errorf("%w: arm %s: no range recorder configured", ErrCalibration, s.cfg.ID)
	}

	// Torque off so the operator can move the joints
	if err := s.bus.DisableAll(ctx); err != nil {
		return fmt.Errorf("%w: arm %s: disable torque: %w", ErrCalibration, s.cfg.ID, err)
	}

	mins, maxs, err := s.recorder.RecordRanges(ctx, s.cfg.ID, s.readRaw)
	if err != nil {
		return fmt.Errorf("%w: arm %s: record ranges: %w", ErrCalibration, s.cfg.ID, err)
	}

	cal, err := CalibrationFromRanges(mins, maxs)
	if err != nil {
		return fmt.Errorf("%w: arm %s: %w", ErrCalibration, s.cfg.ID, err)
	}
	if err := cal.Save(s.cfg.CalibrationPath()); err != nil {
		return fmt.Errorf("%w: arm %s: %w", ErrCalibration, s.cfg.ID, err)
	}
	s.calibration = cal

	s.log.Info("calibration saved", "path", s.cfg.CalibrationPath())
	return nil
}

// readRaw maps raw positions to motor names using the SO-101 ID order.
func (s *SO101) readRaw(ctx context.Context) (map[MotorName]int, error) {
	raw, err := s.bus.Positions(ctx)
	if err != nil {
		return nil, err
	}
	motors := AllMotors()
	out := make(map[MotorName]int, len(raw))
	for id, pos := range raw {
		if id < 1 || id > len(motors) {
			continue
		}
		out[motors[id-1]] = pos
	}
	return out, nil
}

// readNormalized reads current positions in the range [-100, 100].
func (s *SO101) readNormalized(ctx context.Context) (map[MotorName]float64, error) {
	raw, err := s.bus.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: arm %s: %w", ErrCommunication, s.cfg.ID, err)
	}

	positions := make(map[MotorName]float64, len(raw))
	for id, pos := range raw {
		name, cal, ok := s.calibration.ByID(id)
		if !ok {
			continue
		}
		positions[name] = cal.Normalize(pos)
	}
	return positions, nil
}

func (s *SO101) ready(driven bool) error {
	if !s.IsConnected() {
		return fmt.Errorf("arm %s: %w", s.cfg.ID, ErrNotConnected)
	}
	if driven && s.cfg.Passive {
		return fmt.Errorf("arm %s: %w", s.cfg.ID, ErrPassive)
	}
	if !s.IsCalibrated() {
		return fmt.Errorf("%w: arm %s is not calibrated", ErrCalibration, s.cfg.ID)
	}
	return nil
}

// GetObservation returns normalized joint positions keyed "<motor>.pos".
func (s *SO101) GetObservation(ctx context.Context) (Observation, error) {
	if err := s.ready(false); err != nil {
		return nil, err
	}
	positions, err := s.readNormalized(ctx)
	if err != nil {
		return nil, err
	}
	obs := make(Observation, len(positions))
	for name, pos := range positions {
		obs[name.PosKey()] = pos
	}
	return obs, nil
}

// SendAction writes goal positions keyed "<motor>.pos". With
// MaxRelativeTarget set, goals are first clamped around the present position.
func (s *SO101) SendAction(ctx context.Context, action Action) (Action, error) {
	if err := s.ready(true); err != nil {
		return nil, err
	}

	goals := make(map[MotorName]float64, len(action))
	for key, v := range action {
		name, ok := MotorFromKey(key)
		if !ok {
			return nil, fmt.Errorf("%w: arm %s: unknown action key %q", ErrProtocol, s.cfg.ID, key)
		}
		goals[name] = v
	}

	if s.cfg.MaxRelativeTarget != nil {
		present, err := s.readNormalized(ctx)
		if err != nil {
			return nil, err
		}
		var clamped []MotorName
		goals, clamped = ClampRelative(goals, present, *s.cfg.MaxRelativeTarget)
		if len(clamped) > 0 {
			s.log.Warn("goal positions clamped", "motors", clamped, "max_relative_target", *s.cfg.MaxRelativeTarget)
		}
	}

	raw := make(map[int]int, len(goals))
	applied := make(Action, len(goals))
	for name, norm := range goals {
		cal, ok := s.calibration[name]
		if !ok {
			continue
		}
		raw[cal.ID] = cal.Denormalize(norm)
		applied[name.PosKey()] = norm
	}

	if err := s.bus.SetPositions(ctx, raw); err != nil {
		return nil, fmt.Errorf("%w: arm %s: %w", ErrCommunication, s.cfg.ID, err)
	}
	return applied, nil
}

// Disconnect turns torque off (unless configured not to) and closes the bus.
func (s *SO101) Disconnect(ctx context.Context) error {
	if !s.IsConnected() {
		return fmt.Errorf("arm %s: %w", s.cfg.ID, ErrNotConnected)
	}

	var errs []error
	if s.cfg.GetDisableTorqueOnDisconnect() {
		if err := s.bus.DisableAll(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%w: disable torque: %w", ErrCommunication, err))
		}
	}
	if err := s.closeBus(); err != nil {
		errs = append(errs, fmt.Errorf("close bus: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("arm %s: %w", s.cfg.ID, errors.Join(errs...))
	}

	s.log.Info("disconnected")
	return nil
}

func (s *SO101) closeBus() error {
	if s.bus == nil {
		return nil
	}
	err := s.bus.Close()
	s.bus = nil
	return err
}

// ClampRelative limits each goal to within maxDelta of its present
// position. Goals without a present reading pass through. It returns the
// adjusted goals and the motors that were clamped.
func ClampRelative(goals, present map[MotorName]float64, maxDelta float64) (map[MotorName]float64, []MotorName) {
	out := make(map[MotorName]float64, len(goals))
	var clamped []MotorName
	for _, name := range AllMotors() {
		goal, ok := goals[name]
		if !ok {
			continue
		}
		cur, ok := present[name]
		if !ok {
			out[name] = goal
			continue
		}
		safe := min(max(goal, cur-maxDelta), cur+maxDelta)
		if safe != goal {
			clamped = append(clamped, name)
		}
		out[name] = safe
	}
	return out, clamped
}
