package camera

import (
	"fmt"
	"slices"

	"github.com/gwillem/lerobot-bimanual/pkg/robot"
)

// Creator builds a camera from its configuration without touching the device.
type Creator func(cfg Config) (Camera, error)

// Factory builds cameras by type.
type Factory struct {
	creators map[string]Creator
}

// NewFactory returns a factory with no camera types registered.
func NewFactory() *Factory {
	return &Factory{creators: make(map[string]Creator)}
}

// DefaultFactory returns a factory with the built-in camera types.
func DefaultFactory() *Factory {
	f := NewFactory()
	f.Register(TypeFFmpeg, NewFFmpegFromConfig)
	return f
}

// Register adds or replaces the creator for a camera type.
func (f *Factory) Register(kind string, creator Creator) {
	f.creators[kind] = creator
}

// Types returns the registered camera types, sorted.
func (f *Factory) Types() []string {
	types := make([]string, 0, len(f.creators))
	for kind := range f.creators {
		types = append(types, kind)
	}
	slices.Sort(types)
	return types
}

// Make builds one camera per config, in config order.
func (f *Factory) Make(cfgs []Config) (*Set, error) {
	cams := make([]Named, 0, len(cfgs))
	for _, cfg := range cfgs {
		creator, ok := f.creators[cfg.Type]
		if !ok {
			return nil, fmt.Errorf("%w: camera %q: unsupported type %q (have %v)", robot.ErrConfiguration, cfg.Name, cfg.Type, f.Types())
		}
		cam, err := creator(cfg)
		if err != nil {
			return nil, fmt.Errorf("camera %q: %w", cfg.Name, err)
		}
		cams = append(cams, Named{Name: cfg.Name, Camera: cam})
	}
	return NewSet(cams...)
}
