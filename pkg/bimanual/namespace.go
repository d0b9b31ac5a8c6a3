package bimanual

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gwillem/lerobot-bimanual/pkg/robot"
)

// Arm names used by the two-arm configuration.
const (
	Left  = "left"
	Right = "right"
)

// Prefix returns the key namespace of an arm, e.g. "left_".
func Prefix(arm string) string {
	return arm + "_"
}

// UnroutedPolicy decides what SendAction does with keys that belong to no arm.
type UnroutedPolicy string

const (
	// UnroutedDrop silently discards the keys.
	UnroutedDrop UnroutedPolicy = "drop"
	// UnroutedWarn discards the keys and logs them.
	UnroutedWarn UnroutedPolicy = "warn"
	// UnroutedError rejects the whole action with robot.ErrProtocol.
	UnroutedError UnroutedPolicy = "error"
)

// Validate accepts the known policies and the empty value (drop).
func (p UnroutedPolicy) Validate() error {
	switch p {
	case "", UnroutedDrop, UnroutedWarn, UnroutedError:
		return nil
	}
	return fmt.Errorf("%w: unknown unrouted_keys policy %q (want drop, warn or error)", robot.ErrConfiguration, p)
}

// mergePrefixed copies src into dst with every key prefixed. A key that is
// already present in dst is an error: merged maps never overwrite.
func mergePrefixed[M ~map[string]V, V any](dst M, prefix string, src M) error {
	for k, v := range src {
		key := prefix + k
		if _, dup := dst[key]; dup {
			return fmt.Errorf("%w: key %q produced twice", robot.ErrConfiguration, key)
		}
		dst[key] = v
	}
	return nil
}

// validateNames checks that arm prefixes cannot capture each other's keys
// and that no camera name falls inside an arm namespace.
func validateNames(arms []string, cameras []string) error {
	if len(arms) == 0 {
		return fmt.Errorf("%w: at least one arm is required", robot.ErrConfiguration)
	}
	for i, a := range arms {
		if a == "" {
			return fmt.Errorf("%w: arm name is required", robot.ErrConfiguration)
		}
		for j, b := range arms {
			if i != j && strings.HasPrefix(Prefix(b), Prefix(a)) {
				return fmt.Errorf("%w: arm namespaces %q and %q overlap", robot.ErrConfiguration, Prefix(a), Prefix(b))
			}
		}
	}
	for _, cam := range cameras {
		for _, a := range arms {
			if strings.HasPrefix(cam, Prefix(a)) {
				return fmt.Errorf("%w: camera %q uses the reserved prefix %q", robot.ErrConfiguration, cam, Prefix(a))
			}
		}
	}
	return nil
}

// split partitions an action by arm prefix, stripping the prefix. Keys that
// match no arm are returned sorted.
func split(arms []string, action robot.Action) (map[string]robot.Action, []string) {
	routed := make(map[string]robot.Action, len(arms))
	var unrouted []string
	for key, v := range action {
		matched := false
		for _, arm := range arms {
			if sub, ok := strings.CutPrefix(key, Prefix(arm)); ok {
				if routed[arm] == nil {
					routed[arm] = robot.Action{}
				}
				routed[arm][sub] = v
				matched = true
				break
			}
		}
		if !matched {
			unrouted = append(unrouted, key)
		}
	}
	slices.Sort(unrouted)
	return routed, unrouted
}
