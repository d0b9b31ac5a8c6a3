package bimanual

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/lerobot-bimanual/pkg/robot"
)

func TestSplit(t *testing.T) {
	routed, unrouted := split([]string{Left, Right}, robot.Action{
		"left_elbow_flex.pos":  1,
		"right_elbow_flex.pos": 2,
		"right_gripper.pos":    3,
		"zoom":                 4,
		"leftover":             5,
	})

	assert.Equal(t, map[string]robot.Action{
		Left:  {"elbow_flex.pos": 1},
		Right: {"elbow_flex.pos": 2, "gripper.pos": 3},
	}, routed)
	assert.Equal(t, []string{"leftover", "zoom"}, unrouted)
}

func TestSplit_StripsOnlyOnePrefix(t *testing.T) {
	routed, unrouted := split([]string{Left, Right}, robot.Action{"left_right_x": 1})
	assert.Equal(t, robot.Action{"right_x": 1}, routed[Left])
	assert.Empty(t, unrouted)
}

func TestSplit_Empty(t *testing.T) {
	routed, unrouted := split([]string{Left, Right}, robot.Action{})
	assert.Empty(t, routed)
	assert.Empty(t, unrouted)
}

func TestMergePrefixed(t *testing.T) {
	dst := robot.Action{}
	require.NoError(t, mergePrefixed(dst, "left_", robot.Action{"a.pos": 1}))
	require.NoError(t, mergePrefixed(dst, "right_", robot.Action{"a.pos": 2}))
	assert.Equal(t, robot.Action{"left_a.pos": 1, "right_a.pos": 2}, dst)

	err := mergePrefixed(dst, "left_", robot.Action{"a.pos": 3})
	assert.ErrorIs(t, err, robot.ErrConfiguration)
	assert.Equal(t, 1.0, dst["left_a.pos"], "existing keys are never overwritten")
}

func TestValidateNames(t *testing.T) {
	tests := []struct {
		name    string
		arms    []string
		cameras []string
		wantErr bool
	}{
		{"default pair", []string{Left, Right}, []string{"top", "wrist"}, false},
		{"single arm", []string{"solo"}, nil, false},
		{"no arms", nil, nil, true},
		{"empty arm name", []string{""}, nil, true},
		{"nested namespaces", []string{"a", "a_b"}, nil, true},
		{"camera in namespace", []string{Left, Right}, []string{"right_wrist"}, true},
		{"camera named like arm", []string{Left, Right}, []string{"left"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateNames(tt.arms, tt.cameras)
			if tt.wantErr {
				assert.ErrorIs(t, err, robot.ErrConfiguration)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUnroutedPolicy_Validate(t *testing.T) {
	for _, p := range []UnroutedPolicy{"", UnroutedDrop, UnroutedWarn, UnroutedError} {
		assert.NoError(t, p.Validate(), p)
	}
	assert.ErrorIs(t, UnroutedPolicy("ignore").Validate(), robot.ErrConfiguration)
}
