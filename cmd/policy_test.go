package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewActionPolicy_Constant(t *testing.T) {
	tests := []struct {
		name  string
		space []int
		want  int
	}{
		{policyZero, []int{0, 1, 3, 4}, 0},
		{policyFire, []int{0, 1, 3, 4}, 1},
		{policyFire, []int{0, 2, 5}, 0}, // no FIRE: first legal action
		{policyZero, []int{3, 4}, 3},
	}
	for _, tt := range tests {
		p, err := newActionPolicy(tt.name, tt.space, 0)
		require.NoError(t, err)
		assert.Equal(t, []int{tt.want, tt.want, tt.want}, p.Actions(3), "%s over %v", tt.name, tt.space)
	}
}

func TestNewActionPolicy_Random_StaysInSpaceAndIsSeeded(t *testing.T) {
	space := []int{0, 1, 3, 4}
	a, err := newActionPolicy(policyRandom, space, 42)
	require.NoError(t, err)
	b, err := newActionPolicy(policyRandom, space, 42)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		got := a.Actions(8)
		assert.Equal(t, got, b.Actions(8))
		for _, act := range got {
			assert.Contains(t, space, act)
		}
	}
}

func TestNewActionPolicy_Errors(t *testing.T) {
	_, err := newActionPolicy("greedy", []int{0}, 0)
	assert.Error(t, err)
	_, err = newActionPolicy(policyZero, nil, 0)
	assert.Error(t, err)
}
