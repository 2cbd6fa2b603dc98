package cmd

import (
	"fmt"
	"math/rand"

	"github.com/inference-sim/vecenv/sim"
)

// Caller action policies selectable with --policy.
const (
	policyRandom = "random"
	policyZero   = "zero"
	policyFire   = "fire"
)

// actionPolicy picks one action per slot for a step round.
type actionPolicy interface {
	Actions(numEnvs int) []int
}

// constantPolicy always issues the same action.
type constantPolicy struct {
	action int
}

func (p constantPolicy) Actions(numEnvs int) []int {
	out := make([]int, numEnvs)
	for i := range out {
		out[i] = p.action
	}
	return out
}

// randomPolicy draws uniformly from the action space. Draws come from the
// run's policy stream, so a run is reproducible.
type randomPolicy struct {
	space []int
	rng   *rand.Rand
}

func (p *randomPolicy) Actions(numEnvs int) []int {
	out := make([]int, numEnvs)
	for i := range out {
		out[i] = p.space[p.rng.Intn(len(p.space))]
	}
	return out
}

// newActionPolicy builds the named policy over space.
func newActionPolicy(name string, space []int, seed int32) (actionPolicy, error) {
	if len(space) == 0 {
		return nil, fmt.Errorf("empty action space")
	}
	switch name {
	case policyRandom:
		rng := sim.NewPartitionedRNG(sim.RunSeed(seed)).ForPolicy()
		return &randomPolicy{space: append([]int(nil), space...), rng: rng}, nil
	case policyZero:
		return constantPolicy{action: pick(space, sim.DefaultNoopAction)}, nil
	case policyFire:
		return constantPolicy{action: pick(space, sim.DefaultFireAction)}, nil
	default:
		return nil, fmt.Errorf("unknown policy %q (want %s, %s or %s)", name, policyRandom, policyZero, policyFire)
	}
}

// pick returns want when space contains it, otherwise the first legal action.
func pick(space []int, want int) int {
	for _, a := range space {
		if a == want {
			return want
		}
	}
	return space[0]
}
