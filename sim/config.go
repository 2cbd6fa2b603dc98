package sim

import (
	"fmt"
	"time"

	"github.com/inference-sim/vecenv/sim/trace"
)

// Default lifecycle settings. Action codes follow the conventional arcade
// numbering (0 NOOP, 1 FIRE, 2 UP).
const (
	DefaultNoopMax          = 30
	DefaultNoopAction       = 0
	DefaultFireAction       = 1
	DefaultFollowUpAction   = 2
	DefaultDownsampleStride = 2
)

// LifecyclePolicy groups the per-slot episode lifecycle parameters applied
// between rounds without the caller's involvement.
type LifecyclePolicy struct {
	NoopMax        int // warmup no-ops after an episode boundary are drawn from [1, NoopMax]; 0 disables
	NoopAction     int // action code used for warmup steps
	FireReset      bool
	FireAction     int // issued after warmup when the slot's action set contains it
	FollowUpAction int // issued right after FireAction

	// LifeLossAsTerminal folds LifeLost into the reported Terminal flag.
	// The environment is still only reset on a real episode end.
	LifeLossAsTerminal bool
	// CountWarmupFrames charges warmup and fire steps to MaxEpisodeFrames.
	CountWarmupFrames bool
	// WarmupOnReset applies the warmup and fire sequence on batch Reset too.
	WarmupOnReset bool

	MaxEpisodeFrames int // truncate episodes after this many frames (0 = unlimited)
	DownsampleStride int // observation decimation stride (<= 1 = full resolution)
}

// DefaultLifecyclePolicy returns the standard lifecycle: 30 max warmup no-ops,
// fire reset on, life loss reported independently, warmup not charged to the
// frame budget, stride-2 observations.
func DefaultLifecyclePolicy() LifecyclePolicy {
	return LifecyclePolicy{
		NoopMax:          DefaultNoopMax,
		NoopAction:       DefaultNoopAction,
		FireReset:        true,
		FireAction:       DefaultFireAction,
		FollowUpAction:   DefaultFollowUpAction,
		WarmupOnReset:    true,
		DownsampleStride: DefaultDownsampleStride,
	}
}

// Validate rejects settings the lifecycle engine cannot apply.
func (p LifecyclePolicy) Validate() error {
	if p.NoopMax < 0 {
		return fmt.Errorf("NoopMax must be >= 0, got %d", p.NoopMax)
	}
	if p.MaxEpisodeFrames < 0 {
		return fmt.Errorf("MaxEpisodeFrames must be >= 0, got %d", p.MaxEpisodeFrames)
	}
	if p.DownsampleStride < 0 {
		return fmt.Errorf("DownsampleStride must be >= 0, got %d", p.DownsampleStride)
	}
	return nil
}

// VecEnvConfig groups everything NewVecEnv needs.
type VecEnvConfig struct {
	NumEnvs   int    // number of slots (must be > 0)
	Kind      string // registered environment kind
	MaxFrames uint32 // per-episode frame budget (0 = unlimited); overrides Policy.MaxEpisodeFrames when set
	Grayscale bool
	Seed      int32 // slot i's environment receives Seed + i

	Workers      int           // pool size; 0 = NumEnvs
	Policy       LifecyclePolicy
	RoundTimeout time.Duration // 0 = wait indefinitely

	// Factory overrides the registry lookup for Kind (optional).
	Factory EnvFactory
	// Trace receives one record per slot per round (optional).
	Trace *trace.SimulationTrace
}

// NewVecEnvConfig returns a config with the default lifecycle policy and one
// worker per environment.
func NewVecEnvConfig(numEnvs int, kind string, maxFrames uint32, grayscale bool, seed int32) VecEnvConfig {
	return VecEnvConfig{
		NumEnvs:   numEnvs,
		Kind:      kind,
		MaxFrames: maxFrames,
		Grayscale: grayscale,
		Seed:      seed,
		Policy:    DefaultLifecyclePolicy(),
	}
}

func (c VecEnvConfig) validate() error {
	if c.NumEnvs <= 0 {
		return fmt.Errorf("NumEnvs must be > 0, got %d", c.NumEnvs)
	}
	if c.Workers < 0 {
		return fmt.Errorf("Workers must be >= 0, got %d", c.Workers)
	}
	if c.RoundTimeout < 0 {
		return fmt.Errorf("RoundTimeout must be >= 0, got %v", c.RoundTimeout)
	}
	return c.Policy.Validate()
}

// effectivePolicy folds MaxFrames into the policy frame budget.
func (c VecEnvConfig) effectivePolicy() LifecyclePolicy {
	p := c.Policy
	if c.MaxFrames > 0 {
		p.MaxEpisodeFrames = int(c.MaxFrames)
	}
	return p
}

func (c VecEnvConfig) poolSize() int {
	if c.Workers == 0 {
		return c.NumEnvs
	}
	return c.Workers
}
