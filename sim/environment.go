package sim

import (
	"fmt"
	"sort"
	"sync"
)

// StepOutcome is the result of advancing one environment by one action.
type StepOutcome struct {
	Reward    int
	Terminal  bool // the episode ended inside the environment (game over)
	Truncated bool // the environment cut the episode short on its own limits
	LifeLost  bool // a life was lost on this step; may coincide with Terminal
}

// Environment is a single stateful simulator instance.
//
// Implementations are NOT safe for concurrent use. They must be safe for
// exclusive use from any goroutine: the engine moves each environment between
// pool workers but never lets two of them touch it at once.
type Environment interface {
	// Reset starts a fresh episode.
	Reset() error
	// Step applies one action code and advances the simulator by one frame.
	Step(action int) (StepOutcome, error)
	// Observation returns the current screen. Dimensions are fixed for the
	// lifetime of the environment.
	Observation() Frame
	// ActionSet returns the ordered legal action codes.
	ActionSet() []int
	// Lives returns the remaining life count (0 for games without lives).
	Lives() int
	// Close releases simulator resources. No method may be called afterwards.
	Close() error
}

// EnvConfig describes how to build one environment.
type EnvConfig struct {
	Kind      string // registered environment kind, e.g. "breakout"
	Grayscale bool   // 1-channel observations instead of RGB
	Seed      int64  // simulator seed; the engine passes seed + slot index
}

// EnvFactory builds an environment from its config.
type EnvFactory func(cfg EnvConfig) (Environment, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]EnvFactory{}
)

// RegisterEnvironment makes an environment kind available to NewEnvironment.
// Sub-packages call it from init(). Registering a kind twice panics.
func RegisterEnvironment(kind string, factory EnvFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if factory == nil {
		panic("sim: RegisterEnvironment with nil factory for " + kind)
	}
	if _, dup := registry[kind]; dup {
		panic("sim: RegisterEnvironment called twice for " + kind)
	}
	registry[kind] = factory
}

// NewEnvironment builds an environment of the configured kind.
func NewEnvironment(cfg EnvConfig) (Environment, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownKind, cfg.Kind, EnvironmentKinds())
	}
	return factory(cfg)
}

// EnvironmentKinds lists registered kinds in sorted order.
func EnvironmentKinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func containsAction(set []int, action int) bool {
	for _, a := range set {
		if a == action {
			return true
		}
	}
	return false
}
