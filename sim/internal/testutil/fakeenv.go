// Package testutil provides shared test infrastructure for the sim packages:
// a controllable fake environment and a fleet factory that records every
// environment it builds.
package testutil

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/inference-sim/vecenv/sim"
)

// ErrInjected is the error fake environments return for configured failures.
var ErrInjected = errors.New("injected failure")

// FakeConfig controls a FakeEnv. The zero value is an environment with
// actions {0, 1, 2, 3}, no lives and episodes that never end.
type FakeConfig struct {
	Actions       []int
	Lives         int // starting lives; terminal when they reach 0
	LifeLossEvery int // lose a life every k episode frames (0 = never)
	EpisodeLength int // terminal after this many episode frames (0 = never)
	TruncateAfter int // report Truncated after this many episode frames (0 = never)

	StepDelay    time.Duration
	FailAction   int // Step returns ErrInjected for this action when FailOnAction is set
	FailOnAction bool
	ResetErr     error
	PanicOnStep  bool
	CloseErr     error
}

// FakeEnv is a deterministic sim.Environment whose reward equals the action
// code. It counts concurrent entries so tests can detect unsynchronized access.
type FakeEnv struct {
	cfg  FakeConfig
	seed int64

	mu      sync.Mutex
	frame   int // frames in the current episode
	lives   int
	resets  int
	actions []int // every action received, warmup included
	closed  bool

	active  atomic.Int32
	overlap atomic.Bool
}

// NewFakeEnv builds a FakeEnv.
func NewFakeEnv(cfg FakeConfig, seed int64) *FakeEnv {
	if cfg.Actions == nil {
		cfg.Actions = []int{0, 1, 2, 3}
	}
	return &FakeEnv{cfg: cfg, seed: seed, lives: cfg.Lives}
}

func (e *FakeEnv) enter() func() {
	if e.active.Add(1) > 1 {
		e.overlap.Store(true)
	}
	return func() { e.active.Add(-1) }
}

func (e *FakeEnv) Reset() error {
	defer e.enter()()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.New("fake: reset after close")
	}
	if e.cfg.ResetErr != nil {
		return e.cfg.ResetErr
	}
	e.frame = 0
	e.lives = e.cfg.Lives
	e.resets++
	return nil
}

func (e *FakeEnv) Step(action int) (sim.StepOutcome, error) {
	defer e.enter()()
	if e.cfg.StepDelay > 0 {
		time.Sleep(e.cfg.StepDelay)
	}
	if e.cfg.PanicOnStep {
		panic(fmt.Sprintf("fake env %d exploded", e.seed))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return sim.StepOutcome{}, errors.New("fake: step after close")
	}
	if e.cfg.FailOnAction && action == e.cfg.FailAction {
		return sim.StepOutcome{}, fmt.Errorf("%w: action %d", ErrInjected, action)
	}
	e.actions = append(e.actions, action)
	e.frame++

	out := sim.StepOutcome{Reward: action}
	if e.cfg.LifeLossEvery > 0 && e.lives > 0 && e.frame%e.cfg.LifeLossEvery == 0 {
		e.lives--
		out.LifeLost = true
		if e.lives == 0 {
			out.Terminal = true
		}
	}
	if e.cfg.EpisodeLength > 0 && e.frame >= e.cfg.EpisodeLength {
		out.Terminal = true
	}
	if e.cfg.TruncateAfter > 0 && e.frame >= e.cfg.TruncateAfter {
		out.Truncated = true
	}
	return out, nil
}

// Observation encodes the fake's state: Pix[0] episode frame, Pix[1] lives,
// Pix[2] reset count, the rest the low byte of the seed.
func (e *FakeEnv) Observation() sim.Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	f := sim.NewFrame(4, 4, 1)
	for i := range f.Pix {
		f.Pix[i] = byte(e.seed)
	}
	f.Pix[0] = byte(e.frame)
	f.Pix[1] = byte(e.lives)
	f.Pix[2] = byte(e.resets)
	return f
}

func (e *FakeEnv) ActionSet() []int { return append([]int(nil), e.cfg.Actions...) }

func (e *FakeEnv) Lives() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lives
}

func (e *FakeEnv) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return e.cfg.CloseErr
}

// Seed returns the seed the environment was built with.
func (e *FakeEnv) Seed() int64 { return e.seed }

// Closed reports whether Close was called.
func (e *FakeEnv) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Resets returns how many times Reset succeeded.
func (e *FakeEnv) Resets() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resets
}

// Actions returns every action received so far, warmup steps included.
func (e *FakeEnv) Actions() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.actions...)
}

// Overlapped reports whether two goroutines were ever inside the env at once.
func (e *FakeEnv) Overlapped() bool { return e.overlap.Load() }

// FakeFleet is a sim.EnvFactory source that keeps every environment it builds,
// indexed by creation order (which equals slot index).
type FakeFleet struct {
	mu   sync.Mutex
	envs []*FakeEnv

	// Configure adjusts the config of the environment at index before it is built.
	Configure func(index int, cfg *FakeConfig)
	// FailCreateAt makes the factory fail for that index (-1 = never).
	FailCreateAt int

	base FakeConfig
}

// NewFakeFleet returns a fleet building environments from base.
func NewFakeFleet(base FakeConfig) *FakeFleet {
	return &FakeFleet{base: base, FailCreateAt: -1}
}

// Factory satisfies sim.EnvFactory.
func (f *FakeFleet) Factory(cfg sim.EnvConfig) (sim.Environment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	index := len(f.envs)
	if index == f.FailCreateAt {
		return nil, fmt.Errorf("%w: create %d", ErrInjected, index)
	}
	c := f.base
	if f.Configure != nil {
		f.Configure(index, &c)
	}
	env := NewFakeEnv(c, cfg.Seed)
	f.envs = append(f.envs, env)
	return env, nil
}

// Env returns the environment built for index.
func (f *FakeFleet) Env(index int) *FakeEnv {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.envs[index]
}

// Len returns how many environments were built.
func (f *FakeFleet) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.envs)
}
