package sim

import (
	"errors"
	"math/rand"
	"sync"
)

var errSlotClosed = errors.New("environment closed")

// Slot owns one environment plus its lifecycle state, addressed by a stable
// index. Every operation takes the slot lock for its whole duration, so at
// most one worker touches the environment at a time and a concurrent caller
// blocks instead of racing. The lock is never held across rounds.
type Slot struct {
	mu sync.Mutex

	index       int
	env         Environment
	actionSpace []int // engine-wide action space used to validate caller actions
	policy      LifecyclePolicy
	rng         *rand.Rand // warmup draws; only used under mu

	lifeCount        int
	fireResetEnabled bool
	episodeFrames    int
	episodeScore     int
	closed           bool
}

func newSlot(index int, env Environment, actionSpace []int, policy LifecyclePolicy, rng *rand.Rand) *Slot {
	return &Slot{
		index:            index,
		env:              env,
		actionSpace:      actionSpace,
		policy:           policy,
		rng:              rng,
		lifeCount:        env.Lives(),
		fireResetEnabled: policy.FireReset && containsAction(env.ActionSet(), policy.FireAction),
	}
}

// Index returns the slot's position in the batch.
func (s *Slot) Index() int { return s.index }

// FireResetEnabled reports whether the scripted fire sequence runs for this slot.
func (s *Slot) FireResetEnabled() bool { return s.fireResetEnabled }

// Step runs one lifecycle-augmented step for action and reports the outcome.
func (s *Slot) Step(action int) StepReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.fault("step", errSlotClosed)
	}
	return s.stepLocked(action)
}

// Reset starts a fresh episode (plus warmup when configured) and reports the
// initial observation with zeroed reward and flags.
func (s *Slot) Reset() StepReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.fault("reset", errSlotClosed)
	}
	return s.resetLocked()
}

// Close releases the environment. Only called after the worker pool has been
// joined; repeated calls are no-ops.
func (s *Slot) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.env.Close(); err != nil {
		return slotFault(s.index, "close", err)
	}
	return nil
}

func (s *Slot) fault(op string, err error) StepReport {
	return StepReport{Slot: s.index, Err: slotFault(s.index, op, err)}
}

// finish fills the fields every successful report carries.
func (s *Slot) finish(r StepReport) StepReport {
	r.Lives = s.lifeCount
	r.EpisodeFrames = s.episodeFrames
	r.Observation = Downsample(s.env.Observation(), s.policy.DownsampleStride)
	return r
}
