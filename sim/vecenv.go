package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/vecenv/sim/trace"
)

// VecEnv drives N environment slots in lock-step. Each round fans out one
// unit of work per slot to a fixed worker pool and fans the reports back in,
// ordered by slot index regardless of completion order.
//
// VecEnv methods may be called from multiple goroutines but rounds are
// serialized: round K's reports are fully collected before any unit of round
// K+1 is submitted.
type VecEnv struct {
	mu sync.Mutex // serializes rounds and Close

	slots       []*Slot
	pool        *WorkerPool
	actionSpace []int
	obsHeight   int
	obsWidth    int
	obsChannels int
	timeout     time.Duration

	// inflight tracks the units of the last dispatched round. A round that
	// timed out leaves units running; abandoned is closed once they finish
	// and is nil when no round was abandoned.
	inflight  *sync.WaitGroup
	abandoned chan struct{}

	round   int64 // rounds dispatched so far (steps and resets)
	metrics *Metrics
	trace   *trace.SimulationTrace
	closed  bool
}

// New builds a VecEnv with the default lifecycle policy and one worker per
// environment. Slot i's environment is seeded with seed + i.
func New(numEnvs int, kind string, maxFrames uint32, grayscale bool, seed int32) (*VecEnv, error) {
	return NewVecEnv(NewVecEnvConfig(numEnvs, kind, maxFrames, grayscale, seed))
}

// NewVecEnv builds every environment, the worker pool and the slots. Any
// failure closes what was already created and is returned before a slot is
// usable.
func NewVecEnv(cfg VecEnvConfig) (*VecEnv, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid vecenv config: %w", err)
	}
	factory := cfg.Factory
	if factory == nil {
		factory = NewEnvironment
	}

	envs := make([]Environment, 0, cfg.NumEnvs)
	closeAll := func() {
		for _, e := range envs {
			if err := e.Close(); err != nil {
				logrus.Warnf("closing environment after failed construction: %v", err)
			}
		}
	}
	for i := 0; i < cfg.NumEnvs; i++ {
		env, err := factory(EnvConfig{
			Kind:      cfg.Kind,
			Grayscale: cfg.Grayscale,
			Seed:      RunSeed(cfg.Seed).EnvSeed(i),
		})
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("creating environment %d (%s): %w", i, cfg.Kind, err)
		}
		envs = append(envs, env)
	}

	actionSpace := append([]int(nil), envs[0].ActionSet()...)
	if len(actionSpace) == 0 {
		closeAll()
		return nil, fmt.Errorf("environment kind %s has an empty action set", cfg.Kind)
	}

	pool, err := NewWorkerPool(cfg.poolSize(), cfg.NumEnvs)
	if err != nil {
		closeAll()
		return nil, err
	}

	policy := cfg.effectivePolicy()
	rng := NewPartitionedRNG(RunSeed(cfg.Seed))
	slots := make([]*Slot, cfg.NumEnvs)
	for i, env := range envs {
		slots[i] = newSlot(i, env, actionSpace, policy, rng.ForSlot(i))
	}

	first := envs[0].Observation()
	h, w := DownsampledSize(first.Height, first.Width, policy.DownsampleStride)

	logrus.Infof("vecenv: %d x %s, %d workers, seed=%d, max_frames=%d, obs=%dx%dx%d, actions=%v",
		cfg.NumEnvs, cfg.Kind, pool.Size(), cfg.Seed, policy.MaxEpisodeFrames, h, w, first.Channels, actionSpace)

	return &VecEnv{
		slots:       slots,
		pool:        pool,
		actionSpace: actionSpace,
		obsHeight:   h,
		obsWidth:    w,
		obsChannels: first.Channels,
		timeout:     cfg.RoundTimeout,
		inflight:    &sync.WaitGroup{},
		metrics:     NewMetrics(),
		trace:       cfg.Trace,
	}, nil
}

// NumEnvs returns the number of slots.
func (v *VecEnv) NumEnvs() int { return len(v.slots) }

// ActionSpace returns a copy of the legal action codes, fixed at construction.
func (v *VecEnv) ActionSpace() []int {
	return append([]int(nil), v.actionSpace...)
}

// ObservationShape returns the (height, width, channels) of every observation.
func (v *VecEnv) ObservationShape() (int, int, int) {
	return v.obsHeight, v.obsWidth, v.obsChannels
}

// Slot returns the slot at index. Intended for inspection between rounds.
func (v *VecEnv) Slot(index int) *Slot { return v.slots[index] }

// PoolStats returns the worker pool counters.
func (v *VecEnv) PoolStats() PoolStats { return v.pool.Stats() }

// Metrics returns a snapshot of the engine's counters.
func (v *VecEnv) Metrics() Metrics {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.metrics.clone()
}

// Reset resets every slot and returns the initial observations.
func (v *VecEnv) Reset() (BatchResult, error) {
	return v.ResetContext(context.Background())
}

// ResetContext is Reset bounded by ctx and the configured round timeout.
func (v *VecEnv) ResetContext(ctx context.Context) (BatchResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil, ErrPoolClosed
	}
	result, err := v.runRound(ctx, func(s *Slot) StepReport { return s.Reset() })
	if err != nil {
		return nil, err
	}
	v.record(result, nil)
	return result, nil
}

// Step submits one action per slot and returns the reports in slot order.
// A wrong-length action batch is rejected with ErrShapeMismatch before any
// work is dispatched.
func (v *VecEnv) Step(actions []int) (BatchResult, error) {
	return v.StepContext(context.Background(), actions)
}

// StepContext is Step bounded by ctx and the configured round timeout.
func (v *VecEnv) StepContext(ctx context.Context, actions []int) (BatchResult, error) {
	if len(actions) != len(v.slots) {
		return nil, fmt.Errorf("%w: got %d actions for %d environments", ErrShapeMismatch, len(actions), len(v.slots))
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil, ErrPoolClosed
	}
	batch := append([]int(nil), actions...)
	result, err := v.runRound(ctx, func(s *Slot) StepReport { return s.Step(batch[s.Index()]) })
	if err != nil {
		return nil, err
	}
	v.record(result, batch)
	return result, nil
}

// runRound dispatches work for every slot and collects exactly one report per
// slot. Caller holds v.mu.
func (v *VecEnv) runRound(ctx context.Context, work func(*Slot) StepReport) (BatchResult, error) {
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	// Units from an abandoned round still own their slots. Waiting for them
	// counts against this round's deadline; nothing is dispatched until they
	// are done.
	if err := v.awaitAbandoned(ctx); err != nil {
		v.metrics.Timeouts++
		logrus.Warnf("round %d: slots still busy with an abandoned round: %v", v.round, err)
		return nil, fmt.Errorf("%w: round %d not dispatched, slots still busy with an abandoned round: %w", ErrTimeout, v.round, err)
	}
	v.inflight.Wait()

	n := len(v.slots)
	reports := make(chan StepReport, n)
	inflight := &sync.WaitGroup{}
	v.inflight = inflight
	round := v.round
	v.round++

	for _, slot := range v.slots {
		inflight.Add(1)
		err := v.pool.Submit(func() {
			defer inflight.Done()
			reports <- runUnit(slot, work)
		})
		if err != nil {
			inflight.Done()
			reports <- StepReport{Slot: slot.Index(), Err: slotFault(slot.Index(), "dispatch", err)}
		}
	}

	result := make(BatchResult, n)
	for received := 0; received < n; received++ {
		select {
		case r := <-reports:
			result[r.Slot] = r
			if r.Err != nil {
				logrus.Warnf("round %d: %v", round, r.Err)
			}
		case <-ctx.Done():
			v.metrics.Timeouts++
			v.abandoned = make(chan struct{})
			go func(done chan struct{}) {
				inflight.Wait()
				close(done)
			}(v.abandoned)
			logrus.Warnf("round %d: collected %d of %d reports before %v", round, received, n, ctx.Err())
			return nil, fmt.Errorf("%w: round %d collected %d of %d reports: %w", ErrTimeout, round, received, n, ctx.Err())
		}
	}
	return result, nil
}

// awaitAbandoned blocks until the units of an abandoned round have finished
// or ctx is done. Caller holds v.mu.
func (v *VecEnv) awaitAbandoned(ctx context.Context) error {
	if v.abandoned == nil {
		return nil
	}
	select {
	case <-v.abandoned:
		v.abandoned = nil
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runUnit converts a panicking environment into a fault on its own report so
// the round still collects N reports.
func runUnit(slot *Slot, work func(*Slot) StepReport) (r StepReport) {
	defer func() {
		if p := recover(); p != nil {
			r = StepReport{Slot: slot.Index(), Err: slotFault(slot.Index(), "panic", fmt.Errorf("%v", p))}
		}
	}()
	return work(slot)
}

// record updates metrics and the trace. actions is nil for reset rounds.
func (v *VecEnv) record(result BatchResult, actions []int) {
	reset := actions == nil
	v.metrics.recordRound(result, reset)
	if v.trace == nil {
		return
	}
	round := v.round - 1
	kind := "step"
	if reset {
		kind = "reset"
	}
	for i, r := range result {
		action := -1
		if !reset {
			action = actions[i]
		}
		rec := trace.RoundRecord{
			Round:     round,
			Kind:      kind,
			Slot:      r.Slot,
			Action:    action,
			Reward:    r.Reward,
			Terminal:  r.Terminal,
			Truncated: r.Truncated,
			LifeLost:  r.LifeLost,
			Lives:     r.Lives,
		}
		if r.Err != nil {
			rec.Error = r.Err.Error()
		}
		v.trace.RecordRound(rec)
		if !reset && r.EpisodeDone {
			v.trace.RecordEpisode(trace.EpisodeRecord{
				Round:     round,
				Slot:      r.Slot,
				Score:     r.EpisodeScore,
				Frames:    r.EpisodeLength,
				Truncated: r.Truncated,
			})
		}
	}
}

// Close joins the worker pool, then closes every slot's environment. Later
// rounds return ErrPoolClosed. Safe to call more than once.
func (v *VecEnv) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true
	v.inflight.Wait()
	v.pool.Close()

	var errs []error
	for _, s := range v.slots {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	logrus.Debugf("vecenv: closed %d environments", len(v.slots))
	return errors.Join(errs...)
}
