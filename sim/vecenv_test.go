package sim_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/vecenv/sim"
	"github.com/inference-sim/vecenv/sim/internal/testutil"
	"github.com/inference-sim/vecenv/sim/trace"
)

// plainPolicy disables warmup no-ops and the fire sequence so fake
// environments only see caller actions.
func plainPolicy() sim.LifecyclePolicy {
	p := sim.DefaultLifecyclePolicy()
	p.NoopMax = 0
	p.FireReset = false
	return p
}

// newFakeVecEnv builds a VecEnv over fleet with the plain policy. mutate may
// adjust the config before construction. The engine is closed on cleanup.
func newFakeVecEnv(t *testing.T, fleet *testutil.FakeFleet, numEnvs int, mutate func(*sim.VecEnvConfig)) *sim.VecEnv {
	t.Helper()
	cfg := sim.NewVecEnvConfig(numEnvs, "fake", 0, true, 10)
	cfg.Policy = plainPolicy()
	cfg.Factory = fleet.Factory
	if mutate != nil {
		mutate(&cfg)
	}
	v, err := sim.NewVecEnv(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })
	return v
}

func constActions(n, action int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = action
	}
	return out
}

func TestNewVecEnv_SeedsSlotsWithSeedPlusIndex(t *testing.T) {
	fleet := testutil.NewFakeFleet(testutil.FakeConfig{})
	v := newFakeVecEnv(t, fleet, 3, nil)

	require.Equal(t, 3, fleet.Len())
	for i := 0; i < 3; i++ {
		assert.Equal(t, int64(10+i), fleet.Env(i).Seed())
	}
	assert.Equal(t, 3, v.NumEnvs())
	assert.Equal(t, []int{0, 1, 2, 3}, v.ActionSpace())
}

func TestVecEnv_ObservationShape_IsDownsampled(t *testing.T) {
	fleet := testutil.NewFakeFleet(testutil.FakeConfig{})
	v := newFakeVecEnv(t, fleet, 2, nil)

	h, w, c := v.ObservationShape()
	assert.Equal(t, [3]int{2, 2, 1}, [3]int{h, w, c})

	result, err := v.Reset()
	require.NoError(t, err)
	for _, r := range result {
		assert.Equal(t, h, r.Observation.Height)
		assert.Equal(t, w, r.Observation.Width)
		assert.Len(t, r.Observation.Pix, h*w*c)
	}
}

func TestVecEnv_ActionSpace_ReturnsCopy(t *testing.T) {
	fleet := testutil.NewFakeFleet(testutil.FakeConfig{})
	v := newFakeVecEnv(t, fleet, 1, nil)

	space := v.ActionSpace()
	space[0] = 99
	assert.Equal(t, 0, v.ActionSpace()[0])
}

// Reports must land in slot order whatever order the workers finish in,
// for pools smaller than, equal to and larger than the batch.
func TestVecEnv_Step_PreservesSlotOrder(t *testing.T) {
	const n = 5
	for _, workers := range []int{1, 3, n, 8} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			// GIVEN slots that finish in reverse index order
			fleet := testutil.NewFakeFleet(testutil.FakeConfig{})
			fleet.Configure = func(i int, c *testutil.FakeConfig) {
				c.StepDelay = time.Duration(n-i) * time.Millisecond
			}
			v := newFakeVecEnv(t, fleet, n, func(c *sim.VecEnvConfig) { c.Workers = workers })
			_, err := v.Reset()
			require.NoError(t, err)

			// WHEN every slot gets a distinct action
			actions := []int{3, 1, 0, 2, 3}
			result, err := v.Step(actions)
			require.NoError(t, err)

			// THEN report i belongs to slot i and reflects action i
			require.Len(t, result, n)
			assert.NoError(t, result.Err())
			assert.Equal(t, actions, result.Rewards())
			for i, r := range result {
				assert.Equal(t, i, r.Slot)
				// downsampled pixel 3 carries the low byte of the slot's seed
				assert.Equal(t, byte(10+i), r.Observation.Pix[3], "slot %d observation", i)
				assert.Equal(t, []int{actions[i]}, fleet.Env(i).Actions())
			}
			assert.Equal(t, workers, v.PoolStats().Size)
		})
	}
}

func TestVecEnv_Step_WrongLength_RejectedBeforeDispatch(t *testing.T) {
	fleet := testutil.NewFakeFleet(testutil.FakeConfig{})
	v := newFakeVecEnv(t, fleet, 4, nil)
	before := v.PoolStats().Submitted

	for _, actions := range [][]int{nil, {0, 0, 0}, {0, 0, 0, 0, 0}} {
		result, err := v.Step(actions)
		assert.True(t, errors.Is(err, sim.ErrShapeMismatch), "len %d", len(actions))
		assert.Nil(t, result)
	}

	assert.Equal(t, before, v.PoolStats().Submitted)
	for i := 0; i < 4; i++ {
		assert.Empty(t, fleet.Env(i).Actions())
	}
}

func TestVecEnv_Step_InvalidAction_FaultsOnlyThatSlot(t *testing.T) {
	// GIVEN an action set {0,1,2,3}
	fleet := testutil.NewFakeFleet(testutil.FakeConfig{})
	v := newFakeVecEnv(t, fleet, 3, nil)
	_, err := v.Reset()
	require.NoError(t, err)

	// WHEN slot 1 receives an action outside it
	result, err := v.Step([]int{1, 9, 2})

	// THEN the round succeeds and only slot 1 carries ErrInvalidAction
	require.NoError(t, err)
	require.Len(t, result, 3)
	assert.NoError(t, result[0].Err)
	assert.NoError(t, result[2].Err)
	assert.True(t, errors.Is(result[1].Err, sim.ErrInvalidAction))
	assert.True(t, errors.Is(result[1].Err, sim.ErrSlotFault))
	assert.Empty(t, fleet.Env(1).Actions(), "invalid action must not reach the environment")
	assert.Equal(t, 1, result[0].Reward)
	assert.Equal(t, 2, result[2].Reward)
}

func TestVecEnv_Step_EnvironmentError_IsIsolated(t *testing.T) {
	fleet := testutil.NewFakeFleet(testutil.FakeConfig{})
	fleet.Configure = func(i int, c *testutil.FakeConfig) {
		if i == 2 {
			c.FailOnAction = true
			c.FailAction = 3
		}
	}
	v := newFakeVecEnv(t, fleet, 4, func(c *sim.VecEnvConfig) { c.Workers = 2 })
	_, err := v.Reset()
	require.NoError(t, err)

	result, err := v.Step(constActions(4, 3))
	require.NoError(t, err)
	for i, r := range result {
		if i == 2 {
			assert.True(t, errors.Is(r.Err, testutil.ErrInjected))
			var se *sim.SlotError
			require.True(t, errors.As(r.Err, &se))
			assert.Equal(t, 2, se.Slot)
			continue
		}
		assert.NoError(t, r.Err)
		assert.Equal(t, 3, r.Reward)
	}

	// the faulted slot keeps working with a different action
	result, err = v.Step(constActions(4, 0))
	require.NoError(t, err)
	assert.NoError(t, result.Err())
	assert.Equal(t, int64(1), v.Metrics().Faults)
}

func TestVecEnv_Step_PanickingEnvironment_BecomesSlotFault(t *testing.T) {
	fleet := testutil.NewFakeFleet(testutil.FakeConfig{})
	fleet.Configure = func(i int, c *testutil.FakeConfig) { c.PanicOnStep = i == 1 }
	v := newFakeVecEnv(t, fleet, 3, nil)
	_, err := v.Reset()
	require.NoError(t, err)

	result, err := v.Step(constActions(3, 2))

	require.NoError(t, err)
	require.Len(t, result, 3)
	var se *sim.SlotError
	require.True(t, errors.As(result[1].Err, &se))
	assert.Equal(t, "panic", se.Op)
	assert.NoError(t, result[0].Err)
	assert.NoError(t, result[2].Err)
}

func TestVecEnv_Reset_Error_IsSlotFault(t *testing.T) {
	fleet := testutil.NewFakeFleet(testutil.FakeConfig{})
	fleet.Configure = func(i int, c *testutil.FakeConfig) {
		if i == 0 {
			c.ResetErr = testutil.ErrInjected
		}
	}
	v := newFakeVecEnv(t, fleet, 2, nil)

	result, err := v.Reset()

	require.NoError(t, err)
	assert.True(t, errors.Is(result[0].Err, testutil.ErrInjected))
	assert.NoError(t, result[1].Err)
}

func TestVecEnv_RoundTimeout_ThenRecovers(t *testing.T) {
	// GIVEN one slow slot and a round timeout shorter than its step
	fleet := testutil.NewFakeFleet(testutil.FakeConfig{})
	fleet.Configure = func(i int, c *testutil.FakeConfig) {
		if i == 0 {
			c.StepDelay = 150 * time.Millisecond
		}
	}
	v := newFakeVecEnv(t, fleet, 3, func(c *sim.VecEnvConfig) { c.RoundTimeout = 20 * time.Millisecond })
	_, err := v.Reset()
	require.NoError(t, err)

	// WHEN a step round is run
	result, err := v.Step(constActions(3, 1))

	// THEN the round fails with ErrTimeout
	assert.True(t, errors.Is(err, sim.ErrTimeout))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Nil(t, result)
	assert.Equal(t, int64(1), v.Metrics().Timeouts)

	// AND once the abandoned unit finishes the next round completes
	assert.Eventually(t, func() bool { return len(fleet.Env(0).Actions()) == 1 }, 2*time.Second, 5*time.Millisecond)
	result, err = v.Reset()
	require.NoError(t, err)
	assert.NoError(t, result.Err())
	assert.Equal(t, []int{1}, fleet.Env(0).Actions())
	assert.False(t, fleet.Env(0).Overlapped())
}

func TestVecEnv_RoundAfterTimeout_HonorsItsOwnDeadline(t *testing.T) {
	// GIVEN slot 0 stuck far longer than the round timeout
	fleet := testutil.NewFakeFleet(testutil.FakeConfig{})
	fleet.Configure = func(i int, c *testutil.FakeConfig) {
		if i == 0 {
			c.StepDelay = 400 * time.Millisecond
		}
	}
	v := newFakeVecEnv(t, fleet, 3, func(c *sim.VecEnvConfig) { c.RoundTimeout = 30 * time.Millisecond })
	_, err := v.Step(constActions(3, 1))
	require.True(t, errors.Is(err, sim.ErrTimeout))

	// WHEN the next round starts while the unit is still running
	start := time.Now()
	_, err = v.Step(constActions(3, 2))
	elapsed := time.Since(start)

	// THEN it times out within its own budget and dispatches nothing
	assert.True(t, errors.Is(err, sim.ErrTimeout))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, elapsed, 200*time.Millisecond)
	for i := 1; i < 3; i++ {
		assert.Equal(t, []int{1}, fleet.Env(i).Actions(), "slot %d must not receive the undispatched round", i)
	}
	assert.Equal(t, int64(2), v.Metrics().Timeouts)

	// AND once the stuck unit finishes, rounds work again
	assert.Eventually(t, func() bool { return len(fleet.Env(0).Actions()) == 1 }, 2*time.Second, 10*time.Millisecond)
	result, err := v.Reset()
	require.NoError(t, err)
	assert.NoError(t, result.Err())
	assert.False(t, fleet.Env(0).Overlapped())
}

func TestVecEnv_StepContext_Cancelled(t *testing.T) {
	fleet := testutil.NewFakeFleet(testutil.FakeConfig{StepDelay: 50 * time.Millisecond})
	v := newFakeVecEnv(t, fleet, 2, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.StepContext(ctx, constActions(2, 0))

	assert.True(t, errors.Is(err, sim.ErrTimeout))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestVecEnv_Close_ClosesEveryEnvironmentOnce(t *testing.T) {
	fleet := testutil.NewFakeFleet(testutil.FakeConfig{})
	v := newFakeVecEnv(t, fleet, 4, func(c *sim.VecEnvConfig) { c.Workers = 2 })
	_, err := v.Step(constActions(4, 0))
	require.NoError(t, err)

	require.NoError(t, v.Close())
	require.NoError(t, v.Close(), "second Close is a no-op")

	for i := 0; i < 4; i++ {
		assert.True(t, fleet.Env(i).Closed(), "env %d", i)
	}
	_, err = v.Step(constActions(4, 0))
	assert.True(t, errors.Is(err, sim.ErrPoolClosed))
	_, err = v.Reset()
	assert.True(t, errors.Is(err, sim.ErrPoolClosed))
}

func TestVecEnv_Close_JoinsEnvironmentErrors(t *testing.T) {
	fleet := testutil.NewFakeFleet(testutil.FakeConfig{})
	fleet.Configure = func(i int, c *testutil.FakeConfig) {
		if i == 1 {
			c.CloseErr = testutil.ErrInjected
		}
	}
	v := newFakeVecEnv(t, fleet, 3, nil)

	err := v.Close()

	assert.True(t, errors.Is(err, testutil.ErrInjected))
	assert.True(t, errors.Is(err, sim.ErrSlotFault))
	assert.True(t, fleet.Env(2).Closed(), "a failing close does not stop the others")
}

func TestNewVecEnv_FactoryFailure_ClosesCreatedEnvironments(t *testing.T) {
	fleet := testutil.NewFakeFleet(testutil.FakeConfig{})
	fleet.FailCreateAt = 2
	cfg := sim.NewVecEnvConfig(4, "fake", 0, true, 0)
	cfg.Factory = fleet.Factory

	v, err := sim.NewVecEnv(cfg)

	assert.Nil(t, v)
	assert.True(t, errors.Is(err, testutil.ErrInjected))
	require.Equal(t, 2, fleet.Len())
	assert.True(t, fleet.Env(0).Closed())
	assert.True(t, fleet.Env(1).Closed())
}

func TestNewVecEnv_EmptyActionSet_Fails(t *testing.T) {
	fleet := testutil.NewFakeFleet(testutil.FakeConfig{Actions: []int{}})
	cfg := sim.NewVecEnvConfig(2, "fake", 0, true, 0)
	cfg.Factory = fleet.Factory

	_, err := sim.NewVecEnv(cfg)

	assert.Error(t, err)
	assert.True(t, fleet.Env(0).Closed())
	assert.True(t, fleet.Env(1).Closed())
}

func TestNewVecEnv_UnknownKind(t *testing.T) {
	_, err := sim.New(2, "no-such-game", 0, true, 0)
	assert.True(t, errors.Is(err, sim.ErrUnknownKind))
}

func TestNewVecEnv_InvalidConfig(t *testing.T) {
	cfg := sim.NewVecEnvConfig(0, "fake", 0, true, 0)
	cfg.Factory = testutil.NewFakeFleet(testutil.FakeConfig{}).Factory
	_, err := sim.NewVecEnv(cfg)
	assert.Error(t, err)
}

// Concurrent callers are serialized into whole rounds: no environment is
// ever entered by two workers at once and every round is counted.
func TestVecEnv_ConcurrentCallers_NeverOverlapASlot(t *testing.T) {
	const n, callers, rounds = 6, 3, 20
	fleet := testutil.NewFakeFleet(testutil.FakeConfig{StepDelay: 100 * time.Microsecond})
	v := newFakeVecEnv(t, fleet, n, func(c *sim.VecEnvConfig) { c.Workers = 4 })

	var wg sync.WaitGroup
	errs := make(chan error, callers*rounds)
	for c := 0; c < callers; c++ {
		wg.Add(1)
		go func(action int) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				result, err := v.Step(constActions(n, action))
				if err == nil {
					err = result.Err()
				}
				if err != nil {
					errs <- err
				}
			}
		}(c)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	for i := 0; i < n; i++ {
		assert.False(t, fleet.Env(i).Overlapped(), "env %d entered concurrently", i)
		assert.Len(t, fleet.Env(i).Actions(), callers*rounds)
	}
	m := v.Metrics()
	assert.Equal(t, int64(callers*rounds), m.Rounds)
	assert.Equal(t, int64(n*callers*rounds), m.Steps)
	stats := v.PoolStats()
	assert.Equal(t, uint64(n*callers*rounds), stats.Submitted)
	assert.Equal(t, stats.Submitted, stats.Completed)
}

func TestVecEnv_Trace_RecordsRoundsAndEpisodes(t *testing.T) {
	// GIVEN a rounds-level trace and 3-frame episodes
	st := trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelRounds})
	fleet := testutil.NewFakeFleet(testutil.FakeConfig{EpisodeLength: 3})
	v := newFakeVecEnv(t, fleet, 2, func(c *sim.VecEnvConfig) { c.Trace = st })

	// WHEN one reset and three steps run
	_, err := v.Reset()
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := v.Step([]int{1, 2})
		require.NoError(t, err)
	}

	// THEN every slot of every round is recorded and both episodes are logged
	require.Len(t, st.Rounds, 8)
	assert.Equal(t, "reset", st.Rounds[0].Kind)
	assert.Equal(t, -1, st.Rounds[0].Action)
	last := st.Rounds[7]
	assert.Equal(t, trace.RoundRecord{Round: 3, Kind: "step", Slot: 1, Action: 2, Reward: 2, Terminal: true}, last)

	require.Len(t, st.Episodes, 2)
	assert.Equal(t, trace.EpisodeRecord{Round: 3, Slot: 0, Score: 3, Frames: 3}, st.Episodes[0])
	assert.Equal(t, trace.EpisodeRecord{Round: 3, Slot: 1, Score: 6, Frames: 3}, st.Episodes[1])

	summary := trace.Summarize(st)
	assert.Equal(t, 2, summary.Episodes)
}

func BenchmarkVecEnv_Step(b *testing.B) {
	fleet := testutil.NewFakeFleet(testutil.FakeConfig{})
	cfg := sim.NewVecEnvConfig(16, "fake", 0, true, 0)
	cfg.Policy = plainPolicy()
	cfg.Factory = fleet.Factory
	cfg.Workers = 4
	v, err := sim.NewVecEnv(cfg)
	if err != nil {
		b.Fatal(err)
	}
	defer v.Close()
	actions := constActions(16, 1)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := v.Step(actions); err != nil {
			b.Fatal(err)
		}
	}
}
