package sim

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordRound_CountsStepOutcomes(t *testing.T) {
	// GIVEN one step round with a fault, a life loss and a truncated episode
	m := NewMetrics()
	result := BatchResult{
		{Slot: 0, Reward: 3, LifeLost: true},
		{Slot: 1, Reward: -1, Truncated: true, EpisodeDone: true, EpisodeScore: 12},
		{Slot: 2, Err: slotFault(2, "step", ErrInvalidAction)},
		{Slot: 3, Reward: 1, Terminal: true, EpisodeDone: true, EpisodeScore: -4},
	}

	// WHEN it is recorded
	m.recordRound(result, false)

	// THEN each counter reflects the reports
	assert.Equal(t, int64(1), m.Rounds)
	assert.Equal(t, int64(0), m.Resets)
	assert.Equal(t, int64(3), m.Steps)
	assert.Equal(t, int64(3), m.TotalReward)
	assert.Equal(t, int64(1), m.LifeLosses)
	assert.Equal(t, int64(1), m.Faults)
	assert.Equal(t, int64(2), m.Episodes)
	assert.Equal(t, int64(1), m.Truncations)
	assert.Equal(t, []int{12, -4}, m.EpisodeScores)
}

func TestMetrics_RecordRound_ResetOnlyCountsResetsAndFaults(t *testing.T) {
	m := NewMetrics()
	m.recordRound(BatchResult{
		{Slot: 0, Reward: 9, EpisodeDone: true},
		{Slot: 1, Err: slotFault(1, "reset", ErrSlotFault)},
	}, true)

	assert.Equal(t, int64(1), m.Resets)
	assert.Equal(t, int64(0), m.Rounds)
	assert.Equal(t, int64(0), m.Steps)
	assert.Equal(t, int64(0), m.Episodes)
	assert.Equal(t, int64(1), m.Faults)
}

func TestMetrics_EpisodeScoreStats(t *testing.T) {
	m := NewMetrics()
	assert.Equal(t, 0.0, m.MeanEpisodeScore())
	assert.Equal(t, 0, m.MaxEpisodeScore())

	m.EpisodeScores = []int{-21, -19, -20}
	assert.InDelta(t, -20.0, m.MeanEpisodeScore(), 1e-9)
	assert.Equal(t, -19, m.MaxEpisodeScore(), "max must handle all-negative scores")
}

func TestMetrics_Clone_IsIndependent(t *testing.T) {
	m := NewMetrics()
	m.EpisodeScores = append(m.EpisodeScores, 5)
	c := m.clone()
	m.EpisodeScores[0] = 99
	assert.Equal(t, []int{5}, c.EpisodeScores)
}

func TestMetrics_SaveResults_WritesJSON(t *testing.T) {
	m := NewMetrics()
	m.Rounds = 10
	m.Steps = 40
	m.EpisodeScores = []int{2, 4}
	path := filepath.Join(t.TempDir(), "metrics.json")

	m.SaveResults("run-1", time.Now().Add(-time.Second), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var out MetricsOutput
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "run-1", out.RunID)
	assert.Equal(t, int64(40), out.Steps)
	assert.InDelta(t, 3.0, out.MeanEpisodeScore, 1e-9)
	assert.Equal(t, 4, out.MaxEpisodeScore)
	assert.Greater(t, out.StepsPerSec, 0.0)
}
