// Tracks batch-wide stepping statistics such as rounds, frames, episodes and
// per-slot faults.

package sim

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Metrics aggregates statistics about the batch engine for final reporting.
// Updated only by the collecting goroutine, between rounds.
type Metrics struct {
	Rounds      int64 // completed Step rounds
	Resets      int64 // completed Reset rounds
	Steps       int64 // successful slot steps (one per slot per Step round)
	Episodes    int64 // episodes finished (terminal or truncated)
	Truncations int64 // episodes finished by truncation
	LifeLosses  int64 // rounds reporting LifeLost
	Faults      int64 // slot reports carrying an error
	Timeouts    int64 // rounds abandoned by ErrTimeout
	TotalReward int64

	EpisodeScores []int // score of every finished episode, in completion order
}

// NewMetrics returns an empty Metrics.
func NewMetrics() *Metrics {
	return &Metrics{EpisodeScores: make([]int, 0)}
}

func (m *Metrics) recordRound(result BatchResult, reset bool) {
	if reset {
		m.Resets++
	} else {
		m.Rounds++
	}
	for _, r := range result {
		if r.Err != nil {
			m.Faults++
			continue
		}
		if reset {
			continue
		}
		m.Steps++
		m.TotalReward += int64(r.Reward)
		if r.LifeLost {
			m.LifeLosses++
		}
		if r.EpisodeDone {
			m.Episodes++
			m.EpisodeScores = append(m.EpisodeScores, r.EpisodeScore)
			if r.Truncated {
				m.Truncations++
			}
		}
	}
}

// clone returns a deep copy safe to hand to callers.
func (m *Metrics) clone() Metrics {
	c := *m
	c.EpisodeScores = append([]int(nil), m.EpisodeScores...)
	return c
}

// MeanEpisodeScore returns the mean finished-episode score, or 0 when none finished.
func (m *Metrics) MeanEpisodeScore() float64 {
	if len(m.EpisodeScores) == 0 {
		return 0
	}
	sum := 0
	for _, s := range m.EpisodeScores {
		sum += s
	}
	return float64(sum) / float64(len(m.EpisodeScores))
}

// MaxEpisodeScore returns the best finished-episode score, or 0 when none finished.
func (m *Metrics) MaxEpisodeScore() int {
	best := 0
	for i, s := range m.EpisodeScores {
		if i == 0 || s > best {
			best = s
		}
	}
	return best
}

// MetricsOutput is the JSON shape written by SaveResults.
type MetricsOutput struct {
	RunID            string  `json:"run_id,omitempty"`
	Rounds           int64   `json:"rounds"`
	Steps            int64   `json:"steps"`
	Episodes         int64   `json:"episodes"`
	Truncations      int64   `json:"truncations"`
	LifeLosses       int64   `json:"life_losses"`
	Faults           int64   `json:"faults"`
	Timeouts         int64   `json:"timeouts"`
	TotalReward      int64   `json:"total_reward"`
	MeanEpisodeScore float64 `json:"mean_episode_score"`
	MaxEpisodeScore  int     `json:"max_episode_score"`
	ElapsedS         float64 `json:"elapsed_s"`
	StepsPerSec      float64 `json:"steps_per_sec"`
}

// Output builds the JSON summary for the given wall-clock duration.
func (m *Metrics) Output(runID string, elapsed time.Duration) MetricsOutput {
	out := MetricsOutput{
		RunID:            runID,
		Rounds:           m.Rounds,
		Steps:            m.Steps,
		Episodes:         m.Episodes,
		Truncations:      m.Truncations,
		LifeLosses:       m.LifeLosses,
		Faults:           m.Faults,
		Timeouts:         m.Timeouts,
		TotalReward:      m.TotalReward,
		MeanEpisodeScore: m.MeanEpisodeScore(),
		MaxEpisodeScore:  m.MaxEpisodeScore(),
		ElapsedS:         elapsed.Seconds(),
	}
	if elapsed > 0 {
		out.StepsPerSec = float64(m.Steps) / elapsed.Seconds()
	}
	return out
}

// SaveResults prints the summary to stdout and, when outputPath is set, also
// writes it there as JSON.
func (m *Metrics) SaveResults(runID string, startTime time.Time, outputPath string) {
	out := m.Output(runID, time.Since(startTime))
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		logrus.Fatalf("Error marshalling metrics: %v", err)
	}
	fmt.Println("=== Simulation Metrics ===")
	fmt.Println(string(data))

	if outputPath != "" {
		if err := os.WriteFile(outputPath, data, 0644); err != nil {
			logrus.Fatalf("Error writing metrics to '%s': %v", outputPath, err)
		}
		logrus.Debugf("Successfully wrote to '%s'\n", outputPath)
	}
}
