package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalRounds      int // distinct rounds seen in round records
	StepRecords      int
	Faults           int
	LifeLosses       int
	Episodes         int
	Truncations      int
	MeanEpisodeScore float64
	MaxEpisodeScore  int
	RewardBySlot     map[int]int // slot index → summed step reward
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		RewardBySlot: make(map[int]int),
	}
	if st == nil {
		return summary
	}

	seen := make(map[int64]bool)
	for _, r := range st.Rounds {
		seen[r.Round] = true
		if r.Error != "" {
			summary.Faults++
			continue
		}
		if r.Kind != "step" {
			continue
		}
		summary.StepRecords++
		summary.RewardBySlot[r.Slot] += r.Reward
		if r.LifeLost {
			summary.LifeLosses++
		}
	}
	summary.TotalRounds = len(seen)

	if len(st.Episodes) > 0 {
		total := 0
		for i, e := range st.Episodes {
			total += e.Score
			if i == 0 || e.Score > summary.MaxEpisodeScore {
				summary.MaxEpisodeScore = e.Score
			}
			if e.Truncated {
				summary.Truncations++
			}
		}
		summary.Episodes = len(st.Episodes)
		summary.MeanEpisodeScore = float64(total) / float64(len(st.Episodes))
	}

	return summary
}
