// Package trace provides per-round trace recording for batch stepping analysis.
// This package has no dependencies on sim/; it stores pure data types.
package trace

// RoundRecord captures one slot's outcome in one round.
type RoundRecord struct {
	Round     int64  // 0-based round counter; resets share the counter with steps
	Kind      string // "reset" or "step"
	Slot      int
	Action    int // -1 for reset rounds
	Reward    int
	Terminal  bool
	Truncated bool
	LifeLost  bool
	Lives     int
	Error     string // empty when the slot succeeded
}

// EpisodeRecord captures an episode that finished during a step round.
type EpisodeRecord struct {
	Round     int64
	Slot      int
	Score     int
	Frames    int // frames charged to the episode, including the final one
	Truncated bool
}
