package sim

import "errors"

// StepReport is one slot's outcome for one round.
type StepReport struct {
	Slot        int
	Observation Frame // downsampled; post-reset frame when the episode ended this round
	Reward      int
	Terminal    bool
	Truncated   bool
	LifeLost    bool

	Lives         int // lives remaining after the round's lifecycle handling
	EpisodeFrames int // frames charged to the current episode after the round
	// EpisodeDone is set when the environment really finished an episode this
	// round (terminal or truncated), independent of LifeLossAsTerminal folding.
	EpisodeDone bool
	// EpisodeScore and EpisodeLength describe the episode that ended this
	// round. Only meaningful when EpisodeDone is set.
	EpisodeScore  int
	EpisodeLength int

	Err error // non-nil when the slot faulted; other fields are zero
}

// BatchResult holds exactly one report per slot, ordered by slot index.
type BatchResult []StepReport

// Rewards returns the per-slot rewards in slot order.
func (b BatchResult) Rewards() []int {
	out := make([]int, len(b))
	for i, r := range b {
		out[i] = r.Reward
	}
	return out
}

// Observations returns the per-slot observations in slot order.
func (b BatchResult) Observations() []Frame {
	out := make([]Frame, len(b))
	for i, r := range b {
		out[i] = r.Observation
	}
	return out
}

// Err joins the per-slot errors, or returns nil when every slot succeeded.
func (b BatchResult) Err() error {
	var errs []error
	for _, r := range b {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}
