package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// stepLocked is the per-slot step logic. Caller holds s.mu.
//
//  1. reject actions outside the action space
//  2. step the environment and charge the frame budget
//  3. on episode end: record the score and reset; the reported observation is
//     the post-reset frame
//  4. on episode end or life loss: warmup no-ops, then the fire sequence
//  5. downsample the observation
func (s *Slot) stepLocked(action int) StepReport {
	if !containsAction(s.actionSpace, action) {
		return s.fault("step", fmt.Errorf("%w: %d not in %v", ErrInvalidAction, action, s.actionSpace))
	}

	out, err := s.env.Step(action)
	if err != nil {
		return s.fault("step", err)
	}
	s.episodeFrames++
	s.episodeScore += out.Reward
	s.lifeCount = s.env.Lives()

	truncated := out.Truncated || s.budgetExhausted()
	done := out.Terminal || truncated

	r := StepReport{
		Slot:      s.index,
		Reward:    out.Reward,
		Terminal:  out.Terminal,
		Truncated: truncated,
		LifeLost:  out.LifeLost,
	}

	if done {
		r.EpisodeDone = true
		r.EpisodeScore = s.episodeScore
		r.EpisodeLength = s.episodeFrames
		logrus.Debugf("slot %d: episode ended (terminal=%v truncated=%v score=%d frames=%d)",
			s.index, out.Terminal, truncated, s.episodeScore, s.episodeFrames)
		if err := s.resetEpisode(); err != nil {
			return s.fault("reset", err)
		}
	}
	if done || out.LifeLost {
		if err := s.warmup(); err != nil {
			return s.fault("warmup", err)
		}
	}
	if s.policy.LifeLossAsTerminal && out.LifeLost {
		r.Terminal = true
	}
	return s.finish(r)
}

// resetLocked handles a batch-level reset. Caller holds s.mu.
func (s *Slot) resetLocked() StepReport {
	if err := s.resetEpisode(); err != nil {
		return s.fault("reset", err)
	}
	if s.policy.WarmupOnReset {
		if err := s.warmup(); err != nil {
			return s.fault("warmup", err)
		}
	}
	return s.finish(StepReport{Slot: s.index})
}

func (s *Slot) resetEpisode() error {
	if err := s.env.Reset(); err != nil {
		return err
	}
	s.episodeFrames = 0
	s.episodeScore = 0
	s.lifeCount = s.env.Lives()
	return nil
}

func (s *Slot) budgetExhausted() bool {
	return s.policy.MaxEpisodeFrames > 0 && s.episodeFrames >= s.policy.MaxEpisodeFrames
}

// warmupScript returns the actions injected after an episode boundary:
// 1..NoopMax no-ops, then FireAction and FollowUpAction when fire reset is on.
func (s *Slot) warmupScript() []int {
	n := 0
	if s.policy.NoopMax > 0 {
		n = 1 + s.rng.Intn(s.policy.NoopMax)
	}
	script := make([]int, 0, n+2)
	for i := 0; i < n; i++ {
		script = append(script, s.policy.NoopAction)
	}
	if s.fireResetEnabled {
		script = append(script, s.policy.FireAction, s.policy.FollowUpAction)
	}
	return script
}

// warmup runs the warmup script without producing reports. Rewards go to the
// episode score only; a life lost here is absorbed; an episode that ends here
// is reset and the script stops. When warmup frames are charged to the budget
// and it runs out, the script stops and the next caller step truncates.
func (s *Slot) warmup() error {
	for _, action := range s.warmupScript() {
		out, err := s.env.Step(action)
		if err != nil {
			return err
		}
		s.episodeScore += out.Reward
		s.lifeCount = s.env.Lives()
		if s.policy.CountWarmupFrames {
			s.episodeFrames++
		}
		if out.Terminal || out.Truncated {
			logrus.Debugf("slot %d: episode ended during warmup, resetting", s.index)
			return s.resetEpisode()
		}
		if s.policy.CountWarmupFrames && s.budgetExhausted() {
			return nil
		}
	}
	return nil
}
