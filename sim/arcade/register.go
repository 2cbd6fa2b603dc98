// Package arcade provides small deterministic arcade games that satisfy
// sim.Environment. Importing it registers every game as an environment kind:
//
//	import _ "github.com/inference-sim/vecenv/sim/arcade"
//
// The games are stand-ins for an emulator: fixed 210x160 screens, the
// conventional 18-code joystick and seeded randomness. Breakout has lives;
// pong and freeway end on score or time.
package arcade

import (
	"errors"

	"github.com/inference-sim/vecenv/sim"
)

var (
	// ErrIllegalAction is returned for action codes outside the joystick range.
	ErrIllegalAction = errors.New("arcade: illegal action")
	// ErrClosed is returned by every method after Close.
	ErrClosed = errors.New("arcade: environment closed")
)

// Game kinds registered by this package.
const (
	KindBreakout = "breakout"
	KindPong     = "pong"
	KindFreeway  = "freeway"
)

func init() {
	sim.RegisterEnvironment(KindBreakout, func(cfg sim.EnvConfig) (sim.Environment, error) {
		return newCatchGame(breakoutRules, cfg), nil
	})
	sim.RegisterEnvironment(KindPong, func(cfg sim.EnvConfig) (sim.Environment, error) {
		return newCatchGame(pongRules, cfg), nil
	})
	sim.RegisterEnvironment(KindFreeway, func(cfg sim.EnvConfig) (sim.Environment, error) {
		return newCrossingGame(cfg), nil
	})
}
