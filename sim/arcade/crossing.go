package arcade

import (
	"fmt"
	"math/rand"

	"github.com/inference-sim/vecenv/sim"
)

// Road geometry for the crossing game.
const (
	numLanes      = 10
	laneHeight    = 16
	roadTop       = 30
	goalY         = 22
	chickenX      = 44
	chickenSize   = 8
	chickenStartY = roadTop + numLanes*laneHeight + 2
	chickenSpeed  = 2
	carWidth      = 12
	carHeight     = 8
	knockback     = 12
	crossingTime  = 2048 // frames per episode
)

// crossingGame is a timed road-crossing game without lives or a fire button:
// every crossing scores one point and the episode ends when the timer runs out.
// Not safe for concurrent use.
type crossingGame struct {
	grayscale bool
	rng       *rand.Rand

	chickenY int
	carX     [numLanes]int
	carSpeed [numLanes]int
	frame    int

	closed bool
}

func newCrossingGame(cfg sim.EnvConfig) *crossingGame {
	g := &crossingGame{
		grayscale: cfg.Grayscale,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
	}
	g.restart()
	return g
}

func (g *crossingGame) restart() {
	g.chickenY = chickenStartY
	g.frame = 0
	for lane := 0; lane < numLanes; lane++ {
		speed := 1 + g.rng.Intn(3)
		if lane%2 == 1 {
			speed = -speed
		}
		g.carSpeed[lane] = speed
		g.carX[lane] = g.rng.Intn(ScreenWidth)
	}
}

func (g *crossingGame) Reset() error {
	if g.closed {
		return ErrClosed
	}
	g.restart()
	return nil
}

func (g *crossingGame) Step(action int) (sim.StepOutcome, error) {
	if g.closed {
		return sim.StepOutcome{}, ErrClosed
	}
	if !legal(action) {
		return sim.StepOutcome{}, fmt.Errorf("%w: %d", ErrIllegalAction, action)
	}
	if g.frame >= crossingTime {
		return sim.StepOutcome{Terminal: true}, nil
	}
	g.frame++

	for lane := range g.carX {
		g.carX[lane] = (g.carX[lane] + g.carSpeed[lane] + ScreenWidth) % ScreenWidth
	}

	g.chickenY += vertical(action) * chickenSpeed
	g.chickenY = min(g.chickenY, chickenStartY)

	reward := 0
	if g.chickenY <= goalY {
		reward = 1
		g.chickenY = chickenStartY
	} else if g.hit() {
		g.chickenY = min(g.chickenY+knockback, chickenStartY)
	}

	return sim.StepOutcome{Reward: reward, Terminal: g.frame >= crossingTime}, nil
}

// hit reports whether the chicken overlaps a car in any lane it touches.
func (g *crossingGame) hit() bool {
	for lane := 0; lane < numLanes; lane++ {
		carY := roadTop + lane*laneHeight + (laneHeight-carHeight)/2
		if g.chickenY+chickenSize <= carY || g.chickenY >= carY+carHeight {
			continue
		}
		x := g.carX[lane]
		// Cars wrap around the screen edge.
		for _, cx := range [...]int{x, x - ScreenWidth} {
			if chickenX+chickenSize > cx && chickenX < cx+carWidth {
				return true
			}
		}
	}
	return false
}

func (g *crossingGame) Observation() sim.Frame {
	c := newCanvas(g.grayscale, colorBackground)
	for lane := 0; lane <= numLanes; lane++ {
		c.rect(0, roadTop+lane*laneHeight, ScreenWidth, 1, colorLane)
	}
	for lane := 0; lane < numLanes; lane++ {
		carY := roadTop + lane*laneHeight + (laneHeight-carHeight)/2
		col := rgb{byte(60 + 18*lane), 90, byte(220 - 15*lane)}
		c.rect(g.carX[lane], carY, carWidth, carHeight, col)
		c.rect(g.carX[lane]-ScreenWidth, carY, carWidth, carHeight, col)
	}
	c.rect(chickenX, g.chickenY, chickenSize, chickenSize, colorChicken)
	return c.frame
}

func (g *crossingGame) ActionSet() []int { return []int{Noop, Up, Down} }

func (g *crossingGame) Lives() int { return 0 }

func (g *crossingGame) Close() error {
	g.closed = true
	return nil
}
