package arcade

import (
	"fmt"
	"math/rand"

	"github.com/inference-sim/vecenv/sim"
)

// Court geometry for paddle games.
const (
	courtTop    = 32
	serveY      = 40
	paddleY     = 189
	paddleH     = 4
	ballSize    = 2
	paddleSpeed = 4
	ballSpeedY  = 3
)

// catchRules parameterizes a paddle game: a ball is served from the top and
// must be returned with the paddle at the bottom.
type catchRules struct {
	name        string
	actions     []int
	lives       int // 0 = no lives; episode ends on missLimit/winScore instead
	missLimit   int
	winScore    int // returns needed to win (0 = unused)
	paddleWidth int
	serveDelay  int // frames before an automatic serve; FIRE serves at once

	catchReward int
	topReward   int
	missReward  int
}

var breakoutRules = catchRules{
	name:        "breakout",
	actions:     []int{Noop, Fire, Right, Left},
	lives:       5,
	paddleWidth: 16,
	serveDelay:  60,
	topReward:   1,
}

var pongRules = catchRules{
	name:        "pong",
	actions:     []int{Noop, Fire, Right, Left, RightFire, LeftFire},
	missLimit:   21,
	winScore:    21,
	paddleWidth: 16,
	serveDelay:  30,
	catchReward: 1,
	missReward:  -1,
}

// catchGame is a deterministic paddle game. Not safe for concurrent use.
type catchGame struct {
	rules     catchRules
	grayscale bool
	rng       *rand.Rand

	lives      int
	misses     int
	returns    int
	frame      int
	gameOver   bool
	inPlay     bool
	serveTimer int

	paddleX        int
	ballX, ballY   int
	ballVX, ballVY int

	closed bool
}

func newCatchGame(rules catchRules, cfg sim.EnvConfig) *catchGame {
	g := &catchGame{
		rules:     rules,
		grayscale: cfg.Grayscale,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
	}
	g.restart()
	return g
}

func (g *catchGame) restart() {
	g.lives = g.rules.lives
	g.misses = 0
	g.returns = 0
	g.frame = 0
	g.gameOver = false
	g.inPlay = false
	g.serveTimer = 0
	g.paddleX = (ScreenWidth - g.rules.paddleWidth) / 2
}

func (g *catchGame) Reset() error {
	if g.closed {
		return ErrClosed
	}
	g.restart()
	return nil
}

func (g *catchGame) Step(action int) (sim.StepOutcome, error) {
	if g.closed {
		return sim.StepOutcome{}, ErrClosed
	}
	if !legal(action) {
		return sim.StepOutcome{}, fmt.Errorf("%w: %s: %d", ErrIllegalAction, g.rules.name, action)
	}
	if g.gameOver {
		return sim.StepOutcome{Terminal: true}, nil
	}
	g.frame++
	livesBefore := g.lives

	g.paddleX += horizontal(action) * paddleSpeed
	g.paddleX = min(max(g.paddleX, 0), ScreenWidth-g.rules.paddleWidth)

	reward := 0
	if g.inPlay {
		reward = g.advanceBall()
	} else {
		g.serveTimer++
		if pressesFire(action) || g.serveTimer >= g.rules.serveDelay {
			g.serve()
		}
	}

	return sim.StepOutcome{
		Reward:   reward,
		Terminal: g.gameOver,
		LifeLost: g.lives < livesBefore,
	}, nil
}

func (g *catchGame) serve() {
	g.inPlay = true
	g.ballX = 4 + g.rng.Intn(ScreenWidth-8-ballSize)
	g.ballY = serveY
	speeds := [...]int{-2, -1, 1, 2}
	g.ballVX = speeds[g.rng.Intn(len(speeds))]
	g.ballVY = ballSpeedY
}

// advanceBall moves the ball one frame and returns the reward earned.
func (g *catchGame) advanceBall() int {
	reward := 0
	g.ballX += g.ballVX
	g.ballY += g.ballVY

	if g.ballX < 0 {
		g.ballX = -g.ballX
		g.ballVX = -g.ballVX
	}
	if right := ScreenWidth - ballSize; g.ballX > right {
		g.ballX = 2*right - g.ballX
		g.ballVX = -g.ballVX
	}
	if g.ballY <= courtTop {
		g.ballY = courtTop
		g.ballVY = ballSpeedY
		reward += g.rules.topReward
	}

	if g.ballVY > 0 && g.ballY+ballSize >= paddleY && g.ballY < paddleY+paddleH &&
		g.ballX+ballSize > g.paddleX && g.ballX < g.paddleX+g.rules.paddleWidth {
		g.ballY = paddleY - ballSize
		g.ballVY = -ballSpeedY
		g.returns++
		reward += g.rules.catchReward
		if g.rules.winScore > 0 && g.returns >= g.rules.winScore {
			g.gameOver = true
		}
		return reward
	}

	if g.ballY >= ScreenHeight-ballSize {
		g.inPlay = false
		g.serveTimer = 0
		g.misses++
		reward += g.rules.missReward
		if g.rules.lives > 0 {
			g.lives--
			if g.lives == 0 {
				g.gameOver = true
			}
		} else if g.rules.missLimit > 0 && g.misses >= g.rules.missLimit {
			g.gameOver = true
		}
	}
	return reward
}

func (g *catchGame) Observation() sim.Frame {
	c := newCanvas(g.grayscale, colorBackground)
	c.rect(0, courtTop-8, ScreenWidth, 8, colorWall)
	for i := 0; i < g.lives; i++ {
		c.rect(4+i*6, 8, 4, 4, colorLives)
	}
	c.rect(g.paddleX, paddleY, g.rules.paddleWidth, paddleH, colorPaddle)
	if g.inPlay {
		c.rect(g.ballX, g.ballY, ballSize, ballSize, colorBall)
	}
	return c.frame
}

func (g *catchGame) ActionSet() []int { return append([]int(nil), g.rules.actions...) }

func (g *catchGame) Lives() int { return g.lives }

func (g *catchGame) Close() error {
	g.closed = true
	return nil
}
