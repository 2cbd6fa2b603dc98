package arcade

import "github.com/inference-sim/vecenv/sim"

// Screen dimensions shared by every game.
const (
	ScreenHeight = 210
	ScreenWidth  = 160
)

type rgb struct{ r, g, b byte }

var (
	colorBackground = rgb{0, 0, 0}
	colorWall       = rgb{142, 142, 142}
	colorPaddle     = rgb{200, 72, 72}
	colorBall       = rgb{236, 236, 236}
	colorLives      = rgb{84, 160, 197}
	colorLane       = rgb{170, 170, 170}
	colorChicken    = rgb{252, 252, 84}
)

// luma converts to grayscale with ITU-R BT.601 weights.
func (c rgb) luma() byte {
	return byte((299*int(c.r) + 587*int(c.g) + 114*int(c.b)) / 1000)
}

// canvas draws into a freshly allocated frame.
type canvas struct {
	frame sim.Frame
}

func newCanvas(grayscale bool, bg rgb) *canvas {
	channels := 3
	if grayscale {
		channels = 1
	}
	c := &canvas{frame: sim.NewFrame(ScreenHeight, ScreenWidth, channels)}
	c.rect(0, 0, ScreenWidth, ScreenHeight, bg)
	return c
}

// rect fills [x, x+w) x [y, y+h), clipped to the screen.
func (c *canvas) rect(x, y, w, h int, col rgb) {
	x0, y0 := max(x, 0), max(y, 0)
	x1, y1 := min(x+w, ScreenWidth), min(y+h, ScreenHeight)
	f := c.frame
	for row := y0; row < y1; row++ {
		for colIdx := x0; colIdx < x1; colIdx++ {
			px := f.At(row, colIdx)
			if f.Channels == 1 {
				px[0] = col.luma()
				continue
			}
			px[0], px[1], px[2] = col.r, col.g, col.b
		}
	}
}
