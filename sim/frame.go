package sim

import (
	"fmt"
	"image"
)

// Frame is a raw pixel buffer in row-major order with Channels bytes packed
// per pixel (1 = grayscale, 3 = RGB).
//
// Frames handed out by the engine are owned by the caller; environments must
// not retain or mutate them after Observation returns.
type Frame struct {
	Height   int
	Width    int
	Channels int
	Pix      []byte
}

// NewFrame allocates a zeroed frame.
func NewFrame(height, width, channels int) Frame {
	return Frame{
		Height:   height,
		Width:    width,
		Channels: channels,
		Pix:      make([]byte, height*width*channels),
	}
}

// Len returns the number of bytes the frame's dimensions call for.
func (f Frame) Len() int { return f.Height * f.Width * f.Channels }

// At returns the pixel bytes at (row, col). The slice aliases f.Pix.
func (f Frame) At(row, col int) []byte {
	off := (row*f.Width + col) * f.Channels
	return f.Pix[off : off+f.Channels]
}

// DownsampledSize returns the (height, width) Downsample produces for stride.
func DownsampledSize(height, width, stride int) (int, int) {
	if stride <= 1 {
		return height, width
	}
	return (height + stride - 1) / stride, (width + stride - 1) / stride
}

// Downsample keeps every stride-th pixel in both spatial dimensions, starting
// at (0, 0). stride <= 1 returns a copy. The input is never modified.
func Downsample(f Frame, stride int) Frame {
	if stride <= 1 {
		out := Frame{Height: f.Height, Width: f.Width, Channels: f.Channels, Pix: make([]byte, len(f.Pix))}
		copy(out.Pix, f.Pix)
		return out
	}
	h, w := DownsampledSize(f.Height, f.Width, stride)
	out := NewFrame(h, w, f.Channels)
	c := f.Channels
	dst := 0
	for row := 0; row < f.Height; row += stride {
		rowOff := row * f.Width * c
		for col := 0; col < f.Width; col += stride {
			src := rowOff + col*c
			copy(out.Pix[dst:dst+c], f.Pix[src:src+c])
			dst += c
		}
	}
	return out
}

// Image wraps a copy of the frame as an *image.Gray (1 channel) or
// *image.RGBA (3 channels, opaque).
func (f Frame) Image() (image.Image, error) {
	if len(f.Pix) != f.Len() {
		return nil, fmt.Errorf("frame has %d bytes, want %d for %dx%dx%d", len(f.Pix), f.Len(), f.Height, f.Width, f.Channels)
	}
	rect := image.Rect(0, 0, f.Width, f.Height)
	switch f.Channels {
	case 1:
		img := image.NewGray(rect)
		copy(img.Pix, f.Pix)
		return img, nil
	case 3:
		img := image.NewRGBA(rect)
		for i, j := 0, 0; i < len(f.Pix); i, j = i+3, j+4 {
			img.Pix[j], img.Pix[j+1], img.Pix[j+2], img.Pix[j+3] = f.Pix[i], f.Pix[i+1], f.Pix[i+2], 0xff
		}
		return img, nil
	default:
		return nil, fmt.Errorf("unsupported channel count %d", f.Channels)
	}
}
