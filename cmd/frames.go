package cmd

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/vecenv/sim"
)

// roundHook is called with every collected batch; round 0 is the initial reset.
type roundHook func(round int, result sim.BatchResult) error

// frameDumper writes each slot's observation as a PNG:
// <dir>/slot<i>/<round>.png, zero-padded so files sort in play order.
type frameDumper struct {
	dir     string
	written int
}

func newFrameDumper(dir string, numEnvs int) (*frameDumper, error) {
	for i := 0; i < numEnvs; i++ {
		if err := os.MkdirAll(filepath.Join(dir, fmt.Sprintf("slot%d", i)), 0755); err != nil {
			return nil, fmt.Errorf("creating frame directory: %w", err)
		}
	}
	return &frameDumper{dir: dir}, nil
}

func (d *frameDumper) dump(round int, result sim.BatchResult) error {
	for _, r := range result {
		if r.Err != nil {
			continue
		}
		img, err := r.Observation.Image()
		if err != nil {
			return fmt.Errorf("slot %d round %d: %w", r.Slot, round, err)
		}
		path := filepath.Join(d.dir, fmt.Sprintf("slot%d", r.Slot), fmt.Sprintf("%05d.png", round))
		if err := writePNG(path, img); err != nil {
			return err
		}
		d.written++
	}
	return nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	logrus.Tracef("wrote %s", path)
	return nil
}
