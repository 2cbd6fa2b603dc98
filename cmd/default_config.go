package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// GamePreset holds the per-game lifecycle defaults in defaults.yaml. Keys
// left out of a preset are nil and leave the flag default in place.
type GamePreset struct {
	MaxFrames        *uint32 `yaml:"max_frames"`
	NoopMax          *int    `yaml:"noop_max"`
	FireReset        *bool   `yaml:"fire_reset"`
	LifeLossTerminal *bool   `yaml:"life_loss_terminal"`
	Stride           *int    `yaml:"stride"`
	Grayscale        *bool   `yaml:"grayscale"`
}

// Config represents the full defaults.yaml structure.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type Config struct {
	Version string                `yaml:"version"`
	Games   map[string]GamePreset `yaml:"games"`
}

// loadDefaultsConfig parses defaults.yaml into a Config struct.
// Uses strict field checking: typos must cause errors.
func loadDefaultsConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read defaults file %s: %w", path, err)
	}
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse defaults YAML %s: %w", path, err)
	}
	return cfg, nil
}

// loadGamePreset applies the preset for --game from --defaults. A missing
// default file is skipped; a missing file the user asked for is an error.
func loadGamePreset(cmd *cobra.Command) error {
	cfg, err := loadDefaultsConfig(defaultsFilePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("defaults") {
			logrus.Debugf("No defaults file at %s, using flag values", defaultsFilePath)
			return nil
		}
		return err
	}
	preset, ok := cfg.Games[game]
	if !ok {
		logrus.Debugf("No preset for game %s in %s", game, defaultsFilePath)
		return nil
	}
	applyGamePreset(cmd, preset)
	return nil
}

// applyGamePreset copies the keys present in preset into the flag variables
// the user did not set explicitly.
func applyGamePreset(cmd *cobra.Command, preset GamePreset) {
	applyPresetValue(cmd, "max-frames", preset.MaxFrames, &maxFrames)
	applyPresetValue(cmd, "noop-max", preset.NoopMax, &noopMax)
	applyPresetValue(cmd, "fire-reset", preset.FireReset, &fireReset)
	applyPresetValue(cmd, "life-loss-terminal", preset.LifeLossTerminal, &lifeLossTerminal)
	applyPresetValue(cmd, "stride", preset.Stride, &stride)
	applyPresetValue(cmd, "grayscale", preset.Grayscale, &grayscale)
	logrus.Infof("Applied %s preset: max_frames=%d noop_max=%d fire_reset=%v life_loss_terminal=%v stride=%d grayscale=%v",
		game, maxFrames, noopMax, fireReset, lifeLossTerminal, stride, grayscale)
}

func applyPresetValue[T any](cmd *cobra.Command, flag string, value *T, dst *T) {
	if value == nil || cmd.Flags().Changed(flag) {
		return
	}
	*dst = *value
}
