package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/vecenv/sim"
	"github.com/inference-sim/vecenv/sim/arcade"
	"github.com/inference-sim/vecenv/sim/trace"
)

var (
	// CLI flags for the batch
	game         string        // Environment kind
	numEnvs      int           // Number of environment slots
	workers      int           // Worker pool size (0 = one per slot)
	rounds       int           // Step rounds to run after the initial reset
	maxFrames    uint32        // Per-episode frame budget (0 = unlimited)
	grayscale    bool          // 1-channel observations
	seed         int32         // Base seed; slot i uses seed + i
	roundTimeout time.Duration // Per-round collection timeout (0 = none)
	policyName   string        // Caller action policy
	logLevel     string        // Log verbosity level
	resultsPath  string        // Optional JSON metrics output

	// CLI flags for the lifecycle policy
	stride            int
	noopMax           int
	fireReset         bool
	lifeLossTerminal  bool
	countWarmupFrames bool

	// Presets and tracing
	defaultsFilePath string
	traceLevel       string
	traceHeaderPath  string
	traceDataPath    string
	dumpFramesDir    string
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "vecenv",
	Short: "Vectorized lock-step stepping of arcade environments",
}

// runCmd steps a batch of environments using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a batch of environments in lock-step",
	Run: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		if err := loadGamePreset(cmd); err != nil {
			logrus.Fatalf("%v", err)
		}
		if !trace.IsValidTraceLevel(traceLevel) {
			logrus.Fatalf("Invalid trace level: %s (want none, episodes or rounds)", traceLevel)
		}
		if rounds < 0 {
			logrus.Fatalf("--rounds must be >= 0, got %d", rounds)
		}

		cfg := buildVecEnvConfig()
		var st *trace.SimulationTrace
		if lvl := trace.TraceLevel(traceLevel); lvl != "" && lvl != trace.TraceLevelNone {
			st = trace.NewSimulationTrace(trace.TraceConfig{Level: lvl})
			cfg.Trace = st
		}

		v, err := sim.NewVecEnv(cfg)
		if err != nil {
			logrus.Fatalf("Failed to build environments: %v", err)
		}
		policy, err := newActionPolicy(policyName, v.ActionSpace(), seed)
		if err != nil {
			_ = v.Close()
			logrus.Fatalf("%v", err)
		}

		var onRound roundHook
		var dumper *frameDumper
		if dumpFramesDir != "" {
			if dumper, err = newFrameDumper(dumpFramesDir, v.NumEnvs()); err != nil {
				_ = v.Close()
				logrus.Fatalf("%v", err)
			}
			onRound = dumper.dump
		}

		runID := trace.NewRunID()
		startTime := time.Now()
		runErr := runBatch(context.Background(), v, policy, rounds, onRound)
		if err := v.Close(); err != nil {
			logrus.Warnf("Closing environments: %v", err)
		}
		if runErr != nil {
			logrus.Fatalf("Batch run failed: %v", runErr)
		}
		if dumper != nil {
			logrus.Infof("Wrote %d frames to %s", dumper.written, dumpFramesDir)
		}

		m := v.Metrics()
		m.SaveResults(runID, startTime, resultsPath)

		if traceHeaderPath != "" || traceDataPath != "" {
			if err := exportRunTrace(runID, v, st); err != nil {
				logrus.Fatalf("Trace export failed: %v", err)
			}
		}
		logrus.Info("Batch run complete.")
	},
}

// gamesCmd lists the registered environment kinds and their action sets
var gamesCmd = &cobra.Command{
	Use:   "games",
	Short: "List available environment kinds",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listGames(cmd.OutOrStdout())
	},
}

func buildVecEnvConfig() sim.VecEnvConfig {
	cfg := sim.NewVecEnvConfig(numEnvs, game, maxFrames, grayscale, seed)
	cfg.Workers = workers
	cfg.RoundTimeout = roundTimeout
	cfg.Policy.NoopMax = noopMax
	cfg.Policy.FireReset = fireReset
	cfg.Policy.LifeLossAsTerminal = lifeLossTerminal
	cfg.Policy.CountWarmupFrames = countWarmupFrames
	cfg.Policy.DownsampleStride = stride
	return cfg
}

// runBatch resets every slot, then runs the given number of step rounds.
// A timed-out round is logged and skipped; the engine recovers its slots
// before the next round. onRound, when set, sees the reset as round 0 and
// step r as round r+1.
func runBatch(ctx context.Context, v *sim.VecEnv, policy actionPolicy, rounds int, onRound roundHook) error {
	first, err := v.ResetContext(ctx)
	if err != nil {
		return fmt.Errorf("initial reset: %w", err)
	}
	if onRound != nil {
		if err := onRound(0, first); err != nil {
			return err
		}
	}
	for r := 0; r < rounds; r++ {
		result, err := v.StepContext(ctx, policy.Actions(v.NumEnvs()))
		if errors.Is(err, sim.ErrTimeout) {
			logrus.Warnf("round %d skipped: %v", r, err)
			continue
		}
		if err != nil {
			return fmt.Errorf("round %d: %w", r, err)
		}
		for _, rep := range result {
			if rep.Err == nil && rep.EpisodeDone {
				logrus.Debugf("slot %d finished an episode: score=%d frames=%d truncated=%v",
					rep.Slot, rep.EpisodeScore, rep.EpisodeLength, rep.Truncated)
			}
		}
		if onRound != nil {
			if err := onRound(r+1, result); err != nil {
				return fmt.Errorf("round %d: %w", r, err)
			}
		}
	}
	return nil
}

func exportRunTrace(runID string, v *sim.VecEnv, st *trace.SimulationTrace) error {
	if traceHeaderPath == "" || traceDataPath == "" {
		return fmt.Errorf("--trace-header and --trace-data must be set together")
	}
	if st == nil {
		return fmt.Errorf("--trace-level must be episodes or rounds to export a trace")
	}
	m := v.Metrics()
	header := &trace.TraceHeader{
		Version:     trace.TraceHeaderVersion,
		RunID:       runID,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		Level:       traceLevel,
		Game:        game,
		NumEnvs:     v.NumEnvs(),
		Workers:     v.PoolStats().Size,
		Seed:        seed,
		MaxFrames:   maxFrames,
		Grayscale:   grayscale,
		Stride:      stride,
		Rounds:      m.Rounds,
		ActionSpace: v.ActionSpace(),
		Summary:     trace.NewHeaderSummary(trace.Summarize(st)),
	}
	if err := trace.ExportTrace(header, st, traceHeaderPath, traceDataPath); err != nil {
		return err
	}
	logrus.Infof("Trace written to %s and %s", traceHeaderPath, traceDataPath)
	return nil
}

// registerRunFlags binds the run flags to cmd.
func registerRunFlags(cmd *cobra.Command) {
	p := sim.DefaultLifecyclePolicy()

	cmd.Flags().StringVar(&game, "game", arcade.KindBreakout, "Environment kind (see `vecenv games`)")
	cmd.Flags().IntVar(&numEnvs, "num-envs", 4, "Number of environment slots")
	cmd.Flags().IntVar(&workers, "workers", 0, "Worker pool size (0 = one worker per slot)")
	cmd.Flags().IntVar(&rounds, "rounds", 1000, "Step rounds to run after the initial reset")
	cmd.Flags().Uint32Var(&maxFrames, "max-frames", 0, "Per-episode frame budget (0 = unlimited)")
	cmd.Flags().BoolVar(&grayscale, "grayscale", true, "Grayscale (1-channel) observations instead of RGB")
	cmd.Flags().Int32Var(&seed, "seed", 42, "Base seed; slot i is seeded with seed + i")
	cmd.Flags().DurationVar(&roundTimeout, "round-timeout", 0, "Per-round collection timeout (0 = wait indefinitely)")
	cmd.Flags().StringVar(&policyName, "policy", policyRandom, "Caller action policy (random, zero, fire)")
	cmd.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")
	cmd.Flags().StringVar(&resultsPath, "results-path", "", "File to write the metrics JSON to")

	// Lifecycle policy
	cmd.Flags().IntVar(&stride, "stride", p.DownsampleStride, "Observation downsample stride (1 = full resolution)")
	cmd.Flags().IntVar(&noopMax, "noop-max", p.NoopMax, "Max warmup no-ops after an episode boundary (0 = none)")
	cmd.Flags().BoolVar(&fireReset, "fire-reset", p.FireReset, "Issue FIRE then UP after warmup when the game has FIRE")
	cmd.Flags().BoolVar(&lifeLossTerminal, "life-loss-terminal", p.LifeLossAsTerminal, "Report a lost life as terminal")
	cmd.Flags().BoolVar(&countWarmupFrames, "count-warmup-frames", p.CountWarmupFrames, "Charge warmup frames to --max-frames")

	// Presets and tracing
	cmd.Flags().StringVar(&defaultsFilePath, "defaults", "defaults.yaml", "Per-game presets; applied to flags not set on the command line")
	cmd.Flags().StringVar(&traceLevel, "trace-level", string(trace.TraceLevelNone), "Trace verbosity (none, episodes, rounds)")
	cmd.Flags().StringVar(&traceHeaderPath, "trace-header", "", "Trace header output (YAML)")
	cmd.Flags().StringVar(&traceDataPath, "trace-data", "", "Trace data output (CSV)")
	cmd.Flags().StringVar(&dumpFramesDir, "dump-frames", "", "Directory to save every round's observations to as PNG (slot<i>/<round>.png)")
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	registerRunFlags(runCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(gamesCmd)
}
