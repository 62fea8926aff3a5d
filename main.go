package main

import (
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/pthm-cable/squish/config"
	"github.com/pthm-cable/squish/scene"
	"github.com/pthm-cable/squish/solver"
	"github.com/pthm-cable/squish/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	scenePath := flag.String("scene", "", "Path to scene.yaml (required)")
	frames := flag.Int("frames", 600, "Number of frames to simulate")
	frameDt := flag.Float64("dt", 1.0/60.0, "Frame time step in seconds")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	logStats := flag.Bool("log-stats", false, "Output window stats via slog")
	seed := flag.Int64("seed", 0, "RNG seed for scene jitter (0 = time-based)")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if *scenePath == "" {
		slog.Error("missing required -scene flag")
		os.Exit(1)
	}

	// Initialize config before anything else
	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	sc, err := scene.Load(*scenePath)
	if err != nil {
		slog.Error("failed to load scene", "error", err)
		os.Exit(1)
	}

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}

	s, err := solver.New(sc, cfg, rngSeed)
	if err != nil {
		slog.Error("failed to build solver", "error", err)
		os.Exit(1)
	}
	defer s.Close()

	output, err := telemetry.NewOutputManager(*outputDir)
	if err != nil {
		slog.Error("failed to create output dir", "error", err)
		os.Exit(1)
	}
	defer output.Close()

	if err := output.WriteConfig(cfg); err != nil {
		slog.Error("failed to snapshot config", "error", err)
		os.Exit(1)
	}

	perf := telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow)
	s.SetPerfCollector(perf)

	slog.Info("scene loaded",
		"particles", s.Particles().Count(),
		"bodies", len(s.Particles().Bodies()),
		"planes", len(s.Planes()),
		"seed", rngSeed,
	)

	dt := float32(*frameDt)
	window := cfg.Telemetry.StatsWindow
	start := time.Now()

	for frame := 1; frame <= *frames; frame++ {
		perf.StartFrame()
		s.Update(dt)

		perf.StartPhase(telemetry.PhaseTelemetry)
		if window > 0 && frame%window == 0 {
			p := s.Particles()
			stats := telemetry.CollectFrameStats(
				int32(frame), float64(frame)*(*frameDt),
				p.Velocity[:p.Count()], p.Mass[:p.Count()], p.Phase[:p.Count()],
				len(p.Bodies()), cfg.Solver.SleepThreshold,
			)
			if *logStats {
				slog.Info("frame stats", "stats", stats)
				perf.Stats().LogStats()
			}
			if err := output.WriteFrameStats(stats); err != nil {
				slog.Error("telemetry write failed", "error", err)
			}
			if err := output.WritePerf(perf.Stats(), int32(frame)); err != nil {
				slog.Error("perf write failed", "error", err)
			}
		}
		perf.EndFrame()
	}

	elapsed := time.Since(start)
	slog.Info("run complete",
		"frames", *frames,
		"elapsed_ms", elapsed.Milliseconds(),
		"frames_per_sec", float64(*frames)/elapsed.Seconds(),
	)
}
