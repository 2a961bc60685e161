package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/emsim/internal/config"
	"github.com/san-kum/emsim/internal/experiment"
)

var (
	dataDir string
	verbose bool

	configFile    string
	algorithm     string
	acceptance    string
	dt            float64
	tolerance     float64
	turns         int
	maxIterations int
	stop          string
	seed          int64
	particles     int
	speed         float64
	speedSpread   float64
	phase         float64
	electric      float64
	magnetic      float64
	writeEvery    int
	printEvery    int
	workers       int
	noSave        bool

	// live view
	batch int

	// sweep
	jobs int

	// export-png
	outDir string

	// tune
	tuneParams []string
	tuneMetric string
)

// main registers the commands and exits with status 1 if the command fails.
func main() {
	rootCmd := &cobra.Command{
		Use:           "emsim",
		Short:         "charged particle bunch simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".emsim", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run [preset]",
		Short: "run a simulation",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	addRunFlags(runCmd)
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not write the run to the data directory")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range config.ListPresets() {
				cfg, _ := config.GetPreset(name)
				fmt.Printf("  %-24s %-13s %s\n", name, cfg.Algorithm, cfg.Fields.Config.String())
			}
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list saved runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run tables in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "orbit frequency analysis",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export-png [run_id]",
		Short: "render run tables as png charts",
		Args:  cobra.ExactArgs(1),
		RunE:  exportPNG,
	}
	exportCmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default: the run directory)")

	sweepCmd := &cobra.Command{
		Use:       "sweep [scan]",
		Short:     "run a parameter scan",
		Args:      cobra.ExactArgs(1),
		ValidArgs: scanNames(),
		RunE:      runSweep,
	}
	addRunFlags(sweepCmd)
	sweepCmd.Flags().BoolVar(&noSave, "no-save", false, "do not write the sweep to the data directory")
	sweepCmd.Flags().IntVarP(&jobs, "jobs", "j", runtime.NumCPU(), "points run concurrently")

	compareCmd := &cobra.Command{
		Use:   "compare [preset] [algorithm...]",
		Short: "run one configuration with several algorithms",
		Args:  cobra.ArbitraryArgs,
		RunE:  compareAlgorithms,
	}
	addRunFlags(compareCmd)

	liveCmd := &cobra.Command{
		Use:   "live [preset]",
		Short: "run a simulation with live visualization",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	addRunFlags(liveCmd)
	liveCmd.Flags().IntVar(&batch, "batch", 200, "iterations per frame")

	tuneCmd := &cobra.Command{
		Use:   "tune [preset]",
		Short: "grid search parameters minimising a metric",
		Args:  cobra.MaximumNArgs(1),
		RunE:  tune,
	}
	addRunFlags(tuneCmd)
	tuneCmd.Flags().StringArrayVar(&tuneParams, "param", nil, "name=v1,v2,... (repeatable)")
	tuneCmd.Flags().StringVar(&tuneMetric, "metric", "energy_drift", "metric to minimise")

	rootCmd.AddCommand(runCmd, presetsCmd, listCmd, plotCmd, analyzeCmd, exportCmd, sweepCmd, compareCmd, liveCmd, tuneCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "config file path (yaml)")
	f.StringVar(&algorithm, "algorithm", "euler", "euler, euler-cromer, heun, verlet, rk4 or rkf45")
	f.StringVar(&acceptance, "acceptance", "", "rkf45 acceptance: legacy or higher-order")
	f.Float64Var(&dt, "dt", config.DefaultDt, "time step (s)")
	f.Float64Var(&tolerance, "tolerance", config.DefaultTolerance, "rkf45 tolerance")
	f.IntVar(&turns, "turns", config.DefaultTurns, "turns to complete")
	f.IntVar(&maxIterations, "max-iterations", 0, "iteration cap, 0 for none")
	f.StringVar(&stop, "stop", "turns", "stop condition: turns, spread-settled or relativistic")
	f.Int64Var(&seed, "seed", config.DefaultSeed, "random seed")
	f.IntVar(&particles, "particles", config.DefaultParticles, "bunch size")
	f.Float64Var(&speed, "speed", config.DefaultSpeed, "initial speed (m/s)")
	f.Float64Var(&speedSpread, "speed-spread", 0, "speed spread as a fraction of speed")
	f.Float64Var(&phase, "phase", config.DefaultPhase, "gap field phase (rad)")
	f.Float64Var(&electric, "electric", config.DefaultElectricField, "gap field amplitude (N/C)")
	f.Float64Var(&magnetic, "magnetic", config.DefaultMagneticField, "magnetic field (T)")
	f.IntVar(&writeEvery, "write-every", config.DefaultWriteEvery, "snapshot interval in iterations")
	f.IntVar(&printEvery, "print-every", config.DefaultPrintEvery, "progress log interval in iterations")
	f.IntVar(&workers, "workers", 0, "goroutines sharing the force evaluation, 0 for serial")
}

// loadConfig resolves the run configuration: the preset named by args (or
// "user"), then the config file, then any flag set on the command line.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, string, error) {
	name := "user"
	if len(args) > 0 {
		name = args[0]
	}
	cfg, err := config.GetPreset(name)
	if err != nil {
		return nil, "", fmt.Errorf("%w (available: %s)", err, strings.Join(config.ListPresets(), ", "))
	}

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, "", err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, "", fmt.Errorf("parse %s: %w", configFile, err)
		}
		if len(args) == 0 {
			name = strings.TrimSuffix(filepath.Base(configFile), filepath.Ext(configFile))
		}
	}

	f := cmd.Flags()
	if f.Changed("algorithm") {
		cfg.Algorithm = algorithm
	}
	if f.Changed("acceptance") {
		cfg.Acceptance = acceptance
	}
	if f.Changed("dt") {
		cfg.Dt = dt
	}
	if f.Changed("tolerance") {
		cfg.Tolerance = tolerance
	}
	if f.Changed("turns") {
		cfg.Turns = turns
	}
	if f.Changed("max-iterations") {
		cfg.MaxIterations = maxIterations
	}
	if f.Changed("stop") {
		cfg.Stop = stop
	}
	if f.Changed("seed") {
		cfg.Seed = seed
	}
	if f.Changed("particles") {
		cfg.Bunch.Particles = particles
	}
	if f.Changed("speed") {
		cfg.Bunch.Speed = speed
	}
	if f.Changed("speed-spread") {
		cfg.Bunch.SpeedSpread = speedSpread
	}
	if f.Changed("phase") {
		cfg.Fields.Phase = phase
	}
	if f.Changed("electric") {
		cfg.Fields.Electric = electric
	}
	if f.Changed("magnetic") {
		cfg.Fields.Magnetic = magnetic
	}
	if f.Changed("write-every") {
		cfg.Output.WriteEvery = writeEvery
	}
	if f.Changed("print-every") {
		cfg.Output.PrintEvery = printEvery
	}
	if f.Changed("workers") {
		cfg.Workers = workers
	}

	return cfg, name, cfg.Validate()
}

func logger() experiment.Option {
	return experiment.WithLogger(slog.Default())
}

// quietLogger discards run logs unless --verbose is set.
func quietLogger() *slog.Logger {
	if verbose {
		return slog.Default()
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// interruptible returns a context cancelled on ctrl+c.
func interruptible(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt)
}
