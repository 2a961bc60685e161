package main

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/san-kum/emsim/internal/dynamo"
	"github.com/san-kum/emsim/internal/experiment"
	"github.com/san-kum/emsim/internal/optim"
	"github.com/san-kum/emsim/internal/report"
	"github.com/san-kum/emsim/internal/storage"
	"github.com/san-kum/emsim/internal/viz"
)

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, name, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	rec := storage.NewRecorder()
	exp, err := experiment.Build(cfg, logger(), experiment.WithObserver(rec))
	if err != nil {
		return err
	}

	ctx, cancel := interruptible(cmd)
	defer cancel()

	result, runErr := exp.Run(ctx)
	if result == nil {
		return runErr
	}

	if err := report.Summary(os.Stdout, result); err != nil {
		return err
	}

	if !noSave {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		runID, err := st.Save(name, cfg, result, rec)
		if err != nil {
			return err
		}
		fmt.Printf("\nrun id: %s\n", runID)
	}

	return runErr
}

func compareAlgorithms(cmd *cobra.Command, args []string) error {
	var presetArgs []string
	algs := dynamo.Algorithms()
	if len(args) > 0 {
		if _, err := dynamo.ParseAlgorithm(args[0]); err != nil {
			presetArgs = args[:1]
			args = args[1:]
		}
	}
	if len(args) > 0 {
		algs = nil
		for _, a := range args {
			alg, err := dynamo.ParseAlgorithm(a)
			if err != nil {
				return err
			}
			algs = append(algs, alg)
		}
	}

	base, name, err := loadConfig(cmd, presetArgs)
	if err != nil {
		return err
	}

	ctx, cancel := interruptible(cmd)
	defer cancel()

	fmt.Printf("comparing algorithms on %s\n\n", name)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ALGORITHM\tITERATIONS\tTURNS\tPERIOD ERR %\tENERGY ERR %\tSIM ERR %\tREJECTED\tTIME")

	for _, alg := range algs {
		cfg := base.Clone()
		cfg.Algorithm = alg.String()

		exp, err := experiment.Build(cfg, logger())
		if err != nil {
			return err
		}
		result, err := exp.Run(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\t-\t-\t%v\n", alg, err)
			continue
		}

		_, periodErr := result.PeriodError()
		fmt.Fprintf(w, "%s\t%d\t%d\t%.4g\t%.4g\t%.4g\t%d\t%v\n",
			alg, result.Iterations, result.Turns, periodErr,
			result.EnergyError(), result.SimulationError(), result.RejectedSteps, result.Elapsed)
	}

	return w.Flush()
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	// Log lines would write over the alt screen.
	exp, err := experiment.Build(cfg, experiment.WithLogger(quietLogger()))
	if err != nil {
		return err
	}

	m, err := viz.NewLive(exp, batch)
	if err != nil {
		return err
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return err
	}

	if r := m.Result(); r != nil {
		if err := report.Summary(os.Stdout, r); err != nil {
			return err
		}
	}
	return m.Err()
}

func tune(cmd *cobra.Command, args []string) error {
	if len(tuneParams) == 0 {
		return fmt.Errorf("%w: at least one --param is required (known: %s)",
			dynamo.ErrInvalidParameter, strings.Join(optim.SetterNames(), ", "))
	}

	names := make([]string, 0, len(tuneParams))
	ranges := make([][]float64, 0, len(tuneParams))
	for _, p := range tuneParams {
		name, values, err := parseParam(p)
		if err != nil {
			return err
		}
		names = append(names, name)
		ranges = append(ranges, values)
	}

	gs, err := optim.NewGridSearch(names, ranges)
	if err != nil {
		return err
	}

	cfg, _, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	if !slices.Contains(cfg.Metrics, tuneMetric) {
		cfg.Metrics = append(cfg.Metrics, tuneMetric)
	}

	ctx, cancel := interruptible(cmd)
	defer cancel()

	best, value, err := gs.Search(ctx, cfg, tuneMetric, experiment.WithLogger(quietLogger()))
	if err != nil {
		return err
	}
	if best == nil {
		return errors.New("no grid point completed")
	}

	keys := make([]string, 0, len(best))
	for k := range best {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Printf("best %s: %.6g\n", tuneMetric, value)
	for _, k := range keys {
		fmt.Printf("  %-14s %.6g\n", k, best[k])
	}
	return nil
}

// parseParam splits "name=v1,v2,..." into the name and its values.
func parseParam(s string) (string, []float64, error) {
	name, list, ok := strings.Cut(s, "=")
	if !ok || name == "" || list == "" {
		return "", nil, fmt.Errorf("%w: --param %q, want name=v1,v2,...", dynamo.ErrInvalidParameter, s)
	}
	fields := strings.Split(list, ",")
	values := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return "", nil, fmt.Errorf("%w: --param %s: %v", dynamo.ErrInvalidParameter, name, err)
		}
		values = append(values, v)
	}
	return name, values, nil
}
