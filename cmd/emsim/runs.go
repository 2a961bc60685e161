package main

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/emsim/internal/analysis"
	"github.com/san-kum/emsim/internal/export"
	"github.com/san-kum/emsim/internal/storage"
)

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tALGORITHM\tPARTICLES\tTURNS\tREASON\tSIM ERR %\tTIMESTAMP")
	for _, r := range runs {
		turns, reason, simErr := "-", "-", "-"
		if r.Summary != nil {
			turns = fmt.Sprint(r.Summary.Turns)
			reason = r.Summary.Reason
			simErr = fmt.Sprintf("%.4g", r.Summary.SimulationError)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			r.ID, r.Kind, r.Config.Algorithm, r.Config.Bunch.Particles,
			turns, reason, simErr, r.Timestamp.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

// chart is one terminal or image chart drawn from a stored table.
type chart struct {
	table  string
	x      string
	ys     []string
	title  string
	ylabel string
}

var runCharts = []chart{
	{storage.TablePositions, "x", []string{"y"}, "Average position", "y (m)"},
	{storage.TableConserved, "time", []string{"KE", "PE", "E"}, "Energy", "J"},
	{storage.TableConserved, "time", []string{"L"}, "Angular momentum", "kg m^2/s"},
	{storage.TableSpread, "time", []string{"spread_x", "spread_y", "spread_z"}, "Spread", "m"},
	{storage.TableBoost, "turn", []string{"delta_v", "expected_delta_v"}, "Speed gain per turn", "m/s"},
}

// chartsFor returns the charts for a run, or one chart per measured column
// for a sweep.
func chartsFor(meta *storage.RunMetadata, st *storage.Store) ([]chart, error) {
	if meta.Kind != storage.KindSweep {
		return runCharts, nil
	}
	t, err := st.LoadTable(meta.ID, storage.TableSweep)
	if err != nil {
		return nil, err
	}
	if len(t.Columns) < 2 {
		return nil, nil
	}
	return []chart{{storage.TableSweep, t.Columns[0], t.Columns[1:], meta.Name, ""}}, nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	charts, err := chartsFor(meta, st)
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("algorithm: %s\n\n", meta.Config.Algorithm)

	plotted := 0
	for _, c := range charts {
		t, err := st.LoadTable(meta.ID, c.table)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}

		var data [][]float64
		var legends []string
		for _, y := range c.ys {
			if col := t.Column(y); len(col) > 1 {
				data = append(data, col)
				legends = append(legends, y)
			}
		}
		if len(data) == 0 {
			continue
		}

		graph := asciigraph.PlotMany(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.SeriesColors(asciigraph.Red, asciigraph.Green, asciigraph.Blue),
			asciigraph.SeriesLegends(legends...),
			asciigraph.Caption(c.title),
		)
		fmt.Println(graph)
		fmt.Println()
		plotted++
	}

	if plotted == 0 {
		return errors.New("no data to plot; rerun with a smaller --write-every")
	}
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	t, err := st.LoadTable(runID, storage.TablePositions)
	if err != nil {
		return err
	}
	times, xs := t.Column("time"), t.Column("x")

	samples, dt, err := analysis.Resample(times, xs, len(times))
	if err != nil {
		return fmt.Errorf("%w: %d snapshots; rerun with a smaller --write-every", err, len(times))
	}

	freq, err := analysis.DominantFrequency(samples, dt)
	if err != nil {
		return err
	}

	fmt.Printf("frequency analysis: %s\n", meta.ID)
	fmt.Printf("algorithm: %s\n\n", meta.Config.Algorithm)

	ps := analysis.PowerSpectrum(samples)

	graph := asciigraph.Plot(ps[1:max(2, len(ps)/4)],
		asciigraph.Height(12),
		asciigraph.Width(80),
		asciigraph.Caption("power spectrum (average x)"),
	)
	fmt.Println(graph)
	fmt.Println()

	fmt.Printf("dominant frequency: %.6g Hz\n", freq)
	fmt.Printf("period:             %.6g s\n", 1/freq)
	if meta.Summary != nil && meta.Summary.ExpectedPeriod > 0 {
		expected := meta.Summary.ExpectedPeriod
		fmt.Printf("expected period:    %.6g s\n", expected)
		fmt.Printf("difference:         %.4g%%\n", 100*math.Abs(1/freq-expected)/expected)
	}
	return nil
}

func exportPNG(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	charts, err := chartsFor(meta, st)
	if err != nil {
		return err
	}

	dir := outDir
	if dir == "" {
		dir = st.Dir(meta.ID)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	for i, c := range charts {
		t, err := st.LoadTable(meta.ID, c.table)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		if len(t.Rows) < 2 {
			continue
		}

		series, err := export.TableSeries(t, c.x, c.ys...)
		if err != nil {
			return err
		}
		path := filepath.Join(dir, fmt.Sprintf("%d_%s.png", i, c.table))
		if err := export.SavePlot(path, c.title, c.x, c.ylabel, series...); err != nil {
			return err
		}
		fmt.Println(path)
	}
	return nil
}
