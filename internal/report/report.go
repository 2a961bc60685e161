// Package report formats run parameters, end-of-run summaries and sweep
// tables as plain text.
package report

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/san-kum/emsim/internal/config"
	"github.com/san-kum/emsim/internal/sim"
)

const rule = "# ----------------------------\n"

func param(b *bytes.Buffer, label, format string, args ...any) {
	fmt.Fprintf(b, "# %-19s: %s\n", label, fmt.Sprintf(format, args...))
}

// ParameterHeader writes the comment block that opens every output table.
func ParameterHeader(w io.Writer, name string, cfg *config.Config, at time.Time) error {
	var b bytes.Buffer
	b.WriteString("# EMSIM OUTPUT FILE\n")
	b.WriteString("# PARAMETERS OF SIMULATION RUN\n")
	b.WriteString(rule)
	param(&b, "Time", "%s", at.UTC().Format(time.RFC3339))
	b.WriteString(rule)

	f := cfg.Fields
	param(&b, "Run", "%s", name)
	param(&b, "Magnetic field?", "%t", f.UniformMagnetic)
	param(&b, "Failing field?", "%t", f.FailingField)
	param(&b, "Point charge?", "%t", f.PointCharge)
	param(&b, "Cyclotron set-up?", "%t", f.CyclotronGap)
	param(&b, "Magnetic strength", "%.6g T", f.Magnetic)
	param(&b, "Electric strength", "%.6g N/C", f.Electric)
	param(&b, "Phase", "%.6g pi", f.Phase/math.Pi)
	param(&b, "Algorithm", "%s", cfg.Algorithm)
	param(&b, "Time-step", "%.6g s", cfg.Dt)
	if alg, err := cfg.AlgorithmID(); err == nil && alg.Adaptive() {
		param(&b, "Tolerance", "%.6g", cfg.Tolerance)
		param(&b, "Step bounds", "[%.6g, %.6g] s", cfg.MinDt, cfg.MaxDt)
	}
	param(&b, "Stop", "%s", stopName(cfg.Stop))
	param(&b, "Number of turns", "%d", cfg.Turns)
	param(&b, "Number of particles", "%d", cfg.Bunch.Particles)

	unit := "m"
	if cfg.Bunch.SpreadInRadii {
		unit = "R"
	}
	param(&b, "Spread in x", "%.6g %s", cfg.Bunch.Spread.X, unit)
	param(&b, "Spread in y", "%.6g %s", cfg.Bunch.Spread.Y, unit)
	param(&b, "Spread in z", "%.6g %s", cfg.Bunch.Spread.Z, unit)
	param(&b, "Initial speed", "%.6g m/s", cfg.Bunch.Speed)
	param(&b, "Speed spread", "%.6g v", cfg.Bunch.SpeedSpread)
	param(&b, "Seed", "%d", cfg.Seed)
	b.WriteString(rule)

	_, err := w.Write(b.Bytes())
	return err
}

func stopName(s string) string {
	if s == "" {
		return sim.StopTurns.String()
	}
	return s
}

func line(b *bytes.Buffer, label, format string, args ...any) {
	fmt.Fprintf(b, "%-22s: %s\n", label, fmt.Sprintf(format, args...))
}

// Summary writes the end-of-run report: period, energies, angular momentum,
// gains against expectation and the headline simulation error.
func Summary(w io.Writer, r *sim.Result) error {
	var b bytes.Buffer

	line(&b, "Stop reason", "%s", r.Reason)
	line(&b, "Iterations", "%d", r.Iterations)
	line(&b, "Turns", "%d", r.Turns)
	line(&b, "Computational time", "%s", r.Elapsed)
	line(&b, "Final time-step", "%.6g s", r.FinalDt)
	if r.RejectedSteps > 0 {
		line(&b, "Rejected steps", "%d", r.RejectedSteps)
	}

	b.WriteString("\n")
	abs, pct := r.PeriodError()
	line(&b, "Simulated time", "%.6g s", r.Time)
	line(&b, "Simulated period", "%.6g s", r.SimulatedPeriod())
	line(&b, "Expected period", "%.6g s", r.ExpectedPeriod)
	line(&b, "Change in period", "%.6g s (%.6g%%)", abs, pct)

	b.WriteString("\n")
	line(&b, "Initial KE", "%.6g J", r.Initial.KE)
	line(&b, "Initial PE", "%.6g J", r.Initial.PE)
	line(&b, "Initial E", "%.6g J", r.Initial.Energy())
	line(&b, "Initial L", "%.6g kg m^2/s", r.Initial.L)
	line(&b, "Final KE", "%.6g J", r.Final.KE)
	line(&b, "Final PE", "%.6g J", r.Final.PE)
	line(&b, "Final E", "%.6g J", r.Final.Energy())
	line(&b, "Final L", "%.6g kg m^2/s", r.Final.L)

	b.WriteString("\n")
	ke := r.Initial.KE
	line(&b, "Change in KE", "%.6g J (%.6g%%)", r.DeltaKE(), percent(r.DeltaKE(), ke))
	if r.Fields.CyclotronGap {
		line(&b, "Expected gain", "%.6g J (%.6g%%)", r.ExpectedGain, percent(r.ExpectedGain, ke))
		line(&b, "Synchronous gain", "%.6g J (%.6g%%)", r.SynchronousGain, percent(r.SynchronousGain, ke))
	}
	dE := r.Final.Energy() - r.Initial.Energy()
	line(&b, "Change in energy", "%.6g J (%.6g%%)", math.Abs(dE), r.EnergyError())
	dL := r.Final.L - r.Initial.L
	line(&b, "Change in L", "%.6g kg m^2/s (%.6g%%)", math.Abs(dL), r.MomentumError())

	b.WriteString("\n")
	line(&b, "Simulation error", "%.6g%%", r.SimulationError())

	if len(r.Metrics) > 0 {
		b.WriteString("\n")
		names := make([]string, 0, len(r.Metrics))
		for name := range r.Metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			line(&b, name, "%.6g", r.Metrics[name])
		}
	}

	_, err := w.Write(b.Bytes())
	return err
}

// Table writes a tab-separated table: a header of column names followed by
// one line per row.
func Table(w io.Writer, columns []string, rows [][]float64) error {
	var b bytes.Buffer
	b.WriteString(strings.Join(columns, "\t"))
	b.WriteString("\n")
	for _, row := range rows {
		for i, v := range row {
			if i > 0 {
				b.WriteString("\t")
			}
			fmt.Fprintf(&b, "%.6g", v)
		}
		b.WriteString("\n")
	}
	_, err := w.Write(b.Bytes())
	return err
}

func percent(v, ref float64) float64 {
	if ref == 0 {
		return 0
	}
	return 100 * v / ref
}
