package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/san-kum/emsim/internal/experiment"
	"github.com/san-kum/emsim/internal/optim"
	"github.com/san-kum/emsim/internal/report"
	"github.com/san-kum/emsim/internal/storage"
)

func scanNames() []string {
	return optim.ScanNames()
}

func runSweep(cmd *cobra.Command, args []string) error {
	scan := args[0]

	base, _, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	sweeps, err := optim.ByName(scan, base)
	if err != nil {
		return err
	}

	ctx, cancel := interruptible(cmd)
	defer cancel()

	var st *storage.Store
	if !noSave {
		st = storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
	}

	for _, s := range sweeps {
		slog.Info("sweep starting", "sweep", s.Name, "points", len(s.Points), "jobs", jobs)

		rows, err := s.Run(ctx, jobs, experiment.WithLogger(quietLogger()))
		if err != nil {
			return err
		}

		values := make([][]float64, len(rows))
		for i, r := range rows {
			values[i] = r.Values
			if r.Err != nil {
				slog.Warn("sweep point diverged", "sweep", s.Name, "point", i, "err", r.Err)
			}
		}

		fmt.Printf("# %s\n", s.Name)
		if err := report.Table(os.Stdout, s.Columns, values); err != nil {
			return err
		}

		if st != nil {
			runID, err := st.SaveSweep(s.Name, base, s.Columns, values)
			if err != nil {
				return err
			}
			fmt.Printf("run id: %s\n", runID)
		}
		fmt.Println()
	}
	return nil
}
