package export

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/emsim/internal/storage"
)

func sine(n int) Series {
	s := Series{Name: "sin", X: make([]float64, n), Y: make([]float64, n)}
	for i := range s.X {
		s.X[i] = float64(i) / 10
		s.Y[i] = math.Sin(s.X[i])
	}
	return s
}

func TestSavePlotFormats(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"energy.png", "energy.svg"} {
		path := filepath.Join(dir, name)
		if err := SavePlot(path, "Energy", "time (s)", "E (J)", sine(50)); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if info.Size() == 0 {
			t.Errorf("%s is empty", name)
		}
	}
}

func TestSavePlotRejectsMismatchedSeries(t *testing.T) {
	s := sine(10)
	s.Y = s.Y[:5]
	err := SavePlot(filepath.Join(t.TempDir(), "bad.png"), "", "", "", s)
	if !errors.Is(err, ErrSeriesLength) {
		t.Errorf("expected ErrSeriesLength, got %v", err)
	}
}

func TestSavePlotRejectsUnknownFormat(t *testing.T) {
	if err := SavePlot(filepath.Join(t.TempDir(), "plot.bmpx"), "", "", "", sine(5)); err == nil {
		t.Error("expected error for unknown extension")
	}
}

func TestTableSeries(t *testing.T) {
	tb := &storage.Table{
		Name:    "consv",
		Columns: []string{"time", "KE", "E"},
		Rows:    [][]float64{{0, 1, 2}, {1, 1.5, 2}},
	}

	series, err := TableSeries(tb, "time", "KE", "E")
	if err != nil {
		t.Fatal(err)
	}
	if len(series) != 2 || series[1].Name != "E" || series[1].Y[1] != 2 {
		t.Errorf("unexpected series %+v", series)
	}

	if _, err := TableSeries(tb, "time", "L"); err == nil {
		t.Error("expected error for missing column")
	}
	if _, err := TableSeries(tb, "t", "KE"); err == nil {
		t.Error("expected error for missing x column")
	}
}
