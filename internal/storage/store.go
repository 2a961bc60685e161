package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/emsim/internal/config"
	"github.com/san-kum/emsim/internal/report"
	"github.com/san-kum/emsim/internal/sim"
)

const (
	metadataFile = "run.yaml"
	tableExt     = ".tsv"

	KindRun   = "run"
	KindSweep = "sweep"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir(runID string) string {
	return filepath.Join(s.baseDir, runID)
}

// Summary holds the headline numbers of a finished run. Errors are
// percentages.
type Summary struct {
	Reason          string  `yaml:"reason"`
	Iterations      int     `yaml:"iterations"`
	Turns           int     `yaml:"turns"`
	Time            float64 `yaml:"time"`
	FinalDt         float64 `yaml:"final_dt"`
	RejectedSteps   int     `yaml:"rejected_steps"`
	ExpectedPeriod  float64 `yaml:"expected_period"`
	DeltaKE         float64 `yaml:"delta_ke"`
	ExpectedGain    float64 `yaml:"expected_gain"`
	PeriodError     float64 `yaml:"period_error"`
	EnergyError     float64 `yaml:"energy_error"`
	MomentumError   float64 `yaml:"momentum_error"`
	SimulationError float64 `yaml:"simulation_error"`
	ElapsedSeconds  float64 `yaml:"elapsed_seconds"`
}

func summarize(r *sim.Result) *Summary {
	_, period := r.PeriodError()
	return &Summary{
		Reason:          string(r.Reason),
		Iterations:      r.Iterations,
		Turns:           r.Turns,
		Time:            r.Time,
		FinalDt:         r.FinalDt,
		RejectedSteps:   r.RejectedSteps,
		ExpectedPeriod:  r.ExpectedPeriod,
		DeltaKE:         r.DeltaKE(),
		ExpectedGain:    r.ExpectedGain,
		PeriodError:     period,
		EnergyError:     r.EnergyError(),
		MomentumError:   r.MomentumError(),
		SimulationError: r.SimulationError(),
		ElapsedSeconds:  r.Elapsed.Seconds(),
	}
}

type RunMetadata struct {
	ID        string             `yaml:"id"`
	Name      string             `yaml:"name"`
	Kind      string             `yaml:"kind"`
	Timestamp time.Time          `yaml:"timestamp"`
	Config    *config.Config     `yaml:"config"`
	Summary   *Summary           `yaml:"summary,omitempty"`
	Metrics   map[string]float64 `yaml:"metrics,omitempty"`
	Tables    []string           `yaml:"tables"`
}

// Save writes a finished run: run.yaml plus one table per recorder series.
// rec may be nil, in which case only the metadata is written.
func (s *Store) Save(name string, cfg *config.Config, result *sim.Result, rec *Recorder) (string, error) {
	meta := &RunMetadata{
		Name:    name,
		Kind:    KindRun,
		Config:  cfg,
		Summary: summarize(result),
		Metrics: result.Metrics,
	}
	var tables []*Table
	if rec != nil {
		tables = rec.Tables()
	}
	return s.write(meta, tables)
}

// SaveSweep writes a sweep as a single table. cfg is the base configuration
// the points were derived from.
func (s *Store) SaveSweep(name string, cfg *config.Config, columns []string, rows [][]float64) (string, error) {
	meta := &RunMetadata{
		Name:   name,
		Kind:   KindSweep,
		Config: cfg,
	}
	return s.write(meta, []*Table{{Name: TableSweep, Columns: columns, Rows: rows}})
}

func (s *Store) write(meta *RunMetadata, tables []*Table) (string, error) {
	meta.ID = fmt.Sprintf("%s_%s", meta.Name, uuid.NewString()[:8])
	meta.Timestamp = time.Now().UTC().Truncate(time.Second)

	runDir := s.Dir(meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	for _, t := range tables {
		if err := s.writeTable(runDir, meta, t); err != nil {
			return "", fmt.Errorf("write %s table: %w", t.Name, err)
		}
		meta.Tables = append(meta.Tables, t.Name)
	}

	data, err := yaml.Marshal(meta)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(runDir, metadataFile), data, 0644); err != nil {
		return "", err
	}
	return meta.ID, nil
}

func (s *Store) writeTable(runDir string, meta *RunMetadata, t *Table) error {
	file, err := os.Create(filepath.Join(runDir, t.Name+tableExt))
	if err != nil {
		return err
	}
	defer file.Close()

	if err := report.ParameterHeader(file, meta.Name, meta.Config, meta.Timestamp); err != nil {
		return err
	}

	w := csv.NewWriter(file)
	w.Comma = '\t'
	if err := w.Write(t.Columns); err != nil {
		return err
	}

	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		record = record[:0]
		for _, v := range row {
			record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

// List returns every readable run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].Timestamp.Before(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir(runID), metadataFile))
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}

	var meta RunMetadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	return &meta, nil
}

// LoadTable reads one of a run's tables, skipping the parameter header.
func (s *Store) LoadTable(runID, name string) (*Table, error) {
	file, err := os.Open(filepath.Join(s.Dir(runID), name+tableExt))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.Comma = '\t'
	r.Comment = '#'
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s table: %w", name, err)
	}

	t := &Table{Name: name}
	if len(records) == 0 {
		return t, nil
	}
	t.Columns = records[0]

	for i, record := range records[1:] {
		row := make([]float64, 0, len(record))
		for _, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%s table line %d: %w", name, i+2, err)
			}
			row = append(row, v)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
