package storage

import "github.com/san-kum/emsim/internal/sim"

// Table names written by Store.Save.
const (
	TablePositions = "pos"
	TableSpread    = "spread"
	TableConserved = "consv"
	TableBoost     = "boost"
	TableSweep     = "sweep"
)

var tableColumns = map[string][]string{
	TablePositions: {"time", "x", "y", "z"},
	TableSpread:    {"time", "spread_x", "spread_y", "spread_z"},
	TableConserved: {"time", "KE", "PE", "E", "L"},
	TableBoost:     {"turn", "delta_v", "expected_delta_v", "period"},
}

type Table struct {
	Name    string
	Columns []string
	Rows    [][]float64
}

// Column returns the values of the named column, or nil.
func (t *Table) Column(name string) []float64 {
	for i, c := range t.Columns {
		if c != name {
			continue
		}
		out := make([]float64, 0, len(t.Rows))
		for _, row := range t.Rows {
			if i < len(row) {
				out = append(out, row[i])
			}
		}
		return out
	}
	return nil
}

// Recorder is a simulator observer collecting the rows of the per-run
// tables.
type Recorder struct {
	positions [][]float64
	spreads   [][]float64
	conserved [][]float64
	boosts    [][]float64
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) OnSnapshot(s sim.Snapshot) {
	p := s.AvgPosition
	r.positions = append(r.positions, []float64{s.Time, p.X, p.Y, p.Z})
	sp := s.Spread
	r.spreads = append(r.spreads, []float64{s.Time, sp.X, sp.Y, sp.Z})
	r.conserved = append(r.conserved, []float64{s.Time, s.KE, s.PE, s.Energy(), s.L})
}

func (r *Recorder) OnTurn(t sim.TurnRecord) {
	r.boosts = append(r.boosts, []float64{float64(t.Turn), t.DeltaV, t.ExpectedDeltaV, t.Period})
}

func (r *Recorder) Tables() []*Table {
	return []*Table{
		{Name: TablePositions, Columns: tableColumns[TablePositions], Rows: r.positions},
		{Name: TableSpread, Columns: tableColumns[TableSpread], Rows: r.spreads},
		{Name: TableConserved, Columns: tableColumns[TableConserved], Rows: r.conserved},
		{Name: TableBoost, Columns: tableColumns[TableBoost], Rows: r.boosts},
	}
}
