package viz

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/emsim/internal/experiment"
	"github.com/san-kum/emsim/internal/sim"
)

const (
	width           = 80
	height          = 24
	historyCapacity = 600
	maxBatch        = 1 << 16
)

type TickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(time.Second/30, func(t time.Time) tea.Msg { return TickMsg(t) })
}

type viewMode int

const (
	viewOrbit viewMode = iota
	viewBunch
)

// Live drives a simulation session from the bubbletea loop, advancing a
// batch of iterations per tick.
type Live struct {
	exp     *experiment.Experiment
	session *sim.Session
	ref     sim.Reference

	canvas *Canvas
	camera *Camera
	mode   viewMode
	theme  Theme
	styles Styles

	batch    int
	running  bool
	showHelp bool
	err      error

	energyHistory []float64
	spreadHistory []float64
}

// NewLive starts a session on exp. batch is the number of iterations per
// frame.
func NewLive(exp *experiment.Experiment, batch int) (*Live, error) {
	ss, err := exp.Start()
	if err != nil {
		return nil, err
	}
	if batch < 1 {
		batch = 1
	}
	theme := Themes[0]
	return &Live{
		exp:           exp,
		session:       ss,
		ref:           exp.Reference(),
		canvas:        NewCanvas(width, height),
		camera:        NewCamera(),
		theme:         theme,
		styles:        NewStyles(theme),
		batch:         batch,
		running:       true,
		energyHistory: make([]float64, 0, historyCapacity),
		spreadHistory: make([]float64, 0, historyCapacity),
	}, nil
}

func (m *Live) Init() tea.Cmd {
	return tick()
}

// Result is the run result once the session has terminated, else nil.
func (m *Live) Result() *sim.Result { return m.session.Result() }

func (m *Live) Err() error { return m.err }

func (m *Live) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "n":
			if !m.running {
				m.advance(1)
			}
		case "+", "=":
			m.batch = min(m.batch*2, maxBatch)
		case "-", "_":
			m.batch = max(m.batch/2, 1)
		case "v":
			m.mode = (m.mode + 1) % 2
		case "t":
			m.theme = NextTheme(m.theme.Name)
			m.styles = NewStyles(m.theme)
		case "x":
			m.camera.RotateX(0.1)
		case "y":
			m.camera.RotateY(0.1)
		case "z":
			m.camera.RotateZ(0.1)
		case "?":
			m.showHelp = !m.showHelp
		}
	case TickMsg:
		if m.running && !m.finished() {
			m.advance(m.batch)
		}
		return m, tick()
	}
	return m, nil
}

func (m *Live) finished() bool {
	return m.session.Phase == sim.Terminated
}

// advance runs up to n iterations and records the energy and spread.
func (m *Live) advance(n int) {
	for i := 0; i < n; i++ {
		done, err := m.session.Advance()
		if err != nil {
			m.err = err
		}
		if done {
			break
		}
	}

	b := m.session.Bunch()
	ke, pe := b.Energy(m.ref.PointCharge, m.ref.Centre, m.ref.Field)
	m.energyHistory = appendCapped(m.energyHistory, ke+pe)
	s := b.Spreads()
	m.spreadHistory = appendCapped(m.spreadHistory, math.Max(s.X, math.Max(s.Y, s.Z)))
}

func appendCapped(h []float64, v float64) []float64 {
	h = append(h, v)
	if len(h) > historyCapacity {
		h = h[1:]
	}
	return h
}

func (m *Live) draw() {
	m.canvas.Clear()
	b := m.session.Bunch()

	if m.mode == viewBunch {
		s := b.Spreads()
		unit := math.Max(s.X, math.Max(s.Y, s.Z))
		pts := make([]r3.Vec, len(b.Particles))
		for i := range b.Particles {
			pts[i] = b.Particles[i].Position
		}
		RenderCloud(m.canvas, m.camera, b.AveragePosition(), unit, pts)
		return
	}

	radius := m.exp.Radius
	vp := Viewport{Centre: m.ref.Centre, Half: 1.5 * radius}
	cx, cy := vp.Project(m.canvas, m.ref.Centre)
	m.canvas.DrawCircle(cx, cy, int(math.Round(radius*vp.Scale(m.canvas))))

	if gap := m.exp.Model().GapHalfWidth; gap > 0 && m.exp.Model().Gap != nil {
		for _, y := range []float64{-gap, gap} {
			x0, y0 := vp.Project(m.canvas, r3.Vec{X: m.ref.Centre.X - vp.Half, Y: y})
			x1, y1 := vp.Project(m.canvas, r3.Vec{X: m.ref.Centre.X + vp.Half, Y: y})
			m.canvas.DrawLine(x0, y0, x1, y1)
		}
	}

	for i := range b.Particles {
		m.canvas.Plot(vp, b.Particles[i].Position)
	}
}

func (m *Live) status() string {
	st := m.styles
	switch {
	case m.err != nil:
		return st.Failed.Render("DIVERGED")
	case m.finished():
		return st.Finished.Render("FINISHED " + strings.ToUpper(string(m.session.Result().Reason)))
	case !m.running:
		return st.Paused.Render("PAUSED")
	}
	return st.Running.Render("RUNNING")
}

func (m *Live) View() string {
	m.draw()
	st := m.styles
	ss := m.session
	cfg := m.exp.Config()

	var s strings.Builder
	s.WriteString(st.Header.Render(fmt.Sprintf("EMSIM %s", strings.ToUpper(m.exp.Algorithm().String()))) + "\n")
	s.WriteString(m.status() + "\n\n")

	row := func(label, value string) {
		s.WriteString(st.Label.Render(label) + st.Value.Render(value) + "\n")
	}
	row("Turn", fmt.Sprintf("%d / %d", ss.Turns, cfg.Turns))
	if cfg.Turns > 0 {
		s.WriteString(st.Label.Render("") + st.ProgressBar(float64(ss.Turns)/float64(cfg.Turns), 20) + "\n")
	}
	row("Iteration", fmt.Sprintf("%d", ss.Iteration))
	row("Time", fmt.Sprintf("%.6g s", ss.Time))
	row("dt", fmt.Sprintf("%.3g s", ss.Dt))
	row("Batch", fmt.Sprintf("%d", m.batch))
	row("Particles", fmt.Sprintf("%d", ss.Bunch().Len()))

	if n := len(m.energyHistory); n > 0 {
		row("Energy", fmt.Sprintf("%.6g J", m.energyHistory[n-1]))
	}
	if len(m.energyHistory) > 1 {
		chart := asciigraph.Plot(m.energyHistory, asciigraph.Height(4), asciigraph.Width(30), asciigraph.Caption("Energy (J)"))
		s.WriteString(st.Graph.Render(chart) + "\n")
	}
	if len(m.spreadHistory) > 0 {
		s.WriteString(st.Label.Render("Spread") + st.Sparkline(m.spreadHistory, 30) + "\n")
	}

	s.WriteString(st.Help.Render("SP:Pause N:Step +/-:Speed V:View T:Theme Q:Quit ?:Help"))

	canvasView := st.Canvas.Render(m.canvas.String())
	mainView := lipgloss.JoinHorizontal(lipgloss.Top, canvasView, st.Panel.Render(s.String()))
	if m.showHelp {
		return helpText + "\n" + mainView
	}
	return mainView
}

const helpText = `
  Space  pause or resume
  N      single iteration while paused
  + / -  double or halve iterations per frame
  V      toggle orbit plane and bunch cloud
  X Y Z  rotate the bunch cloud
  T      cycle themes
  Q      quit
`
