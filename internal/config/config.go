package config

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/emsim/internal/dynamo"
	"github.com/san-kum/emsim/internal/field"
	"github.com/san-kum/emsim/internal/integrators"
	"github.com/san-kum/emsim/internal/sim"
)

const (
	DefaultDt            = 1e-6
	DefaultTolerance     = 0.01
	DefaultMinDt         = 1e-7
	DefaultMaxDt         = 0.01
	DefaultTurns         = 10
	DefaultMaxTurns      = 100000
	DefaultParticles     = 100
	DefaultSpeed         = 0.1
	DefaultMagneticField = 1e-7
	DefaultElectricField = 1e-7
	DefaultPhase         = math.Pi / 2
	DefaultGapFraction   = 0.05
	DefaultWriteEvery    = 1000000
	DefaultPrintEvery    = 1000000
	DefaultSeed          = 1
)

type Config struct {
	Algorithm     string  `yaml:"algorithm"`
	Acceptance    string  `yaml:"acceptance,omitempty"`
	Dt            float64 `yaml:"dt"`
	Tolerance     float64 `yaml:"tolerance"`
	MinDt         float64 `yaml:"min_dt"`
	MaxDt         float64 `yaml:"max_dt"`
	Turns         int     `yaml:"turns"`
	MaxTurns      int     `yaml:"max_turns"`
	MaxIterations int     `yaml:"max_iterations,omitempty"`
	Stop          string  `yaml:"stop"`
	Seed          int64   `yaml:"seed"`
	Workers       int     `yaml:"workers,omitempty"`
	// Metrics names the run metrics; empty selects the defaults.
	Metrics []string `yaml:"metrics,omitempty"`

	Bunch  BunchConfig  `yaml:"bunch"`
	Fields FieldConfig  `yaml:"fields"`
	Output OutputConfig `yaml:"output"`
}

// Vec is a yaml-friendly 3-vector.
type Vec struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

type BunchConfig struct {
	Particles int     `yaml:"particles"`
	Speed     float64 `yaml:"speed"`
	// SpeedSpread is a fraction of Speed.
	SpeedSpread float64 `yaml:"speed_spread"`
	Spread      Vec     `yaml:"spread"`
	// SpreadInRadii scales Spread by the orbit radius.
	SpreadInRadii bool `yaml:"spread_in_radii"`

	// A zero charge or mass falls back to the proton's.
	Charge float64 `yaml:"charge,omitempty"`
	Mass   float64 `yaml:"mass,omitempty"`
}

type FieldConfig struct {
	field.Config `yaml:",inline"`

	Magnetic      float64 `yaml:"magnetic"`
	Electric      float64 `yaml:"electric"`
	Phase         float64 `yaml:"phase"`
	FailingFactor float64 `yaml:"failing_factor"`
	// GapFraction is the gap half width in orbit radii.
	GapFraction float64 `yaml:"gap_fraction"`
}

type OutputConfig struct {
	WriteEvery int `yaml:"write_every"`
	PrintEvery int `yaml:"print_every"`
}

func DefaultConfig() *Config {
	return &Config{
		Algorithm: "euler",
		Dt:        DefaultDt,
		Tolerance: DefaultTolerance,
		MinDt:     DefaultMinDt,
		MaxDt:     DefaultMaxDt,
		Turns:     DefaultTurns,
		MaxTurns:  DefaultMaxTurns,
		Stop:      sim.StopTurns.String(),
		Seed:      DefaultSeed,
		Bunch: BunchConfig{
			Particles:     DefaultParticles,
			Speed:         DefaultSpeed,
			SpreadInRadii: true,
		},
		Fields: FieldConfig{
			Config:        field.Config{UniformMagnetic: true},
			Magnetic:      DefaultMagneticField,
			Electric:      DefaultElectricField,
			Phase:         DefaultPhase,
			FailingFactor: field.DefaultFailingFactor,
			GapFraction:   DefaultGapFraction,
		},
		Output: OutputConfig{
			WriteEvery: DefaultWriteEvery,
			PrintEvery: DefaultPrintEvery,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes yaml over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Clone() *Config {
	cp := *c
	cp.Metrics = append([]string(nil), c.Metrics...)
	return &cp
}

func (c *Config) AlgorithmID() (dynamo.Algorithm, error) {
	return dynamo.ParseAlgorithm(c.Algorithm)
}

func (c *Config) StopCondition() (sim.StopCondition, error) {
	return sim.ParseStop(c.Stop)
}

// Sim returns the driver parameters.
func (c *Config) Sim() (sim.Config, error) {
	stop, err := c.StopCondition()
	if err != nil {
		return sim.Config{}, err
	}
	return sim.Config{
		Dt:            c.Dt,
		Tolerance:     c.Tolerance,
		MinDt:         c.MinDt,
		MaxDt:         c.MaxDt,
		Turns:         c.Turns,
		MaxTurns:      c.MaxTurns,
		MaxIterations: c.MaxIterations,
		Stop:          stop,
		WriteEvery:    c.Output.WriteEvery,
		PrintEvery:    c.Output.PrintEvery,
		Workers:       c.Workers,
		ValidateState: true,
	}, nil
}

// Validate reports the first parameter that cannot start a run.
func (c *Config) Validate() error {
	alg, err := c.AlgorithmID()
	if err != nil {
		return err
	}
	if _, err := integrators.ParseAcceptance(c.Acceptance); err != nil {
		return err
	}
	sc, err := c.Sim()
	if err != nil {
		return err
	}
	if err := sc.Validate(alg.Adaptive()); err != nil {
		return err
	}

	switch {
	case c.Bunch.Particles <= 0:
		return fmt.Errorf("%w: particles must be positive, got %d", dynamo.ErrInvalidParameter, c.Bunch.Particles)
	case c.Bunch.Speed <= 0:
		return fmt.Errorf("%w: speed must be positive, got %g", dynamo.ErrInvalidParameter, c.Bunch.Speed)
	case c.Bunch.SpeedSpread < 0 || c.Bunch.SpeedSpread > 1:
		return fmt.Errorf("%w: speed spread must be in [0, 1], got %g", dynamo.ErrInvalidParameter, c.Bunch.SpeedSpread)
	case c.Bunch.Spread.X < 0 || c.Bunch.Spread.Y < 0 || c.Bunch.Spread.Z < 0:
		return fmt.Errorf("%w: spreads must be non-negative", dynamo.ErrInvalidParameter)
	case c.Bunch.Mass < 0:
		return fmt.Errorf("%w: mass must be positive, got %g", dynamo.ErrInvalidParameter, c.Bunch.Mass)
	case c.Fields.Magnetic <= 0:
		return fmt.Errorf("%w: magnetic field must be positive, got %g", dynamo.ErrInvalidParameter, c.Fields.Magnetic)
	case c.Fields.GapFraction <= 0:
		return fmt.Errorf("%w: gap fraction must be positive, got %g", dynamo.ErrInvalidParameter, c.Fields.GapFraction)
	case c.Fields.FailingFactor <= 0:
		return fmt.Errorf("%w: failing factor must be positive, got %g", dynamo.ErrInvalidParameter, c.Fields.FailingFactor)
	}
	return nil
}
