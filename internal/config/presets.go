package config

import (
	"fmt"
	"sort"

	"github.com/san-kum/emsim/internal/dynamo"
	"github.com/san-kum/emsim/internal/field"
	"github.com/san-kum/emsim/internal/sim"
)

var (
	magnetic  = field.Config{UniformMagnetic: true}
	failing   = field.Config{FailingField: true}
	charge    = field.Config{PointCharge: true}
	cyclotron = field.Config{CyclotronGap: true}
)

// Presets are the canned runs. Every entry is a full configuration built
// over the defaults.
var Presets = map[string]*Config{
	"user": DefaultConfig(),

	"spread-x": spreadRun(Vec{X: 0.1}),
	"spread-y": spreadRun(Vec{Y: 0.1}),
	"spread-z": spreadRun(Vec{Z: 0.1}),

	"failing-field": with(func(c *Config) {
		c.Algorithm = "euler-cromer"
		c.Fields.Config = failing
		c.Dt = 1e-6
		c.Stop = sim.StopSpreadSettled.String()
		c.Bunch.Spread = Vec{X: 0.1}
		c.Bunch.SpreadInRadii = false
		c.Output.PrintEvery = 20000
	}),

	"euler-magnetic":        singleParticle("euler", magnetic),
	"euler-cromer-magnetic": singleParticle("euler-cromer", magnetic),
	"euler-electric":        singleParticle("euler", charge),
	"euler-cromer-electric": singleParticle("euler-cromer", charge),

	"cyclotron": with(func(c *Config) {
		c.Algorithm = "heun"
		c.Fields.Config = cyclotron
		c.Bunch.Particles = 1
		c.Dt = 1e-7
		c.Turns = 100
	}),

	"relativistic": with(func(c *Config) {
		c.Algorithm = "heun"
		c.Fields.Config = cyclotron
		c.Fields.Electric = 1e-6
		c.Bunch.Particles = 1
		c.Bunch.Speed = 1e3
		c.Dt = 1e-4
		c.Stop = sim.StopRelativistic.String()
	}),

	"rkf45-cyclotron": with(func(c *Config) {
		c.Algorithm = "rkf45"
		c.Fields.Config = cyclotron
		c.Bunch.Particles = 1
		c.Dt = 1e-4
		c.MinDt = 1e-6
		c.MaxDt = 5e-3
		c.Turns = 50
	}),
}

func with(mutate func(*Config)) *Config {
	c := DefaultConfig()
	mutate(c)
	return c
}

func spreadRun(spread Vec) *Config {
	return with(func(c *Config) {
		c.Algorithm = "euler-cromer"
		c.Fields.Config = magnetic
		c.Bunch.Spread = spread
		c.Bunch.SpreadInRadii = false
	})
}

func singleParticle(alg string, fields field.Config) *Config {
	return with(func(c *Config) {
		c.Algorithm = alg
		c.Fields.Config = fields
		c.Bunch.Particles = 1
		c.Dt = 1e-5
		c.Turns = 100
		c.Output.WriteEvery = 10000
	})
}

// GetPreset returns a copy of the named preset.
func GetPreset(name string) (*Config, error) {
	cfg, ok := Presets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", dynamo.ErrUnknownPreset, name)
	}
	return cfg.Clone(), nil
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
