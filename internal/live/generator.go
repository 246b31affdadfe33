package live

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Generator synthesizes demo readings: a slow drift plus a daily-ish
// sine component, gaussian noise, and an occasional injected spike so
// the streaming detector has something to find.
type Generator struct {
	mu         sync.Mutex
	rng        *rand.Rand
	step       int
	base       float64
	drift      float64
	amplitude  float64
	noise      float64
	spikeProb  float64
	spikeScale float64
}

// GeneratorConfig tunes the synthetic source.
type GeneratorConfig struct {
	Seed       int64   `yaml:"seed"`
	Base       float64 `yaml:"base"`
	Drift      float64 `yaml:"drift"`
	Amplitude  float64 `yaml:"amplitude"`
	Noise      float64 `yaml:"noise"`
	SpikeProb  float64 `yaml:"spike_prob"`
	SpikeScale float64 `yaml:"spike_scale"`
}

// DefaultGeneratorConfig returns the demo-friendly source shape.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Seed:       time.Now().UnixNano(),
		Base:       100,
		Drift:      0.02,
		Amplitude:  5,
		Noise:      1.5,
		SpikeProb:  0.02,
		SpikeScale: 12,
	}
}

// NewGenerator builds a seeded synthetic source.
func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.Seed == 0 {
		cfg.Seed = 1
	}
	return &Generator{
		rng:        rand.New(rand.NewSource(cfg.Seed)),
		base:       cfg.Base,
		drift:      cfg.Drift,
		amplitude:  cfg.Amplitude,
		noise:      cfg.Noise,
		spikeProb:  cfg.SpikeProb,
		spikeScale: cfg.SpikeScale,
	}
}

// Next produces the reading for this tick.
func (g *Generator) Next(_ time.Time) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	t := float64(g.step)
	g.step++

	v := g.base + g.drift*t + g.amplitude*math.Sin(t/30)
	v += g.rng.NormFloat64() * g.noise
	if g.rng.Float64() < g.spikeProb {
		sign := 1.0
		if g.rng.Float64() < 0.5 {
			sign = -1
		}
		v += sign * g.spikeScale * g.noise
	}
	return v
}
