package live

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerator_DeterministicPerSeed(t *testing.T) {
	cfg := DefaultGeneratorConfig()
	cfg.Seed = 99
	a := NewGenerator(cfg)
	b := NewGenerator(cfg)

	now := time.Now()
	for i := 0; i < 50; i++ {
		assert.Equal(t, a.Next(now), b.Next(now), "same seed must replay the same series")
	}
}

func TestGenerator_StaysNearBaseWithoutSpikes(t *testing.T) {
	cfg := GeneratorConfig{Seed: 7, Base: 100, Amplitude: 5, Noise: 1.5}
	g := NewGenerator(cfg)

	now := time.Now()
	for i := 0; i < 200; i++ {
		v := g.Next(now)
		assert.False(t, math.IsNaN(v))
		assert.InDelta(t, 100, v, 20, "no drift, no spikes: readings hug the base")
	}
}

func TestGenerator_ZeroSeedStillSeeds(t *testing.T) {
	g := NewGenerator(GeneratorConfig{Base: 50})
	assert.NotPanics(t, func() { g.Next(time.Now()) })
}
