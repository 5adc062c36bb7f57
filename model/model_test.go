package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usedbytes/route-bot/hazard"
)

func TestTakeConsumesOnce(t *testing.T) {
	o := NewOdometer()

	_, _, ok := o.Take()
	assert.False(t, ok, "nothing observed yet")

	o.Observe(Telemetry{Distance: 100, Heading: 5})
	d, h, ok := o.Take()
	require.True(t, ok)
	assert.Equal(t, 100.0, d)
	assert.Equal(t, 5.0, h)

	d, h, ok = o.Take()
	assert.False(t, ok)
	assert.Zero(t, d)
	assert.Zero(t, h)

	assert.Equal(t, 100.0, o.Distance())
	assert.Equal(t, 5.0, o.Heading())
}

func TestZeroTicksAreIdempotent(t *testing.T) {
	o := NewOdometer()
	o.Observe(Telemetry{Distance: 250})
	o.Take()

	for i := 0; i < 10; i++ {
		o.Observe(Telemetry{})
		o.Take()
	}

	assert.Equal(t, 250.0, o.Distance())
	assert.Zero(t, o.Heading())
	assert.Equal(t, uint64(11), o.Ticks())
}

func TestAccumulateIsAdditive(t *testing.T) {
	a, b := NewOdometer(), NewOdometer()

	a.Accumulate(120)
	a.Accumulate(-35)
	b.Accumulate(85)
	assert.Equal(t, b.Distance(), a.Distance())

	a.AccumulateHeading(10)
	a.AccumulateHeading(20)
	b.AccumulateHeading(30)
	assert.Equal(t, b.Heading(), a.Heading())
}

func TestTicksAreAdditive(t *testing.T) {
	a, b := NewOdometer(), NewOdometer()

	for _, d := range []float64{40, 60} {
		a.Observe(Telemetry{Distance: d})
		a.Take()
	}
	b.Observe(Telemetry{Distance: 100})
	b.Take()

	assert.Equal(t, b.Distance(), a.Distance())
}

func TestUntakenTickIsMerged(t *testing.T) {
	o := NewOdometer()
	o.Observe(Telemetry{Distance: 30, Heading: 1, Hazard: hazard.BumpLeft})
	o.Observe(Telemetry{Distance: 20, Heading: 2})

	d, h, ok := o.Take()
	require.True(t, ok)
	assert.Equal(t, 50.0, d)
	assert.Equal(t, 3.0, h)
	assert.Equal(t, 50.0, o.Distance())
}

func TestPose(t *testing.T) {
	o := NewOdometer()

	o.Observe(Telemetry{Distance: 100})
	o.Take()
	o.Observe(Telemetry{Heading: 90})
	o.Take()
	o.Observe(Telemetry{Distance: 50})
	o.Take()

	// Forward is +Y, and after a left turn forward is +X
	pos, ori := o.GetPose()
	assert.InDelta(t, 50, pos.X, 1e-9)
	assert.InDelta(t, 100, pos.Y, 1e-9)
	assert.InDelta(t, 90, ori, 1e-9)

	o.Observe(Telemetry{Heading: 200})
	o.Take()
	_, ori = o.GetPose()
	assert.InDelta(t, -70, ori, 1e-9)

	o.ResetOrientation()
	pos, ori = o.GetPose()
	assert.Zero(t, pos.X)
	assert.Zero(t, pos.Y)
	assert.Zero(t, ori)
	assert.Equal(t, 150.0, o.Distance(), "running sums survive a pose reset")
}
