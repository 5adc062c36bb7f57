package scan

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usedbytes/route-bot/config"
)

func testConfig() config.Scan {
	cfg := config.Default().Scan
	cfg.HomeSettle = config.Duration{}
	cfg.ConfirmWait = config.Duration{}
	return cfg
}

// profile builds a 0..180 sweep at 2 degree steps, far everywhere except the
// given inclusive windows which read dist.
func profile(dist float64, windows ...[2]float64) []float64 {
	p := make([]float64, 91)
	for i := range p {
		angle := float64(i * 2)
		p[i] = 200
		for _, w := range windows {
			if angle >= w[0] && angle <= w[1] {
				p[i] = dist
			}
		}
	}
	return p
}

func TestSegmentTwoObstacles(t *testing.T) {
	set := Segment(profile(30, [2]float64{20, 40}, [2]float64{100, 130}), testConfig())
	require.Equal(t, 2, set.Len())

	want := []Obstacle{
		{StartAngle: 20, EndAngle: 40, Angle: 30, StartDist: 30, EndDist: 30, Dist: 30,
			Width: 20, LinearWidth: 20 * math.Pi / 180 * 30},
		{StartAngle: 100, EndAngle: 130, Angle: 115, StartDist: 30, EndDist: 30, Dist: 30,
			Width: 30, LinearWidth: 30 * math.Pi / 180 * 30},
	}
	if diff := cmp.Diff(want, set.Obstacles(), cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("obstacles mismatch (-want +got):\n%s", diff)
	}

	target, err := set.Target()
	require.NoError(t, err)
	assert.Equal(t, 20.0, target.Width)
	assert.Equal(t, 30.0, target.Angle)
}

func TestSegmentRunLength(t *testing.T) {
	cfg := testConfig()

	for l := 1; l <= 12; l++ {
		p := make([]float64, 40)
		for i := range p {
			p[i] = 200
		}
		for i := 10; i < 10+l; i++ {
			p[i] = 20
		}

		set := Segment(p, cfg)
		if l < cfg.MinRun {
			assert.Zero(t, set.Len(), "run of %d", l)
			continue
		}
		require.Equal(t, 1, set.Len(), "run of %d", l)
		assert.Equal(t, float64(2*(l-1)), set.At(0).Width, "run of %d", l)
	}
}

func TestSegmentTrailingRun(t *testing.T) {
	p := profile(30, [2]float64{170, 180})

	set := Segment(p, testConfig())
	require.Equal(t, 1, set.Len())
	assert.Equal(t, 170.0, set.At(0).StartAngle)
	assert.Equal(t, 180.0, set.At(0).EndAngle)
}

func TestSegmentMidpointUsesEdges(t *testing.T) {
	p := profile(200)
	for i, d := range []float64{10, 45, 45, 45, 20} {
		p[5+i] = d
	}

	set := Segment(p, testConfig())
	require.Equal(t, 1, set.Len())
	assert.Equal(t, 15.0, set.At(0).Dist)
}

func TestSegmentCapacity(t *testing.T) {
	cfg := testConfig()

	var windows [][2]float64
	for i := 0; i < 9; i++ {
		start := float64(i * 20)
		windows = append(windows, [2]float64{start, start + 10})
	}
	set := Segment(profile(30, windows...), cfg)

	assert.Equal(t, cfg.Capacity, set.Len())
	assert.Equal(t, 2, set.Dropped())
	assert.Equal(t, 0.0, set.At(0).StartAngle)
	assert.Equal(t, 120.0, set.At(cfg.Capacity-1).StartAngle, "earliest obstacles are kept")

	assert.ErrorIs(t, set.Add(Obstacle{}), ErrCapacityExceeded)
	assert.Equal(t, cfg.Capacity, set.Len())
}

func TestTargetOrderIndependent(t *testing.T) {
	a := Obstacle{Angle: 10, Width: 8}
	b := Obstacle{Angle: 50, Width: 14}

	for _, order := range [][]Obstacle{{a, b}, {b, a}} {
		set := NewObstacleSet(7)
		for _, o := range order {
			require.NoError(t, set.Add(o))
		}
		target, err := set.Target()
		require.NoError(t, err)
		assert.Equal(t, a, target)
	}
}

func TestTargetTieTakesFirst(t *testing.T) {
	set := NewObstacleSet(7)
	set.Add(Obstacle{Angle: 40, Width: 10})
	set.Add(Obstacle{Angle: 90, Width: 10})

	target, err := set.Target()
	require.NoError(t, err)
	assert.Equal(t, 40.0, target.Angle)
}

func TestTargetEmpty(t *testing.T) {
	_, err := NewObstacleSet(7).Target()
	assert.ErrorIs(t, err, ErrNoObstacleFound)
}

type fakeRanger struct {
	angle   float64
	at      func(angle float64) float64
	long    float64
	longAt  []float64
	homes   int
	failAim bool
}

func (f *fakeRanger) Home(ctx context.Context) error {
	f.homes++
	f.angle = 0
	return nil
}

func (f *fakeRanger) Aim(ctx context.Context, delta float64) error {
	if f.failAim {
		return errors.New("servo gone")
	}
	f.angle += delta
	return nil
}

func (f *fakeRanger) ShortRange(ctx context.Context) (float64, error) {
	return f.at(f.angle), nil
}

func (f *fakeRanger) LongRange(ctx context.Context) (float64, error) {
	f.longAt = append(f.longAt, f.angle)
	return f.long, nil
}

func windowed(dist float64, windows ...[2]float64) func(float64) float64 {
	return func(angle float64) float64 {
		for _, w := range windows {
			if angle >= w[0] && angle <= w[1] {
				return dist
			}
		}
		return 200
	}
}

func TestScannerScan(t *testing.T) {
	r := &fakeRanger{
		at:   windowed(30, [2]float64{20, 40}, [2]float64{100, 130}),
		long: 33,
	}
	s := NewScanner(r, testConfig(), config.Default().Roadway)

	set, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, set.Len())

	assert.Equal(t, []float64{30, 115}, r.longAt, "confirmation at each midpoint")
	for _, o := range set.Obstacles() {
		assert.Equal(t, 33.0, o.RangeConfirm)
	}

	samples := s.Profile()
	require.Len(t, samples, 91)
	assert.Equal(t, 0.0, samples[0].Angle)
	assert.Equal(t, 180.0, samples[90].Angle)
	assert.Equal(t, 1, r.homes)
}

func TestScannerAimError(t *testing.T) {
	r := &fakeRanger{at: windowed(30), failAim: true}
	s := NewScanner(r, testConfig(), config.Default().Roadway)

	_, err := s.Scan(context.Background())
	assert.Error(t, err)
}

func TestScannerCancelled(t *testing.T) {
	cfg := testConfig()
	cfg.HomeSettle = config.Duration{Duration: 1}
	r := &fakeRanger{at: windowed(30)}
	s := NewScanner(r, cfg, config.Default().Roadway)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRoadwayBlocked(t *testing.T) {
	rw := config.Default().Roadway

	r := &fakeRanger{at: windowed(30, [2]float64{90, 96})}
	s := NewScanner(r, testConfig(), rw)
	blocked, err := s.RoadwayBlocked(context.Background())
	require.NoError(t, err)
	assert.True(t, blocked)

	samples := s.Profile()
	require.NotEmpty(t, samples)
	assert.Equal(t, rw.StartAngle, samples[0].Angle)
	assert.Equal(t, rw.EndAngle, samples[len(samples)-1].Angle)

	// Inside the wide presence threshold but beyond the roadway one
	r = &fakeRanger{at: windowed(45, [2]float64{90, 96})}
	s = NewScanner(r, testConfig(), rw)
	blocked, err = s.RoadwayBlocked(context.Background())
	require.NoError(t, err)
	assert.False(t, blocked)

	// Exactly at the roadway threshold
	r = &fakeRanger{at: windowed(rw.Threshold, [2]float64{90, 96})}
	s = NewScanner(r, testConfig(), rw)
	blocked, err = s.RoadwayBlocked(context.Background())
	require.NoError(t, err)
	assert.True(t, blocked)

	// Close, but off to the side
	r = &fakeRanger{at: windowed(20, [2]float64{20, 40})}
	s = NewScanner(r, testConfig(), rw)
	blocked, err = s.RoadwayBlocked(context.Background())
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestPlotProfile(t *testing.T) {
	r := &fakeRanger{at: windowed(30, [2]float64{20, 40})}
	s := NewScanner(r, testConfig(), config.Default().Roadway)

	set, err := s.Scan(context.Background())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "sweep.png")
	require.NoError(t, PlotProfile(path, s.Profile(), set))
	assert.FileExists(t, path)

	assert.Error(t, PlotProfile(path, nil, nil))
}
