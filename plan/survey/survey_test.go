package survey

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usedbytes/route-bot/config"
	"github.com/usedbytes/route-bot/drive"
	"github.com/usedbytes/route-bot/plan"
	"github.com/usedbytes/route-bot/scan"
)

type fakeScanner struct {
	set *scan.ObstacleSet
	err error
}

func (s *fakeScanner) Scan(ctx context.Context) (*scan.ObstacleSet, error) {
	return s.set, s.err
}

func (s *fakeScanner) Profile() []scan.Sample {
	return []scan.Sample{{Angle: 0, Dist: 80}, {Angle: 30, Dist: 20}, {Angle: 60, Dist: 80}}
}

type fakeTurner struct {
	turns []float64
	said  []string
}

func (f *fakeTurner) Turn(ctx context.Context, dir drive.Direction, deg float64) (float64, error) {
	f.turns = append(f.turns, dir.Sign()*deg)
	return deg, nil
}

func (f *fakeTurner) Say(text string) {
	f.said = append(f.said, text)
}

func twoObstacles(t *testing.T) *scan.ObstacleSet {
	set := scan.NewObstacleSet(7)
	require.NoError(t, set.Add(scan.Obstacle{StartAngle: 100, EndAngle: 130, Angle: 115, Dist: 30, Width: 30}))
	require.NoError(t, set.Add(scan.Obstacle{StartAngle: 120, EndAngle: 140, Angle: 130, Dist: 25, Width: 20}))
	return set
}

func TestSurveyReportsAndAims(t *testing.T) {
	tr := &fakeTurner{}
	plot := filepath.Join(t.TempDir(), "sweep.png")
	task := NewTask(&fakeScanner{set: twoObstacles(t)}, tr, config.Survey{AimAtTarget: true, PlotPath: plot})

	err := task.Tick(context.Background())
	assert.ErrorIs(t, err, plan.ErrDone)

	require.Len(t, tr.said, 5)
	assert.Contains(t, tr.said[0], "angle")
	assert.Equal(t, "Passengers: 2", tr.said[3])
	assert.Contains(t, tr.said[4], "130-140")
	assert.Equal(t, []float64{40}, tr.turns)
	assert.Equal(t, 2, task.Last().Len())

	_, err = os.Stat(plot)
	assert.NoError(t, err)
}

func TestSurveyNothingFound(t *testing.T) {
	tr := &fakeTurner{}
	task := NewTask(&fakeScanner{set: scan.NewObstacleSet(7)}, tr, config.Survey{AimAtTarget: true})

	assert.ErrorIs(t, task.Tick(context.Background()), plan.ErrDone)
	assert.Equal(t, []string{"#", "Passengers: 0", "No obstacle found"}, []string{tr.said[0][:1], tr.said[1], tr.said[2]})
	assert.Empty(t, tr.turns)
}

func TestSurveyScanError(t *testing.T) {
	task := NewTask(&fakeScanner{err: errors.New("no echo")}, &fakeTurner{}, config.Survey{})

	err := task.Tick(context.Background())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, plan.ErrDone)
}

func TestTable(t *testing.T) {
	lines := Table(twoObstacles(t))
	require.Len(t, lines, 3)
	assert.Equal(t, "0         115     30.0      0.0       30      0.0", lines[1])
}
