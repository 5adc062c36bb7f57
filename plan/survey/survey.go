// Copyright 2018 Brian Starkey <stark3y@gmail.com>
package survey

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log"

	"github.com/usedbytes/route-bot/config"
	"github.com/usedbytes/route-bot/drive"
	"github.com/usedbytes/route-bot/plan"
	"github.com/usedbytes/route-bot/scan"
)

const TaskName = "survey"

type Scanner interface {
	Scan(ctx context.Context) (*scan.ObstacleSet, error)
	Profile() []scan.Sample
}

type Turner interface {
	Turn(ctx context.Context, dir drive.Direction, deg float64) (float64, error)
	Say(text string)
}

// Task counts what's in front of the robot ("passengers"), reports each one
// and optionally turns to face the narrowest.
type Task struct {
	scanner Scanner
	turner  Turner
	cfg     config.Survey

	last *scan.ObstacleSet
}

// Table formats the set for the operator, header first.
func Table(set *scan.ObstacleSet) []string {
	lines := []string{fmt.Sprintf("%-4s %8s %8s %8s %8s %8s", "#", "angle", "dist", "confirm", "width", "lwidth")}
	for i, o := range set.Obstacles() {
		lines = append(lines, fmt.Sprintf("%-4d %8.0f %8.1f %8.1f %8.0f %8.1f",
			i, o.Angle, o.Dist, o.RangeConfirm, o.Width, o.LinearWidth))
	}
	return lines
}

// Last is the set found by the most recent survey.
func (t *Task) Last() *scan.ObstacleSet {
	return t.last
}

func (t *Task) Tick(ctx context.Context) error {
	set, err := t.scanner.Scan(ctx)
	if err != nil {
		return fmt.Errorf("survey: %w", err)
	}
	t.last = set

	for _, l := range Table(set) {
		t.turner.Say(l)
	}
	t.turner.Say(fmt.Sprintf("Passengers: %d", set.Len()))
	if set.Dropped() > 0 {
		t.turner.Say(fmt.Sprintf("%d more not recorded", set.Dropped()))
	}

	if t.cfg.PlotPath != "" {
		// Not worth failing the survey over
		if err := scan.PlotProfile(t.cfg.PlotPath, t.scanner.Profile(), set); err != nil {
			log.Println("survey:", err)
		}
	}

	target, err := set.Target()
	if errors.Is(err, scan.ErrNoObstacleFound) {
		t.turner.Say("No obstacle found")
		return plan.ErrDone
	} else if err != nil {
		return err
	}
	t.turner.Say(fmt.Sprintf("Target: %v", target))

	if t.cfg.AimAtTarget {
		delta := target.Angle - 90
		dir := drive.Left
		if delta < 0 {
			dir, delta = drive.Right, -delta
		}
		if _, err := t.turner.Turn(ctx, dir, delta); err != nil {
			return err
		}
	}

	return plan.ErrDone
}

func (t *Task) Color() color.Color {
	return color.NRGBA{0x42, 0x9e, 0xf4, 0x80}
}

func NewTask(s Scanner, tr Turner, cfg config.Survey) *Task {
	return &Task{
		scanner: s,
		turner:  tr,
		cfg:     cfg,
	}
}
