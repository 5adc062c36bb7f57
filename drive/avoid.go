// Copyright 2018 Brian Starkey <stark3y@gmail.com>
package drive

import (
	"context"
	"fmt"
	"log"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/usedbytes/route-bot/config"
	"github.com/usedbytes/route-bot/hazard"
)

type AvoidState int

const (
	Backing AvoidState = iota
	TurningOut
	Probing
	StillBlocked
	PassedObstacle
	Traversing
	ReturnAligning
	ReturnTraversing
	Resume
)

func (s AvoidState) String() string {
	switch s {
	case Backing:
		return "Backing"
	case TurningOut:
		return "TurningOut"
	case Probing:
		return "Probing"
	case StillBlocked:
		return "StillBlocked"
	case PassedObstacle:
		return "PassedObstacle"
	case Traversing:
		return "Traversing"
	case ReturnAligning:
		return "ReturnAligning"
	case ReturnTraversing:
		return "ReturnTraversing"
	case Resume:
		return "Resume"
	}
	return fmt.Sprintf("AvoidState(%d)", int(s))
}

func deg2rad(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// Rotate expresses v, measured in a frame turned h degrees counter-clockwise
// from this one, in this frame.
func Rotate(v PoseDelta, h float64) PoseDelta {
	s, c := math.Sincos(deg2rad(h))
	return PoseDelta{
		X: v.X*c + v.Y*s,
		Y: -v.X*s + v.Y*c,
	}
}

// Avoider is the go-around maneuver. It backs off, angles away from the
// hazard until it has enough sideways clearance, passes the obstacle and
// then returns to the original line, tracking its displacement throughout.
type Avoider struct {
	c   *Controller
	cfg config.Avoid

	trace []AvoidState
}

func NewAvoider(c *Controller, cfg config.Avoid) *Avoider {
	return &Avoider{
		c:   c,
		cfg: cfg,
	}
}

// Trace lists the states visited by the most recent Avoid.
func (a *Avoider) Trace() []AvoidState {
	return a.trace
}

func (a *Avoider) enter(s AvoidState) {
	log.Println("avoid:", s)
	a.trace = append(a.trace, s)
}

func (a *Avoider) Avoid(ctx context.Context, h hazard.Hazard) (PoseDelta, error) {
	a.trace = a.trace[:0]
	attempts := 0
	return a.run(ctx, h, &attempts)
}

// leg tracks position and heading for one level of the maneuver.
type leg struct {
	pos     r2.Vec
	heading float64
}

func (l *leg) move(d float64) {
	s, c := math.Sincos(deg2rad(l.heading))
	l.pos = r2.Add(l.pos, r2.Scale(d, r2.Vec{X: s, Y: c}))
}

func (a *Avoider) turn(ctx context.Context, l *leg, deg float64) error {
	dir := Left
	if deg < 0 {
		dir = Right
	}

	turned, err := a.c.Turn(ctx, dir, math.Abs(deg))
	l.heading += dir.Sign() * turned
	return err
}

// traverse drives dist, and if a new hazard interrupts it, avoids that one
// too under the same attempt budget.
func (a *Avoider) traverse(ctx context.Context, l *leg, dist float64, attempts *int) error {
	d, hz, err := a.c.straight(ctx, dist, true)
	l.move(d)
	if err != nil || hz == hazard.None {
		return err
	}

	a.c.Say(hz.Alert())
	nested, err := a.run(ctx, hz, attempts)
	l.pos = r2.Add(l.pos, Rotate(nested, l.heading))

	return err
}

func (a *Avoider) run(ctx context.Context, h hazard.Hazard, attempts *int) (PoseDelta, error) {
	var l leg

	for {
		*attempts++
		if *attempts > a.cfg.MaxAttempts {
			return l.pos, fmt.Errorf("%w after %d attempts", ErrAvoidanceExhausted, a.cfg.MaxAttempts)
		}
		a.enter(Backing)

		d, _, err := a.c.straight(ctx, -a.cfg.Backup, false)
		l.move(d)
		if err != nil {
			return l.pos, err
		}
		if err := a.c.Pause(ctx, a.cfg.Pause.Duration); err != nil {
			return l.pos, err
		}

		a.enter(TurningOut)
		// Turn away from the side that was hit, further each time the same
		// side is hit again. Never angle out past square to the original line.
		escape := a.cfg.Turn
		if h.Side() == hazard.Left {
			escape = -escape
		}
		target := l.heading + escape
		if l.heading*escape < 0 {
			target = escape
		}
		target = math.Max(-90, math.Min(90, target))
		if err := a.turn(ctx, &l, target-l.heading); err != nil {
			return l.pos, err
		}

		a.enter(Probing)
		probe := a.cfg.Clearance
		if s := math.Abs(math.Sin(deg2rad(l.heading))); s > 1e-3 {
			probe = a.cfg.Clearance / s
		}
		d, hz, err := a.c.straight(ctx, probe, true)
		l.move(d)
		if err != nil {
			return l.pos, err
		}

		if hz == hazard.None {
			break
		}

		a.enter(StillBlocked)
		a.c.Say(hz.Alert())
		h = hz
	}

	a.enter(PassedObstacle)
	if err := a.turn(ctx, &l, -l.heading); err != nil {
		return l.pos, err
	}

	a.enter(Traversing)
	width := a.cfg.ObstacleWidth
	if h.IsCliff() {
		width = a.cfg.CliffTileWidth
	}
	if err := a.traverse(ctx, &l, width, attempts); err != nil {
		return l.pos, err
	}

	if a.cfg.Return && math.Abs(l.pos.X) > 1 {
		a.enter(ReturnAligning)
		toward := 90.0
		if l.pos.X > 0 {
			toward = -90
		}
		if err := a.turn(ctx, &l, toward-l.heading); err != nil {
			return l.pos, err
		}

		a.enter(ReturnTraversing)
		if err := a.traverse(ctx, &l, math.Abs(l.pos.X), attempts); err != nil {
			return l.pos, err
		}

		if err := a.turn(ctx, &l, -l.heading); err != nil {
			return l.pos, err
		}
	}

	a.enter(Resume)
	return l.pos, nil
}
