// Copyright 2018 Brian Starkey <stark3y@gmail.com>
package route

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/usedbytes/route-bot/config"
	"github.com/usedbytes/route-bot/drive"
	"github.com/usedbytes/route-bot/plan"
	"github.com/usedbytes/route-bot/scan"
)

const TaskName = "route"

type Kind int

const (
	Forward Kind = iota
	Turn
)

// Step is one leg of the course: a straight of Distance mm, or a turn on the
// spot of Degrees towards Direction.
type Step struct {
	Kind      Kind
	Distance  float64
	Direction drive.Direction
	Degrees   float64

	Announce string
	Stop     bool
}

func (s Step) String() string {
	if s.Kind == Turn {
		return fmt.Sprintf("turn %v %.0f deg", s.Direction, s.Degrees)
	}
	return fmt.Sprintf("forward %.0f mm", s.Distance)
}

// Steps builds the course from its configuration.
func Steps(c config.Course) ([]Step, error) {
	steps := make([]Step, 0, len(c.Steps))
	for i, cs := range c.Steps {
		s := Step{Announce: cs.Announce, Stop: cs.Stop}

		switch {
		case cs.Forward != 0 && cs.Turn != 0:
			return nil, fmt.Errorf("step %d: forward and turn both set", i)
		case cs.Turn != 0:
			dir, err := drive.ParseDirection(cs.Direction)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", i, err)
			}
			s.Kind = Turn
			s.Direction = dir
			s.Degrees = cs.Turn
		case cs.Forward > 0:
			s.Kind = Forward
			s.Distance = cs.Forward
		default:
			return nil, fmt.Errorf("step %d: needs a positive forward or a turn", i)
		}

		steps = append(steps, s)
	}

	return steps, nil
}

// Driver is what the sequencer needs from the drive controller.
type Driver interface {
	Forward(ctx context.Context, target float64) (drive.Progress, error)
	Turn(ctx context.Context, dir drive.Direction, deg float64) (float64, error)
	Pause(ctx context.Context, d time.Duration) error
	Say(text string)
}

type StopFlag interface {
	TakeStopRequest() bool
}

// Surveyor finds obstacles in front of the robot.
type Surveyor interface {
	Scan(ctx context.Context) (*scan.ObstacleSet, error)
}

// Sequencer drives the course one step at a time. Whatever a Forward step
// over or undershoots, typically because an avoidance maneuver finished past
// the target or left the robot to one side, is carried into the following
// steps as an offset rather than being lost.
type Sequencer struct {
	d      Driver
	stops  StopFlag
	survey Surveyor

	name      string
	scanFirst bool
	steps     []Step
	dwell     time.Duration

	// X is the sideways offset still owed, Y the distance already covered
	// towards the next Forward step. Both in the robot's current frame.
	offset r2.Vec

	index int
	runID uuid.UUID
}

func NewSequencer(d Driver, steps []Step, cfg config.Config) *Sequencer {
	return &Sequencer{
		d:         d,
		name:      cfg.Course.Name,
		scanFirst: cfg.Course.ScanFirst,
		steps:     steps,
		dwell:     cfg.Drive.StopDwell.Duration,
	}
}

func (s *Sequencer) SetStopFlag(f StopFlag) {
	s.stops = f
}

func (s *Sequencer) SetSurveyor(sv Surveyor) {
	s.survey = sv
}

// Offset is the correction carried into the remaining steps.
func (s *Sequencer) Offset() r2.Vec {
	return s.offset
}

// Index is the step being driven, or len(steps) once the course is done.
func (s *Sequencer) Index() int {
	return s.index
}

func (s *Sequencer) RunID() uuid.UUID {
	return s.runID
}

// Reset goes back to the start of the course.
func (s *Sequencer) Reset() {
	s.index = 0
	s.offset = r2.Vec{}
	s.runID = uuid.Nil
}

// Interrupted reports whether a run stopped part way round.
func (s *Sequencer) Interrupted() bool {
	return s.runID != uuid.Nil && s.index < len(s.steps)
}

// aim turns towards the narrowest obstacle in front. 90 degrees on the
// scanner is straight ahead.
func (s *Sequencer) aim(ctx context.Context) error {
	set, err := s.survey.Scan(ctx)
	if err != nil {
		return err
	}

	target, err := set.Target()
	if errors.Is(err, scan.ErrNoObstacleFound) {
		s.d.Say("Nothing in sight, following the course")
		return nil
	} else if err != nil {
		return err
	}

	s.d.Say(fmt.Sprintf("Heading for obstacle at %.0f deg, %.0f cm", target.Angle, target.Dist))

	delta := target.Angle - 90
	dir := drive.Left
	if delta < 0 {
		dir = drive.Right
		delta = -delta
	}

	_, err = s.d.Turn(ctx, dir, delta)
	return err
}

func (s *Sequencer) forward(ctx context.Context, step Step) error {
	target := step.Distance - s.offset.Y
	if target <= 0 {
		log.Printf("route: %v already covered, %.0f mm carried\n", step, s.offset.Y)
		s.offset.Y = -target
		return nil
	}

	prog, err := s.d.Forward(ctx, target)
	s.offset.X += prog.Lateral
	if err != nil {
		// What was covered still counts if this step is resumed
		s.offset.Y += prog.Traveled
		return err
	}
	s.offset.Y = prog.Traveled - target

	return nil
}

func (s *Sequencer) turn(ctx context.Context, step Step) error {
	turned, err := s.d.Turn(ctx, step.Direction, step.Degrees)

	// Re-express what's owed in the new frame
	s.offset = drive.Rotate(s.offset, -step.Direction.Sign()*turned)

	return err
}

// Run drives the rest of the course, from the start or from wherever the
// last run stopped.
func (s *Sequencer) Run(ctx context.Context) error {
	if s.Interrupted() {
		s.d.Say(fmt.Sprintf("Resuming %s at step %d", s.name, s.index+1))
	} else {
		s.Reset()
		s.runID = uuid.New()
		s.d.Say(fmt.Sprintf("Starting %s, run %s", s.name, s.runID))

		if s.scanFirst && s.survey != nil {
			if err := s.aim(ctx); err != nil {
				return fmt.Errorf("initial scan: %w", err)
			}
		}
	}

	for ; s.index < len(s.steps); s.index++ {
		step := s.steps[s.index]
		log.Printf("route: step %d: %v, offset %v\n", s.index, step, s.offset)

		if step.Announce != "" {
			s.d.Say(step.Announce)
		}

		var err error
		switch step.Kind {
		case Forward:
			err = s.forward(ctx, step)
		case Turn:
			err = s.turn(ctx, step)
		}
		if err != nil {
			return fmt.Errorf("step %d (%v): %w", s.index+1, step, err)
		}

		if step.Stop && s.stops != nil && s.stops.TakeStopRequest() {
			s.d.Say("Stopping")
			if err := s.d.Pause(ctx, s.dwell); err != nil {
				return err
			}
			s.d.Say("Moving on")
		}
	}

	s.d.Say(fmt.Sprintf("%s complete, %.0f mm off to the side", s.name, s.offset.X))
	return nil
}

// Task runs the course from the planner.
type Task struct {
	seq *Sequencer
}

func NewTask(seq *Sequencer) *Task {
	return &Task{seq: seq}
}

func (t *Task) Tick(ctx context.Context) error {
	if err := t.seq.Run(ctx); err != nil {
		return err
	}
	return plan.ErrDone
}

func (t *Task) Color() color.Color {
	return color.NRGBA{0xf4, 0x9e, 0x42, 0x80}
}

func (t *Task) Enter() {}

// Exit forgets a finished course so that the next start begins again.
func (t *Task) Exit() {
	if !t.seq.Interrupted() {
		t.seq.Reset()
	}
}
