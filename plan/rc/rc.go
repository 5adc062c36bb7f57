// Copyright 2018 Brian Starkey <stark3y@gmail.com>
package rc

import (
	"context"
	"image/color"
	"log"

	"github.com/usedbytes/route-bot/interface/command"
	"github.com/usedbytes/route-bot/plan"
)

const TaskName = "rc"

type Driver interface {
	Drive(ctx context.Context, cmd command.Command) (float64, error)
	Step(ctx context.Context, left, right int) error
	Say(text string)
}

type Commander interface {
	Poll() (command.Command, bool)
}

// Sticks is an analogue source, each stick -1..1 for one side.
type Sticks interface {
	GetSticks() (float32, float32)
}

// Task hands the wheels to the operator, by single commands or the gamepad
// sticks, until they send auto or mode.
type Task struct {
	driver Driver
	cmd    Commander
	sticks Sticks

	traveled float64
}

func (t *Task) Tick(ctx context.Context) error {
	if c, ok := t.cmd.Poll(); ok {
		switch {
		case c == command.Auto || c == command.Mode:
			t.driver.Say("Automatic control")
			return plan.ErrDone
		case c.IsManual():
			d, err := t.driver.Drive(ctx, c)
			t.traveled += d
			return err
		default:
			log.Printf("rc: ignoring %v\n", c)
		}
	}

	var a, b float32
	if t.sticks != nil {
		a, b = t.sticks.GetSticks()
	}
	return t.driver.Step(ctx, int(a*100), int(b*100))
}

func (t *Task) Color() color.Color {
	return color.NRGBA{0xff, 0x00, 0xff, 0x80}
}

func (t *Task) Enter() {
	t.traveled = 0
	t.driver.Say("Manual control")
}

func (t *Task) Exit() {
	log.Printf("rc: drove %.0f mm\n", t.traveled)
}

// Traveled is the distance driven with pulse commands since the task started.
func (t *Task) Traveled() float64 {
	return t.traveled
}

func NewTask(d Driver, cmd Commander, sticks Sticks) *Task {
	return &Task{
		driver: d,
		cmd:    cmd,
		sticks: sticks,
	}
}
