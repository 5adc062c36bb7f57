// Copyright 2018 Brian Starkey <stark3y@gmail.com>
package plan

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log"

	"github.com/usedbytes/route-bot/drive"
	"github.com/usedbytes/route-bot/interface/command"
	"github.com/usedbytes/route-bot/interface/menu"
)

// ErrDone is returned by a task's Tick when it has nothing left to do. The
// planner goes back to idle.
var ErrDone = errors.New("task done")

const IdleTaskName = "idle"

// Tasks are ticked from the control loop. A Tick may block for as long as the
// task needs the control loop.
type Task interface {
	Tick(ctx context.Context) error
	Color() color.Color
}

type EnterExitTask interface {
	Task
	Enter()
	Exit()
}

type Reporter interface {
	SendLine(text string) error
}

// Commander hands out the ordinary commands and owns the halt latch.
type Commander interface {
	Poll() (command.Command, bool)
	ClearHalt()
}

// Stepper is used to pace the idle loop.
type Stepper interface {
	Step(ctx context.Context, left, right int) error
}

type Planner struct {
	current     Task
	currentName string
	tasks       map[string]Task
	fallback    string

	mainMenu *menu.Menu
	led      menu.LED
	cmd      Commander
	report   Reporter
}

func (p *Planner) say(text string) {
	log.Println(text)
	if p.report == nil {
		return
	}
	if err := p.report.SendLine(text); err != nil {
		log.Println("plan:", err)
	}
}

// Tick runs the current task once and deals with how it finished.
func (p *Planner) Tick(ctx context.Context) error {
	if p.current == nil {
		return nil
	}

	err := p.current.Tick(ctx)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, ErrDone):
		return p.SetTask(IdleTaskName)
	case errors.Is(err, drive.ErrHalted):
		p.say("Halted")
		p.cmd.ClearHalt()
		return p.SetTask(IdleTaskName)
	case errors.Is(err, drive.ErrAvoidanceExhausted) && p.fallback != "":
		p.say(fmt.Sprintf("Can't get around the obstacle (%v), switching to %s", err, p.fallback))
		return p.SetTask(p.fallback)
	}

	p.say(fmt.Sprintf("%s failed: %v", p.currentName, err))
	return p.SetTask(IdleTaskName)
}

func (p *Planner) SetTask(name string) error {
	task, ok := p.tasks[name]
	if !ok {
		return fmt.Errorf("Unknown task '%s'", name)
	}

	exit, ok := p.current.(EnterExitTask)
	if ok {
		exit.Exit()
	}

	log.Println("Task", name)
	p.current = task
	p.currentName = name

	if name == IdleTaskName {
		p.mainMenu.Idle()
	} else if p.led != nil {
		p.led.SetLEDColor(p.current.Color())
	}

	enter, ok := p.current.(EnterExitTask)
	if ok {
		enter.Enter()
	}
	return nil
}

// AddTask registers a task and binds it to c on the idle menu. Use 0 for
// tasks which are only reached some other way.
func (p *Planner) AddTask(name string, task Task, c command.Command) error {
	if _, ok := p.tasks[name]; ok {
		return fmt.Errorf("Duplicate task name '%s'", name)
	}

	if c != 0 {
		if err := p.mainMenu.AddItem(c, name, task.Color(), func() { p.SetTask(name) }); err != nil {
			return err
		}
	}
	p.tasks[name] = task

	return nil
}

// SetFallback names the task to hand over to when avoidance gives up.
func (p *Planner) SetFallback(name string) error {
	if _, ok := p.tasks[name]; !ok {
		return fmt.Errorf("Unknown task '%s'", name)
	}
	p.fallback = name
	return nil
}

func (p *Planner) CurrentTask() Task {
	return p.current
}

func (p *Planner) CurrentTaskName() string {
	return p.currentName
}

func (p *Planner) Menu() *menu.Menu {
	return p.mainMenu
}

// idleTask waits for a menu command, holding the wheels still.
type idleTask struct {
	p    *Planner
	step Stepper
}

func (t *idleTask) Tick(ctx context.Context) error {
	if err := t.step.Step(ctx, 0, 0); err != nil {
		return err
	}

	c, ok := t.p.cmd.Poll()
	if !ok {
		return nil
	}

	if !t.p.mainMenu.Pick(c) {
		log.Printf("plan: nothing bound to %v\n", c)
	}
	return nil
}

func (t *idleTask) Color() color.Color {
	return color.NRGBA{0x00, 0xff, 0x00, 0x80}
}

func (t *idleTask) Enter() {
	t.p.say("Ready")
	for _, l := range t.p.mainMenu.Help() {
		t.p.say(l)
	}
}

func (t *idleTask) Exit() {}

// NewPlanner starts out idle.
func NewPlanner(cmd Commander, step Stepper, l menu.LED, report Reporter) *Planner {
	p := &Planner{
		tasks:    make(map[string]Task),
		mainMenu: menu.NewMenu(l),
		led:      l,
		cmd:      cmd,
		report:   report,
	}

	p.tasks[IdleTaskName] = &idleTask{p: p, step: step}

	return p
}
