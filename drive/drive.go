// Copyright 2018 Brian Starkey <stark3y@gmail.com>
package drive

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/usedbytes/route-bot/config"
	"github.com/usedbytes/route-bot/hazard"
	"github.com/usedbytes/route-bot/interface/command"
	"github.com/usedbytes/route-bot/model"
)

// Moves finish within this much of their target, in mm or degrees
const tolerance = 0.5

var (
	ErrAvoidanceExhausted = errors.New("avoidance exhausted")
	ErrHalted             = errors.New("halted by operator")
)

// Drivetrain is the motor side of the platform. Tick blocks until the next
// telemetry report.
type Drivetrain interface {
	SetWheelPower(left, right int)
	Tick(ctx context.Context) (model.Telemetry, error)
	Stopped() bool
}

type Commander interface {
	Poll() (command.Command, bool)
	Halted() bool
}

type Reporter interface {
	SendLine(text string) error
}

type Roadway interface {
	RoadwayBlocked(ctx context.Context) (bool, error)
}

type Avoidance interface {
	Avoid(ctx context.Context, h hazard.Hazard) (PoseDelta, error)
}

// PoseDelta is a displacement in mm in the frame the robot had when a
// maneuver started: X is to the left, Y is straight ahead.
type PoseDelta = r2.Vec

// Progress is the outcome of a Forward move.
type Progress struct {
	Traveled float64
	Lateral  float64
	Ticks    int
}

type Direction int

const (
	Left Direction = iota
	Right
)

func (d Direction) String() string {
	if d == Right {
		return "right"
	}
	return "left"
}

// Sign is +1 for counter-clockwise.
func (d Direction) Sign() float64 {
	if d == Right {
		return -1
	}
	return 1
}

func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "left", "l":
		return Left, nil
	case "right", "r":
		return Right, nil
	}
	return Left, fmt.Errorf("unknown direction %q", s)
}

type State int

const (
	Idle State = iota
	Driving
	HazardPending
	Avoiding
	Manual
	Turning
	Complete
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Driving:
		return "Driving"
	case HazardPending:
		return "HazardPending"
	case Avoiding:
		return "Avoiding"
	case Manual:
		return "Manual"
	case Turning:
		return "Turning"
	case Complete:
		return "Complete"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Controller runs single drive primitives on top of the odometer. It owns
// the odometer: every telemetry tick goes through it exactly once.
type Controller struct {
	dt      Drivetrain
	odo     *model.Odometer
	cfg     config.Drive
	roadway config.Roadway

	cmd    Commander
	report Reporter
	check  Roadway
	avoid  Avoidance

	state         State
	manual        bool
	manualPending bool

	onTick func()
}

func NewController(dt Drivetrain, odo *model.Odometer, cfg config.Config) *Controller {
	c := &Controller{
		dt:      dt,
		odo:     odo,
		cfg:     cfg.Drive,
		roadway: cfg.Roadway,
	}
	c.avoid = NewAvoider(c, cfg.Avoid)

	return c
}

func (c *Controller) SetCommander(cmd Commander) {
	c.cmd = cmd
}

func (c *Controller) SetReporter(r Reporter) {
	c.report = r
}

// SetRoadway enables the periodic look-ahead while driving forward.
func (c *Controller) SetRoadway(r Roadway) {
	c.check = r
}

func (c *Controller) SetAvoidance(a Avoidance) {
	c.avoid = a
}

// SetTickHook runs fn on the control loop after every telemetry tick.
func (c *Controller) SetTickHook(fn func()) {
	c.onTick = fn
}

func (c *Controller) State() State {
	return c.state
}

func (c *Controller) Odometer() *model.Odometer {
	return c.odo
}

// Say sends a status line to the operator.
func (c *Controller) Say(text string) {
	if c.report == nil {
		log.Println(text)
		return
	}

	if err := c.report.SendLine(text); err != nil {
		log.Println("status:", err)
	}
}

func (c *Controller) checkHalt(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.cmd != nil && c.cmd.Halted() {
		return ErrHalted
	}
	return nil
}

// pollCommands looks for a switch to manual. Only Forward calls it, so
// commands sent during any other move stay queued for whoever runs next.
func (c *Controller) pollCommands() {
	if c.cmd == nil || c.manual {
		return
	}

	cmd, ok := c.cmd.Poll()
	if !ok {
		return
	}

	if cmd == command.Mode {
		c.manualPending = true
		return
	}
	log.Printf("drive: ignoring %v in automatic mode\n", cmd)
}

func (c *Controller) tick(ctx context.Context) (model.Telemetry, float64, float64, error) {
	t, err := c.dt.Tick(ctx)
	if err != nil {
		return t, 0, 0, err
	}

	c.odo.Observe(t)
	d, h, _ := c.odo.Take()

	if c.onTick != nil {
		c.onTick()
	}

	return t, d, h, nil
}

// Step applies power for a single tick.
func (c *Controller) Step(ctx context.Context, left, right int) error {
	if err := c.checkHalt(ctx); err != nil {
		c.dt.SetWheelPower(0, 0)
		return err
	}

	c.dt.SetWheelPower(left, right)
	_, _, _, err := c.tick(ctx)
	return err
}

// tickFunc sees every tick of a move, with the distance and heading deltas
// already taken from the odometer. Returning true ends the move.
type tickFunc func(t model.Telemetry, d, h float64) (bool, error)

// run applies power and feeds ticks to fn until it is done, then stops the
// motors. It returns whatever distance and heading accrued while coasting to
// a stop.
func (c *Controller) run(ctx context.Context, left, right int, fn tickFunc) (float64, float64, error) {
	c.dt.SetWheelPower(left, right)

	var err error
	for {
		if err = c.checkHalt(ctx); err != nil {
			break
		}

		var (
			t    model.Telemetry
			d, h float64
		)
		t, d, h, err = c.tick(ctx)
		if err != nil {
			break
		}

		var done bool
		done, err = fn(t, d, h)
		if err != nil || done {
			break
		}
	}

	cd, ch, serr := c.stop(ctx)
	if err == nil {
		err = serr
	}

	return cd, ch, err
}

// stop cuts power and waits for the wheels to report zero speed.
func (c *Controller) stop(ctx context.Context) (float64, float64, error) {
	c.dt.SetWheelPower(0, 0)

	var dist, heading float64
	for !c.dt.Stopped() {
		if err := ctx.Err(); err != nil {
			return dist, heading, err
		}

		_, d, h, err := c.tick(ctx)
		if err != nil {
			return dist, heading, err
		}
		dist += d
		heading += h
	}

	return dist, heading, nil
}

// Pause holds still for d, still ticking so that halts are seen.
func (c *Controller) Pause(ctx context.Context, d time.Duration) error {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if err := c.checkHalt(ctx); err != nil {
			return err
		}
		if _, _, _, err := c.tick(ctx); err != nil {
			return err
		}
	}
	return c.checkHalt(ctx)
}

// Forward drives target mm along the current heading. Hazards are handed to
// the avoidance and its forward progress counts towards the target. The
// returned progress includes any overshoot, and the sideways offset left
// behind by avoidance.
func (c *Controller) Forward(ctx context.Context, target float64) (Progress, error) {
	var prog Progress

	c.state = Driving
	c.manualPending = false
	if target <= 0 {
		c.state = Complete
		return prog, nil
	}

	power := c.cfg.Power
	sum := 0.0
	next := c.roadway.Interval

	resume := func() {
		c.state = Driving
		c.dt.SetWheelPower(power, power)
	}

	fn := func(t model.Telemetry, d, h float64) (bool, error) {
		prog.Ticks++
		sum += d
		c.pollCommands()

		if t.Hazard != hazard.None {
			c.state = HazardPending
			c.Say(t.Hazard.Alert())

			cd, _, err := c.stop(ctx)
			sum += cd
			if err != nil {
				return true, err
			}
			if err := c.Pause(ctx, c.cfg.HazardSettle.Duration); err != nil {
				return true, err
			}

			c.state = Avoiding
			delta, err := c.avoid.Avoid(ctx, t.Hazard)
			if err != nil {
				return true, err
			}
			sum += delta.Y
			prog.Lateral += delta.X

			c.Say(fmt.Sprintf("Hazard cleared, resuming with %.0f mm to go", math.Max(0, target-sum)))
			if sum >= target {
				return true, nil
			}
			resume()
			return false, nil
		}

		if sum >= target {
			return true, nil
		}

		if c.manualPending {
			c.manualPending = false
			if err := c.manualControl(ctx, &sum); err != nil {
				return true, err
			}
			if sum >= target {
				return true, nil
			}
			resume()
			return false, nil
		}

		if c.check != nil && c.roadway.Interval > 0 && sum >= next {
			for next <= sum {
				next += c.roadway.Interval
			}

			cd, _, err := c.stop(ctx)
			sum += cd
			if err != nil {
				return true, err
			}
			if err := c.waitRoadway(ctx); err != nil {
				return true, err
			}
			resume()
		}

		return false, nil
	}

	cd, _, err := c.run(ctx, power, power, fn)
	sum += cd
	prog.Traveled = sum

	if err != nil {
		c.state = Idle
		return prog, err
	}

	c.state = Complete
	return prog, nil
}

// waitRoadway blocks at zero power until nothing is squarely ahead.
func (c *Controller) waitRoadway(ctx context.Context) error {
	warned := false
	for {
		blocked, err := c.check.RoadwayBlocked(ctx)
		if err != nil {
			return fmt.Errorf("roadway check: %w", err)
		}
		if !blocked {
			if warned {
				c.Say("Roadway clear")
			}
			return nil
		}

		if !warned {
			c.Say("Obstacle in the roadway, waiting")
			warned = true
		}
		if err := c.Pause(ctx, c.roadway.Recheck.Duration); err != nil {
			return err
		}
	}
}

// Turn spins on the spot by deg degrees and returns how far it actually
// turned, in the same direction. Hazards are not checked while turning.
func (c *Controller) Turn(ctx context.Context, dir Direction, deg float64) (float64, error) {
	prev := c.state
	c.state = Turning
	defer func() { c.state = prev }()

	if deg <= 0 {
		return 0, nil
	}

	sign := dir.Sign()
	p := c.cfg.TurnPower
	turned := 0.0

	_, ch, err := c.run(ctx, -int(sign)*p, int(sign)*p, func(t model.Telemetry, d, h float64) (bool, error) {
		turned += sign * h
		return turned >= deg-tolerance, nil
	})
	turned += sign * ch

	return turned, err
}

// straight drives dist mm, backwards if negative. With watch set it stops at
// the first hazard and returns it.
func (c *Controller) straight(ctx context.Context, dist float64, watch bool) (float64, hazard.Hazard, error) {
	if dist == 0 {
		return 0, hazard.None, nil
	}

	p := c.cfg.Power
	if dist < 0 {
		p = -p
	}

	traveled := 0.0
	hz := hazard.None
	cd, _, err := c.run(ctx, p, p, func(t model.Telemetry, d, h float64) (bool, error) {
		traveled += d
		if watch && t.Hazard != hazard.None {
			hz = t.Hazard
			return true, nil
		}
		return math.Abs(traveled) >= math.Abs(dist)-tolerance, nil
	})
	traveled += cd

	return traveled, hz, err
}

// pulse drives for the configured number of ticks.
func (c *Controller) pulse(ctx context.Context, left, right int) (float64, error) {
	n := 0
	dist := 0.0
	cd, _, err := c.run(ctx, left, right, func(t model.Telemetry, d, h float64) (bool, error) {
		n++
		dist += d
		return n >= c.cfg.ManualPulse, nil
	})

	return dist + cd, err
}

// manualControl hands the wheels to the operator until they give control
// back. Forward and backward driving is added to sum.
func (c *Controller) manualControl(ctx context.Context, sum *float64) error {
	cd, _, err := c.stop(ctx)
	*sum += cd
	if err != nil {
		return err
	}

	c.state = Manual
	c.manual = true
	defer func() { c.manual = false }()

	c.Say("Manual control")

	for {
		if err := c.checkHalt(ctx); err != nil {
			return err
		}

		cmd, ok := c.cmd.Poll()
		if !ok {
			_, d, _, err := c.tick(ctx)
			if err != nil {
				return err
			}
			*sum += d
			continue
		}

		if cmd == command.Auto || cmd == command.Mode {
			c.Say("Automatic control")
			return nil
		}

		d, err := c.Drive(ctx, cmd)
		*sum += d
		if err != nil {
			return err
		}
	}
}

// Drive carries out one manual drive command and returns the distance
// covered. Anything other than a drive command is ignored.
func (c *Controller) Drive(ctx context.Context, cmd command.Command) (float64, error) {
	p, tp := c.cfg.Power, c.cfg.TurnPower

	switch cmd {
	case command.Forward:
		return c.pulse(ctx, p, p)
	case command.Back:
		return c.pulse(ctx, -p, -p)
	case command.Left:
		return c.pulse(ctx, -tp, tp)
	case command.Right:
		return c.pulse(ctx, tp, -tp)
	}

	log.Printf("drive: ignoring %v in manual mode\n", cmd)
	return 0, nil
}
