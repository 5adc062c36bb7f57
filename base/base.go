// Copyright 2018 Brian Starkey <stark3y@gmail.com>
package base

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log"
	"math"
	"net"
	"time"

	"github.com/usedbytes/bno055"
	"github.com/usedbytes/bot_matrix/datalink/netconn"
	"github.com/usedbytes/linux-led"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/host"

	"github.com/usedbytes/route-bot/base/dev"
	"github.com/usedbytes/route-bot/base/motor"
	"github.com/usedbytes/route-bot/base/ranger"
	"github.com/usedbytes/route-bot/base/servo"
	"github.com/usedbytes/route-bot/base/tone"
	"github.com/usedbytes/route-bot/config"
	"github.com/usedbytes/route-bot/hazard"
	"github.com/usedbytes/route-bot/model"
)

// The BNO055 strap is fixed on this board
const imuAddr = 0x29

var ErrNoServos = errors.New("servo board not connected")

type hazardPin struct {
	pin gpio.PinIO
	bit hazard.Bits
}

// Platform is the robot as the control loop sees it: a drivetrain that
// reports telemetry once per tick, and a panning pair of range sensors.
type Platform struct {
	dev       *dev.Dev
	mmPerRev  float64
	wheelbase float64

	Motors *motor.Motors
	ranger *ranger.Ranger
	ticker *time.Ticker

	reconTime time.Duration

	lowBat  gpio.PinIO
	hazards []hazardPin

	i2cBus    i2c.BusCloser
	imu       *bno055.Dev
	lastEuler float64
	haveEuler bool

	servos    *servo.Dev
	reServos  func() bool
	pan       *servo.Pan
	servoAddr uint8

	tone  *tone.Player
	chime *tone.Tune

	led        led.RGBLED
	ledColor   color.Color
	ledTrigger led.Trigger
}

func (p *Platform) AddLed(rgb led.RGBLED) {
	p.led = rgb

	p.SetLEDTrigger(p.ledTrigger)
	p.UpdateLed()
}

func (p *Platform) SetLEDTrigger(trig led.Trigger) {
	if p.led == nil {
		return
	}

	p.ledTrigger = trig
	p.led.SetTrigger(p.ledTrigger)
	p.UpdateLed()
}

func (p *Platform) SetLEDColor(c color.Color) {
	p.ledColor = c
	p.UpdateLed()
}

func (p *Platform) ResetLEDColor() {
	p.SetLEDTrigger(led.TriggerHeartbeat)
	p.ledColor = color.NRGBA{0x00, 0xff, 0x00, 0x80}
	p.UpdateLed()
}

func (p *Platform) UpdateLed() {
	if p.led == nil {
		return
	}

	p.led.SetColor(p.ledColor)
}

// PowerToRPS maps a -100..100 power percentage onto wheel speed.
func PowerToRPS(power int, maxRPS float64) float64 {
	if power > 100 {
		power = 100
	} else if power < -100 {
		power = -100
	}
	return float64(power) / 100 * maxRPS
}

func (p *Platform) SetWheelPower(left, right int) {
	max := p.Motors.GetMaxRPS()
	p.Motors.SetRPS(PowerToRPS(left, max), PowerToRPS(right, max))
}

func (p *Platform) Stopped() bool {
	return p.Motors.Stopped()
}

// WrapDegrees folds deg into (-180, 180].
func WrapDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg > 180 {
		deg -= 360
	} else if deg <= -180 {
		deg += 360
	}
	return deg
}

// WheelHeading is the counter-clockwise turn in degrees implied by the
// difference in wheel travel.
func WheelHeading(dLeft, dRight, wheelbase float64) float64 {
	return (dRight - dLeft) / wheelbase * 180 / math.Pi
}

func (p *Platform) readHazard() hazard.Hazard {
	var bits hazard.Bits
	for _, h := range p.hazards {
		if h.pin.Read() == gpio.High {
			bits |= h.bit
		}
	}
	return hazard.FromBits(bits)
}

func (p *Platform) readHeading(dl, dr float64) float64 {
	if p.imu != nil {
		vec, err := p.imu.GetVector(bno055.VECTOR_EULER)
		if err == nil && len(vec) > 0 {
			// The IMU heading runs clockwise
			prev, had := p.lastEuler, p.haveEuler
			p.lastEuler, p.haveEuler = vec[0], true
			if had {
				return WrapDegrees(-(vec[0] - prev))
			}
			return 0
		}
		log.Println("IMU: GetVector failed", err)
	}

	return WheelHeading(dl, dr, p.wheelbase)
}

// Tick waits for the next control period and returns what the drivetrain
// did during the last one.
func (p *Platform) Tick(ctx context.Context) (model.Telemetry, error) {
	select {
	case <-ctx.Done():
		return model.Telemetry{}, ctx.Err()
	case <-p.ticker.C:
	}

	if err := p.Update(); err != nil {
		return model.Telemetry{}, err
	}

	a, b := p.Motors.Delta()
	dl, dr := a*p.mmPerRev, b*p.mmPerRev

	return model.Telemetry{
		Distance: (dl + dr) / 2,
		Heading:  p.readHeading(dl, dr),
		Hazard:   p.readHazard(),
	}, nil
}

func await[T any](ctx context.Context, p *Platform, c *dev.Cell[T]) (T, error) {
	var zero T
	for {
		if v, ok := c.Take(); ok {
			return v, nil
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-p.ticker.C:
		}

		if err := p.Update(); err != nil {
			return zero, err
		}
	}
}

// ShortRange is one reading from the analog IR ranger, in cm.
func (p *Platform) ShortRange(ctx context.Context) (float64, error) {
	p.ranger.Samples.Take()
	p.ranger.RequestSample()

	raw, err := await(ctx, p, p.ranger.Samples)
	if err != nil {
		return 0, fmt.Errorf("ir sample: %w", err)
	}

	return p.ranger.IR.Centimetres(raw), nil
}

// LongRange fires the ultrasonic ranger and waits for the echo, in cm.
func (p *Platform) LongRange(ctx context.Context) (float64, error) {
	p.ranger.Trigger()

	c, err := await(ctx, p, p.ranger.Echoes)
	if err != nil {
		return 0, fmt.Errorf("echo: %w", err)
	}

	return c.Centimetres(p.ranger.Echo), nil
}

func (p *Platform) Home(ctx context.Context) error {
	return p.pan.Home(ctx)
}

func (p *Platform) Aim(ctx context.Context, delta float64) error {
	return p.pan.Aim(ctx, delta)
}

func (p *Platform) PlayChime() {
	p.tone.Play(p.chime)
}

func (p *Platform) Reconnect(recon func() bool) {
	time.AfterFunc(p.reconTime, func() {
		if !recon() {
			p.Reconnect(recon)
		}
	})
}

// SetSingle places one servo, dropping the board and scheduling a reconnect
// if the write fails.
func (p *Platform) SetSingle(id servo.Id, pos float32) error {
	if p.servos == nil {
		return ErrNoServos
	}

	err := p.servos.SetSingle(id, pos)
	if err != nil {
		p.servos = nil
		p.Reconnect(p.reServos)
	}

	return err
}

func (p *Platform) addHazardPin(name string, bit hazard.Bits) {
	if name == "" {
		return
	}

	pin := gpioreg.ByName(name)
	if pin == nil {
		log.Printf("Couldn't get hazard GPIO %s\n", name)
		return
	}

	if err := pin.In(gpio.PullDown, gpio.NoEdge); err != nil {
		log.Printf("hazard GPIO %s: %v\n", name, err)
		return
	}

	p.hazards = append(p.hazards, hazardPin{pin: pin, bit: bit})
}

func NewPlatform(cfg config.Config) (*Platform, error) {
	pc := cfg.Platform

	if _, err := host.Init(); err != nil {
		return nil, err
	}

	b, err := i2creg.Open("")
	if err != nil {
		return nil, err
	}

	g := gpioreg.ByName(pc.LowBattery)
	if g == nil {
		return nil, fmt.Errorf("couldn't get low battery GPIO %s", pc.LowBattery)
	}

	if err = g.In(gpio.PullDown, gpio.NoEdge); err != nil {
		return nil, err
	}

	c, err := net.Dial("unix", pc.Socket)
	if err != nil {
		return nil, err
	}
	d := dev.NewDev(netconn.NewNetconn(c))

	p := &Platform{
		dev:        d,
		mmPerRev:   pc.MMPerRev,
		wheelbase:  pc.Wheelbase,
		i2cBus:     b,
		lowBat:     g,
		ticker:     time.NewTicker(pc.TickPeriod.Duration),
		reconTime:  time.Second * 5,
		servoAddr:  pc.ServoAddr,
		ledColor:   color.NRGBA{0x00, 0xff, 0x00, 0x80},
		ledTrigger: led.TriggerHeartbeat,
	}

	p.Motors, err = motor.NewMotors(d, pc.MaxRPS, pc.TickPeriod.Duration)
	if err != nil {
		return nil, err
	}

	p.ranger, err = ranger.NewRanger(d, cfg.Ranger)
	if err != nil {
		return nil, err
	}

	p.addHazardPin(pc.BumpLeft, hazard.BitBumpLeft)
	p.addHazardPin(pc.BumpRight, hazard.BitBumpRight)
	p.addHazardPin(pc.CliffLeft, hazard.BitCliffLeft)
	p.addHazardPin(pc.CliffFrontLeft, hazard.BitCliffFrontLeft)
	p.addHazardPin(pc.CliffFrontRight, hazard.BitCliffFrontRight)
	p.addHazardPin(pc.CliffRight, hazard.BitCliffRight)

	imu, err := bno055.NewI2C(b, imuAddr)
	if err != nil {
		log.Println("Couldn't get BNO055, using wheel odometry for heading")
	} else {
		p.imu = imu
		err = p.imu.SetUseExternalCrystal(true)
		if err != nil {
			log.Println("IMU: SetUseExternalCrystal failed")
		}
	}

	p.reServos = func() bool {
		servos, err := servo.NewI2C(b, p.servoAddr)
		if err != nil {
			log.Println("Couldn't get Servos")
			return false
		}

		p.servos = servos
		p.servos.SetTimeout(time.Second * 10)
		p.servos.SetSingle(servo.ServoA, 0.0)
		p.servos.Enable(true, false)

		return true
	}

	if !p.reServos() {
		p.Reconnect(p.reServos)
	}
	p.pan = servo.NewPan(p, servo.ServoA, pc.PanSettle.Duration)

	p.tone = tone.NewPlayer(d, cfg.Tone.Channel)
	p.chime = tone.Chime()
	if cfg.Tone.File != "" {
		t, err := tone.LoadTune(cfg.Tone.File, uint8(cfg.Tone.Channel))
		if err != nil {
			log.Println("Using default chime:", err)
		} else {
			p.chime = t
		}
	}

	return p, nil
}

// Update exchanges queued packets with the board and folds in the reports.
func (p *Platform) Update() error {
	pkts, err := p.dev.Poll()
	if err != nil {
		return err
	}

	if p.lowBat.Read() == gpio.High {
		p.ledColor = color.NRGBA{0xff, 0x00, 0x00, 0x80}
		p.UpdateLed()
	}

	for _, pkt := range pkts {
		switch t := pkt.(type) {
		case *motor.StepReport:
			p.Motors.AddSteps(t)
		case *ranger.EdgeReport, *ranger.SampleReport:
			// Already latched by the ranger
		case error:
			log.Println(t)
		default:
			if pkt != nil {
				log.Printf("%v\n", pkt)
			}
		}
	}

	return nil
}

func (p *Platform) Close() error {
	p.ticker.Stop()
	p.SetWheelPower(0, 0)
	p.dev.Poll()
	return p.i2cBus.Close()
}
