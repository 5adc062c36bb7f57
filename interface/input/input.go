package input

import (
	"image/color"
	"log"
	"sync"
	"time"

	"github.com/gvalkov/golang-evdev"
	"github.com/usedbytes/input2"
	"github.com/usedbytes/input2/button"
	"github.com/usedbytes/input2/factory"
	"github.com/usedbytes/input2/gamepad/thumbstick"

	"github.com/usedbytes/linux-led"

	"github.com/usedbytes/route-bot/interface/command"
)

type Button int

const (
	Cross Button = iota
	Square
	Triangle
	Circle
	PS
	Share
	Options
	L1
	L2
	L3
	R1
	R2
	R3
)

// Bindings is what each gamepad button sends. Buttons not listed do nothing.
var Bindings = map[Button]command.Command{
	Cross:    command.Start,
	Square:   command.Survey,
	Triangle: command.Mode,
	Options:  command.Auto,
	Circle:   command.Halt,
	R1:       command.StopRequest,
	PS:       command.Quit,
}

// Collector turns gamepad events into command bytes and stick positions.
type Collector struct {
	lock                  sync.Mutex
	leftStick, rightStick float32
	urgent                func(b byte) bool

	queue chan byte
}

// SetUrgent installs a handler offered every byte as soon as it arrives, as
// for the serial link.
func (c *Collector) SetUrgent(fn func(b byte) bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.urgent = fn
}

func (c *Collector) press(btn Button) {
	cmd, ok := Bindings[btn]
	if !ok {
		return
	}
	b := byte(cmd)

	c.lock.Lock()
	urgent := c.urgent
	c.lock.Unlock()

	if urgent != nil && urgent(b) {
		return
	}

	select {
	case c.queue <- b:
	default:
		log.Printf("input: dropping %v\n", cmd)
	}
}

func (c *Collector) handleEvents(ch <-chan input2.InputEvent) {
	for ev := range ch {
		switch e := ev.(type) {
		case thumbstick.Event:
			mag := float32(e.Arg)

			c.lock.Lock()
			if e.Stick == 0 {
				if (e.Theta > 90) && (e.Theta < 270) {
					mag = -mag
				}
				c.leftStick = mag
			} else {
				if e.Theta > 180 {
					mag = -mag
				}
				c.rightStick = mag
			}
			c.lock.Unlock()

		case button.Event:
			if e.Value == button.Pressed {
				c.press(Button(e.Keycode))
			}
		}
	}
}

func (c *Collector) GetSticks() (float32, float32) {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.leftStick, c.rightStick
}

// TryReceive returns the next queued command byte, if any.
func (c *Collector) TryReceive() (byte, bool) {
	select {
	case b := <-c.queue:
		return b, true
	default:
		return 0, false
	}
}

type buttonMap struct {
	scancode uint16
	button   Button
}

func newCollector() *Collector {
	return &Collector{
		queue: make(chan byte, 16),
	}
}

// NewCollector watches for gamepads and maps every one that appears.
func NewCollector() *Collector {
	c := newCollector()

	stopChan := make(chan bool)

	go func() {
		sources := factory.Monitor()
		for s := range sources {
			log.Println("Source: ", s)
			conn := s.NewConnection()

			rgbled, ok := s.(led.RGBLED)
			if ok {
				rgbled.SetColor(color.NRGBA{0x00, 0xff, 0x00, 0xff})
				rgbled.SetTrigger(led.TriggerHeartbeat)
			}

			btnMap := []buttonMap{
				{evdev.BTN_MODE, PS},
				{evdev.BTN_NORTH, Triangle},
				{evdev.BTN_EAST, Circle},
				{evdev.BTN_SOUTH, Cross},
				{evdev.BTN_WEST, Square},
				{evdev.BTN_SELECT, Share},
				{evdev.BTN_START, Options},
				{evdev.BTN_TL, L1},
				{evdev.BTN_TL2, L2},
				{evdev.BTN_THUMBL, L3},
				{evdev.BTN_TR, R1},
				{evdev.BTN_TR2, R2},
				{evdev.BTN_THUMBR, R3},
			}

			for _, b := range btnMap {
				button.MapButton(conn,
					&button.Button{
						Match:    input2.EventMatch{evdev.EV_KEY, b.scancode},
						HoldTime: (time.Millisecond * 1500),
						Keycode:  int(b.button),
					})
			}

			thumbstick.MapThumbstick(conn,
				&thumbstick.Thumbstick{
					X:     thumbstick.Axis{Code: evdev.ABS_X},
					Y:     thumbstick.Axis{Code: evdev.ABS_Y, Invert: true},
					Stick: thumbstick.Left,
					Algo:  thumbstick.CrossDeadzone{XDeadzone: 0.2, YDeadzone: 0.2},
				})
			thumbstick.MapThumbstick(conn,
				&thumbstick.Thumbstick{
					X:     thumbstick.Axis{Code: evdev.ABS_RX},
					Y:     thumbstick.Axis{Code: evdev.ABS_RY, Invert: true},
					Stick: thumbstick.Right,
					Algo:  thumbstick.CrossDeadzone{XDeadzone: 0.2, YDeadzone: 0.2},
				})

			sub := conn.Subscribe(stopChan)
			go c.handleEvents(sub)
		}
	}()

	return c
}
