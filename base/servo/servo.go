package servo

import (
	"fmt"
	"time"

	"periph.io/x/periph/conn"
	"periph.io/x/periph/conn/i2c"
)

type Id int

const (
	ServoA Id = iota
	ServoB
)

const (
	regControl uint8 = iota
	regServoA
	regServoB
)

const (
	ctrlEnableA  = 1 << 0
	ctrlEnableB  = 1 << 1
	ctrlEnablePW = 1 << 2
)

// Dev is the two channel I2C servo board. It halts itself if nothing is
// written for the timeout period.
type Dev struct {
	d    conn.Conn
	name string

	val byte

	timer   *time.Timer
	timeout time.Duration
}

func NewI2C(b i2c.Bus, addr uint8) (*Dev, error) {
	d := &Dev{d: &i2c.Dev{Bus: b, Addr: uint16(addr)}, name: "Servo"}

	if !d.Ping() {
		return nil, fmt.Errorf("no servo board at 0x%02x", addr)
	}

	return d, nil
}

func toPos(x float32) byte {
	if x < 0.0 {
		return 0
	} else if x > 1.0 {
		return 255
	}

	return byte(255.0 * x)
}

func (d *Dev) resetTimeout() {
	if d.timer != nil {
		if !d.timer.Stop() {
			d.timer = nil
			// Re-enable
			d.writeReg(regControl, []byte{d.val})
		}
	}

	if d.timeout != 0 {
		d.timer = time.AfterFunc(d.timeout, func() { d.Halt() })
	}
}

func (d *Dev) SetTimeout(to time.Duration) {
	d.timeout = to
	d.resetTimeout()
}

func (d *Dev) Enable(a, b bool) error {
	val := []byte{0}

	if err := d.readReg(regControl, val); err != nil {
		return err
	}

	val[0] &= ^byte(ctrlEnableA | ctrlEnableB | ctrlEnablePW)
	if a {
		val[0] |= ctrlEnableA
	}
	if b {
		val[0] |= ctrlEnableB
	}
	if a || b {
		val[0] |= ctrlEnablePW
	}

	d.val = val[0]
	d.resetTimeout()

	return d.writeReg(regControl, val)
}

// SetSingle moves one servo. pos is 0.0 to 1.0 of its travel.
func (d *Dev) SetSingle(servo Id, pos float32) error {
	reg := regServoA
	if servo == ServoB {
		reg = regServoB
	}

	d.resetTimeout()

	return d.writeReg(reg, []byte{toPos(pos)})
}

func (d *Dev) Ping() bool {
	tmp := []byte{0}
	return d.readReg(regControl, tmp) == nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("%s{%s}", d.name, d.d)
}

func (d *Dev) Halt() error {
	// Don't use Enable() so we can bypass the timeout logic
	return d.writeReg(regControl, []byte{0})
}

func (d *Dev) readReg(reg uint8, data []byte) error {
	return d.d.Tx([]byte{reg}, data)
}

func (d *Dev) writeReg(reg uint8, data []byte) error {
	write := make([]byte, 1, len(data)+1)
	write[0] = reg
	write = append(write, data...)

	return d.d.Tx(write, nil)
}

var _ conn.Resource = &Dev{}
