// Copyright 2018 Brian Starkey <stark3y@gmail.com>
package motor

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"

	"github.com/usedbytes/bot_matrix/datalink"
	"github.com/usedbytes/route-bot/base/dev"
)

const (
	epSetSpeed   = 1
	EpStepReport = 0x12
)

type motor struct {
	alpha float64
}

func (m *motor) stepsToRevs(steps int32) float64 {
	return float64(steps) * m.alpha / (2 * math.Pi)
}

// Motors is the stepper pair. Motor 0 is mounted mirrored, so its sign is
// flipped on the way in and out.
type Motors struct {
	dev    *dev.Dev
	maxRPS float64
	period time.Duration

	aRPS, bRPS   float64
	aRevs, bRevs float64
	aLast, bLast float64

	motors []motor
}

type StepReport struct {
	Id    uint32
	Steps int32
}

func rxStepReport(p *datalink.Packet) interface{} {
	if p.Endpoint != EpStepReport {
		return nil
	}

	rep := &StepReport{}
	buf := bytes.NewBuffer(p.Data)
	if err := binary.Read(buf, binary.LittleEndian, &rep.Id); err != nil {
		return err
	}
	if err := binary.Read(buf, binary.LittleEndian, &rep.Steps); err != nil {
		return err
	}

	return rep
}

func (m *Motors) setRadss(id int32, speed int32) {
	p := datalink.Packet{Endpoint: epSetSpeed}

	buf := &bytes.Buffer{}
	binary.Write(buf, binary.LittleEndian, byte(id))
	binary.Write(buf, binary.LittleEndian, byte(speed))
	p.Data = buf.Bytes()

	m.dev.Queue(&p)
}

func (m *Motors) SetRPS(a, b float64) {
	a = math.Max(-m.maxRPS, math.Min(m.maxRPS, a))
	b = math.Max(-m.maxRPS, math.Min(m.maxRPS, b))

	m.setRadss(0, int32(math.Round(-a*2*math.Pi)))
	m.setRadss(1, int32(math.Round(b*2*math.Pi)))
}

func (m *Motors) GetRPS() (float64, float64) {
	return m.aRPS, m.bRPS
}

func (m *Motors) GetMaxRPS() float64 {
	return m.maxRPS
}

func (m *Motors) GetRevolutions() (float64, float64) {
	return m.aRevs, m.bRevs
}

// Delta returns the revolutions of each wheel since the previous call.
func (m *Motors) Delta() (float64, float64) {
	da, db := m.aRevs-m.aLast, m.bRevs-m.bLast
	m.aLast, m.bLast = m.aRevs, m.bRevs
	return da, db
}

// Stopped reports whether the last step reports for both wheels were zero.
func (m *Motors) Stopped() bool {
	return m.aRPS == 0 && m.bRPS == 0
}

func (m *Motors) AddSteps(steps *StepReport) {
	secs := m.period.Seconds()

	switch steps.Id {
	case 0:
		revs := m.motors[0].stepsToRevs(steps.Steps)
		m.aRevs -= revs
		m.aRPS = -revs / secs
	case 1:
		revs := m.motors[1].stepsToRevs(steps.Steps)
		m.bRevs += revs
		m.bRPS = revs / secs
	}
}

func (m *Motors) Receive(pkt *datalink.Packet) interface{} {
	return rxStepReport(pkt)
}

func NewMotors(d *dev.Dev, maxRPS float64, period time.Duration) (*Motors, error) {
	m := &Motors{
		dev:    d,
		maxRPS: maxRPS,
		period: period,

		motors: []motor{
			{alpha: 2 * math.Pi / 600},
			{alpha: 2 * math.Pi / 600},
		},
	}

	if _, err := d.Add(EpStepReport, m.Receive); err != nil {
		return nil, err
	}

	return m, nil
}
