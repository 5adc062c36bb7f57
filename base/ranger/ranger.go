// Copyright 2018 Brian Starkey <stark3y@gmail.com>
package ranger

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/usedbytes/bot_matrix/datalink"
	"github.com/usedbytes/route-bot/base/dev"
	"github.com/usedbytes/route-bot/config"
)

const (
	epSampleRequest  = 5
	epTriggerRequest = 6

	EpEdgeReport   = 0x14
	EpSampleReport = 0x15
)

// IR converts the analog rangefinder's raw ADC value to cm.
type IR struct {
	Coefficient float64
	Exponent    float64
}

// Centimetres returns +Inf for a zero reading.
func (ir IR) Centimetres(raw uint16) float64 {
	return ir.Coefficient * math.Pow(float64(raw), ir.Exponent)
}

// Elapsed is the number of counter ticks between two captures of a timer
// that counts down from max. A start below end means the counter wrapped in
// between.
func Elapsed(start, end, max uint32) uint32 {
	if start < end {
		return start + (max - end)
	}
	return start - end
}

// Echo converts a pair of echo edge captures into a distance.
type Echo struct {
	CounterMax    uint32
	ClockHz       float64
	SoundCmPerSec float64
}

func (e Echo) Centimetres(start, end uint32) float64 {
	ticks := Elapsed(start, end, e.CounterMax)
	// Out and back
	secs := float64(ticks) / 2 / e.ClockHz
	return secs * e.SoundCmPerSec
}

type EdgeReport struct {
	Count uint32
}

// Capture is one echo pulse: the counter at the rising and falling edge.
type Capture struct {
	Start, End uint32
}

func (c Capture) Centimetres(e Echo) float64 {
	return e.Centimetres(c.Start, c.End)
}

type SampleReport struct {
	Raw uint16
}

// Ranger is the board side of both range sensors. Reports land in one-shot
// cells which the platform polls.
type Ranger struct {
	dev *dev.Dev

	IR   IR
	Echo Echo

	Echoes  *dev.Cell[Capture]
	Samples *dev.Cell[uint16]

	rising  uint32
	inPulse bool
}

func (r *Ranger) Receive(p *datalink.Packet) interface{} {
	buf := bytes.NewBuffer(p.Data)

	switch p.Endpoint {
	case EpEdgeReport:
		rep := &EdgeReport{}
		if err := binary.Read(buf, binary.LittleEndian, &rep.Count); err != nil {
			return err
		}
		// Edges alternate rising, falling
		if !r.inPulse {
			r.rising = rep.Count
			r.inPulse = true
		} else {
			r.Echoes.Put(Capture{Start: r.rising, End: rep.Count})
			r.inPulse = false
		}
		return rep
	case EpSampleReport:
		rep := &SampleReport{}
		if err := binary.Read(buf, binary.LittleEndian, &rep.Raw); err != nil {
			return err
		}
		r.Samples.Put(rep.Raw)
		return rep
	}

	return nil
}

// RequestSample asks the board for one ADC conversion.
func (r *Ranger) RequestSample() {
	r.dev.Queue(&datalink.Packet{Endpoint: epSampleRequest})
}

// Trigger fires the ultrasonic ranger. Any stale capture is discarded first.
func (r *Ranger) Trigger() {
	r.Echoes.Take()
	r.inPulse = false
	r.dev.Queue(&datalink.Packet{Endpoint: epTriggerRequest})
}

func NewRanger(d *dev.Dev, cfg config.Ranger) (*Ranger, error) {
	r := &Ranger{
		dev: d,
		IR: IR{
			Coefficient: cfg.IRCoefficient,
			Exponent:    cfg.IRExponent,
		},
		Echo: Echo{
			CounterMax:    cfg.CounterMax,
			ClockHz:       cfg.ClockHz,
			SoundCmPerSec: cfg.SoundCmPerSec,
		},
		Echoes:  dev.NewCell[Capture](),
		Samples: dev.NewCell[uint16](),
	}

	if _, err := d.Add(EpEdgeReport, r.Receive); err != nil {
		return nil, err
	}
	if _, err := d.Add(EpSampleReport, r.Receive); err != nil {
		return nil, err
	}

	return r, nil
}
