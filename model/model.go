// Copyright 2018 Brian Starkey <stark3y@gmail.com>
package model

import (
	"log"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/usedbytes/route-bot/hazard"
)

// Telemetry is one drivetrain report. Distance is in mm, Heading in degrees
// (counter-clockwise positive), both relative to the previous report.
type Telemetry struct {
	Distance float64
	Heading  float64
	Hazard   hazard.Hazard
}

func deg2rad(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// Odometer is the dead-reckoning estimate of how far the robot has gone.
// Every observed tick is folded into the running sums exactly once.
type Odometer struct {
	distance float64
	heading  float64

	pos r2.Vec
	ori float64

	pending  Telemetry
	consumed bool
	ticks    uint64
}

// Observe latches a new tick. If the previous tick was never taken its
// deltas are carried into this one rather than lost.
func (o *Odometer) Observe(t Telemetry) {
	if !o.consumed && o.ticks > 0 {
		log.Printf("odometer: tick %d not consumed, merging\n", o.ticks)
		t.Distance += o.pending.Distance
		t.Heading += o.pending.Heading
	}

	o.pending = t
	o.consumed = false
	o.ticks++
}

// Take returns the latched tick and accumulates it. A second Take of the same
// tick returns zero deltas and false.
func (o *Odometer) Take() (float64, float64, bool) {
	if o.consumed || o.ticks == 0 {
		return 0, 0, false
	}
	o.consumed = true

	d, h := o.pending.Distance, o.pending.Heading
	o.advance(d, h)

	return d, h, true
}

func (o *Odometer) advance(d, h float64) {
	// Integrate along the mid-tick heading
	mid := deg2rad(o.ori + h/2)
	o.pos = r2.Add(o.pos, r2.Scale(d, r2.Vec{X: math.Sin(mid), Y: math.Cos(mid)}))
	o.ori += h

	o.Accumulate(d)
	o.AccumulateHeading(h)
}

// Accumulate adds mm to the running distance.
func (o *Odometer) Accumulate(mm float64) {
	o.distance += mm
}

// AccumulateHeading adds deg to the running heading.
func (o *Odometer) AccumulateHeading(deg float64) {
	o.heading += deg
}

func (o *Odometer) Distance() float64 {
	return o.distance
}

func (o *Odometer) Heading() float64 {
	return o.heading
}

func (o *Odometer) Ticks() uint64 {
	return o.ticks
}

// GetPose returns the integrated position (mm) and orientation (degrees,
// normalised to (-180, 180]). Position is in the frame the robot started in,
// the same way round as a drive.PoseDelta: X to the left, Y straight ahead.
func (o *Odometer) GetPose() (r2.Vec, float64) {
	ori := math.Mod(o.ori, 360)
	if ori > 180 {
		ori -= 360
	} else if ori <= -180 {
		ori += 360
	}
	return o.pos, ori
}

// ResetOrientation zeroes the pose. Running sums are left alone.
func (o *Odometer) ResetOrientation() {
	o.pos = r2.Vec{}
	o.ori = 0
}

func NewOdometer() *Odometer {
	return &Odometer{consumed: true}
}
