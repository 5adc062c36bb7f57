// Copyright 2018 Brian Starkey <stark3y@gmail.com>
package hazard

import "fmt"

// Hazard is a bump or cliff condition seen on a single telemetry tick.
type Hazard int

const (
	None Hazard = iota
	BumpLeft
	BumpRight
	BumpBoth
	CliffFrontLeft
	CliffFrontRight
	CliffLeft
	CliffRight
)

func (h Hazard) String() string {
	switch h {
	case None:
		return "None"
	case BumpLeft:
		return "BumpLeft"
	case BumpRight:
		return "BumpRight"
	case BumpBoth:
		return "BumpBoth"
	case CliffFrontLeft:
		return "CliffFrontLeft"
	case CliffFrontRight:
		return "CliffFrontRight"
	case CliffLeft:
		return "CliffLeft"
	case CliffRight:
		return "CliffRight"
	default:
		return fmt.Sprintf("Hazard(%d)", int(h))
	}
}

func (h Hazard) IsBump() bool {
	return h == BumpLeft || h == BumpRight || h == BumpBoth
}

func (h Hazard) IsCliff() bool {
	return h >= CliffFrontLeft && h <= CliffRight
}

// Alert is the operator message for h.
func (h Hazard) Alert() string {
	switch {
	case h.IsBump():
		return fmt.Sprintf("ALERT! Hit a short object in the road (%v).", h)
	case h.IsCliff():
		return fmt.Sprintf("ALERT! Sinkhole in the roadway (%v).", h)
	}
	return ""
}

type Side int

const (
	Left Side = iota
	Right
)

// Side reports which side of the chassis the hazard is on. Both bumpers
// count as left.
func (h Hazard) Side() Side {
	switch h {
	case BumpRight, CliffFrontRight, CliffRight:
		return Right
	}
	return Left
}

// Bits is the raw sensor word, one bit per switch.
type Bits uint8

const (
	BitBumpLeft Bits = 1 << iota
	BitBumpRight
	BitCliffLeft
	BitCliffFrontLeft
	BitCliffFrontRight
	BitCliffRight
)

// FromBits folds a sensor word into the single most urgent hazard. Bumps win
// over cliffs, front cliffs over side cliffs, left over right.
func FromBits(b Bits) Hazard {
	left, right := b&BitBumpLeft != 0, b&BitBumpRight != 0
	switch {
	case left && right:
		return BumpBoth
	case left:
		return BumpLeft
	case right:
		return BumpRight
	case b&BitCliffFrontLeft != 0:
		return CliffFrontLeft
	case b&BitCliffFrontRight != 0:
		return CliffFrontRight
	case b&BitCliffLeft != 0:
		return CliffLeft
	case b&BitCliffRight != 0:
		return CliffRight
	}
	return None
}
