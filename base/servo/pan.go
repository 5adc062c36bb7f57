package servo

import (
	"context"
	"fmt"
	"time"
)

// Positioner is anything that can place a servo, normally a *Dev.
type Positioner interface {
	SetSingle(servo Id, pos float32) error
}

// Pan drives the sensor mount. Angles run 0 (hard right) to 180 (hard left);
// moves past either end are clamped.
type Pan struct {
	dev    Positioner
	id     Id
	settle time.Duration

	angle float64
}

func NewPan(d Positioner, id Id, settle time.Duration) *Pan {
	return &Pan{
		dev:    d,
		id:     id,
		settle: settle,
	}
}

func (p *Pan) Angle() float64 {
	return p.angle
}

func (p *Pan) moveTo(ctx context.Context, angle float64) error {
	if angle < 0 {
		angle = 0
	} else if angle > 180 {
		angle = 180
	}

	if err := p.dev.SetSingle(p.id, float32(angle/180)); err != nil {
		return fmt.Errorf("pan to %.0f: %w", angle, err)
	}
	p.angle = angle

	if p.settle <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(p.settle)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p *Pan) Home(ctx context.Context) error {
	return p.moveTo(ctx, 0)
}

// Aim moves by delta degrees and returns once the mount has settled.
func (p *Pan) Aim(ctx context.Context, delta float64) error {
	return p.moveTo(ctx, p.angle+delta)
}
