// Copyright 2018 Brian Starkey <stark3y@gmail.com>
package scan

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/usedbytes/route-bot/config"
)

var (
	ErrNoObstacleFound  = errors.New("no obstacle found")
	ErrCapacityExceeded = errors.New("obstacle set capacity exceeded")
)

// Obstacle is one cluster from a sweep. Angles are in degrees relative to
// the sweep (0 is hard right, 90 straight ahead), distances in cm.
type Obstacle struct {
	StartAngle, EndAngle, Angle float64
	StartDist, EndDist, Dist    float64
	RangeConfirm                float64
	Width                       float64
	LinearWidth                 float64
}

func (o Obstacle) String() string {
	return fmt.Sprintf("{%.0f-%.0f deg, %.1f cm, width %.0f deg / %.1f cm}",
		o.StartAngle, o.EndAngle, o.Dist, o.Width, o.LinearWidth)
}

// ObstacleSet is an ordered, fixed capacity set of obstacles.
type ObstacleSet struct {
	items    []Obstacle
	capacity int
	dropped  int
}

func NewObstacleSet(capacity int) *ObstacleSet {
	return &ObstacleSet{
		items:    make([]Obstacle, 0, capacity),
		capacity: capacity,
	}
}

// Add appends o. Once the set is full further obstacles are counted and
// discarded.
func (s *ObstacleSet) Add(o Obstacle) error {
	if len(s.items) >= s.capacity {
		s.dropped++
		return ErrCapacityExceeded
	}
	s.items = append(s.items, o)
	return nil
}

func (s *ObstacleSet) Len() int {
	return len(s.items)
}

func (s *ObstacleSet) Capacity() int {
	return s.capacity
}

// Dropped is the number of obstacles refused because the set was full.
func (s *ObstacleSet) Dropped() int {
	return s.dropped
}

func (s *ObstacleSet) At(i int) Obstacle {
	return s.items[i]
}

// Obstacles returns a copy of the contents in angular order.
func (s *ObstacleSet) Obstacles() []Obstacle {
	ret := make([]Obstacle, len(s.items))
	copy(ret, s.items)
	return ret
}

// Target picks the narrowest obstacle, the first one on a tie.
func (s *ObstacleSet) Target() (Obstacle, error) {
	if len(s.items) == 0 {
		return Obstacle{}, ErrNoObstacleFound
	}

	widths := make([]float64, len(s.items))
	for i, o := range s.items {
		widths[i] = o.Width
	}

	return s.items[floats.MinIdx(widths)], nil
}

func newObstacle(profile []float64, first, last int, cfg config.Scan) Obstacle {
	o := Obstacle{
		StartAngle: cfg.StartAngle + float64(first)*cfg.Step,
		EndAngle:   cfg.StartAngle + float64(last)*cfg.Step,
		StartDist:  profile[first],
		EndDist:    profile[last],
	}
	// Midpoints only look at the run's edges
	o.Angle = (o.StartAngle + o.EndAngle) / 2
	o.Dist = (o.StartDist + o.EndDist) / 2
	o.Width = o.EndAngle - o.StartAngle
	o.LinearWidth = o.Width * (math.Pi / 180) * o.Dist

	return o
}

// Segment splits a distance profile (one sample per cfg.Step degrees from
// cfg.StartAngle) into obstacles: runs of at least cfg.MinRun consecutive
// samples present by cfg.Present.
func Segment(profile []float64, cfg config.Scan) *ObstacleSet {
	set := NewObstacleSet(cfg.Capacity)

	run := 0
	flush := func(end int) {
		defer func() { run = 0 }()

		if run < cfg.MinRun || run < 2 {
			return
		}
		o := newObstacle(profile, end-run, end-1, cfg)
		if err := set.Add(o); err != nil {
			log.Printf("scan: dropping %v: %v\n", o, err)
		}
	}

	for i, d := range profile {
		if cfg.Present(d) {
			run++
			continue
		}
		flush(i)
	}
	flush(len(profile))

	return set
}

// Ranger is the pan-mounted range sensor pair.
type Ranger interface {
	// Home moves the aim to 0 degrees.
	Home(ctx context.Context) error
	// Aim moves the aim by delta degrees and blocks until settled.
	Aim(ctx context.Context, delta float64) error
	ShortRange(ctx context.Context) (float64, error)
	LongRange(ctx context.Context) (float64, error)
}

type Sample struct {
	Angle, Dist float64
}

type Scanner struct {
	ranger  Ranger
	cfg     config.Scan
	roadway config.Roadway

	angle float64
	last  []Sample
}

func NewScanner(r Ranger, cfg config.Scan, roadway config.Roadway) *Scanner {
	return &Scanner{
		ranger:  r,
		cfg:     cfg,
		roadway: roadway,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 || ctx.Err() != nil {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Scanner) home(ctx context.Context, start float64) error {
	if err := s.ranger.Home(ctx); err != nil {
		return fmt.Errorf("home: %w", err)
	}
	s.angle = 0

	if err := s.aimAt(ctx, start); err != nil {
		return err
	}

	return sleep(ctx, s.cfg.HomeSettle.Duration)
}

func (s *Scanner) aimAt(ctx context.Context, angle float64) error {
	delta := angle - s.angle
	if delta == 0 {
		return nil
	}

	if err := s.ranger.Aim(ctx, delta); err != nil {
		return fmt.Errorf("aim %.0f: %w", angle, err)
	}
	s.angle = angle

	return nil
}

func (s *Scanner) sweep(ctx context.Context, cfg config.Scan) ([]float64, error) {
	if err := s.home(ctx, cfg.StartAngle); err != nil {
		return nil, err
	}

	n := int(math.Floor((cfg.EndAngle-cfg.StartAngle)/cfg.Step)) + 1
	profile := make([]float64, 0, n)
	s.last = make([]Sample, 0, n)

	for i := 0; i < n; i++ {
		if i > 0 {
			if err := s.aimAt(ctx, cfg.StartAngle+float64(i)*cfg.Step); err != nil {
				return nil, err
			}
		}

		d, err := s.ranger.ShortRange(ctx)
		if err != nil {
			return nil, fmt.Errorf("short range at %.0f: %w", s.angle, err)
		}
		profile = append(profile, d)
		s.last = append(s.last, Sample{Angle: s.angle, Dist: d})
	}

	return profile, nil
}

// Scan sweeps the full arc, segments the profile and confirms every obstacle
// with one long range reading at its midpoint.
func (s *Scanner) Scan(ctx context.Context) (*ObstacleSet, error) {
	profile, err := s.sweep(ctx, s.cfg)
	if err != nil {
		return nil, err
	}

	set := Segment(profile, s.cfg)
	if set.Dropped() > 0 {
		log.Printf("scan: %d obstacles over capacity %d\n", set.Dropped(), set.Capacity())
	}

	for i := range set.items {
		o := &set.items[i]
		if err := s.aimAt(ctx, o.Angle); err != nil {
			return nil, err
		}

		// A bad reading is kept as-is
		o.RangeConfirm, err = s.ranger.LongRange(ctx)
		if err != nil {
			return nil, fmt.Errorf("long range at %.0f: %w", o.Angle, err)
		}

		if err := sleep(ctx, s.cfg.ConfirmWait.Duration); err != nil {
			return nil, err
		}
	}

	return set, nil
}

// RoadwayBlocked sweeps only the window straight ahead and reports whether
// anything is inside the roadway threshold.
func (s *Scanner) RoadwayBlocked(ctx context.Context) (bool, error) {
	rw := s.roadway
	cfg := s.cfg.Narrow(rw.StartAngle, rw.EndAngle, rw.Threshold, rw.MinRun)

	profile, err := s.sweep(ctx, cfg)
	if err != nil {
		return false, err
	}

	set := Segment(profile, cfg)
	return set.Len() > 0 || set.Dropped() > 0, nil
}

// Profile returns the samples of the most recent sweep.
func (s *Scanner) Profile() []Sample {
	ret := make([]Sample, len(s.last))
	copy(ret, s.last)
	return ret
}
