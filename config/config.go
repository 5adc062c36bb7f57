// Copyright 2018 Brian Starkey <stark3y@gmail.com>
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration lets TOML files carry "300ms" style strings.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func ms(n int) Duration {
	return Duration{time.Duration(n) * time.Millisecond}
}

type Scan struct {
	StartAngle float64 `toml:"start_angle"`
	EndAngle   float64 `toml:"end_angle"`
	Step       float64 `toml:"step"`
	// Samples closer than this (cm) count as "object present"
	Presence    float64  `toml:"presence_cm"`
	MinRun      int      `toml:"min_run"`
	Capacity    int      `toml:"capacity"`
	HomeSettle  Duration `toml:"home_settle"`
	ConfirmWait Duration `toml:"confirm_wait"`

	// Count samples exactly at Presence as present too
	Inclusive bool `toml:"-"`
}

// Present reports whether a sample of d cm counts as an object.
func (s Scan) Present(d float64) bool {
	if s.Inclusive {
		return d <= s.Presence
	}
	return d < s.Presence
}

// Narrow returns a copy of s sweeping only [start, end], with anything at or
// inside presence counting.
func (s Scan) Narrow(start, end, presence float64, minRun int) Scan {
	n := s
	n.StartAngle = start
	n.EndAngle = end
	n.Presence = presence
	n.Inclusive = true
	if minRun > 0 {
		n.MinRun = minRun
	}
	return n
}

type Roadway struct {
	StartAngle float64  `toml:"start_angle"`
	EndAngle   float64  `toml:"end_angle"`
	Threshold  float64  `toml:"threshold_cm"`
	MinRun     int      `toml:"min_run"`
	Interval   float64  `toml:"interval_mm"`
	Recheck    Duration `toml:"recheck"`
}

type Drive struct {
	Power        int      `toml:"power"`
	TurnPower    int      `toml:"turn_power"`
	HazardSettle Duration `toml:"hazard_settle"`
	StopDwell    Duration `toml:"stop_dwell"`
	// Number of telemetry ticks a single manual command drives for
	ManualPulse int `toml:"manual_pulse"`
}

type Avoid struct {
	Backup float64 `toml:"backup_mm"`
	Turn   float64 `toml:"turn_deg"`
	// Sideways distance the probe leg must cover before the obstacle is
	// considered passed.
	Clearance      float64  `toml:"clearance_mm"`
	ObstacleWidth  float64  `toml:"obstacle_width_mm"`
	CliffTileWidth float64  `toml:"cliff_tile_width_mm"`
	MaxAttempts    int      `toml:"max_attempts"`
	Pause          Duration `toml:"pause"`
	Return         bool     `toml:"return"`
}

type Ranger struct {
	IRCoefficient float64 `toml:"ir_coefficient"`
	IRExponent    float64 `toml:"ir_exponent"`
	CounterMax    uint32  `toml:"counter_max"`
	ClockHz       float64 `toml:"clock_hz"`
	SoundCmPerSec float64 `toml:"sound_cm_per_sec"`
}

type Link struct {
	Device   string `toml:"device"`
	BaudRate int    `toml:"baud_rate"`
	DataBits int    `toml:"data_bits"`
	StopBits int    `toml:"stop_bits"`
	Parity   string `toml:"parity"`
}

type Platform struct {
	Socket     string   `toml:"socket"`
	MMPerRev   float64  `toml:"mm_per_rev"`
	Wheelbase  float64  `toml:"wheelbase_mm"`
	MaxRPS     float64  `toml:"max_rps"`
	TickPeriod Duration `toml:"tick_period"`

	ServoAddr uint8    `toml:"servo_addr"`
	PanSettle Duration `toml:"pan_settle"`

	LowBattery      string `toml:"low_battery_pin"`
	BumpLeft        string `toml:"bump_left_pin"`
	BumpRight       string `toml:"bump_right_pin"`
	CliffLeft       string `toml:"cliff_left_pin"`
	CliffFrontLeft  string `toml:"cliff_front_left_pin"`
	CliffFrontRight string `toml:"cliff_front_right_pin"`
	CliffRight      string `toml:"cliff_right_pin"`
}

// Step is one course entry. Exactly one of Forward or Turn is set.
type Step struct {
	Forward   float64 `toml:"forward"`
	Turn      float64 `toml:"turn"`
	Direction string  `toml:"direction"`
	Announce  string  `toml:"announce"`
	Stop      bool    `toml:"stop"`
}

type Course struct {
	Name      string `toml:"name"`
	ScanFirst bool   `toml:"scan_first"`
	Steps     []Step `toml:"steps"`
}

type Survey struct {
	AimAtTarget bool   `toml:"aim_at_target"`
	PlotPath    string `toml:"plot_path"`
}

type Tone struct {
	File    string `toml:"file"`
	Channel int    `toml:"channel"`
}

type Config struct {
	Scan     Scan     `toml:"scan"`
	Roadway  Roadway  `toml:"roadway"`
	Drive    Drive    `toml:"drive"`
	Avoid    Avoid    `toml:"avoid"`
	Ranger   Ranger   `toml:"ranger"`
	Link     Link     `toml:"link"`
	Platform Platform `toml:"platform"`
	Course   Course   `toml:"course"`
	Survey   Survey   `toml:"survey"`
	Tone     Tone     `toml:"tone"`
}

// DefaultCourse is the test field route, measured off the course diagram.
func DefaultCourse() Course {
	return Course{
		Name: "orange",
		Steps: []Step{
			{Forward: 2030},
			{Turn: 75, Direction: "left", Announce: "Now approaching Stop 1"},
			{Forward: 900, Stop: true},
			{Forward: 365},
			{Turn: 7, Direction: "left"},
			{Forward: 1710, Announce: "Now approaching Stop 2"},
			{Turn: 50, Direction: "left", Stop: true},
			{Forward: 500},
			{Turn: 75, Direction: "left"},
			{Forward: 1360, Announce: "Now approaching Stop 3"},
			{Turn: 75, Direction: "right", Stop: true},
			{Forward: 500},
			{Turn: 75, Direction: "left"},
			{Forward: 1670, Announce: "Now approaching Park & Ride Terminal"},
			{Turn: 75, Direction: "left"},
		},
	}
}

func Default() Config {
	return Config{
		Scan: Scan{
			StartAngle:  0,
			EndAngle:    180,
			Step:        2,
			Presence:    50,
			MinRun:      5,
			Capacity:    7,
			HomeSettle:  ms(300),
			ConfirmWait: ms(100),
		},
		Roadway: Roadway{
			StartAngle: 75,
			EndAngle:   115,
			Threshold:  40,
			MinRun:     3,
			Interval:   500,
			Recheck:    ms(500),
		},
		Drive: Drive{
			Power:        100,
			TurnPower:    100,
			HazardSettle: ms(300),
			StopDwell:    ms(3000),
			ManualPulse:  30,
		},
		Avoid: Avoid{
			Backup:         100,
			Turn:           42,
			Clearance:      300,
			ObstacleWidth:  300,
			CliffTileWidth: 600,
			MaxAttempts:    4,
			Pause:          ms(300),
			Return:         true,
		},
		Ranger: Ranger{
			IRCoefficient: 51792,
			IRExponent:    -1.149,
			CounterMax:    0xFFFFFF,
			ClockHz:       16000000,
			SoundCmPerSec: 34000,
		},
		Link: Link{
			Device:   "/dev/ttyAMA0",
			BaudRate: 115200,
			DataBits: 8,
			StopBits: 1,
			Parity:   "N",
		},
		Platform: Platform{
			Socket:          "/tmp/sock",
			MMPerRev:        30.5 * 3.141592653589793,
			Wheelbase:       76,
			MaxRPS:          4.13,
			TickPeriod:      ms(16),
			ServoAddr:       0x40,
			PanSettle:       ms(150),
			LowBattery:      "GPIO27",
			BumpLeft:        "GPIO5",
			BumpRight:       "GPIO6",
			CliffLeft:       "GPIO13",
			CliffFrontLeft:  "GPIO19",
			CliffFrontRight: "GPIO26",
			CliffRight:      "GPIO21",
		},
		Course: DefaultCourse(),
	}
}

// Load decodes path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); err != nil {
		return cfg, err
	}

	// Replace rather than merge the course when the file has one
	cfg.Course.Steps = nil
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("decode %s: %w", path, err)
	}
	if !md.IsDefined("course", "steps") {
		cfg.Course.Steps = DefaultCourse().Steps
	}

	if undec := md.Undecoded(); len(undec) > 0 {
		keys := make([]string, 0, len(undec))
		for _, k := range undec {
			keys = append(keys, k.String())
		}
		return cfg, fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Scan.Step <= 0 {
		return fmt.Errorf("scan.step must be > 0")
	}
	if c.Scan.EndAngle <= c.Scan.StartAngle {
		return fmt.Errorf("scan.end_angle must be greater than scan.start_angle")
	}
	if c.Scan.MinRun < 1 {
		return fmt.Errorf("scan.min_run must be >= 1")
	}
	if c.Scan.Capacity < 1 {
		return fmt.Errorf("scan.capacity must be >= 1")
	}
	if c.Roadway.EndAngle <= c.Roadway.StartAngle {
		return fmt.Errorf("roadway.end_angle must be greater than roadway.start_angle")
	}
	if c.Avoid.MaxAttempts < 1 {
		return fmt.Errorf("avoid.max_attempts must be >= 1")
	}
	if c.Avoid.Turn <= 0 || c.Avoid.Turn > 90 {
		return fmt.Errorf("avoid.turn_deg must be in (0, 90]")
	}
	if c.Ranger.CounterMax == 0 {
		return fmt.Errorf("ranger.counter_max must be set")
	}
	for i, s := range c.Course.Steps {
		if (s.Forward != 0) == (s.Turn != 0) {
			return fmt.Errorf("course step %d: exactly one of forward or turn must be set", i)
		}
		if s.Turn != 0 {
			switch strings.ToLower(s.Direction) {
			case "left", "right":
			default:
				return fmt.Errorf("course step %d: direction %q must be left or right", i, s.Direction)
			}
		}
	}
	return nil
}
