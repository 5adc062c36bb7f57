package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bot.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 7, cfg.Scan.Capacity)
	assert.Equal(t, 5, cfg.Scan.MinRun)
	assert.Equal(t, 42.0, cfg.Avoid.Turn)
	assert.Equal(t, 300*time.Millisecond, cfg.Drive.HazardSettle.Duration)
	assert.NotEmpty(t, cfg.Course.Steps)
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesAndKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
[scan]
presence_cm = 45.5
home_settle = "1s"

[avoid]
max_attempts = 2
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 45.5, cfg.Scan.Presence)
	assert.Equal(t, time.Second, cfg.Scan.HomeSettle.Duration)
	assert.Equal(t, 2, cfg.Avoid.MaxAttempts)
	// untouched values keep their defaults
	assert.Equal(t, 2.0, cfg.Scan.Step)
	assert.Equal(t, 100.0, cfg.Avoid.Backup)
	assert.Equal(t, DefaultCourse().Steps, cfg.Course.Steps)
}

func TestLoadReplacesCourse(t *testing.T) {
	path := writeConfig(t, `
[course]
name = "square"

[[course.steps]]
forward = 500

[[course.steps]]
turn = 90
direction = "right"
stop = true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Course.Steps, 2)
	assert.Equal(t, "square", cfg.Course.Name)
	assert.Equal(t, 500.0, cfg.Course.Steps[0].Forward)
	assert.Equal(t, "right", cfg.Course.Steps[1].Direction)
	assert.True(t, cfg.Course.Steps[1].Stop)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
[scan]
presense_cm = 10
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "presense_cm")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero step", func(c *Config) { c.Scan.Step = 0 }},
		{"inverted sweep", func(c *Config) { c.Scan.EndAngle = c.Scan.StartAngle }},
		{"no capacity", func(c *Config) { c.Scan.Capacity = 0 }},
		{"no attempts", func(c *Config) { c.Avoid.MaxAttempts = 0 }},
		{"turn too wide", func(c *Config) { c.Avoid.Turn = 120 }},
		{"ambiguous step", func(c *Config) { c.Course.Steps = []Step{{Forward: 10, Turn: 10, Direction: "left"}} }},
		{"bad direction", func(c *Config) { c.Course.Steps = []Step{{Turn: 10, Direction: "up"}} }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNarrow(t *testing.T) {
	s := Default().Scan
	n := s.Narrow(75, 115, 40, 3)
	assert.Equal(t, 75.0, n.StartAngle)
	assert.Equal(t, 115.0, n.EndAngle)
	assert.Equal(t, 40.0, n.Presence)
	assert.Equal(t, 3, n.MinRun)
	assert.Equal(t, s.Step, n.Step)

	assert.True(t, n.Present(40))
	assert.False(t, n.Present(40.1))
	assert.False(t, s.Present(s.Presence), "the full sweep threshold is exclusive")
	assert.True(t, s.Present(s.Presence-0.1))

	assert.Equal(t, s.MinRun, s.Narrow(75, 115, 40, 0).MinRun)
}
