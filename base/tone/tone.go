// Copyright 2018 Brian Starkey <stark3y@gmail.com>
package tone

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"gitlab.com/gomidi/midi/mid"
	"gitlab.com/gomidi/midi/smf"

	"github.com/usedbytes/bot_matrix/datalink"
)

const (
	epNote    = 3
	epControl = 4
)

type Note struct {
	Key      uint8
	Start    time.Duration
	Duration time.Duration
}

// Tune is a single melody line, already converted to wall time.
type Tune struct {
	Notes []Note
}

func (t *Tune) Length() time.Duration {
	if len(t.Notes) == 0 {
		return 0
	}
	last := t.Notes[len(t.Notes)-1]
	return last.Start + last.Duration
}

// Chime is played when no tune file is configured.
func Chime() *Tune {
	return &Tune{
		Notes: []Note{
			{Key: 76, Start: 0, Duration: 150 * time.Millisecond},
			{Key: 72, Start: 150 * time.Millisecond, Duration: 300 * time.Millisecond},
		},
	}
}

type note struct {
	key      uint8
	start    uint64
	duration uint64
}

// LoadTune reads one channel of a standard MIDI file. Overlapping notes are
// cut short, the buzzer can only play one at a time.
func LoadTune(filename string, channel uint8) (*Tune, error) {
	var (
		metricTicks smf.MetricTicks
		bpm         = 120.0
		notes       []note
		current     *note
		haveHeader  bool
	)

	rd := mid.NewReader()

	rd.SMFHeader = func(hdr smf.Header) {
		if mt, ok := hdr.TimeFormat.(smf.MetricTicks); ok {
			metricTicks = mt
			haveHeader = true
		}
	}
	rd.Msg.Meta.TempoBPM = func(p mid.Position, tempo float64) {
		bpm = tempo
	}
	rd.Msg.Channel.NoteOn = func(p *mid.Position, ch, key, vel uint8) {
		if ch != channel {
			return
		}
		if current != nil {
			current.duration = p.AbsoluteTicks - current.start
			if current.duration != 0 {
				notes = append(notes, *current)
			}
		}
		current = &note{key: key, start: p.AbsoluteTicks}
	}
	rd.Msg.Channel.NoteOff = func(p *mid.Position, ch, key, vel uint8) {
		if ch != channel || current == nil || key != current.key {
			return
		}
		current.duration = p.AbsoluteTicks - current.start
		notes = append(notes, *current)
		current = nil
	}

	if err := rd.ReadSMFFile(filename); err != nil {
		return nil, fmt.Errorf("tune %s: %w", filename, err)
	}
	if !haveHeader {
		return nil, fmt.Errorf("tune %s: no metric time format", filename)
	}
	if len(notes) == 0 {
		return nil, fmt.Errorf("tune %s: no notes on channel %d", filename, channel)
	}

	t := &Tune{Notes: make([]Note, 0, len(notes))}
	origin := notes[0].start
	for _, n := range notes {
		t.Notes = append(t.Notes, Note{
			Key:      n.key,
			Start:    metricTicks.FractionalDuration(bpm, uint32(n.start-origin)),
			Duration: metricTicks.FractionalDuration(bpm, uint32(n.duration)),
		})
	}

	return t, nil
}

// Queuer is where packets for the board go, normally a *dev.Dev.
type Queuer interface {
	Queue(p *datalink.Packet)
}

// Player hands whole tunes to the board, which does the timing.
type Player struct {
	q      Queuer
	output uint32
}

func NewPlayer(q Queuer, output int) *Player {
	return &Player{q: q, output: uint32(output)}
}

func (p *Player) control(play, reset uint32) {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, play)
	binary.Write(buf, binary.LittleEndian, reset)

	p.q.Queue(&datalink.Packet{Endpoint: epControl, Data: buf.Bytes()})
}

func (p *Player) emit(n Note) {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, p.output)
	binary.Write(buf, binary.LittleEndian, uint32(n.Start.Microseconds()))
	binary.Write(buf, binary.LittleEndian, uint32(n.Key))
	binary.Write(buf, binary.LittleEndian, uint32(n.Duration.Microseconds()))

	p.q.Queue(&datalink.Packet{Endpoint: epNote, Data: buf.Bytes()})
}

// Play resets the board's sequencer, loads t and starts it.
func (p *Player) Play(t *Tune) {
	p.control(0, 1)
	for _, n := range t.Notes {
		p.emit(n)
	}
	p.control(1, 0)
}

func (p *Player) Stop() {
	p.control(0, 0)
}
