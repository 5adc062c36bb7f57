// Copyright 2018 Brian Starkey <stark3y@gmail.com>
package command

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
)

// Command is a single operator keystroke.
type Command byte

const (
	Start       Command = 't'
	Survey      Command = 'p'
	Mode        Command = 'm'
	Auto        Command = 'e'
	Forward     Command = 'w'
	Back        Command = 's'
	Left        Command = 'a'
	Right       Command = 'd'
	Halt        Command = 'x'
	Quit        Command = 'q'
	StopRequest Command = ' '
)

var names = map[Command]string{
	Start:       "start",
	Survey:      "survey",
	Mode:        "mode",
	Auto:        "auto",
	Forward:     "forward",
	Back:        "back",
	Left:        "left",
	Right:       "right",
	Halt:        "halt",
	Quit:        "quit",
	StopRequest: "stop-request",
}

func (c Command) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("Command(%q)", byte(c))
}

// Parse accepts either case for letters.
func Parse(b byte) (Command, bool) {
	if b >= 'A' && b <= 'Z' {
		b += 'a' - 'A'
	}
	c := Command(b)
	_, ok := names[c]
	return c, ok
}

// IsManual reports whether c is one of the direct drive commands.
func (c Command) IsManual() bool {
	switch c {
	case Forward, Back, Left, Right:
		return true
	}
	return false
}

// Source is anything that produces command bytes without blocking.
type Source interface {
	TryReceive() (byte, bool)
}

// Arbiter merges the command sources. Halt and stop requests are latched
// as soon as they arrive, from whichever goroutine delivers them; everything
// else waits for the control loop to Poll.
type Arbiter struct {
	lock    sync.Mutex
	sources []Source

	halted        atomic.Bool
	stopRequested atomic.Bool
	announce      atomic.Bool
	quit          atomic.Bool
}

func NewArbiter(sources ...Source) *Arbiter {
	return &Arbiter{sources: sources}
}

func (a *Arbiter) AddSource(s Source) {
	a.lock.Lock()
	defer a.lock.Unlock()

	a.sources = append(a.sources, s)
}

// Urgent handles the commands which must not wait for a poll. It returns
// true if b was consumed.
func (a *Arbiter) Urgent(b byte) bool {
	c, ok := Parse(b)
	if !ok {
		return false
	}

	switch c {
	case Halt:
		log.Println("command: halt")
		a.halted.Store(true)
		return true
	case Quit:
		log.Println("command: quit")
		a.quit.Store(true)
		a.halted.Store(true)
		return true
	case StopRequest:
		log.Println("command: stop requested")
		a.stopRequested.Store(true)
		a.announce.Store(true)
		return true
	}

	return false
}

// Poll returns the next ordinary command, if any source has one.
func (a *Arbiter) Poll() (Command, bool) {
	a.lock.Lock()
	sources := a.sources
	a.lock.Unlock()

	for _, s := range sources {
		for {
			b, ok := s.TryReceive()
			if !ok {
				break
			}
			if a.Urgent(b) {
				continue
			}

			c, ok := Parse(b)
			if !ok {
				log.Printf("command: ignoring %q\n", b)
				continue
			}
			return c, true
		}
	}

	return 0, false
}

func (a *Arbiter) Halted() bool {
	return a.halted.Load()
}

// ClearHalt re-arms the arbiter after a halt has been dealt with. A quit
// stays latched.
func (a *Arbiter) ClearHalt() {
	if !a.quit.Load() {
		a.halted.Store(false)
	}
}

func (a *Arbiter) QuitRequested() bool {
	return a.quit.Load()
}

// TakeStopRequest reports and clears a pending stop request.
func (a *Arbiter) TakeStopRequest() bool {
	return a.stopRequested.Swap(false)
}

func (a *Arbiter) StopRequested() bool {
	return a.stopRequested.Load()
}

// TakeStopAnnouncement reports once for each stop request, independently of
// TakeStopRequest, so that the control loop can acknowledge it straight away.
func (a *Arbiter) TakeStopAnnouncement() bool {
	return a.announce.Swap(false)
}
