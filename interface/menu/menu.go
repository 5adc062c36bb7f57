package menu

import (
	"fmt"
	"image/color"
	"sort"

	"github.com/usedbytes/linux-led"

	"github.com/usedbytes/route-bot/interface/command"
)

// LED is the status light the menu shows its selection on.
type LED interface {
	SetLEDColor(c color.Color)
	ResetLEDColor()
	SetLEDTrigger(trig led.Trigger)
}

type Item struct {
	name  string
	color color.Color
	pick  func()
}

// Menu is what the robot offers while idle: each item is bound to one
// command.
type Menu struct {
	led   LED
	items map[command.Command]Item
}

func NewMenu(l LED) *Menu {
	return &Menu{
		led:   l,
		items: make(map[command.Command]Item),
	}
}

func (m *Menu) AddItem(c command.Command, name string, col color.Color, pick func()) error {
	if _, ok := m.items[c]; ok {
		return fmt.Errorf("menu: %v already bound to '%s'", c, m.items[c].name)
	}

	m.items[c] = Item{name: name, color: col, pick: pick}
	return nil
}

// Pick runs the item bound to c, if any.
func (m *Menu) Pick(c command.Command) bool {
	item, ok := m.items[c]
	if !ok {
		return false
	}

	if m.led != nil {
		m.led.SetLEDTrigger(led.TriggerNone)
		m.led.SetLEDColor(item.color)
	}
	item.pick()

	return true
}

// Idle puts the light back to the idle heartbeat.
func (m *Menu) Idle() {
	if m.led == nil {
		return
	}
	m.led.ResetLEDColor()
}

// Help lists the items, one line each, in command order.
func (m *Menu) Help() []string {
	keys := make([]command.Command, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("'%c': %s", byte(k), m.items[k].name))
	}
	return lines
}
