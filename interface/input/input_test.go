package input

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usedbytes/route-bot/interface/command"
)

func TestPressQueuesCommands(t *testing.T) {
	c := newCollector()

	var urgent []byte
	c.SetUrgent(func(b byte) bool {
		if b == byte(command.Halt) {
			urgent = append(urgent, b)
			return true
		}
		return false
	})

	c.press(Cross)
	c.press(Circle)
	c.press(L2)

	assert.Equal(t, []byte{'x'}, urgent)

	b, ok := c.TryReceive()
	require.True(t, ok)
	assert.Equal(t, byte(command.Start), b)

	_, ok = c.TryReceive()
	assert.False(t, ok, "unbound buttons send nothing")
}

func TestQueueOverflow(t *testing.T) {
	c := newCollector()
	for i := 0; i < cap(c.queue)+3; i++ {
		c.press(Cross)
	}

	n := 0
	for {
		if _, ok := c.TryReceive(); !ok {
			break
		}
		n++
	}
	assert.Equal(t, cap(c.queue), n)
}
