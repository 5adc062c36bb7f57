package motor

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usedbytes/bot_matrix/datalink"
	"github.com/usedbytes/route-bot/base/dev"
)

type loopback struct {
	sent  []datalink.Packet
	reply []datalink.Packet
}

func (l *loopback) Transact(pkts []datalink.Packet) ([]datalink.Packet, error) {
	l.sent = append(l.sent, pkts...)
	r := l.reply
	l.reply = nil
	return r, nil
}

func report(id uint32, steps int32) datalink.Packet {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.LittleEndian, id)
	binary.Write(buf, binary.LittleEndian, steps)
	return datalink.Packet{Endpoint: EpStepReport, Data: buf.Bytes()}
}

func TestStepReports(t *testing.T) {
	l := &loopback{}
	d := dev.NewDev(l)
	m, err := NewMotors(d, 4, 100*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, m.Stopped())

	l.reply = []datalink.Packet{report(0, -300), report(1, 300)}
	pkts, err := d.Poll()
	require.NoError(t, err)
	for _, p := range pkts {
		m.AddSteps(p.(*StepReport))
	}

	a, b := m.GetRevolutions()
	assert.InDelta(t, 0.5, a, 1e-9)
	assert.InDelta(t, 0.5, b, 1e-9)

	ra, rb := m.GetRPS()
	assert.InDelta(t, 5, ra, 1e-9)
	assert.InDelta(t, 5, rb, 1e-9)
	assert.False(t, m.Stopped())

	da, db := m.Delta()
	assert.InDelta(t, 0.5, da, 1e-9)
	assert.InDelta(t, 0.5, db, 1e-9)

	da, db = m.Delta()
	assert.Zero(t, da)
	assert.Zero(t, db)

	m.AddSteps(&StepReport{Id: 0, Steps: 0})
	m.AddSteps(&StepReport{Id: 1, Steps: 0})
	assert.True(t, m.Stopped())
}

func TestSetRPSClamps(t *testing.T) {
	l := &loopback{}
	d := dev.NewDev(l)
	m, err := NewMotors(d, 4, 16*time.Millisecond)
	require.NoError(t, err)

	m.SetRPS(10, 1)
	_, err = d.Poll()
	require.NoError(t, err)

	require.Len(t, l.sent, 2)
	// Motor 0 is mirrored: -4 rps is -25 rad/s, sent as a two's complement byte
	assert.Equal(t, []byte{0, 0xe7}, l.sent[0].Data)
	assert.Equal(t, []byte{1, 6}, l.sent[1].Data)
}

func TestShortStepReport(t *testing.T) {
	got := rxStepReport(&datalink.Packet{Endpoint: EpStepReport, Data: []byte{0, 0}})
	assert.Error(t, got.(error))
}
