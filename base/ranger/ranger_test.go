package ranger

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usedbytes/bot_matrix/datalink"
	"github.com/usedbytes/route-bot/base/dev"
	"github.com/usedbytes/route-bot/config"
)

func TestElapsed(t *testing.T) {
	const max = 0xFFFFFF

	// Plain countdown
	assert.Equal(t, uint32(400), Elapsed(1000, 600, max))
	assert.Equal(t, uint32(0), Elapsed(600, 600, max))

	// Wrapped through zero between the captures
	assert.Equal(t, uint32(100+(max-0xFFFF00)), Elapsed(100, 0xFFFF00, max))
}

func TestEchoCentimetres(t *testing.T) {
	cfg := config.Default().Ranger
	e := Echo{CounterMax: cfg.CounterMax, ClockHz: cfg.ClockHz, SoundCmPerSec: cfg.SoundCmPerSec}

	// 1 ms round trip is 17 cm
	assert.InDelta(t, 17.0, e.Centimetres(20000, 4000), 1e-9)
	assert.InDelta(t, 17.0, e.Centimetres(8000, cfg.CounterMax-8000), 1e-9)
}

func TestIRCentimetres(t *testing.T) {
	ir := IR{Coefficient: 51792, Exponent: -1.149}

	assert.InDelta(t, 51792*math.Pow(500, -1.149), ir.Centimetres(500), 1e-9)
	assert.Greater(t, ir.Centimetres(200), ir.Centimetres(600), "closer reads higher")
	assert.True(t, math.IsInf(ir.Centimetres(0), 1))
}

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

func le(v interface{}) []byte {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.LittleEndian, v)
	return buf.Bytes()
}

func TestReports(t *testing.T) {
	l := &loopback{}
	d := dev.NewDev(l)
	r, err := NewRanger(d, config.Default().Ranger)
	require.NoError(t, err)

	r.Trigger()
	r.RequestSample()
	l.reply = []datalink.Packet{
		{Endpoint: EpEdgeReport, Data: le(uint32(20000))},
		{Endpoint: EpSampleReport, Data: le(uint16(321))},
	}
	_, err = d.Poll()
	require.NoError(t, err)
	_, ok := r.Echoes.Take()
	assert.False(t, ok, "only the rising edge so far")

	l.reply = []datalink.Packet{
		{Endpoint: EpEdgeReport, Data: le(uint32(4000))},
	}
	_, err = d.Poll()
	require.NoError(t, err)

	require.Len(t, l.sent, 2)
	assert.Equal(t, uint8(epTriggerRequest), l.sent[0].Endpoint)
	assert.Equal(t, uint8(epSampleRequest), l.sent[1].Endpoint)

	c, ok := r.Echoes.Take()
	require.True(t, ok)
	assert.Equal(t, Capture{Start: 20000, End: 4000}, c)
	assert.InDelta(t, 17.0, c.Centimetres(r.Echo), 1e-9)

	raw, ok := r.Samples.Take()
	require.True(t, ok)
	assert.Equal(t, uint16(321), raw)

	// A stale capture does not survive a new trigger
	r.Echoes.Put(Capture{Start: 5})
	r.Trigger()
	_, ok = r.Echoes.Take()
	assert.False(t, ok)
}

func TestShortReport(t *testing.T) {
	r, err := NewRanger(dev.NewDev(&loopback{}), config.Default().Ranger)
	require.NoError(t, err)

	got := r.Receive(&datalink.Packet{Endpoint: EpEdgeReport, Data: []byte{1}})
	assert.Error(t, got.(error))
}
