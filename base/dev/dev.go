// Copyright 2018 Brian Starkey <stark3y@gmail.com>
package dev

import (
	"fmt"

	"github.com/usedbytes/bot_matrix/datalink"
)

type Component struct {
	d  *Dev
	ep uint8
}

type Receiver func(*datalink.Packet) interface{}

// Dev multiplexes board endpoints over one datalink transactor. Packets are
// batched with Queue and exchanged on Poll.
type Dev struct {
	transactor datalink.Transactor
	cmps       map[uint8]Receiver
	toSend     []datalink.Packet
	minNum     int
	allocNum   int
}

func (d *Dev) receive(p *datalink.Packet) interface{} {
	if p.Endpoint == 0 {
		return nil
	}

	r, ok := d.cmps[p.Endpoint]
	if !ok {
		return fmt.Errorf("received unknown datalink packet (EP %d)", p.Endpoint)
	}

	return r(p)
}

func (d *Dev) Add(ep uint8, r Receiver) (Component, error) {
	if _, ok := d.cmps[ep]; ok {
		return Component{}, fmt.Errorf("duplicate endpoint '%d'", ep)
	}

	d.cmps[ep] = r

	return Component{d, ep}, nil
}

func (d *Dev) remove(ep uint8) error {
	if _, ok := d.cmps[ep]; !ok {
		return fmt.Errorf("no endpoint '%d'", ep)
	}

	delete(d.cmps, ep)

	return nil
}

func (c Component) Remove() error {
	return c.d.remove(c.ep)
}

func (d *Dev) Queue(p *datalink.Packet) {
	d.toSend = append(d.toSend, *p)
}

// Poll sends everything queued and returns whatever the receivers made of
// the reply packets. Unknown endpoints come back as errors in the slice.
func (d *Dev) Poll() ([]interface{}, error) {
	// TODO: adjust minNum from the actual utilisation, so that the board
	// gets enough slots back for its reports
	toSend := d.toSend
	if len(toSend) > 0 {
		d.toSend = make([]datalink.Packet, 0, d.allocNum)

		if len(toSend) < d.minNum {
			toSend = append(toSend, make([]datalink.Packet, d.minNum-len(toSend))...)
		}
	}

	pkts, err := d.transactor.Transact(toSend)
	if err != nil {
		return nil, err
	}

	ret := make([]interface{}, 0, len(pkts))
	for i := range pkts {
		ret = append(ret, d.receive(&pkts[i]))
	}

	return ret, nil
}

func NewDev(transactor datalink.Transactor) *Dev {
	allocNum := 4
	return &Dev{
		transactor: transactor,
		cmps:       make(map[uint8]Receiver),
		toSend:     make([]datalink.Packet, 0, allocNum),
		allocNum:   allocNum,
	}
}
