package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/usedbytes/route-bot/base/dev"
	"github.com/usedbytes/route-bot/config"
)

// Port is the part of serial.Port the link needs.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

const readTimeout = 100 * time.Millisecond

// Mode validates cfg and converts it for go.bug.st/serial, filling in 8N1
// for anything unset.
func Mode(cfg config.Link) (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
	}
	if mode.BaudRate <= 0 {
		mode.BaudRate = 115200
	}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}
	if mode.DataBits < 5 || mode.DataBits > 8 {
		return nil, fmt.Errorf("invalid data bits %d: must be between 5 and 8", mode.DataBits)
	}

	switch cfg.StopBits {
	case 0, 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", cfg.StopBits)
	}

	switch strings.TrimSpace(strings.ToUpper(cfg.Parity)) {
	case "", "N", "NONE":
		mode.Parity = serial.NoParity
	case "E", "EVEN":
		mode.Parity = serial.EvenParity
	case "O", "ODD":
		mode.Parity = serial.OddParity
	default:
		return nil, fmt.Errorf("unsupported parity %q: expected N, E, or O", cfg.Parity)
	}

	return mode, nil
}

// Link is the operator's serial console. Received bytes are offered to the
// urgent handler first, then latched one at a time for TryReceive.
type Link struct {
	port Port
	rx   *dev.Cell[byte]

	lock   sync.Mutex
	urgent func(byte) bool

	wlock sync.Mutex
	wg    sync.WaitGroup
}

func Open(cfg config.Link) (*Link, error) {
	mode, err := Mode(cfg)
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}

	return New(port), nil
}

func New(port Port) *Link {
	return &Link{
		port: port,
		rx:   dev.NewCell[byte](),
	}
}

func (l *Link) SetUrgent(fn func(byte) bool) {
	l.lock.Lock()
	defer l.lock.Unlock()

	l.urgent = fn
}

func (l *Link) deliver(b byte) {
	l.lock.Lock()
	urgent := l.urgent
	l.lock.Unlock()

	if urgent != nil && urgent(b) {
		return
	}
	l.rx.Put(b)
}

// Start runs the receiver until ctx is done or the port fails.
func (l *Link) Start(ctx context.Context) error {
	if err := l.port.SetReadTimeout(readTimeout); err != nil {
		return err
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		buf := make([]byte, 64)
		for ctx.Err() == nil {
			n, err := l.port.Read(buf)
			for _, b := range buf[:n] {
				l.deliver(b)
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					log.Println("link:", err)
				}
				return
			}
		}
	}()

	return nil
}

func (l *Link) TryReceive() (byte, bool) {
	return l.rx.Take()
}

// SendLine writes text followed by CRLF, and mirrors it to the log.
func (l *Link) SendLine(text string) error {
	log.Println(">", text)

	l.wlock.Lock()
	defer l.wlock.Unlock()

	_, err := io.WriteString(l.port, text+"\r\n")
	return err
}

func (l *Link) Close() error {
	err := l.port.Close()
	l.wg.Wait()
	return err
}
