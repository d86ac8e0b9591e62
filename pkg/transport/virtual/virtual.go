// Package virtual implements transport.Driver over an in-memory byte
// pipe, used by the pkg/node tests instead of real hardware (the pkg/mstp
// tests capture transmitted frames through callbacks instead). Grounded on pkg/can/virtual's "virtual bus for testing"
// role, adapted from framed CAN messages to a raw octet stream since
// MS/TP's driver contract is byte-oriented, not frame-oriented.
package virtual

import (
	"net"
	"sync"
	"time"

	"github.com/sfcoop/gomstp/pkg/transport"
)

func init() {
	transport.RegisterDriver("virtual", func(channel string) (transport.Driver, error) {
		return NewLoopback(), nil
	})
}

// Port is one end of an in-memory two-ended byte pipe.
type Port struct {
	conn net.Conn
	baud uint32

	mu           sync.Mutex
	lastRxAt     time.Time
	receiveErr   bool
	transmitting bool

	octets chan byte
	stop   chan struct{}
}

// NewPair creates two connected Ports, analogous to a null-modem cable
// between two MS/TP stations in a test.
func NewPair() (*Port, *Port) {
	c1, c2 := net.Pipe()
	return newPort(c1), newPort(c2)
}

// NewLoopback creates a single Port whose Send feeds its own Read, for
// quickly exercising a driver-shaped caller (cmd/mstpnode's demo mode)
// without a second station.
func NewLoopback() *Port {
	c1, c2 := net.Pipe()
	p := newPort(c1)
	go func() {
		buf := make([]byte, 1)
		for {
			n, err := c2.Read(buf)
			if err != nil {
				return
			}
			if n == 0 {
				continue
			}
			if _, err := c2.Write(buf[:n]); err != nil {
				return
			}
		}
	}()
	return p
}

func newPort(conn net.Conn) *Port {
	p := &Port{
		conn:   conn,
		baud:   38400,
		octets: make(chan byte, 4096),
		stop:   make(chan struct{}),
	}
	go p.pump()
	return p
}

func (p *Port) pump() {
	buf := make([]byte, 1)
	for {
		n, err := p.conn.Read(buf)
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}
		p.mu.Lock()
		p.lastRxAt = time.Now()
		p.mu.Unlock()
		select {
		case p.octets <- buf[0]:
		case <-p.stop:
			return
		}
	}
}

// Init is a no-op; the pipe is already connected.
func (p *Port) Init() error { return nil }

// SetBaud records the nominal rate that Baud reports; the in-memory pipe
// has no real bit rate.
func (p *Port) SetBaud(rate uint32) error {
	p.mu.Lock()
	p.baud = rate
	p.mu.Unlock()
	return nil
}

// Baud reports the nominal rate set by SetBaud.
func (p *Port) Baud() uint32 { return p.baud }

// Read reports one pending octet without blocking.
func (p *Port) Read() (byte, bool) {
	select {
	case b := <-p.octets:
		return b, true
	default:
		return 0, false
	}
}

// Send writes buf fully to the peer end.
func (p *Port) Send(buf []byte) bool {
	p.mu.Lock()
	p.transmitting = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.transmitting = false
		p.mu.Unlock()
	}()
	n, err := p.conn.Write(buf)
	return err == nil && n == len(buf)
}

// SilenceMs reports milliseconds since the last received octet.
func (p *Port) SilenceMs() uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastRxAt.IsZero() {
		return 0xFFFF
	}
	ms := time.Since(p.lastRxAt).Milliseconds()
	if ms > 0xFFFF {
		return 0xFFFF
	}
	return uint16(ms)
}

// SilenceReset marks the silence clock as freshly reset.
func (p *Port) SilenceReset() {
	p.mu.Lock()
	p.lastRxAt = time.Now()
	p.mu.Unlock()
}

// Transmitting reports whether a Send is in flight.
func (p *Port) Transmitting() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transmitting
}

// ReceiveErrorFlag is always false; the in-memory pipe never produces
// UART framing errors. A test wanting to exercise receive_error should
// call Port.HandleOctet(0, true) on the mstp.Port directly instead.
func (p *Port) ReceiveErrorFlag() bool { return p.receiveErr }

// Close tears down the pipe end.
func (p *Port) Close() error {
	close(p.stop)
	return p.conn.Close()
}

var _ transport.Driver = (*Port)(nil)
