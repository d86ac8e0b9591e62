// Package serialport implements transport.Driver over a real RS-485/UART
// port using go.bug.st/serial, the serial library also used elsewhere in
// the reference corpus (librescoot-bluetooth-service). Non-blocking
// single-octet reads are implemented with a read-pump goroutine feeding
// a small buffered channel; turnaround silence is enforced before Send,
// per spec.md §6.2.
package serialport

import (
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"github.com/sfcoop/gomstp/pkg/transport"
)

func init() {
	transport.RegisterDriver("serial", func(channel string) (transport.Driver, error) {
		return Open(channel, 38400)
	})
}

// turnaroundBitTimes is the minimum post-receive silence before
// transmitting, per §6.2: "honoring turnaround silence (≥ 40 bit times
// since last received octet)".
const turnaroundBitTimes = 40

// Port drives one OS serial device as an MS/TP RS-485 transport.
type Port struct {
	path string
	baud uint32

	port serial.Port

	mu          sync.Mutex
	lastRxAt    time.Time
	receiveErr  atomic.Bool
	transmitting atomic.Bool

	octets   chan byte
	stopPump chan struct{}

	Log *log.Entry
}

// Open opens the named serial device at the given baud rate, 8N1, with
// no flow control, and starts the background read pump.
func Open(path string, baud uint32) (*Port, error) {
	p := &Port{
		path:     path,
		octets:   make(chan byte, 256),
		stopPump: make(chan struct{}),
		Log:      log.WithField("component", "transport/serial").WithField("path", path),
	}
	if err := p.openAt(baud); err != nil {
		return nil, err
	}
	go p.pump()
	return p, nil
}

func (p *Port) openAt(baud uint32) error {
	mode := &serial.Mode{
		BaudRate: int(baud),
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(p.path, mode)
	if err != nil {
		return err
	}
	_ = port.SetReadTimeout(50 * time.Millisecond)
	p.port = port
	p.baud = baud
	return nil
}

func (p *Port) pump() {
	buf := make([]byte, 64)
	for {
		select {
		case <-p.stopPump:
			return
		default:
		}
		n, err := p.port.Read(buf)
		if err != nil {
			p.receiveErr.Store(true)
			continue
		}
		if n == 0 {
			continue
		}
		p.mu.Lock()
		p.lastRxAt = time.Now()
		p.mu.Unlock()
		for _, b := range buf[:n] {
			select {
			case p.octets <- b:
			default:
				// queue full: drop rather than block the pump, the
				// receive FSM will see a gap and time the frame out.
				if p.Log != nil {
					p.Log.Warn("octet queue full, dropping byte")
				}
			}
		}
	}
}

// Init satisfies transport.Driver; the port is already open after Open.
func (p *Port) Init() error { return nil }

// SetBaud reopens the port at a new baud rate, used by the auto-baud
// search (§4.7).
func (p *Port) SetBaud(rate uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.port != nil {
		_ = p.port.Close()
	}
	return p.openAt(rate)
}

// Baud reports the currently configured rate.
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

// Send transmits buf fully, waiting out the turnaround silence first.
func (p *Port) Send(buf []byte) bool {
	p.waitTurnaround()
	p.transmitting.Store(true)
	defer p.transmitting.Store(false)
	n, err := p.port.Write(buf)
	return err == nil && n == len(buf)
}

func (p *Port) waitTurnaround() {
	bitUs := 1_000_000.0 / float64(p.baud)
	min := time.Duration(float64(turnaroundBitTimes) * bitUs * float64(time.Microsecond))
	for {
		p.mu.Lock()
		elapsed := time.Since(p.lastRxAt)
		p.mu.Unlock()
		if elapsed >= min {
			return
		}
		time.Sleep(min - elapsed)
	}
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

// Transmitting reports whether a Send is currently in flight.
func (p *Port) Transmitting() bool { return p.transmitting.Load() }

// ReceiveErrorFlag reports and clears the sticky receive-error flag the
// read pump raises on an OS read error (framing/overrun at the UART).
func (p *Port) ReceiveErrorFlag() bool {
	return p.receiveErr.Swap(false)
}

// Close stops the read pump and closes the underlying port.
func (p *Port) Close() error {
	close(p.stopPump)
	if p.port != nil {
		return p.port.Close()
	}
	return nil
}
