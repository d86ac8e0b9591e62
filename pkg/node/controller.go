// Package node wires a transport.Driver, an mstp.Port, a master- or
// slave-node FSM, and the transaction state manager into the single
// logical scheduler spec.md §5 mandates: one goroutine ticking at the
// configured clock resolution, calling in order the receive-FSM drain,
// the ring/responder FSM tick, and the TSM timeout sweep.
//
// Grounded line-for-line on pkg/node/controller.go's goroutine/ticker/
// context.CancelFunc pattern: one ticker drives background+main
// processing there; here it drives the datalink tick, collapsed to a
// single ticker because §5 mandates one logical scheduler rather than
// the teacher's separate SYNC/PDO and NMT tickers.
package node

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sfcoop/gomstp/pkg/mstp"
	"github.com/sfcoop/gomstp/pkg/transport"
	"github.com/sfcoop/gomstp/pkg/tsm"
)

// DefaultResolution is the scheduler's tick period. §5 requires a
// resolution ≤ 5ms; 2ms leaves headroom for bit-time-scale timing on a
// 9600baud link.
const DefaultResolution = 2 * time.Millisecond

// RingFSM is the subset of *mstp.Master and *mstp.Slave the Controller
// drives every tick.
type RingFSM interface {
	Tick(deltaMs int)
}

// Controller runs the scheduler loop for one station.
type Controller struct {
	driver transport.Driver
	port   *mstp.Port
	fsm    RingFSM
	tsm    *tsm.Manager

	resolution time.Duration
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	Log *log.Entry
}

// New creates a Controller over the given driver, port, and ring FSM
// (an *mstp.Master or *mstp.Slave). tsmMgr may be nil if the caller does
// not need confirmed-request tracking above the datalink.
func New(driver transport.Driver, port *mstp.Port, fsm RingFSM, tsmMgr *tsm.Manager) *Controller {
	return &Controller{
		driver:     driver,
		port:       port,
		fsm:        fsm,
		tsm:        tsmMgr,
		resolution: DefaultResolution,
		Log:        log.WithField("component", "node"),
	}
}

// SetResolution overrides the tick period; must be ≤ 5ms per §5.
func (c *Controller) SetResolution(d time.Duration) {
	if d > 5*time.Millisecond {
		d = 5 * time.Millisecond
	}
	c.resolution = d
}

// Start runs the scheduler loop in a background goroutine until the
// context is cancelled or Stop is called.
func (c *Controller) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
}

func (c *Controller) run(ctx context.Context) {
	ticker := time.NewTicker(c.resolution)
	defer ticker.Stop()
	deltaMs := int(c.resolution.Milliseconds())
	if deltaMs < 1 {
		deltaMs = 1
	}

	if c.Log != nil {
		c.Log.Info("scheduler started")
	}
	for {
		select {
		case <-ctx.Done():
			if c.Log != nil {
				c.Log.Info("scheduler stopped")
			}
			return
		case <-ticker.C:
			c.tick(deltaMs)
		}
	}
}

// tick runs one scheduler pass: drain the receive FSM while octets are
// available, tick the port's mid-frame timeout check, tick the ring FSM,
// and sweep the TSM for expired deadlines — in that order, per §5.
func (c *Controller) tick(deltaMs int) {
	for {
		octet, available := c.driver.Read()
		if !available {
			break
		}
		c.port.HandleOctet(octet, c.driver.ReceiveErrorFlag())
	}
	c.port.Tick()
	if c.fsm != nil {
		c.fsm.Tick(deltaMs)
	}
	if c.tsm != nil {
		c.tsm.Tick(deltaMs)
	}
}

// Stop cancels the scheduler loop; Wait blocks until it has exited.
func (c *Controller) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// Wait blocks until the scheduler goroutine has exited.
func (c *Controller) Wait() {
	c.wg.Wait()
}
