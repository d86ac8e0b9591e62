package node

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sfcoop/gomstp/pkg/mstp"
	"github.com/sfcoop/gomstp/pkg/transport/virtual"
	"github.com/sfcoop/gomstp/pkg/tsm"
)

// TestControllerDrivesReceiveAndRingFSM exercises the full tick loop: a
// peer frame written to one end of an in-memory pipe must reach the
// master FSM, through the driver's read pump and the Controller's
// scheduler goroutine, with no direct calls into mstp from the test.
func TestControllerDrivesReceiveAndRingFSM(t *testing.T) {
	self, peer := virtual.NewPair()
	defer self.Close()
	defer peer.Close()

	port := mstp.NewPort(1, mstp.DefaultTunables, 64)
	port.SilenceMs = self.SilenceMs
	port.SilenceReset = self.SilenceReset

	master := mstp.NewMaster(port)
	master.Transmit = self.Send

	ctrl := New(self, port, master, nil)
	ctrl.SetResolution(time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctrl.Start(ctx)

	buf := make([]byte, 16)
	n, err := mstp.Encode(buf, mstp.Frame{Type: mstp.FrameTypeToken, Destination: 1, Source: 2})
	assert.NoError(t, err)
	assert.True(t, peer.Send(buf[:n]))

	deadline := time.Now().Add(time.Second)
	for master.State() != mstp.MasterUseToken && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, mstp.MasterUseToken, master.State())

	ctrl.Stop()
	ctrl.Wait()
}

// TestControllerSweepsTSMTimeouts confirms the scheduler's third step —
// the TSM timeout sweep — actually runs every tick, by submitting a
// confirmed request with a deadline shorter than the test's wait budget
// and observing it conclude with ResultTimeout without any retry budget.
func TestControllerSweepsTSMTimeouts(t *testing.T) {
	driver := virtual.NewLoopback()
	defer driver.Close()

	port := mstp.NewPort(1, mstp.DefaultTunables, 64)
	port.SilenceMs = driver.SilenceMs
	port.SilenceReset = driver.SilenceReset

	transactions := tsm.New(5, 0)
	transactions.Retransmit = func(invokeID, destination byte, apduBytes []byte) {}

	ctrl := New(driver, port, nil, transactions)
	ctrl.SetResolution(time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctrl.Start(ctx)

	id, err := transactions.Submit(9, []byte{0x01})
	assert.NoError(t, err)

	deadline := time.Now().Add(time.Second)
	for !transactions.InvokeIDFree(id) && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.True(t, transactions.InvokeIDFree(id))
	assert.True(t, transactions.InvokeIDFailed(id))

	ctrl.Stop()
	ctrl.Wait()
}
