package mstp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestMaster(station byte) (*Master, *[]byte) {
	p := NewPort(station, DefaultTunables, 64)
	var lastTx []byte
	m := NewMaster(p)
	m.Transmit = func(buf []byte) bool {
		cp := make([]byte, len(buf))
		copy(cp, buf)
		lastTx = cp
		return true
	}
	return m, &lastTx
}

func TestMasterTokenHandoff(t *testing.T) {
	m, lastTx := newTestMaster(0)
	m.Tick(0) // Initialize -> Idle
	assert.Equal(t, MasterIdle, m.State())

	m.nextStation = 1
	m.TokenCount = 0
	m.FrameCount = m.Port.Tunables.NmaxInfoFrames
	m.enter(MasterDoneWithToken)
	m.Tick(1)

	assert.Equal(t, MasterPassToken, m.State())
	decoded, err := Decode(*lastTx)
	assert.NoError(t, err)
	assert.Equal(t, FrameTypeToken, decoded.Type)
	assert.Equal(t, byte(1), decoded.Destination)
	assert.Equal(t, byte(0), decoded.Source)

	// successor becomes active before t_usage_timeout elapses
	m.Port.EventCount = m.stateEventBase + m.Port.Tunables.NminOctets + 1
	m.Tick(1)
	assert.Equal(t, MasterIdle, m.State())
}

func TestMasterPassTokenRetryOnSilence(t *testing.T) {
	m, lastTx := newTestMaster(0)
	m.Tick(0)
	m.nextStation = 1
	m.enter(MasterPassToken)

	m.Tick(m.Port.Tunables.TUsageTimeout + 1)

	assert.Equal(t, MasterPassToken, m.State())
	assert.Equal(t, 1, m.RetryCount)
	decoded, err := Decode(*lastTx)
	assert.NoError(t, err)
	assert.Equal(t, FrameTypeToken, decoded.Type)
}

func TestMasterLostTokenRegeneratesWithPollForMaster(t *testing.T) {
	m, lastTx := newTestMaster(2)
	m.Tick(0)
	assert.Equal(t, MasterIdle, m.State())

	base := m.Port.Tunables.TNoToken + m.Port.Tunables.TSlot*int(m.Port.ThisStation)
	m.Tick(base + 1)
	assert.Equal(t, MasterNoToken, m.State())

	slot := m.Port.Tunables.TSlot
	lower := base + slot
	m.Tick(lower)

	assert.Equal(t, MasterPollForMaster, m.State())
	decoded, err := Decode(*lastTx)
	assert.NoError(t, err)
	assert.Equal(t, FrameTypePollForMaster, decoded.Type)
	assert.Equal(t, byte(3), decoded.Destination)
}

func TestMasterSoleMasterStaysUseTokenInsteadOfSelfAddressedToken(t *testing.T) {
	m, lastTx := newTestMaster(5)
	m.Tick(0)
	m.SoleMaster = true
	m.nextStation = m.Port.ThisStation // no known successor
	m.TokenCount = 0
	m.FrameCount = m.Port.Tunables.NmaxInfoFrames
	*lastTx = nil
	m.enter(MasterDoneWithToken)

	m.Tick(1)

	assert.Equal(t, MasterUseToken, m.State())
	assert.Equal(t, 0, m.FrameCount)
	assert.Equal(t, 1, m.TokenCount)
	assert.Nil(t, *lastTx, "sole master must not transmit a token addressed to itself")
}

func TestMasterMaintenanceCycleCompleteResumesPassToken(t *testing.T) {
	m, lastTx := newTestMaster(0)
	m.Tick(0)
	m.nextStation = 3
	m.pollStation = 2 // next probe (3) closes the cycle back to nextStation
	m.TokenCount = m.Port.Tunables.Npoll - 1
	m.FrameCount = m.Port.Tunables.NmaxInfoFrames
	m.enter(MasterDoneWithToken)

	m.Tick(1)

	assert.Equal(t, MasterPassToken, m.State())
	assert.Equal(t, 1, m.TokenCount)
	assert.Equal(t, byte(0), m.pollStation)
	decoded, err := Decode(*lastTx)
	assert.NoError(t, err)
	assert.Equal(t, FrameTypeToken, decoded.Type)
	assert.Equal(t, byte(3), decoded.Destination)
}

func TestMasterMaintenanceCycleCompleteSoleMasterRestarts(t *testing.T) {
	m, lastTx := newTestMaster(0)
	m.Tick(0)
	m.SoleMaster = true
	m.nextStation = 3
	m.pollStation = 2 // next probe (3) closes the cycle back to nextStation
	m.TokenCount = m.Port.Tunables.Npoll - 1
	m.FrameCount = m.Port.Tunables.NmaxInfoFrames
	m.enter(MasterDoneWithToken)

	m.Tick(1)

	assert.Equal(t, MasterPollForMaster, m.State())
	assert.Equal(t, 1, m.TokenCount)
	assert.Equal(t, byte(0), m.nextStation)
	assert.Equal(t, byte(4), m.pollStation)
	decoded, err := Decode(*lastTx)
	assert.NoError(t, err)
	assert.Equal(t, FrameTypePollForMaster, decoded.Type)
	assert.Equal(t, byte(4), decoded.Destination)
}

func TestMasterMaintenanceCycleContinuesWhenNotComplete(t *testing.T) {
	m, lastTx := newTestMaster(0)
	m.Tick(0)
	m.nextStation = 5
	m.pollStation = 1 // next probe (2) does not close the cycle
	m.TokenCount = m.Port.Tunables.Npoll - 1
	m.FrameCount = m.Port.Tunables.NmaxInfoFrames
	m.enter(MasterDoneWithToken)

	m.Tick(1)

	assert.Equal(t, MasterPollForMaster, m.State())
	assert.Equal(t, m.Port.Tunables.Npoll-1, m.TokenCount)
	assert.Equal(t, byte(2), m.pollStation)
	decoded, err := Decode(*lastTx)
	assert.NoError(t, err)
	assert.Equal(t, FrameTypePollForMaster, decoded.Type)
	assert.Equal(t, byte(2), decoded.Destination)
}

func TestMasterDuplicateNodeDefenseResetsStation(t *testing.T) {
	m, _ := newTestMaster(5)
	m.Tick(0)
	m.Port.dest = 5
	m.Port.src = 5
	m.Port.Events.ValidFrameForUs = true

	m.Tick(1)

	assert.Equal(t, MasterInitialize, m.State())
	assert.Equal(t, Unbound, m.Port.ThisStation)
}
