package tsm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sfcoop/gomstp/pkg/apdu"
)

func TestSubmitAllocatesDistinctInvokeIDs(t *testing.T) {
	m := New(100, 2)
	var sent []byte
	m.Retransmit = func(invokeID, dest byte, buf []byte) { sent = append(sent, invokeID) }

	id1, err := m.Submit(5, []byte{0x01})
	assert.NoError(t, err)
	id2, err := m.Submit(5, []byte{0x02})
	assert.NoError(t, err)

	assert.NotEqual(t, id1, id2)
	assert.NotEqual(t, byte(0), id1)
	assert.Equal(t, []byte{id1, id2}, sent)
}

func TestAckFreesAndSucceeds(t *testing.T) {
	m := New(100, 2)
	id, _ := m.Submit(5, []byte{0xAB})

	assert.False(t, m.InvokeIDFree(id))
	ok := m.HandleSimpleACK(id)
	assert.True(t, ok)
	assert.True(t, m.InvokeIDFree(id))
	assert.False(t, m.InvokeIDFailed(id))

	result, _, _, _, found := m.Result(id)
	assert.True(t, found)
	assert.Equal(t, ResultAck, result)

	m.Release(id)
	assert.Equal(t, 0, m.Outstanding())
}

func TestUnmatchedAckIsDiscarded(t *testing.T) {
	m := New(100, 2)
	ok := m.HandleSimpleACK(42)
	assert.False(t, ok)
}

// Scenario 6 (§8): a confirmed request with no ack within its deadline
// times out after retries are exhausted and calls back with
// AbortTsmTimeout, freeing the invoke-id.
func TestTimeoutExhaustsRetriesAndAborts(t *testing.T) {
	m := New(100, 1)
	retransmits := 0
	m.Retransmit = func(byte, byte, []byte) { retransmits++ }

	id, err := m.Submit(5, []byte{0x01, 0x02, 0x03})
	assert.NoError(t, err)
	assert.Equal(t, 1, retransmits)

	m.Tick(101) // first retry
	assert.Equal(t, 2, retransmits)
	assert.False(t, m.InvokeIDFree(id))

	m.Tick(101) // retries exhausted -> timeout
	assert.True(t, m.InvokeIDFree(id))
	assert.True(t, m.InvokeIDFailed(id))

	result, _, _, abortVal, found := m.Result(id)
	assert.True(t, found)
	assert.Equal(t, ResultTimeout, result)
	assert.Equal(t, apdu.AbortTsmTimeout, abortVal.Reason)
}

func TestTableFullRejectsSubmit(t *testing.T) {
	m := New(1000, 0)
	m.Retransmit = func(byte, byte, []byte) {}
	for i := 0; i < MaxTSM; i++ {
		_, err := m.Submit(1, []byte{0x00})
		assert.NoError(t, err)
	}
	_, err := m.Submit(1, []byte{0x00})
	assert.ErrorIs(t, err, ErrTableFull)
}

func TestRejectAndErrorRecordValue(t *testing.T) {
	m := New(100, 0)
	m.Retransmit = func(byte, byte, []byte) {}

	id, _ := m.Submit(1, []byte{0x00})
	ok := m.HandleReject(id, apdu.Reject{Reason: apdu.RejectUnrecognizedService})
	assert.True(t, ok)

	result, _, rejectVal, _, found := m.Result(id)
	assert.True(t, found)
	assert.Equal(t, ResultReject, result)
	assert.Equal(t, apdu.RejectUnrecognizedService, rejectVal.Reason)
}
