// Package tsm implements the confirmed-request transaction state
// manager of spec.md §4.8: invoke-id allocation, retries, and timeouts
// for outstanding confirmed requests. It sits above the datalink and
// never touches MS/TP internals directly, so it works unmodified above
// a second front end (e.g. a future BACnet/IP datalink), per §1.
//
// Grounded on pkg/sdo/client.go's retry/timeout bookkeeping
// (timeoutTimer/timeoutTimeUs incremented by caller-supplied deltas)
// generalized from one outstanding SDO transfer to a table of MAX_TSM
// entries with skip-zero invoke-id wraparound allocation. The retained
// request APDU reuses internal/fifo.Fifo, the same ring buffer the
// teacher's SDO client uses to stash bytes that might need retransmission.
package tsm

import (
	log "github.com/sirupsen/logrus"

	"github.com/sfcoop/gomstp/internal/fifo"
	"github.com/sfcoop/gomstp/pkg/apdu"
)

// MaxTSM bounds the number of outstanding confirmed requests, per §3.
// "MAX_TSM ≤ 255" — 255 is itself the largest legal value since invoke
// ids range over 1..255.
const MaxTSM = 255

// State is a TSM entry's lifecycle state, §3.
type State int

const (
	StateIdle State = iota
	StateAwaitConfirmation
	StateSegmentedRequest
	StateAwaitResponseSegment
)

// Result is reported to the caller once a transaction concludes.
type Result int

const (
	ResultPending Result = iota
	ResultAck
	ResultError
	ResultReject
	ResultAbort
	ResultTimeout
)

// entry is one outstanding confirmed request.
type entry struct {
	invokeID        byte
	destination     byte
	state           State
	retriesRemaining int
	deadlineMs       int
	retained         *fifo.Fifo

	result     Result
	errVal     apdu.Error
	rejectVal  apdu.Reject
	abortVal   apdu.Abort
}

// Manager allocates invoke-ids and tracks outstanding confirmed
// requests. The zero value is not usable; use New.
type Manager struct {
	entries map[byte]*entry
	nextID  byte
	clockMs int

	retransmitTimeoutMs int
	retries             int

	// Retransmit hands a retained request back to the caller for
	// resending on the datalink; invoked on retry and for the initial
	// send via Submit.
	Retransmit func(invokeID, destination byte, apduBytes []byte)

	Log *log.Entry
}

// New creates a Manager. retransmitTimeoutMs and retries are the
// per-transaction defaults Submit uses unless overridden.
func New(retransmitTimeoutMs, retries int) *Manager {
	return &Manager{
		entries:             make(map[byte]*entry),
		nextID:              1,
		retransmitTimeoutMs: retransmitTimeoutMs,
		retries:             retries,
		Log:                 log.WithField("component", "tsm"),
	}
}

// ErrTableFull is returned by Submit when MaxTSM entries are already
// outstanding.
var ErrTableFull = errFullTable{}

type errFullTable struct{}

func (errFullTable) Error() string { return "tsm: transaction table full" }

// allocateID returns the next invoke-id distinct from every id currently
// in use, advancing a monotonic 8-bit counter that skips zero and wraps,
// per §4.8 and the testable invariant in §8.
func (m *Manager) allocateID() (byte, error) {
	if len(m.entries) >= MaxTSM {
		return 0, ErrTableFull
	}
	for i := 0; i < 256; i++ {
		id := m.nextID
		m.nextID++
		if m.nextID == 0 {
			m.nextID = 1
		}
		if id == 0 {
			continue
		}
		if _, busy := m.entries[id]; !busy {
			return id, nil
		}
	}
	return 0, ErrTableFull
}

// Submit retains requestAPDU and allocates a fresh invoke-id for a
// confirmed request to destination. The caller is responsible for
// actually transmitting it; Submit immediately invokes Retransmit once
// to do so.
func (m *Manager) Submit(destination byte, requestAPDU []byte) (byte, error) {
	id, err := m.allocateID()
	if err != nil {
		return 0, err
	}
	f := fifo.New(len(requestAPDU) + 1)
	f.Write(requestAPDU)
	e := &entry{
		invokeID:         id,
		destination:      destination,
		state:            StateAwaitConfirmation,
		retriesRemaining: m.retries,
		deadlineMs:       m.clockMs + m.retransmitTimeoutMs,
		retained:         f,
	}
	m.entries[id] = e
	if m.Retransmit != nil {
		m.Retransmit(id, destination, requestAPDU)
	}
	return id, nil
}

// Tick advances the deadline clock by deltaMs. Any entry whose deadline
// has expired is retransmitted (if retries remain) or marked
// ResultTimeout and freed (an AbortTsmTimeout, per §6 scenario 6).
func (m *Manager) Tick(deltaMs int) {
	m.clockMs += deltaMs
	for id, e := range m.entries {
		if e.state != StateAwaitConfirmation && e.state != StateAwaitResponseSegment {
			continue
		}
		if m.clockMs < e.deadlineMs {
			continue
		}
		if e.retriesRemaining > 0 {
			e.retriesRemaining--
			e.deadlineMs = m.clockMs + m.retransmitTimeoutMs
			if m.Retransmit != nil {
				retained := e.retained.Bytes()
				e.retained.Write(retained)
				m.Retransmit(id, e.destination, retained)
			}
			continue
		}
		e.state = StateIdle
		e.result = ResultTimeout
		e.abortVal = apdu.Abort{Reason: apdu.AbortTsmTimeout}
		if m.Log != nil {
			m.Log.WithField("invoke_id", id).Warn("confirmed request timed out")
		}
	}
}

// HandleSimpleACK demultiplexes an inbound Simple-ACK to its entry, per
// §4.8's "inbound ack/error/reject/abort carrying an invoke-id is
// matched to an entry". Unmatched invoke-ids are discarded, per §7.
func (m *Manager) HandleSimpleACK(invokeID byte) bool {
	return m.conclude(invokeID, ResultAck, func(*entry) {})
}

// HandleComplexACK demultiplexes an inbound Complex-ACK.
func (m *Manager) HandleComplexACK(invokeID byte) bool {
	return m.conclude(invokeID, ResultAck, func(*entry) {})
}

// HandleError demultiplexes an inbound Error-PDU.
func (m *Manager) HandleError(invokeID byte, errVal apdu.Error) bool {
	return m.conclude(invokeID, ResultError, func(e *entry) { e.errVal = errVal })
}

// HandleReject demultiplexes an inbound Reject-PDU.
func (m *Manager) HandleReject(invokeID byte, reject apdu.Reject) bool {
	return m.conclude(invokeID, ResultReject, func(e *entry) { e.rejectVal = reject })
}

// HandleAbort demultiplexes an inbound Abort-PDU.
func (m *Manager) HandleAbort(invokeID byte, abort apdu.Abort) bool {
	return m.conclude(invokeID, ResultAbort, func(e *entry) { e.abortVal = abort })
}

func (m *Manager) conclude(invokeID byte, result Result, set func(*entry)) bool {
	e, ok := m.entries[invokeID]
	if !ok || e.state == StateIdle {
		return false
	}
	set(e)
	e.state = StateIdle
	e.result = result
	return true
}

// InvokeIDFree reports whether invokeID is not tracked at all, or is
// tracked but has concluded (ack, error, reject, abort, or timeout) and
// is merely awaiting Release. The upper layer polls this the way it
// polls a completion flag.
func (m *Manager) InvokeIDFree(invokeID byte) bool {
	e, busy := m.entries[invokeID]
	return !busy || e.state == StateIdle
}

// InvokeIDFailed reports whether invokeID's transaction concluded with a
// timeout, error, reject, or abort rather than an ack. Only meaningful
// once InvokeIDFree reports true for a previously-submitted id.
func (m *Manager) InvokeIDFailed(invokeID byte) bool {
	e, ok := m.entries[invokeID]
	if !ok || e.state != StateIdle {
		return false
	}
	return e.result != ResultAck
}

// Result reports the terminal Result for a concluded invoke-id, along
// with the Error/Reject/Abort value that accompanies ResultError,
// ResultReject, ResultAbort, or ResultTimeout. ok is false if the id is
// unknown or still in flight.
func (m *Manager) Result(invokeID byte) (result Result, errVal apdu.Error, rejectVal apdu.Reject, abortVal apdu.Abort, ok bool) {
	e, present := m.entries[invokeID]
	if !present || e.state != StateIdle {
		return ResultPending, apdu.Error{}, apdu.Reject{}, apdu.Abort{}, false
	}
	return e.result, e.errVal, e.rejectVal, e.abortVal, true
}

// Release frees invokeID's table slot once the caller has read its
// terminal Result. Calling it on an in-flight or unknown id is a no-op.
func (m *Manager) Release(invokeID byte) {
	if e, ok := m.entries[invokeID]; ok && e.state == StateIdle {
		delete(m.entries, invokeID)
	}
}

// Outstanding reports the number of transactions currently tracked.
func (m *Manager) Outstanding() int { return len(m.entries) }
