package mstp

// autoBaudCandidates is the ordered search set of §4.7.
var autoBaudCandidates = []uint32{115200, 76800, 57600, 38400, 19200, 9600}

// autoBaudSearchMs is how long each candidate rate is given to
// accumulate four valid frames in a row before the search advances.
const autoBaudSearchMs = 5000

// AutoBaud cycles the RS-485 driver through the classic MS/TP baud
// rates looking for four consecutive valid frames, per §4.7.
type AutoBaud struct {
	index     int
	goodCount int
	clockMs   int
	enteredAt int
	locked    bool

	// SetBaud applies a candidate rate to the platform driver.
	SetBaud func(rate uint32) bool
}

// NewAutoBaud creates an AutoBaud FSM. It applies no rate itself; call
// Start to apply the first candidate rate through SetBaud.
func NewAutoBaud() *AutoBaud {
	return &AutoBaud{}
}

// CurrentRate returns the baud rate currently under evaluation.
func (a *AutoBaud) CurrentRate() uint32 { return autoBaudCandidates[a.index] }

// Locked reports whether a rate has been locked in.
func (a *AutoBaud) Locked() bool { return a.locked }

// Start applies the first candidate rate.
func (a *AutoBaud) Start() {
	a.index = 0
	a.goodCount = 0
	a.enteredAt = a.clockMs
	a.applyCurrent()
}

// NoteFrame reports one receive-FSM outcome for the rate currently under
// test. A valid frame (for-us or not-for-us) counts as evidence for the
// rate; an invalid frame resets the streak, per §4.7.
func (a *AutoBaud) NoteFrame(valid bool) {
	if a.locked {
		return
	}
	if valid {
		a.goodCount++
		if a.goodCount >= 4 {
			a.locked = true
		}
	} else {
		a.goodCount = 0
	}
}

// Tick advances the search clock; on a 5-second timeout with no lock it
// advances to the next candidate rate.
func (a *AutoBaud) Tick(deltaMs int) {
	if a.locked {
		return
	}
	a.clockMs += deltaMs
	if a.clockMs-a.enteredAt >= autoBaudSearchMs {
		a.index = (a.index + 1) % len(autoBaudCandidates)
		a.goodCount = 0
		a.enteredAt = a.clockMs
		a.applyCurrent()
	}
}

func (a *AutoBaud) applyCurrent() {
	if a.SetBaud != nil {
		a.SetBaud(a.CurrentRate())
	}
}
