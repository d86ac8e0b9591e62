// Package fifo implements a small byte ring buffer used to stash retained
// PDUs: the TSM keeps a retained request APDU in one for as long as
// retries are possible, the "keep these bytes until I'm told I can drop
// them" problem.
package fifo

// Fifo is a circular byte buffer. The zero value is not usable; use New.
type Fifo struct {
	buffer   []byte
	writePos int
	readPos  int
}

// New creates a Fifo with the given capacity. One slot is always kept
// empty to distinguish full from empty, so the usable capacity is size-1.
func New(size int) *Fifo {
	return &Fifo{buffer: make([]byte, size)}
}

// Reset drops all buffered data.
func (f *Fifo) Reset() {
	f.readPos = 0
	f.writePos = 0
}

// Space returns the number of bytes that can still be written.
func (f *Fifo) Space() int {
	left := f.readPos - f.writePos - 1
	if left < 0 {
		left += len(f.buffer)
	}
	return left
}

// Occupied returns the number of bytes available to read.
func (f *Fifo) Occupied() int {
	occ := f.writePos - f.readPos
	if occ < 0 {
		occ += len(f.buffer)
	}
	return occ
}

// Write appends as much of buffer as fits and returns the number of bytes
// actually written.
func (f *Fifo) Write(buffer []byte) int {
	written := 0
	for _, b := range buffer {
		next := f.writePos + 1
		if next == len(f.buffer) {
			next = 0
		}
		if next == f.readPos {
			break
		}
		f.buffer[f.writePos] = b
		f.writePos = next
		written++
	}
	return written
}

// Read copies up to len(buffer) bytes out and returns the number read.
func (f *Fifo) Read(buffer []byte) int {
	read := 0
	for read < len(buffer) && f.readPos != f.writePos {
		buffer[read] = f.buffer[f.readPos]
		f.readPos++
		if f.readPos == len(f.buffer) {
			f.readPos = 0
		}
		read++
	}
	return read
}

// Bytes drains and returns the full occupied contents as a new slice.
func (f *Fifo) Bytes() []byte {
	out := make([]byte, f.Occupied())
	f.Read(out)
	return out
}
