package fifo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteReadRoundTrip(t *testing.T) {
	f := New(8)
	n := f.Write([]byte{1, 2, 3, 4})
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, f.Occupied())

	out := make([]byte, 4)
	n = f.Read(out)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{1, 2, 3, 4}, out)
	assert.Equal(t, 0, f.Occupied())
}

func TestWriteStopsAtCapacity(t *testing.T) {
	f := New(4) // 3 usable slots
	n := f.Write([]byte{1, 2, 3, 4, 5})
	assert.Equal(t, 3, n)
	assert.Equal(t, 0, f.Space())
}

func TestResetDropsData(t *testing.T) {
	f := New(8)
	f.Write([]byte{1, 2, 3})
	f.Reset()
	assert.Equal(t, 0, f.Occupied())
}

func TestBytesDrains(t *testing.T) {
	f := New(8)
	f.Write([]byte{9, 8, 7})
	assert.Equal(t, []byte{9, 8, 7}, f.Bytes())
	assert.Equal(t, 0, f.Occupied())
}
