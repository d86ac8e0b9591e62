package config

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sfcoop/gomstp/pkg/mstp"
)

func TestDefaultMatchesSpecDefaults(t *testing.T) {
	assert.Equal(t, mstp.DefaultTunables, Default())
}

func TestParseClampsOutOfRangeValues(t *testing.T) {
	data := []byte("[mstp]\nTFrameAbort = 9999\nNpoll = 0\n")
	t1, err := parse(data)
	assert.NoError(t, err)
	assert.Equal(t, mstp.DefaultTunables.TFrameAbort, t1.TFrameAbort)
	assert.Equal(t, mstp.DefaultTunables.Npoll, t1.Npoll)
}

func TestParseHonorsInRangeOverrides(t *testing.T) {
	data := []byte("[mstp]\nTFrameAbort = 50\nNmaxMaster = 10\n")
	t1, err := parse(data)
	assert.NoError(t, err)
	assert.Equal(t, 50, t1.TFrameAbort)
	assert.Equal(t, byte(10), t1.NmaxMaster)
}
