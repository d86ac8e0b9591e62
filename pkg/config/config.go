// Package config loads the §6.4 tunables from an INI file, the same
// ini.v1 library pkg/od/parser.go uses to parse EDS files, with an
// embedded set of spec defaults grounded on pkg/od/base.go's
// go:embed default-object-dictionary pattern.
package config

import (
	"embed"

	"gopkg.in/ini.v1"

	"github.com/sfcoop/gomstp/pkg/mstp"
)

//go:embed default.ini
var defaultFS embed.FS

// Default returns the §6.4 tunables embedded in the module.
func Default() mstp.Tunables {
	data, err := defaultFS.ReadFile("default.ini")
	if err != nil {
		panic(err)
	}
	t, err := parse(data)
	if err != nil {
		panic(err)
	}
	return t
}

// Load reads tunables from an INI file on disk. Any field missing from
// the file takes its spec default; any field out of the §6.4 range is
// clamped to its spec default by Tunables.Clamp, per the section's last
// sentence.
func Load(path string) (mstp.Tunables, error) {
	f, err := ini.Load(path)
	if err != nil {
		return mstp.Tunables{}, err
	}
	return fromFile(f)
}

func parse(data []byte) (mstp.Tunables, error) {
	f, err := ini.Load(data)
	if err != nil {
		return mstp.Tunables{}, err
	}
	return fromFile(f)
}

func fromFile(f *ini.File) (mstp.Tunables, error) {
	sec := f.Section("mstp")
	t := mstp.Tunables{
		NmaxInfoFrames: sec.Key("NmaxInfoFrames").MustInt(mstp.DefaultTunables.NmaxInfoFrames),
		NmaxMaster:     byte(sec.Key("NmaxMaster").MustInt(int(mstp.DefaultTunables.NmaxMaster))),
		TFrameAbort:    sec.Key("TFrameAbort").MustInt(mstp.DefaultTunables.TFrameAbort),
		TReplyDelay:    sec.Key("TReplyDelay").MustInt(mstp.DefaultTunables.TReplyDelay),
		TReplyTimeout:  sec.Key("TReplyTimeout").MustInt(mstp.DefaultTunables.TReplyTimeout),
		TUsageTimeout:  sec.Key("TUsageTimeout").MustInt(mstp.DefaultTunables.TUsageTimeout),
		Npoll:          sec.Key("Npoll").MustInt(mstp.DefaultTunables.Npoll),
		NretryToken:    sec.Key("NretryToken").MustInt(mstp.DefaultTunables.NretryToken),
		NminOctets:     sec.Key("NminOctets").MustInt(mstp.DefaultTunables.NminOctets),
		TNoToken:       sec.Key("TNoToken").MustInt(mstp.DefaultTunables.TNoToken),
		TSlot:          sec.Key("TSlot").MustInt(mstp.DefaultTunables.TSlot),
	}
	return t.Clamp(), nil
}
