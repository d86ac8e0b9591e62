// Package transport defines the RS-485 driver contract of spec.md §6.2
// as a Go interface, plus a small backend registry in the same shape as
// pkg/can/register.go's RegisterInterface/NewInterfaceFunc pair.
package transport

import "errors"

// Driver is the platform collaborator the datalink core treats as
// external, per §6.2: octet-at-a-time non-blocking reads, a
// fully-blocking send, and the silence/error bookkeeping the receive
// FSM and master FSM need.
type Driver interface {
	Init() error
	SetBaud(rate uint32) error
	Baud() uint32

	// Read reports one freshly received octet without blocking;
	// available is false if none is pending.
	Read() (octet byte, available bool)

	// Send transmits buf fully, blocking as needed, honoring the
	// turnaround silence required after the last received octet. A
	// partial transmit is a driver error, reported via the bool return.
	Send(buf []byte) (sent bool)

	SilenceMs() uint16
	SilenceReset()
	Transmitting() bool
	ReceiveErrorFlag() bool
}

// NewDriverFunc constructs a Driver bound to a named channel (e.g. a
// device path or an in-memory pipe name).
type NewDriverFunc func(channel string) (Driver, error)

// AvailableDrivers holds every backend registered via RegisterDriver.
var AvailableDrivers = make(map[string]NewDriverFunc)

// ImplementedDrivers names the backends this module ships, in the same
// spirit as pkg/can/register.go's ImplementedInterfaces list.
var ImplementedDrivers = []string{"serial", "virtual"}

// RegisterDriver makes a backend available under name. Backends call
// this from an init() function.
func RegisterDriver(name string, newDriver NewDriverFunc) {
	AvailableDrivers[name] = newDriver
}

// ErrUnknownDriver is returned by New when name is not registered.
var ErrUnknownDriver = errors.New("transport: unknown driver")

// New looks up and constructs a registered driver by name.
func New(name, channel string) (Driver, error) {
	ctor, ok := AvailableDrivers[name]
	if !ok {
		return nil, ErrUnknownDriver
	}
	return ctor(channel)
}
