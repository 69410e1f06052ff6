package magneto

import "errors"

// ErrNotConnected is returned by commands issued to a closed device.
var ErrNotConnected = errors.New("not connected")

// Device defines the interface for magnetometer readers (real or mocked).
type Device interface {
	Connect() error
	Close() error
	Samples() <-chan RawSample
	// Reset asks the sensor to re-initialise. The device emits a reset
	// notice on the samples channel once the sensor is back.
	Reset() error
	IsConnected() bool
}

var _ Device = (*Serial)(nil)

var _ Device = (*Mock)(nil)
