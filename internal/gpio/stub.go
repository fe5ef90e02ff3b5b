//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// CdevIO is not available on non-Linux platforms.
type CdevIO struct{}

// NewCdevIO returns an error on non-Linux platforms.
func NewCdevIO(chipName string, pins PinMap) (*CdevIO, error) {
	return nil, errUnsupported
}

// Read is not implemented on non-Linux platforms.
func (c *CdevIO) Read(pin Pin) (bool, error) {
	return false, errUnsupported
}

// Write is not implemented on non-Linux platforms.
func (c *CdevIO) Write(pin Pin, level bool) error {
	return errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (c *CdevIO) Close() error {
	return nil
}

// PeriphIO is not available on non-Linux platforms.
type PeriphIO struct{}

// NewPeriphIO returns an error on non-Linux platforms.
func NewPeriphIO(pins PinMap) (*PeriphIO, error) {
	return nil, errUnsupported
}

// Read is not implemented on non-Linux platforms.
func (p *PeriphIO) Read(pin Pin) (bool, error) {
	return false, errUnsupported
}

// Write is not implemented on non-Linux platforms.
func (p *PeriphIO) Write(pin Pin, level bool) error {
	return errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (p *PeriphIO) Close() error {
	return nil
}
