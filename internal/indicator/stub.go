//go:build !linux

package indicator

import "errors"

// RealLED is not available on non-Linux platforms.
type RealLED struct{}

// NewRealLED returns an error on non-Linux platforms.
func NewRealLED(chipName string, offset int, activeLow bool) (*RealLED, error) {
	return nil, errors.New("indicator: gpio not supported on this platform (requires Linux)")
}

// Set is not implemented on non-Linux platforms.
func (r *RealLED) Set(on bool) error {
	return errors.New("indicator: gpio not supported")
}

// Close is a no-op on non-Linux platforms.
func (r *RealLED) Close() error {
	return nil
}
