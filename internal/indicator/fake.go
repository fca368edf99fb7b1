package indicator

import "sync"

// FakeLED records every value driven to it.
type FakeLED struct {
	mu sync.Mutex

	// Values holds each Set call in order.
	Values []bool

	// SetError, if set, is returned by Set and nothing is recorded.
	SetError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeLED creates a FakeLED.
func NewFakeLED() *FakeLED {
	return &FakeLED{}
}

// Set records on.
func (f *FakeLED) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.Values = append(f.Values, on)
	return nil
}

// Close marks the LED as closed.
func (f *FakeLED) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Lit reports the last value set, false if none.
func (f *FakeLED) Lit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Values) == 0 {
		return false
	}
	return f.Values[len(f.Values)-1]
}

// Count returns the number of Set calls recorded.
func (f *FakeLED) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Values)
}
