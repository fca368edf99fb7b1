package mqtt

import "sync"

// FakePublisher records published messages for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	// Lines contains all log lines that were published.
	Lines []LogLine

	// StatusEvents contains all status events that were published.
	StatusEvents []StatusEvent

	// StatusPayloads contains the JSON payloads for status events.
	StatusPayloads [][]byte

	// PublishError, if set, will be returned by PublishLine and PublishStatus.
	PublishError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishLine records the line.
func (f *FakePublisher) PublishLine(line LogLine) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Lines = append(f.Lines, line)
	return nil
}

// PublishStatus records the event and its payload.
func (f *FakePublisher) PublishStatus(event StatusEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatStatusPayload(event)
	if err != nil {
		return err
	}
	f.StatusEvents = append(f.StatusEvents, event)
	f.StatusPayloads = append(f.StatusPayloads, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// LineTexts returns the text of every published line.
func (f *FakePublisher) LineTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Lines))
	for i, l := range f.Lines {
		out[i] = l.Text
	}
	return out
}
