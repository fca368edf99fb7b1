package gateway

import (
	"context"
	"sync"
)

// FakeConfigAPI is an in-memory config endpoint for tests. PushConfig merges
// changes into Config and returns a copy, like the gateway does.
type FakeConfigAPI struct {
	mu sync.Mutex

	Config map[string]any

	// Pushes records every changeset sent.
	Pushes []map[string]any

	// Fetches counts FetchConfig calls.
	Fetches int

	// FetchError and PushError, if set, are returned instead.
	FetchError error
	PushError  error
}

// NewFakeConfigAPI creates a FakeConfigAPI holding a copy of cfg.
func NewFakeConfigAPI(cfg map[string]any) *FakeConfigAPI {
	return &FakeConfigAPI{Config: copyMap(cfg)}
}

// FetchConfig returns a copy of Config.
func (f *FakeConfigAPI) FetchConfig(ctx context.Context) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fetches++
	if f.FetchError != nil {
		return nil, f.FetchError
	}
	return copyMap(f.Config), nil
}

// PushConfig records and merges changes.
func (f *FakeConfigAPI) PushConfig(ctx context.Context, changes map[string]any) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Pushes = append(f.Pushes, copyMap(changes))
	if f.PushError != nil {
		return nil, f.PushError
	}
	for k, v := range changes {
		f.Config[k] = v
	}
	return copyMap(f.Config), nil
}

// PushCount returns the number of PushConfig calls.
func (f *FakeConfigAPI) PushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Pushes)
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
