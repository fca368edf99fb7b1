// Package settings keeps the last configuration the gateway accepted and the
// local edits that have not been confirmed yet, and synchronizes the two
// against the gateway's configuration endpoint.
package settings

import (
	"encoding/json"
	"reflect"
	"sort"
)

// Config is a flat configuration object. Values are strings, numbers,
// booleans or string lists.
type Config map[string]any

// Keys returns the keys in sorted order.
func (c Config) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy.
func (c Config) Clone() Config {
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Equal reports whether two values have the same JSON encoding, so 1883 and
// 1883.0, or []string{"a"} and []any{"a"}, compare equal.
func Equal(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return string(ja) == string(jb)
}

type edit struct {
	value any
	seq   uint64

	// revert marks an edit back to the snapshot value of a key that is
	// being pushed. It is not pending until the push resolves.
	revert bool
}

// Store holds the snapshot and the pending changes. It is not safe for
// concurrent use; the Controller confines it to the event loop.
type Store struct {
	snapshot Config
	pending  map[string]edit
	held     map[string]int
	seq      uint64
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{snapshot: Config{}, pending: map[string]edit{}, held: map[string]int{}}
}

// Record tracks an edit. An invalid edit leaves any pending entry for key
// untouched. A value equal to the snapshot removes the entry, unless key is
// held by a push; then the edit is kept as a revert.
func (s *Store) Record(key string, value any, valid bool) {
	if !valid {
		return
	}
	s.seq++
	if cur, ok := s.snapshot[key]; ok && Equal(cur, value) {
		if s.held[key] > 0 {
			s.pending[key] = edit{value: value, seq: s.seq, revert: true}
			return
		}
		delete(s.pending, key)
		return
	}
	s.pending[key] = edit{value: value, seq: s.seq}
}

// Hold marks keys as being pushed.
func (s *Store) Hold(keys []string) {
	for _, k := range keys {
		s.held[k]++
	}
}

// Release ends a push of keys. Reverts no push still holds are dropped.
func (s *Store) Release(keys []string) {
	for _, k := range keys {
		if s.held[k]--; s.held[k] <= 0 {
			delete(s.held, k)
			if e, ok := s.pending[k]; ok && e.revert {
				delete(s.pending, k)
			}
		}
	}
}

// Mark returns the sequence number of the latest edit. Entries recorded
// later have a higher number.
func (s *Store) Mark() uint64 {
	return s.seq
}

// Replace installs a new snapshot. Pending entries recorded at or before mark
// are cleared: all of them when keys is nil, otherwise only those in keys.
// Every surviving entry is re-diffed against the new snapshot, which turns a
// revert that now differs into a regular edit. Replace returns the keys
// still pending afterwards.
func (s *Store) Replace(snapshot Config, mark uint64, keys []string) []string {
	s.snapshot = snapshot.Clone()

	if keys == nil {
		for k, e := range s.pending {
			if e.seq <= mark {
				delete(s.pending, k)
			}
		}
	} else {
		for _, k := range keys {
			if e, ok := s.pending[k]; ok && e.seq <= mark {
				delete(s.pending, k)
			}
		}
	}

	for k, e := range s.pending {
		cur, ok := s.snapshot[k]
		switch {
		case ok && Equal(cur, e.value):
			if !e.revert || s.held[k] == 0 {
				delete(s.pending, k)
			}
		case e.revert:
			e.revert = false
			s.pending[k] = e
		}
	}
	return s.PendingKeys()
}

// Discard drops every pending entry.
func (s *Store) Discard() {
	s.pending = map[string]edit{}
}

// Snapshot returns a copy of the last accepted configuration.
func (s *Store) Snapshot() Config {
	return s.snapshot.Clone()
}

// Pending returns a copy of the pending changes.
func (s *Store) Pending() Config {
	out := make(Config, len(s.pending))
	for k, e := range s.pending {
		if !e.revert {
			out[k] = e.value
		}
	}
	return out
}

// PendingKeys returns the pending keys in sorted order.
func (s *Store) PendingKeys() []string {
	return s.Pending().Keys()
}

// HasPending reports whether any change is pending.
func (s *Store) HasPending() bool {
	for _, e := range s.pending {
		if !e.revert {
			return true
		}
	}
	return false
}
