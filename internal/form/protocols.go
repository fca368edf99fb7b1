package form

import (
	"fmt"
	"sort"
	"strings"
)

// ProtocolListField selects a subset of the firmware's RF protocols.
// The gateway encodes "all protocols" as an empty list.
type ProtocolListField struct {
	base
	available []string
	selected  map[string]bool
	err       error
}

// NewProtocolListField creates a ProtocolListField. Until SetAvailable is
// called, every protocol named by the gateway is accepted.
func NewProtocolListField(name, help string) *ProtocolListField {
	return &ProtocolListField{base: base{name, help}, selected: map[string]bool{}}
}

// SetAvailable installs the firmware's protocol list.
func (f *ProtocolListField) SetAvailable(protocols []string) {
	f.available = append([]string(nil), protocols...)
	sort.Strings(f.available)
}

// Available returns the known protocols.
func (f *ProtocolListField) Available() []string {
	return append([]string(nil), f.available...)
}

func (f *ProtocolListField) Render() string {
	list := f.list()
	if len(list) == 0 {
		return "all"
	}
	return strings.Join(list, ",")
}

func (f *ProtocolListField) ApplyRemote(v any) {
	f.selected = map[string]bool{}
	f.err = nil
	for _, p := range toStrings(v) {
		f.selected[p] = true
	}
}

func (f *ProtocolListField) ReadLocal() (any, bool) {
	return f.list(), f.err == nil
}

// Set accepts a comma-separated list, or "all". Entries prefixed with "+" or
// "-" add to or remove from the current selection.
func (f *ProtocolListField) Set(input string) error {
	input = strings.TrimSpace(input)
	if input == "" || strings.EqualFold(input, "all") {
		f.selected = map[string]bool{}
		f.err = nil
		return nil
	}

	parts := strings.Split(input, ",")
	relative := true
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" && p[0] != '+' && p[0] != '-' {
			relative = false
		}
	}

	next := map[string]bool{}
	if relative {
		next = f.expanded()
	}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		remove := strings.HasPrefix(p, "-")
		p = strings.TrimLeft(p, "+-")
		if !f.known(p) {
			f.err = fmt.Errorf("unknown protocol %q", p)
			return f.err
		}
		if remove {
			delete(next, p)
		} else {
			next[p] = true
		}
	}
	f.selected = next
	f.err = nil
	return nil
}

// expanded returns the selection with "all" spelled out.
func (f *ProtocolListField) expanded() map[string]bool {
	out := map[string]bool{}
	if len(f.selected) == 0 {
		for _, p := range f.available {
			out[p] = true
		}
		return out
	}
	for p := range f.selected {
		out[p] = true
	}
	return out
}

// list returns the selection in wire form: empty when every available
// protocol is selected.
func (f *ProtocolListField) list() []string {
	if len(f.available) > 0 && len(f.selected) >= len(f.available) {
		all := true
		for _, p := range f.available {
			if !f.selected[p] {
				all = false
				break
			}
		}
		if all {
			return []string{}
		}
	}
	out := make([]string, 0, len(f.selected))
	for p := range f.selected {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (f *ProtocolListField) known(p string) bool {
	if len(f.available) == 0 {
		return true
	}
	i := sort.SearchStrings(f.available, p)
	return i < len(f.available) && f.available[i] == p
}

func toStrings(v any) []string {
	switch l := v.(type) {
	case []string:
		return l
	case []any:
		out := make([]string, 0, len(l))
		for _, e := range l {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
