package session

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/gatewayctl/internal/channel"
	"github.com/sweeney/gatewayctl/internal/logstore"
	"github.com/sweeney/gatewayctl/internal/mqtt"
	"github.com/sweeney/gatewayctl/internal/status"
)

var at = time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC)

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriterSink(&buf)

	s.Status(at, channel.Status{State: channel.StateConnected, Label: channel.LabelConnected})
	s.Line(at, "hello\n")
	s.Line(at, "\n")

	want := "--- 22:18:12 Connected ---\nhello\n\n"
	if buf.String() != want {
		t.Errorf("output:\ngot  %q\nwant %q", buf.String(), want)
	}
}

func TestMQTTSink(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	tracker := status.NewTracker(at, "gw1.local", status.Config{})
	s := NewMQTTSink(pub, tracker, nil)

	s.Line(at, "hello\n")
	s.Status(at, channel.Status{State: channel.StateBroken, Label: channel.LabelBroken})

	if len(pub.Lines) != 1 || pub.Lines[0].Host != "gw1.local" || pub.Lines[0].Text != "hello\n" {
		t.Errorf("lines: got %+v", pub.Lines)
	}
	if len(pub.StatusEvents) != 1 {
		t.Fatalf("status events: got %d, want 1", len(pub.StatusEvents))
	}
	ev := pub.StatusEvents[0]
	if !ev.Retained || ev.Event != "CONNECTION" {
		t.Errorf("event: got %+v", ev)
	}
	if !strings.Contains(string(ev.RawPayload), `"reason":"Broken, reconnecting"`) {
		t.Errorf("payload: got %s", ev.RawPayload)
	}
	if !tracker.Snapshot().MQTTConnected {
		t.Error("tracker should record the broker connection")
	}
}

func TestArchiveSink(t *testing.T) {
	store, err := logstore.Open(filepath.Join(t.TempDir(), "log.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()
	tracker := status.NewTracker(at, "gw1.local", status.Config{})
	s := NewArchiveSink(store, tracker, nil)

	s.Status(at, channel.Status{State: channel.StateConnecting, Label: channel.LabelConnecting})
	s.Line(at, "hello\n")

	all, err := store.Recent(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("entries: got %d, want 2", len(all))
	}
	if all[0].Kind != logstore.KindStatus || all[0].Text != channel.LabelConnecting {
		t.Errorf("first entry: got %+v", all[0])
	}
	if all[1].Kind != logstore.KindLine || all[1].Host != "gw1.local" {
		t.Errorf("second entry: got %+v", all[1])
	}
}

// gateSink blocks every call until released.
type gateSink struct {
	recordSink
	gate chan struct{}
}

func (g *gateSink) Line(at time.Time, text string) {
	<-g.gate
	g.recordSink.Line(at, text)
}

func TestAsyncPreservesOrder(t *testing.T) {
	rec := &recordSink{}
	a := NewAsync(rec, 1000, nil)
	for i := 0; i < 500; i++ {
		a.Line(at, strings.Repeat("x", i%7)+"\n")
	}
	a.Status(at, channel.Status{Label: channel.LabelClosed})
	a.Close()

	if len(rec.lines) != 500 {
		t.Fatalf("lines: got %d, want 500", len(rec.lines))
	}
	for i, l := range rec.lines {
		if want := strings.Repeat("x", i%7) + "\n"; l != want {
			t.Fatalf("line %d: got %q, want %q", i, l, want)
		}
	}
	if len(rec.statuses) != 1 {
		t.Errorf("statuses: got %d, want 1", len(rec.statuses))
	}
	if a.Dropped() != 0 {
		t.Errorf("Dropped: got %d, want 0", a.Dropped())
	}
}

// orderSink records every call in order. Lines block until gate is closed.
type orderSink struct {
	gate   chan struct{}
	mu     sync.Mutex
	events []string
}

func (o *orderSink) record(ev string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
}

func (o *orderSink) Line(_ time.Time, text string) {
	<-o.gate
	o.record("line")
}

func (o *orderSink) Status(_ time.Time, st channel.Status) {
	o.record("status " + st.Label)
}

func (o *orderSink) Gap(_ time.Time, dropped int) {
	o.record(fmt.Sprintf("gap %d", dropped))
}

func TestAsyncDropsLinesWhenFull(t *testing.T) {
	o := &orderSink{gate: make(chan struct{})}
	a := NewAsync(o, 2, nil)

	// One line may already be held by the worker; the rest fill the queue.
	for i := 0; i < 10; i++ {
		a.Line(at, "x\n")
	}
	dropped := a.Dropped()
	if dropped < 7 || dropped > 8 {
		t.Errorf("Dropped: got %d, want 7 or 8", dropped)
	}

	// The queue is still full; the transition must get through anyway.
	a.Status(at, channel.Status{State: channel.StateClosed, Label: channel.LabelClosed})
	close(o.gate)
	a.Close()

	want := make([]string, 0, 12)
	for i := 0; i < 10-dropped; i++ {
		want = append(want, "line")
	}
	want = append(want, fmt.Sprintf("gap %d", dropped), "status Closed")
	if strings.Join(o.events, ",") != strings.Join(want, ",") {
		t.Errorf("events:\ngot  %v\nwant %v", o.events, want)
	}
}

func TestAsyncGapBeforeNextLine(t *testing.T) {
	o := &orderSink{gate: make(chan struct{})}
	a := NewAsync(o, 1, nil)

	for i := 0; i < 5; i++ {
		a.Line(at, "x\n")
	}
	dropped := a.Dropped()
	close(o.gate)
	// Wait for the queue to drain so the next line is accepted.
	for i := 0; i < 100; i++ {
		o.mu.Lock()
		n := len(o.events)
		o.mu.Unlock()
		if n == 5-dropped {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	a.Line(at, "y\n")
	a.Close()

	n := len(o.events)
	if n < 2 || o.events[n-2] != fmt.Sprintf("gap %d", dropped) || o.events[n-1] != "line" {
		t.Errorf("events: got %v, want gap %d before the last line", o.events, dropped)
	}
	if a.Dropped() != dropped {
		t.Errorf("Dropped: got %d, want %d", a.Dropped(), dropped)
	}
}

func TestAsyncGapWithoutGapSink(t *testing.T) {
	g := &gateSink{gate: make(chan struct{})}
	a := NewAsync(g, 1, nil)
	for i := 0; i < 5; i++ {
		a.Line(at, "x\n")
	}
	dropped := a.Dropped()
	close(g.gate)
	a.Close()

	last := g.lines[len(g.lines)-1]
	if want := fmt.Sprintf("--- %d lines dropped ---\n", dropped); last != want {
		t.Errorf("last line: got %q, want %q", last, want)
	}
}

func TestArchiveSinkGap(t *testing.T) {
	store, err := logstore.Open(filepath.Join(t.TempDir(), "log.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()
	s := NewArchiveSink(store, status.NewTracker(at, "gw1.local", status.Config{}), nil)

	s.Gap(at, 12)

	got, _ := store.Recent(context.Background(), logstore.KindStatus, 10)
	if len(got) != 1 || got[0].Text != "12 lines dropped" {
		t.Errorf("entries: got %+v", got)
	}
}

func TestAsyncIgnoresAfterClose(t *testing.T) {
	rec := &recordSink{}
	a := NewAsync(rec, 10, nil)
	a.Close()
	a.Line(at, "late\n")
	a.Close()
	if len(rec.lines) != 0 {
		t.Errorf("lines after close: got %q", rec.lines)
	}
}
