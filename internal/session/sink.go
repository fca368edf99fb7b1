package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/sweeney/gatewayctl/internal/channel"
	"github.com/sweeney/gatewayctl/internal/indicator"
	"github.com/sweeney/gatewayctl/internal/logstore"
	"github.com/sweeney/gatewayctl/internal/mqtt"
	"github.com/sweeney/gatewayctl/internal/status"
)

// Sink receives the log stream and every connection transition, in order,
// on the event loop. Implementations must not block; wrap slow ones in
// Async.
type Sink interface {
	Line(at time.Time, text string)
	Status(at time.Time, st channel.Status)
}

// WriterSink prints lines verbatim and transitions as markers.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a WriterSink.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Line implements Sink.
func (s *WriterSink) Line(_ time.Time, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	io.WriteString(s.w, text)
}

// Status implements Sink.
func (s *WriterSink) Status(at time.Time, st channel.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "--- %s %s ---\n", at.Format("15:04:05"), st.Label)
}

// MQTTSink mirrors lines and transitions to a broker.
type MQTTSink struct {
	pub     mqtt.Publisher
	tracker *status.Tracker
	log     hclog.Logger
}

// NewMQTTSink creates an MQTTSink. Status events carry the tracker's
// snapshot.
func NewMQTTSink(pub mqtt.Publisher, tracker *status.Tracker, logger hclog.Logger) *MQTTSink {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &MQTTSink{pub: pub, tracker: tracker, log: logger}
}

// Line implements Sink.
func (s *MQTTSink) Line(at time.Time, text string) {
	snap := s.tracker.Snapshot()
	if err := s.pub.PublishLine(mqtt.LogLine{Timestamp: at, Host: snap.Host, Text: text}); err != nil {
		s.log.Debug("publish line failed", "error", err)
	}
	s.updateConnected()
}

// Status implements Sink.
func (s *MQTTSink) Status(at time.Time, st channel.Status) {
	s.updateConnected()
	raw := status.FormatStatusEvent(s.tracker.Snapshot(), "CONNECTION", st.Label)
	event := mqtt.StatusEvent{Timestamp: at, Event: "CONNECTION", Reason: st.Label, RawPayload: raw, Retained: true}
	if err := s.pub.PublishStatus(event); err != nil {
		s.log.Warn("publish status failed", "error", err)
	}
}

// Gap publishes a marker line for lines the mirror dropped.
func (s *MQTTSink) Gap(at time.Time, dropped int) {
	snap := s.tracker.Snapshot()
	if err := s.pub.PublishLine(mqtt.LogLine{Timestamp: at, Host: snap.Host, Text: "--- " + GapText(dropped) + " ---\n"}); err != nil {
		s.log.Debug("publish gap failed", "error", err)
	}
}

func (s *MQTTSink) updateConnected() {
	if cs, ok := s.pub.(mqtt.ConnectionStatus); ok {
		s.tracker.SetMQTTConnected(cs.IsConnected())
	}
}

// ArchiveSink stores lines and transitions in the sqlite archive.
type ArchiveSink struct {
	store   *logstore.Store
	tracker *status.Tracker
	log     hclog.Logger
}

// NewArchiveSink creates an ArchiveSink.
func NewArchiveSink(store *logstore.Store, tracker *status.Tracker, logger hclog.Logger) *ArchiveSink {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &ArchiveSink{store: store, tracker: tracker, log: logger}
}

// Line implements Sink.
func (s *ArchiveSink) Line(at time.Time, text string) {
	s.append(logstore.Entry{Time: at, Kind: logstore.KindLine, Text: text})
}

// Status implements Sink.
func (s *ArchiveSink) Status(at time.Time, st channel.Status) {
	s.append(logstore.Entry{Time: at, Kind: logstore.KindStatus, Text: st.Label})
}

// Gap records lines the archive dropped as a status entry.
func (s *ArchiveSink) Gap(at time.Time, dropped int) {
	s.append(logstore.Entry{Time: at, Kind: logstore.KindStatus, Text: GapText(dropped)})
}

func (s *ArchiveSink) append(e logstore.Entry) {
	e.Host = s.tracker.Snapshot().Host
	if _, err := s.store.Append(context.Background(), e); err != nil {
		s.log.Warn("archive append failed", "error", err)
	}
}

// LEDSink shows the connection state on a status LED. It must run on the
// event loop, so never wrap it in Async.
type LEDSink struct {
	ind *indicator.Indicator
}

// NewLEDSink creates an LEDSink.
func NewLEDSink(ind *indicator.Indicator) *LEDSink {
	return &LEDSink{ind: ind}
}

// Line implements Sink.
func (s *LEDSink) Line(time.Time, string) {}

// Status implements Sink.
func (s *LEDSink) Status(_ time.Time, st channel.Status) {
	s.ind.Show(st.State)
}

// GapSink is implemented by sinks that record where lines were dropped.
type GapSink interface {
	Gap(at time.Time, dropped int)
}

// GapText is the marker for dropped lines.
func GapText(dropped int) string {
	return fmt.Sprintf("%d lines dropped", dropped)
}

// Async runs a Sink on its own goroutine so network or disk I/O never
// stalls the event loop. Order is preserved. At most size lines wait in the
// queue; further lines are dropped, counted and reported as a gap before the
// next delivered item. Status transitions are never dropped.
type Async struct {
	next Sink
	size int
	log  hclog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	items   []asyncItem
	lines   int
	closed  bool
	dropped int
	gap     int
	gapAt   time.Time

	done chan struct{}
}

type asyncItem struct {
	run  func()
	line bool
}

// NewAsync starts a worker feeding next from a queue of size lines.
func NewAsync(next Sink, size int, logger hclog.Logger) *Async {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if size < 1 {
		size = 1
	}
	a := &Async{
		next: next,
		size: size,
		log:  logger,
		done: make(chan struct{}),
	}
	a.cond = sync.NewCond(&a.mu)
	go a.run()
	return a
}

// Line implements Sink.
func (a *Async) Line(at time.Time, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	if a.lines >= a.size {
		if a.dropped == 0 {
			a.log.Warn("sink queue full, dropping lines", "capacity", a.size)
		}
		if a.gap == 0 {
			a.gapAt = at
		}
		a.gap++
		a.dropped++
		return
	}
	a.flushGap()
	a.lines++
	a.push(asyncItem{run: func() { a.next.Line(at, text) }, line: true})
}

// Status implements Sink.
func (a *Async) Status(at time.Time, st channel.Status) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.flushGap()
	a.push(asyncItem{run: func() { a.next.Status(at, st) }})
}

// Dropped returns how many lines were discarded because the queue was full.
func (a *Async) Dropped() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

// Close delivers everything queued, then stops the worker.
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.flushGap()
		a.closed = true
		a.cond.Broadcast()
	}
	a.mu.Unlock()
	<-a.done
}

// flushGap queues the marker for lines dropped since the last delivered
// item. a.mu must be held.
func (a *Async) flushGap() {
	if a.gap == 0 {
		return
	}
	at, n := a.gapAt, a.gap
	a.gap = 0
	a.push(asyncItem{run: func() { a.deliverGap(at, n) }})
}

func (a *Async) push(it asyncItem) {
	a.items = append(a.items, it)
	a.cond.Signal()
}

func (a *Async) deliverGap(at time.Time, n int) {
	if g, ok := a.next.(GapSink); ok {
		g.Gap(at, n)
		return
	}
	a.next.Line(at, "--- "+GapText(n)+" ---\n")
}

func (a *Async) run() {
	defer close(a.done)
	for {
		a.mu.Lock()
		for len(a.items) == 0 && !a.closed {
			a.cond.Wait()
		}
		if len(a.items) == 0 {
			a.mu.Unlock()
			return
		}
		it := a.items[0]
		a.items[0] = asyncItem{}
		a.items = a.items[1:]
		if it.line {
			a.lines--
		}
		a.mu.Unlock()
		it.run()
	}
}
