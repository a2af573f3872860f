package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

// blockingSink holds every Emit until released, so tests can fill the
// dispatcher buffer deterministically.
type blockingSink struct {
	release chan struct{}
	seen    chan Event
}

func newBlockingSink() *blockingSink {
	return &blockingSink{
		release: make(chan struct{}),
		seen:    make(chan Event, 64),
	}
}

func (s *blockingSink) Emit(_ context.Context, event Event) {
	<-s.release
	s.seen <- event
}

// collectSink records events under a lock.
type collectSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *collectSink) Emit(_ context.Context, event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *collectSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func TestDispatcherDelivers(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)
	defer d.Close()

	d.Emit(context.Background(), Event{EventType: "login_success", SubjectID: "u1", Success: true})

	select {
	case event := <-sink.Events():
		if event.EventType != "login_success" || event.SubjectID != "u1" {
			t.Fatalf("unexpected event: %+v", event)
		}
		if event.EventID == "" {
			t.Fatal("event id not stamped")
		}
		if event.Timestamp.IsZero() {
			t.Fatal("timestamp not stamped")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event never delivered")
	}
}

func TestDispatcherDisabled(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NewChannelSink(1))
	if d != nil {
		t.Fatal("disabled dispatcher is non-nil")
	}

	// A nil dispatcher is a valid no-op.
	d.Emit(context.Background(), Event{EventType: "noop"})
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reported drops")
	}
	d.Close()
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := newBlockingSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// The worker parks on the first event; the buffer holds one more. Every
	// event past that is dropped, not blocked on.
	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{EventType: "burst"})
	}

	if got := d.Dropped(); got < 1 {
		t.Fatalf("Dropped() = %d, want at least 1", got)
	}

	close(sink.release)
	d.Close()
}

func TestDispatcherCloseDrains(t *testing.T) {
	sink := &collectSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "drain"})
	}
	d.Close()

	if got := len(sink.all()); got != 10 {
		t.Fatalf("delivered %d events after Close, want 10", got)
	}

	// Emits after Close are discarded, and Close is idempotent.
	d.Emit(context.Background(), Event{EventType: "late"})
	d.Close()
	if got := len(sink.all()); got != 10 {
		t.Fatalf("delivered %d events after second Close, want 10", got)
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), Event{
		EventID:   "e1",
		EventType: "login_failure",
		SubjectID: "u1",
		Error:     "invalid_credentials",
	})
	sink.Emit(context.Background(), Event{EventID: "e2", EventType: "logout", Success: true})

	scanner := bufio.NewScanner(&buf)
	var lines []Event
	for scanner.Scan() {
		var event Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			t.Fatalf("line is not valid JSON: %v", err)
		}
		lines = append(lines, event)
	}

	if len(lines) != 2 {
		t.Fatalf("wrote %d lines, want 2", len(lines))
	}
	if lines[0].EventType != "login_failure" || lines[0].Error != "invalid_credentials" {
		t.Fatalf("unexpected first line: %+v", lines[0])
	}
	if lines[1].EventID != "e2" {
		t.Fatalf("unexpected second line: %+v", lines[1])
	}
}

func TestStampPreservesExisting(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	event := Event{EventID: "fixed", Timestamp: at}
	event.Stamp()

	if event.EventID != "fixed" {
		t.Fatalf("EventID overwritten: %q", event.EventID)
	}
	if !event.Timestamp.Equal(at) {
		t.Fatalf("Timestamp overwritten: %v", event.Timestamp)
	}
}
