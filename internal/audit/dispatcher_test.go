package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	got     []Event
}

func (s *blockingSink) Emit(_ context.Context, e Event) {
	<-s.release
	s.mu.Lock()
	s.got = append(s.got, e)
	s.mu.Unlock()
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{EventType: EventLoginSuccess})
	d.Close()
	if d.Dropped() != 0 || d.Delivered() != 0 {
		t.Fatal("nil dispatcher must report zero counters")
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	var onDrop int
	d := NewDispatcher(Config{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
		OnDrop:     func(Event) { onDrop++ },
	}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: EventRoleSwitch})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a blocked sink and a one-slot buffer")
	}
	if uint64(onDrop) != d.Dropped() {
		t.Fatalf("OnDrop calls %d != dropped %d", onDrop, d.Dropped())
	}

	close(sink.release)
	d.Close()
	if got := d.Delivered() + d.Dropped(); got != 10 {
		t.Fatalf("delivered+dropped = %d, want 10", got)
	}
}

func TestDispatcherStampsAndDrainsOnClose(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	d := NewDispatcher(Config{
		Enabled:    true,
		BufferSize: 8,
		Now:        func() time.Time { return fixed },
	}, NewJSONWriterSink(&buf))

	d.Emit(context.Background(), Event{EventType: EventRoleSwitch, Subject: "u@x.com", Role: "BA", FromRole: "PM", Success: true})
	d.Emit(context.Background(), Event{EventType: EventLogout, Subject: "u@x.com"})
	d.Close()
	d.Emit(context.Background(), Event{EventType: EventLoginSuccess})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	var first Event
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if first.ID == "" {
		t.Fatal("dispatcher should assign an event id")
	}
	if !first.Timestamp.Equal(fixed) || first.FromRole != "PM" || first.Role != "BA" {
		t.Fatalf("unexpected event %+v", first)
	}
}

func TestDispatcherCloseRacingEmit(t *testing.T) {
	sink := NewChannelSink(256)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 16; j++ {
				d.Emit(context.Background(), Event{EventType: EventLogout})
			}
		}()
	}
	d.Close()
	wg.Wait()
	d.Close()

	if got := uint64(len(sink.Events())); got != d.Delivered() {
		t.Fatalf("sink holds %d events, dispatcher delivered %d", got, d.Delivered())
	}
	if d.Delivered() > 128 {
		t.Fatalf("delivered %d of 128 emitted", d.Delivered())
	}
}

func TestDispatcherBlockingEmitHonorsContext(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	for i := 0; i < 3; i++ {
		d.Emit(ctx, Event{EventType: EventRoleSwitch})
	}
	if ctx.Err() == nil {
		t.Fatal("third emit should have waited for the deadline")
	}

	close(sink.release)
	d.Close()
	if d.Delivered() != 2 {
		t.Fatalf("delivered %d, want 2", d.Delivered())
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	a := NewChannelSink(1)
	b := NewChannelSink(1)
	MultiSink{a, nil, b}.Emit(context.Background(), Event{EventType: EventAccessDenied})

	if (<-a.Events()).EventType != EventAccessDenied || (<-b.Events()).EventType != EventAccessDenied {
		t.Fatal("both sinks should receive the event")
	}
}
