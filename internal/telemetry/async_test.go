package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type captureEmitter struct {
	mu     sync.Mutex
	events []*Event
	err    error
	done   chan struct{}
}

func (c *captureEmitter) Emit(ctx context.Context, event *Event) error {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
	if c.done != nil {
		close(c.done)
	}
	return c.err
}

func TestEmitAsync_NilEmitterOrEvent(t *testing.T) {
	// Must not panic or start goroutines.
	EmitAsync(nil, context.Background(), &Event{EventType: "x"})
	EmitAsync(&captureEmitter{}, context.Background(), nil)
}

func TestEmitAsync_DeliversEvent(t *testing.T) {
	c := &captureEmitter{done: make(chan struct{})}
	ev := &Event{ProjectID: "p1", EventType: "session.created", CreatedAt: time.Now().UTC()}
	EmitAsync(c, context.Background(), ev)
	select {
	case <-c.done:
	case <-time.After(time.Second):
		t.Fatal("emit never ran")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) != 1 || c.events[0] != ev {
		t.Errorf("events = %v", c.events)
	}
}

func TestEmitAsync_SurvivesCancelledCaller(t *testing.T) {
	c := &captureEmitter{done: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // caller is already gone
	EmitAsync(c, ctx, &Event{EventType: "session.expired"})
	select {
	case <-c.done:
	case <-time.After(time.Second):
		t.Fatal("emit dropped after caller cancellation")
	}
}

func TestEmitAsync_EmitterErrorIsSwallowed(t *testing.T) {
	c := &captureEmitter{done: make(chan struct{}), err: errors.New("broker down")}
	EmitAsync(c, context.Background(), &Event{EventType: "session.revoked"})
	select {
	case <-c.done:
	case <-time.After(time.Second):
		t.Fatal("emit never ran")
	}
	// Nothing to assert beyond "no panic, caller unaffected".
}
