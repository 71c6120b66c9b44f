package events

import (
	"testing"
	"time"
)

func TestPublishToUnitSubscription(t *testing.T) {
	p := NewMemoryPublisher()
	defer p.Close()

	sub := p.Subscribe("UNIT-001")
	p.Publish(NewEvent(EventUnitStarted, "UNIT-001", nil))

	select {
	case ev := <-sub.C:
		if ev.Type != EventUnitStarted {
			t.Errorf("event type = %s, want %s", ev.Type, EventUnitStarted)
		}
	case <-time.After(time.Second):
		t.Fatal("expected event on subscription channel")
	}
}

func TestPublishToGlobalSubscription(t *testing.T) {
	p := NewMemoryPublisher()
	defer p.Close()

	global := p.Subscribe(GlobalUnitID)
	p.Publish(NewEvent(EventEscalation, "UNIT-002", TerminalData{Outcome: "escalated"}))

	select {
	case ev := <-global.C:
		if ev.UnitID != "UNIT-002" {
			t.Errorf("unit ID = %s, want UNIT-002", ev.UnitID)
		}
	case <-time.After(time.Second):
		t.Fatal("global subscription should receive all events")
	}
}

func TestPublishSkipsOtherUnits(t *testing.T) {
	p := NewMemoryPublisher()
	defer p.Close()

	sub := p.Subscribe("UNIT-001")
	p.Publish(NewEvent(EventUnitStarted, "UNIT-999", nil))

	select {
	case <-sub.C:
		t.Fatal("subscription should not receive another unit's events")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishNonBlockingWhenBufferFull(t *testing.T) {
	p := NewMemoryPublisher(WithBufferSize(1))
	defer p.Close()

	p.Subscribe("UNIT-001")

	// Neither publish may block even though the buffer holds one event
	done := make(chan struct{})
	go func() {
		p.Publish(NewEvent(EventUnitStarted, "UNIT-001", nil))
		p.Publish(NewEvent(EventAttemptStarted, "UNIT-001", nil))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscription buffer")
	}
}

func TestCancelClosesChannel(t *testing.T) {
	p := NewMemoryPublisher()
	defer p.Close()

	sub := p.Subscribe("UNIT-001")
	p.Cancel(sub)

	if _, ok := <-sub.C; ok {
		t.Error("cancelled subscription channel should be closed")
	}

	// Cancelling again must not panic
	p.Cancel(sub)
}

func TestCloseClosesAllSubscriptions(t *testing.T) {
	p := NewMemoryPublisher()

	sub1 := p.Subscribe("UNIT-001")
	sub2 := p.Subscribe(GlobalUnitID)
	p.Close()

	if _, ok := <-sub1.C; ok {
		t.Error("channel should be closed after Close")
	}
	if _, ok := <-sub2.C; ok {
		t.Error("global channel should be closed after Close")
	}

	// Publishing after close must not panic
	p.Publish(NewEvent(EventWarning, "UNIT-001", nil))

	// Subscribing after close yields an already-closed channel
	late := p.Subscribe("UNIT-003")
	if _, ok := <-late.C; ok {
		t.Error("late subscription channel should arrive closed")
	}
}
