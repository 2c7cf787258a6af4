package relay

import (
	"context"
	"testing"
	"time"

	"govorilka/internal/wire"
)

func recvFrame(t *testing.T, ch chan outbound, typ wire.FrameType) outbound {
	t.Helper()
	for {
		select {
		case o, ok := <-ch:
			if !ok {
				t.Fatalf("queue closed while waiting for %s", typ)
			}
			if o.typ == typ {
				return o
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %s frame", typ)
		}
	}
}

func expectNoFrame(t *testing.T, ch chan outbound) {
	t.Helper()
	select {
	case o, ok := <-ch:
		if ok {
			t.Errorf("unexpected %s frame", o.typ)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_PublishFanOut(t *testing.T) {
	h := NewHub(t.Context(), time.Minute)

	ch1 := h.Join("c1", "alice")
	ch2 := h.Join("c2", "bob")

	h.Subscribe("c1", []string{"room1"}, true)
	h.Subscribe("c2", []string{"room1"}, true)

	h.Publish("c1", wire.PublishRequest{Channel: "room1", Message: "hello"})

	for _, ch := range []chan outbound{ch1, ch2} {
		o := recvFrame(t, ch, wire.FrameMessage)
		ev := o.payload.(wire.MessageEvent)
		if ev.Message != "hello" || ev.Publisher != "alice" || ev.Channel != "room1" {
			t.Errorf("unexpected message event: %+v", ev)
		}
	}
}

func TestHub_NoDeliveryWithoutSubscription(t *testing.T) {
	h := NewHub(t.Context(), time.Minute)

	h.Join("c1", "alice")
	ch2 := h.Join("c2", "bob")

	h.Subscribe("c1", []string{"room1"}, true)
	// bob subscribes elsewhere.
	h.Subscribe("c2", []string{"room2"}, true)

	h.Publish("c1", wire.PublishRequest{Channel: "room1", Message: "private"})
	expectNoFrame(t, ch2)
}

func TestHub_PresenceJoinLeave(t *testing.T) {
	h := NewHub(t.Context(), time.Minute)

	ch1 := h.Join("c1", "alice")
	h.Join("c2", "bob")

	h.Subscribe("c1", []string{"room1"}, true)
	h.Subscribe("c2", []string{"room1"}, true)

	o := recvFrame(t, ch1, wire.FramePresence)
	ev := o.payload.(wire.PresenceEvent)
	if ev.Action != wire.PresenceJoin || ev.UUID != "bob" {
		t.Errorf("expected join for bob, got %+v", ev)
	}
	if ev.Occupancy != 2 {
		t.Errorf("expected occupancy 2, got %d", ev.Occupancy)
	}

	h.Unsubscribe("c2", []string{"room1"})
	o = recvFrame(t, ch1, wire.FramePresence)
	ev = o.payload.(wire.PresenceEvent)
	if ev.Action != wire.PresenceLeave || ev.UUID != "bob" {
		t.Errorf("expected leave for bob, got %+v", ev)
	}
}

func TestHub_JoinerGetsNoOwnJoinEvent(t *testing.T) {
	h := NewHub(t.Context(), time.Minute)

	ch1 := h.Join("c1", "alice")
	h.Subscribe("c1", []string{"room1"}, true)

	expectNoFrame(t, ch1)
}

func TestHub_PresenceRequiresFlag(t *testing.T) {
	h := NewHub(t.Context(), time.Minute)

	ch1 := h.Join("c1", "alice")
	h.Join("c2", "bob")

	// alice opted out of presence events.
	h.Subscribe("c1", []string{"room1"}, false)
	h.Subscribe("c2", []string{"room1"}, true)

	expectNoFrame(t, ch1)
}

func TestHub_LeaveAnnouncesDeparture(t *testing.T) {
	h := NewHub(t.Context(), time.Minute)

	ch1 := h.Join("c1", "alice")
	ch2 := h.Join("c2", "bob")

	h.Subscribe("c1", []string{"room1"}, true)
	h.Subscribe("c2", []string{"room1"}, true)
	recvFrame(t, ch1, wire.FramePresence)

	h.Leave("c2")

	o := recvFrame(t, ch1, wire.FramePresence)
	ev := o.payload.(wire.PresenceEvent)
	if ev.Action != wire.PresenceLeave || ev.UUID != "bob" {
		t.Errorf("expected leave for bob, got %+v", ev)
	}

	// The departed connection's queue is closed.
	if _, ok := <-ch2; ok {
		t.Error("expected closed queue after leave")
	}
}

func TestHub_HereNow(t *testing.T) {
	h := NewHub(t.Context(), time.Minute)

	h.Join("c1", "alice")
	h.Join("c2", "bob")
	h.Subscribe("c1", []string{"room1"}, true)
	h.Subscribe("c2", []string{"room1"}, true)

	resp := h.HereNow(wire.HereNowParams{Channels: []string{"room1", "empty"}, IncludeUUIDs: true})

	if *resp.TotalChannels != 1 || *resp.TotalOccupancy != 2 {
		t.Errorf("unexpected totals: %d channels, %d occupants", *resp.TotalChannels, *resp.TotalOccupancy)
	}
	occ, ok := resp.Channels["room1"]
	if !ok {
		t.Fatal("room1 missing from response")
	}
	if len(occ.Occupants) != 2 || occ.Occupants[0].UUID != "alice" || occ.Occupants[1].UUID != "bob" {
		t.Errorf("unexpected occupants: %+v", occ.Occupants)
	}
	if _, ok := resp.Channels["empty"]; ok {
		t.Error("empty channel must be absent from response")
	}
}

func TestHub_HereNowWithoutUUIDs(t *testing.T) {
	h := NewHub(t.Context(), time.Minute)

	h.Join("c1", "alice")
	h.Subscribe("c1", []string{"room1"}, true)

	resp := h.HereNow(wire.HereNowParams{Channels: []string{"room1"}})
	occ := resp.Channels["room1"]
	if occ.Occupants != nil {
		t.Error("occupants must be omitted when not requested")
	}
	if occ.Occupancy == nil || *occ.Occupancy != 1 {
		t.Error("occupancy count must still be reported")
	}
}

func TestHub_UUIDMetadata(t *testing.T) {
	h := NewHub(t.Context(), time.Minute)

	h.Join("c1", "bob")
	h.Join("c2", "alice")

	meta := h.UUIDMetadata()
	if len(meta) != 2 || meta[0].UUID != "alice" || meta[1].UUID != "bob" {
		t.Errorf("unexpected metadata: %+v", meta)
	}
}

func TestHub_SweepEmitsTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub(ctx, 50*time.Millisecond)

	ch1 := h.Join("c1", "alice")
	h.Join("c2", "bob")
	h.Subscribe("c1", []string{"room1"}, true)
	h.Subscribe("c2", []string{"room1"}, true)
	recvFrame(t, ch1, wire.FramePresence)

	// alice keeps heartbeating, bob goes silent.
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		h.Heartbeat("c1")
		time.Sleep(10 * time.Millisecond)
	}
	h.Sweep()

	o := recvFrame(t, ch1, wire.FramePresence)
	ev := o.payload.(wire.PresenceEvent)
	if ev.Action != wire.PresenceTimeout || ev.UUID != "bob" {
		t.Errorf("expected timeout for bob, got %+v", ev)
	}
}
