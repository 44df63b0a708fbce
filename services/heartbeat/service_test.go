package heartbeat

import (
	"context"
	"testing"
	"time"

	"headstage-go/bus"
)

func TestHeartbeatPublishesRetainedBeats(t *testing.T) {
	b := bus.NewBus(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := &Service{Interval: 5 * time.Millisecond}
	svc.Start(ctx, b.NewConnection("heartbeat"))

	sub := b.NewConnection("observer").Subscribe(bus.T("service", "heartbeat"))
	var first, second Beat
	for i := 0; i < 2; i++ {
		select {
		case msg := <-sub.Channel():
			beat, ok := msg.Payload.(Beat)
			if !ok {
				t.Fatalf("payload %T", msg.Payload)
			}
			if i == 0 {
				first = beat
			} else {
				second = beat
			}
		case <-time.After(2 * time.Second):
			t.Fatal("no heartbeat")
		}
	}
	if second.Seq <= first.Seq {
		t.Fatalf("sequence not increasing: %d then %d", first.Seq, second.Seq)
	}

	// A late subscriber sees the retained latest beat immediately.
	late := b.NewConnection("late").Subscribe(bus.T("service", "heartbeat"))
	select {
	case msg := <-late.Channel():
		if _, ok := msg.Payload.(Beat); !ok {
			t.Fatalf("payload %T", msg.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retained beat not replayed")
	}
}

func TestHeartbeatIntervalReconfigure(t *testing.T) {
	b := bus.NewBus(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := &Service{Interval: time.Hour}
	svc.Start(ctx, b.NewConnection("heartbeat"))

	sub := b.NewConnection("observer").Subscribe(bus.T("service", "heartbeat"))

	// With an hour-long interval nothing arrives until the config shrinks it.
	cfg := b.NewConnection("cfg")
	cfg.Publish(cfg.NewMessage(bus.T("config", "heartbeat"),
		map[string]any{"interval_ms": 5.0}, true))

	select {
	case <-sub.Channel():
	case <-time.After(2 * time.Second):
		t.Fatal("no heartbeat after reconfigure")
	}
}
