package realtime

import (
	"testing"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

func TestHubRoutesEventsToOwner(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	mine, cancelMine := hub.Subscribe("user-1")
	defer cancelMine()
	other, cancelOther := hub.Subscribe("user-2")
	defer cancelOther()

	hub.HandlePayload(`{"op":"update","id":"job-1","user_id":"user-1","status":"completed","output_url":"https://x/a.png","updated_at":"2026-03-01T12:00:00.123456+00:00"}`)

	select {
	case ev := <-mine:
		if ev.ID != "job-1" || ev.Status != "completed" || ev.OutputURL != "https://x/a.png" {
			t.Fatalf("event = %+v", ev)
		}
		if ev.UpdatedAt.IsZero() {
			t.Fatalf("updated_at not decoded")
		}
	default:
		t.Fatalf("owner did not receive event")
	}
	select {
	case ev := <-other:
		t.Fatalf("other user received %+v", ev)
	default:
	}
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ch, cancel := hub.Subscribe("user-1")
	defer cancel()
	for i := 0; i < subscriberBuffer+5; i++ {
		hub.Publish(JobEvent{ID: "job", UserID: "user-1"})
	}
	if len(ch) != subscriberBuffer {
		t.Fatalf("buffered = %d, want %d", len(ch), subscriberBuffer)
	}
}

func TestHubCancelClosesAndForgets(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ch, cancel := hub.Subscribe("user-1")
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("channel still open after cancel")
	}
	if hub.Subscribers("user-1") != 0 {
		t.Fatalf("subscriber not removed")
	}
	hub.Publish(JobEvent{UserID: "user-1"})
}

func TestHubIgnoresMalformedPayload(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ch, cancel := hub.Subscribe("user-1")
	defer cancel()
	hub.HandlePayload("not json")
	hub.HandlePayload(`{"id":"job-1"}`)
	if len(ch) != 0 {
		t.Fatalf("unexpected events: %d", len(ch))
	}
}

func TestListenerDispatch(t *testing.T) {
	l := NewListener("postgres://unused", zerolog.Nop())
	var got []string
	l.Handle(ChannelJobEvents, func(p string) { got = append(got, p) })

	l.dispatch(nil)
	l.dispatch(&pq.Notification{Channel: ChannelJobQueue, Extra: "ignored"})
	l.dispatch(&pq.Notification{Channel: ChannelJobEvents, Extra: `{"id":"1"}`})

	if len(got) != 1 || got[0] != `{"id":"1"}` {
		t.Fatalf("dispatched = %v", got)
	}
}

func TestSignalDoesNotBlock(t *testing.T) {
	wake := make(chan struct{}, 1)
	fn := Signal(wake)
	fn("job-1")
	fn("job-2")
	if len(wake) != 1 {
		t.Fatalf("wake buffered = %d, want 1", len(wake))
	}
}
