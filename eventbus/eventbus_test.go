package eventbus

import (
	"testing"
	"time"
)

func TestPublishPumpMessageDelivers(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	defer sub.Unsubscribe()

	b.PublishPumpMessage(PumpMessage{Address: 0x50, Type: "DC1"})

	select {
	case msg := <-sub.PumpMessages:
		if msg.Address != 0x50 {
			t.Fatalf("got address 0x%02X, want 0x50", msg.Address)
		}
	default:
		t.Fatal("expected a buffered message")
	}
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	defer sub.Unsubscribe()

	// Fill the subscriber's channel past capacity; Publish must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < bufSize*2; i++ {
			b.PublishPumpMessage(PumpMessage{Address: 0x50})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PublishPumpMessage blocked on a full subscriber channel")
	}
}

func TestUnsubscribeClosesChannels(t *testing.T) {
	b := New()
	sub := b.Subscribe()
	sub.Unsubscribe()

	if _, ok := <-sub.PumpMessages; ok {
		t.Fatal("expected closed channel after Unsubscribe")
	}
	if b.SubscriberCount() != 0 {
		t.Fatalf("got %d subscribers, want 0", b.SubscriberCount())
	}
}

func TestMultipleSubscribersAllReceive(t *testing.T) {
	b := New()
	s1 := b.Subscribe()
	s2 := b.Subscribe()
	defer s1.Unsubscribe()
	defer s2.Unsubscribe()

	b.PublishLog(LogEvent{Type: LogSent, Message: "test"})

	for _, s := range []*Subscriber{s1, s2} {
		select {
		case ev := <-s.Logs:
			if ev.Type != LogSent {
				t.Fatalf("got type %v, want LogSent", ev.Type)
			}
		default:
			t.Fatal("expected both subscribers to receive the log event")
		}
	}
}
