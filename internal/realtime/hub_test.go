package realtime

import (
	"testing"

	"github.com/google/uuid"

	"github.com/mnemos-app/mnemos-backend/internal/platform/logger"
)

func testHub(t *testing.T) *Hub {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return NewHub(log)
}

func TestPublishReachesAllUserStreams(t *testing.T) {
	hub := testHub(t)
	user := uuid.New()

	ch1, cancel1 := hub.Subscribe(user)
	ch2, cancel2 := hub.Subscribe(user)
	defer cancel1()
	defer cancel2()

	hub.Publish(Event{Type: EventEntryCreated, UserID: user})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Type != EventEntryCreated {
				t.Errorf("stream %d got %q", i, ev.Type)
			}
		default:
			t.Errorf("stream %d got nothing", i)
		}
	}
}

func TestPublishDoesNotCrossUsers(t *testing.T) {
	hub := testHub(t)
	alice := uuid.New()
	bob := uuid.New()

	aliceCh, cancelA := hub.Subscribe(alice)
	defer cancelA()
	_, cancelB := hub.Subscribe(bob)
	defer cancelB()

	hub.Publish(Event{Type: EventEntryLinked, UserID: bob})

	select {
	case ev := <-aliceCh:
		t.Errorf("alice received bob's event %q", ev.Type)
	default:
	}
}

func TestCancelRemovesSubscription(t *testing.T) {
	hub := testHub(t)
	user := uuid.New()

	_, cancel := hub.Subscribe(user)
	if got := hub.Subscribers(user); got != 1 {
		t.Fatalf("subscribers = %d, want 1", got)
	}
	cancel()
	if got := hub.Subscribers(user); got != 0 {
		t.Errorf("subscribers = %d, want 0 after cancel", got)
	}

	// Publishing after cancel must not panic on the closed channel.
	hub.Publish(Event{Type: EventEntryCreated, UserID: user})
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := testHub(t)
	user := uuid.New()

	ch, cancel := hub.Subscribe(user)
	defer cancel()

	for i := 0; i < 40; i++ {
		hub.Publish(Event{Type: EventEntryCreated, UserID: user})
	}
	// Buffer is 16; the rest were dropped, not queued.
	if got := len(ch); got != 16 {
		t.Errorf("buffered = %d, want 16", got)
	}
}
