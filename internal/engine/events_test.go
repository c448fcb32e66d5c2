package engine

import (
	"testing"
	"time"
)

func TestBusFansOutToAllSubscribers(t *testing.T) {
	bus := NewBus()
	got := make(chan string, 4)
	bus.SubscribeOpenIntent(func(ev OpenIntentChat) { got <- "a:" + ev.SessionID })
	bus.SubscribeOpenIntent(func(ev OpenIntentChat) { got <- "b:" + ev.SessionID })

	bus.PublishOpenIntent(OpenIntentChat{SessionID: "s1"})

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case v := <-got:
			seen[v] = true
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for subscribers")
		}
	}
	if !seen["a:s1"] || !seen["b:s1"] {
		t.Fatalf("not all subscribers notified: %v", seen)
	}
}

func TestBusSlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	bus := NewBus()
	release := make(chan struct{})
	done := make(chan struct{}, 2)
	bus.SubscribeYesClicked(func(IntentYesClicked) {
		<-release
		done <- struct{}{}
	})

	published := make(chan struct{})
	go func() {
		bus.PublishYesClicked(IntentYesClicked{TCode: "TC1"})
		bus.PublishYesClicked(IntentYesClicked{TCode: "TC2"})
		close(published)
	}()

	select {
	case <-published:
	case <-time.After(5 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
	close(release)
	<-done
	<-done
}

func TestBusPublishWithoutSubscribers(t *testing.T) {
	bus := NewBus()
	bus.PublishOpenIntent(OpenIntentChat{SessionID: "s1"})
	bus.PublishYesClicked(IntentYesClicked{TCode: "TC1"})
}
