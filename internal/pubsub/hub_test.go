package pubsub

import (
	"context"
	"testing"
	"time"
)

func receive(t *testing.T, ch <-chan int) (int, bool) {
	t.Helper()
	select {
	case v, ok := <-ch:
		return v, ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for value")
		return 0, false
	}
}

func TestHub_PublishReachesTopicOnly(t *testing.T) {
	h := NewHub[int](4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := h.Subscribe(ctx, "a")
	b := h.Subscribe(ctx, "b")

	h.Publish("a", 1)

	if v, _ := receive(t, a); v != 1 {
		t.Errorf("got %d, want 1", v)
	}
	select {
	case v := <-b:
		t.Errorf("topic b received %d", v)
	default:
	}
}

func TestHub_SlowSubscriberKeepsNewest(t *testing.T) {
	h := NewHub[int](1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := h.Subscribe(ctx, "doc")
	h.Publish("doc", 1)
	h.Publish("doc", 2)
	h.Publish("doc", 3)

	if v, _ := receive(t, ch); v != 3 {
		t.Errorf("got %d, want newest value 3", v)
	}
}

func TestHub_CancelClosesChannel(t *testing.T) {
	h := NewHub[int](1)
	ctx, cancel := context.WithCancel(context.Background())

	ch := h.Subscribe(ctx, "doc")
	if !h.HasSubscribers("doc") {
		t.Fatal("HasSubscribers = false after Subscribe")
	}
	cancel()

	if _, ok := receive(t, ch); ok {
		t.Fatal("channel still open after cancel")
	}
	if h.HasSubscribers("doc") {
		t.Error("HasSubscribers = true after cancel")
	}
	// publishing to a topic with no subscribers must not panic
	h.Publish("doc", 4)
}
