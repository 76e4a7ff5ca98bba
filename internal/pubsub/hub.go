// Package pubsub fans values out to in-process subscribers by topic.
//
// Subscribers that fall behind lose their oldest pending value, never the
// newest. Change feeds only care about the latest state, so this is enough.
package pubsub

import (
	"context"
	"sync"
)

type Hub[T any] struct {
	mu     sync.Mutex
	subs   map[string]map[chan T]struct{}
	buffer int
}

// NewHub creates a hub whose subscriber channels hold up to buffer values.
func NewHub[T any](buffer int) *Hub[T] {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub[T]{
		subs:   make(map[string]map[chan T]struct{}),
		buffer: buffer,
	}
}

// Subscribe returns a channel receiving values published on topic. The
// channel is closed once ctx is done.
func (h *Hub[T]) Subscribe(ctx context.Context, topic string) <-chan T {
	ch := make(chan T, h.buffer)

	h.mu.Lock()
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[chan T]struct{})
	}
	h.subs[topic][ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[topic], ch)
		if len(h.subs[topic]) == 0 {
			delete(h.subs, topic)
		}
		close(ch)
	}()

	return ch
}

// Publish delivers v to every subscriber of topic without blocking.
func (h *Hub[T]) Publish(topic string, v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[topic] {
		select {
		case ch <- v:
			continue
		default:
		}
		// full: drop the oldest value and retry once
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// HasSubscribers reports whether anyone listens on topic.
func (h *Hub[T]) HasSubscribers(topic string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[topic]) > 0
}
