package coverlink

import (
	"errors"
	"strings"
	"sync"
)

type published struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// fakeBroker is an in-memory Broker that routes Deliver calls to matching
// subscriptions and records publishes.
type fakeBroker struct {
	mu        sync.Mutex
	handlers  map[string]MessageHandler
	published []published
	failNext  int // number of upcoming publishes to reject
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: make(map[string]MessageHandler)}
}

func (fb *fakeBroker) Subscribe(filter string, handler MessageHandler) error {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.handlers[filter] = handler
	return nil
}

func (fb *fakeBroker) Publish(topic string, payload []byte, retained bool) error {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.failNext > 0 {
		fb.failNext--
		return errors.New("broker unavailable")
	}
	fb.published = append(fb.published, published{topic, append([]byte(nil), payload...), retained})
	return nil
}

func (fb *fakeBroker) Deliver(topic string, payload []byte) {
	fb.mu.Lock()
	var targets []MessageHandler
	for filter, h := range fb.handlers {
		if topicMatches(filter, topic) {
			targets = append(targets, h)
		}
	}
	fb.mu.Unlock()

	for _, h := range targets {
		h(Message{Topic: topic, Payload: payload})
	}
}

func (fb *fakeBroker) Published() []published {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]published(nil), fb.published...)
}

func (fb *fakeBroker) Filters() []string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	var filters []string
	for f := range fb.handlers {
		filters = append(filters, f)
	}
	return filters
}

func topicMatches(filter, topic string) bool {
	fl := strings.Split(filter, "/")
	tl := strings.Split(topic, "/")
	for i, f := range fl {
		if f == "#" {
			return true
		}
		if i >= len(tl) {
			return false
		}
		if f != "+" && f != tl[i] {
			return false
		}
	}
	return len(fl) == len(tl)
}
