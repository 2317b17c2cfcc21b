// CoverLink - Topic Sniffer
// Copyright (c) 2025 - Open Source Project

package coverlink

import (
	"fmt"
	"io"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	snifferTextLimit   = 100 // characters
	snifferBinaryLimit = 50  // bytes
)

// Sniffer prints every message under a topic base, for finding out what a
// shairport-sync instance actually publishes.
type Sniffer struct {
	out    io.Writer
	logger *zap.Logger

	mutex    sync.Mutex
	messages uint64
}

// NewSniffer creates a sniffer writing to out.
func NewSniffer(out io.Writer, logger *zap.Logger) *Sniffer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sniffer{out: out, logger: logger}
}

// Subscribe listens to everything below base.
func (s *Sniffer) Subscribe(broker Broker, base string) error {
	filter := WildcardBase(base) + "/#"
	if err := broker.Subscribe(filter, s.HandleMessage); err != nil {
		return WrapError("subscribe "+filter, err)
	}
	s.logger.Info("Listening", zap.String("filter", filter))
	return nil
}

// HandleMessage prints one message.
func (s *Sniffer) HandleMessage(msg Message) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.messages++
	fmt.Fprintf(s.out, "TOPIC: %s\n  PAYLOAD: %s\n\n", msg.Topic, FormatPayload(msg.Payload))
}

// Messages returns how many messages were printed.
func (s *Sniffer) Messages() uint64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.messages
}

// FormatPayload renders text payloads as their first 100 characters and
// anything else as a size plus a quoted prefix of the raw bytes.
func FormatPayload(payload []byte) string {
	if utf8.Valid(payload) {
		return truncate(string(payload), snifferTextLimit)
	}
	prefix := payload
	if len(prefix) > snifferBinaryLimit {
		prefix = prefix[:snifferBinaryLimit]
	}
	return fmt.Sprintf("[binary: %d bytes] %q", len(payload), prefix)
}
