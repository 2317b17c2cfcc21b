// CoverLink - MQTT Cover Translator
// Copyright (c) 2025 - Open Source Project

package coverlink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Translator republishes shairport metadata under a second topic tree with
// cover art reduced to packed 1-bit bitmaps for small displays.
type Translator struct {
	broker Broker
	config TranslatorConfig
	base   string

	covers *CoverCache
	logger *zap.Logger
	errors *ErrorHandler

	stats    *TranslatorStats
	stopChan chan struct{}
	stopOnce sync.Once
}

// TranslatorStats holds statistics about the translator operation
type TranslatorStats struct {
	mutex              sync.RWMutex
	StartTime          time.Time     `json:"start_time"`
	MessagesReceived   int64         `json:"messages_received"`
	MessagesForwarded  int64         `json:"messages_forwarded"`
	CoversConverted    int64         `json:"covers_converted"`
	CoverCacheHits     int64         `json:"cover_cache_hits"`
	ConversionFailures int64         `json:"conversion_failures"`
	PublishFailures    int64         `json:"publish_failures"`
	PublishRetries     int64         `json:"publish_retries"`
	LastMessageTime    time.Time     `json:"last_message_time"`
	Uptime             time.Duration `json:"uptime"`
	HealthStatus       string        `json:"health_status"`
}

// NewTranslator creates a translator publishing through broker.
func NewTranslator(broker Broker, config TranslatorConfig, logger *zap.Logger) *Translator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Translator{
		broker:   broker,
		config:   config,
		base:     WildcardBase(config.TopicIn),
		covers:   NewCoverCache(config.CacheWindow, config.CacheEntries),
		logger:   logger.With(zap.String("component", "translator")),
		errors:   NewErrorHandler("translator", logger),
		stopChan: make(chan struct{}),
		stats: &TranslatorStats{
			StartTime:    time.Now(),
			HealthStatus: "starting",
		},
	}
}

// Start subscribes to the input topic tree. The translator stops by itself
// when ctx is cancelled.
func (t *Translator) Start(ctx context.Context) error {
	t.logger.Info("Starting cover translator",
		zap.String("topic_in", t.config.TopicIn),
		zap.String("topic_out", t.config.TopicOut),
		zap.Int("cover_size", t.config.CoverSize))

	if err := t.broker.Subscribe(t.config.TopicIn, t.HandleMessage); err != nil {
		t.updateHealthStatus("unhealthy - subscribe failed")
		return fmt.Errorf("subscribe %s: %w", t.config.TopicIn, err)
	}

	go func() {
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.stopChan:
		}
	}()

	t.updateHealthStatus("healthy")
	return nil
}

// Stop aborts pending retries. Safe to call more than once.
func (t *Translator) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopChan)
		t.updateHealthStatus("stopped")
		t.logger.Info("Cover translator stopped")
	})
}

// OutputTopic maps an input topic to its translated topic.
func (t *Translator) OutputTopic(topic string) (string, bool) {
	sub, ok := Subtopic(t.base, topic)
	if !ok {
		return "", false
	}
	return t.config.TopicOut + "/" + sub, true
}

// HandleMessage translates one input message.
func (t *Translator) HandleMessage(msg Message) {
	out, ok := t.OutputTopic(msg.Topic)
	if !ok {
		return
	}
	t.incrementReceived()

	payload := msg.Payload
	if out == t.config.TopicOut+"/"+SubtopicCover && string(payload) != EmptyPayload {
		converted, err := t.convert(payload)
		if err != nil {
			t.incrementConversionFailures()
			t.errors.HandleCoverError(msg.Topic, err)
			return
		}
		payload = converted
	}

	if err := t.publish(out, payload); err != nil {
		t.logger.Error("Dropping message after retries",
			zap.String("topic", out),
			zap.Int("attempts", t.config.RetryAttempts+1),
			zap.Error(err))
		return
	}

	t.incrementForwarded()
	t.logger.Debug("Forwarded",
		zap.String("topic", out),
		zap.Int("bytes", len(payload)))
}

func (t *Translator) convert(payload []byte) ([]byte, error) {
	if packed, ok := t.covers.Get(payload, t.config.CoverSize); ok {
		t.stats.mutex.Lock()
		t.stats.CoverCacheHits++
		t.stats.mutex.Unlock()
		t.logger.Debug("Cover served from cache", zap.Int("input_bytes", len(payload)))
		return packed, nil
	}

	img, err := ConvertCover(payload, t.config.CoverSize)
	if err != nil {
		return nil, err
	}
	packed := PackXBM(img)
	t.covers.Put(payload, t.config.CoverSize, packed)

	t.stats.mutex.Lock()
	t.stats.CoversConverted++
	t.stats.mutex.Unlock()

	t.logger.Info("Cover converted",
		zap.Int("input_bytes", len(payload)),
		zap.Int("size", t.config.CoverSize),
		zap.Int("output_bytes", len(packed)))
	return packed, nil
}

// publish sends a retained message, retrying with a linear backoff.
func (t *Translator) publish(topic string, payload []byte) error {
	err := t.broker.Publish(topic, payload, true)
	for attempt := 1; err != nil && attempt <= t.config.RetryAttempts; attempt++ {
		t.incrementPublishFailures()
		t.logger.Warn("Publish failed, retrying",
			zap.String("topic", topic),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", t.config.RetryAttempts),
			zap.Error(err))

		select {
		case <-t.stopChan:
			return fmt.Errorf("translator stopped: %w", err)
		case <-time.After(t.config.RetryDelay * time.Duration(attempt)):
		}

		t.stats.mutex.Lock()
		t.stats.PublishRetries++
		t.stats.mutex.Unlock()
		err = t.broker.Publish(topic, payload, true)
	}
	if err != nil {
		t.incrementPublishFailures()
		return err
	}
	return nil
}

// GetStats returns a copy of the translator statistics
func (t *Translator) GetStats() TranslatorStats {
	t.stats.mutex.RLock()
	defer t.stats.mutex.RUnlock()

	return TranslatorStats{
		StartTime:          t.stats.StartTime,
		MessagesReceived:   t.stats.MessagesReceived,
		MessagesForwarded:  t.stats.MessagesForwarded,
		CoversConverted:    t.stats.CoversConverted,
		CoverCacheHits:     t.stats.CoverCacheHits,
		ConversionFailures: t.stats.ConversionFailures,
		PublishFailures:    t.stats.PublishFailures,
		PublishRetries:     t.stats.PublishRetries,
		LastMessageTime:    t.stats.LastMessageTime,
		Uptime:             time.Since(t.stats.StartTime),
		HealthStatus:       t.stats.HealthStatus,
	}
}

// Healthy reports an error unless the translator is running.
func (t *Translator) Healthy() error {
	t.stats.mutex.RLock()
	defer t.stats.mutex.RUnlock()
	if t.stats.HealthStatus != "healthy" {
		return fmt.Errorf("translator %s", t.stats.HealthStatus)
	}
	return nil
}

// Helper methods for statistics

func (t *Translator) updateHealthStatus(status string) {
	t.stats.mutex.Lock()
	t.stats.HealthStatus = status
	t.stats.mutex.Unlock()
}

func (t *Translator) incrementReceived() {
	t.stats.mutex.Lock()
	t.stats.MessagesReceived++
	t.stats.LastMessageTime = time.Now()
	t.stats.mutex.Unlock()
}

func (t *Translator) incrementForwarded() {
	t.stats.mutex.Lock()
	t.stats.MessagesForwarded++
	t.stats.mutex.Unlock()
}

func (t *Translator) incrementConversionFailures() {
	t.stats.mutex.Lock()
	t.stats.ConversionFailures++
	t.stats.mutex.Unlock()
}

func (t *Translator) incrementPublishFailures() {
	t.stats.mutex.Lock()
	t.stats.PublishFailures++
	t.stats.mutex.Unlock()
}
