package coverlink

import (
	"context"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func testTranslatorConfig() TranslatorConfig {
	return TranslatorConfig{
		TopicIn:       "iotstack/shairport/#",
		TopicOut:      "iotstack/shairport-extension",
		CoverSize:     48,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	}
}

func startTranslator(t *testing.T, config TranslatorConfig) (*Translator, *fakeBroker) {
	t.Helper()
	broker := newFakeBroker()
	tr := NewTranslator(broker, config, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, tr.Start(ctx))
	return tr, broker
}

func TestTranslator_SubscribesToInputTree(t *testing.T) {
	_, broker := startTranslator(t, testTranslatorConfig())

	assert.Equal(t, []string{"iotstack/shairport/#"}, broker.Filters())
}

func TestTranslator_ForwardsTextVerbatim(t *testing.T) {
	tr, broker := startTranslator(t, testTranslatorConfig())

	broker.Deliver("iotstack/shairport/title", []byte("Song \xff"))
	broker.Deliver("iotstack/shairport/play_start", []byte("--"))

	assert.Equal(t, []published{
		{"iotstack/shairport-extension/title", []byte("Song \xff"), true},
		{"iotstack/shairport-extension/play_start", []byte("--"), true},
	}, broker.Published())
	stats := tr.GetStats()
	assert.Equal(t, int64(2), stats.MessagesReceived)
	assert.Equal(t, int64(2), stats.MessagesForwarded)
}

func TestTranslator_ConvertsCover(t *testing.T) {
	tr, broker := startTranslator(t, testTranslatorConfig())

	broker.Deliver("iotstack/shairport/cover", encodeJPEG(t, solid(300, 200, color.White)))

	out := broker.Published()
	require.Len(t, out, 1)
	assert.Equal(t, "iotstack/shairport-extension/cover", out[0].Topic)
	assert.True(t, out[0].Retained)
	require.Len(t, out[0].Payload, 288)
	for _, b := range out[0].Payload {
		assert.Equal(t, byte(0xFF), b)
	}
	assert.Equal(t, int64(1), tr.GetStats().CoversConverted)
}

func TestTranslator_ResentCoverUsesCache(t *testing.T) {
	config := testTranslatorConfig()
	config.CacheWindow = time.Hour
	config.CacheEntries = 4
	tr, broker := startTranslator(t, config)
	cover := encodeJPEG(t, solid(300, 200, color.White))

	broker.Deliver("iotstack/shairport/cover", cover)
	broker.Deliver("iotstack/shairport/cover", cover)

	out := broker.Published()
	require.Len(t, out, 2)
	assert.Equal(t, out[0].Payload, out[1].Payload)
	stats := tr.GetStats()
	assert.Equal(t, int64(1), stats.CoversConverted)
	assert.Equal(t, int64(1), stats.CoverCacheHits)
}

func TestTranslator_EmptyCoverPassesThrough(t *testing.T) {
	tr, broker := startTranslator(t, testTranslatorConfig())

	broker.Deliver("iotstack/shairport/cover", []byte("--"))

	assert.Equal(t, []published{
		{"iotstack/shairport-extension/cover", []byte("--"), true},
	}, broker.Published())
	assert.Zero(t, tr.GetStats().CoversConverted)
}

func TestTranslator_BadCoverIsDropped(t *testing.T) {
	tr, broker := startTranslator(t, testTranslatorConfig())

	broker.Deliver("iotstack/shairport/cover", []byte("not an image"))

	assert.Empty(t, broker.Published())
	stats := tr.GetStats()
	assert.Equal(t, int64(1), stats.ConversionFailures)
	assert.Zero(t, stats.MessagesForwarded)
}

func TestTranslator_OutputTopic(t *testing.T) {
	tests := []struct {
		name    string
		topicIn string
		topic   string
		want    string
		wantOK  bool
	}{
		{"subtopic", "iotstack/shairport/#", "iotstack/shairport/artist", "out/artist", true},
		{"nested", "iotstack/shairport/#", "iotstack/shairport/a/b", "out/a/b", true},
		{"trailing slash filter", "iotstack/shairport/", "iotstack/shairport/title", "out/title", true},
		{"other tree", "iotstack/shairport/#", "iotstack/other/title", "", false},
		{"prefix without separator", "iotstack/shairport/#", "iotstack/shairport-extension/title", "", false},
		{"base itself", "iotstack/shairport/#", "iotstack/shairport", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := testTranslatorConfig()
			config.TopicIn = tt.topicIn
			config.TopicOut = "out"
			tr := NewTranslator(newFakeBroker(), config, nil)

			got, ok := tr.OutputTopic(tt.topic)

			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTranslator_RetriesPublish(t *testing.T) {
	tr, broker := startTranslator(t, testTranslatorConfig())
	broker.failNext = 2

	broker.Deliver("iotstack/shairport/artist", []byte("Band"))

	assert.Len(t, broker.Published(), 1)
	stats := tr.GetStats()
	assert.Equal(t, int64(2), stats.PublishFailures)
	assert.Equal(t, int64(2), stats.PublishRetries)
	assert.Equal(t, int64(1), stats.MessagesForwarded)
}

func TestTranslator_GivesUpAfterRetries(t *testing.T) {
	tr, broker := startTranslator(t, testTranslatorConfig())
	broker.failNext = 10

	broker.Deliver("iotstack/shairport/artist", []byte("Band"))

	assert.Empty(t, broker.Published())
	stats := tr.GetStats()
	assert.Equal(t, int64(4), stats.PublishFailures)
	assert.Equal(t, int64(3), stats.PublishRetries)
	assert.Zero(t, stats.MessagesForwarded)
}

func TestTranslator_StopAbortsRetries(t *testing.T) {
	config := testTranslatorConfig()
	config.RetryDelay = time.Hour
	tr, broker := startTranslator(t, config)
	broker.failNext = 1
	tr.Stop()

	broker.Deliver("iotstack/shairport/artist", []byte("Band"))

	assert.Empty(t, broker.Published())
	assert.Error(t, tr.Healthy())
}

func TestTranslator_ContextCancelStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	broker := newFakeBroker()
	tr := NewTranslator(broker, testTranslatorConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, tr.Start(ctx))
	require.NoError(t, tr.Healthy())

	cancel()

	assert.Eventually(t, func() bool { return tr.Healthy() != nil }, time.Second, time.Millisecond)
	assert.Equal(t, "stopped", tr.GetStats().HealthStatus)
}
