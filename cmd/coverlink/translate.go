package main

import (
	"context"
	"time"

	"coverlink"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Republish shairport metadata with covers as packed 1-bit bitmaps",
	Long: `Subscribes to the shairport-sync topic tree and republishes every message
under the output topic. Cover art is cropped, resized and dithered to a
square 1-bit bitmap (LSB-first XBM) so microcontroller displays can draw it
without decoding JPEG. All messages are retained.`,
	RunE: runTranslate,
}

var (
	topicOut  string
	coverSize int
)

func init() {
	translateCmd.Flags().StringVar(&topicOut, "topic-out", "", "output topic base")
	translateCmd.Flags().IntVar(&coverSize, "size", 0, "cover size in pixels")
}

func runTranslate(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("topic-out") {
		cfg.Translator.TopicOut = topicOut
	}
	if cmd.Flags().Changed("size") {
		cfg.Translator.CoverSize = coverSize
	}
	if err := coverlink.NewConfigValidator().ValidateTranslatorConfig(&cfg.Translator); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	client := coverlink.NewMQTTClient(cfg.MQTT, "translator", logger)
	translator := coverlink.NewTranslator(client, cfg.Translator, logger)

	health := coverlink.NewHealthServer(serviceName("translate"), cfg.HealthCheckPort, logger)
	health.AddCheck("mqtt", func() error {
		if !client.IsConnected() {
			return coverlink.ErrNotConnected
		}
		return nil
	})
	health.AddCheck("translator", translator.Healthy)
	health.AddStats("translator", func() any { return translator.GetStats() })
	health.AddStats("mqtt", func() any { return client.GetStats() })
	if err := health.Start(); err != nil {
		return err
	}
	defer health.Stop(context.Background())

	if err := translator.Start(ctx); err != nil {
		return err
	}
	defer translator.Stop()

	if err := connect(ctx, client); err != nil {
		return unlessInterrupted(ctx, err)
	}
	defer client.Disconnect()

	logger.Info("Cover translator running",
		zap.String("broker", cfg.MQTT.BrokerURL()),
		zap.String("topic_in", cfg.Translator.TopicIn),
		zap.String("topic_out", cfg.Translator.TopicOut))

	statsTicker := time.NewTicker(5 * time.Minute)
	defer statsTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutting down")
			return nil
		case <-statsTicker.C:
			stats := translator.GetStats()
			logger.Info("Translator statistics",
				zap.Int64("received", stats.MessagesReceived),
				zap.Int64("forwarded", stats.MessagesForwarded),
				zap.Int64("converted", stats.CoversConverted),
				zap.Int64("conversion_failures", stats.ConversionFailures),
				zap.Int64("publish_failures", stats.PublishFailures))
		}
	}
}
