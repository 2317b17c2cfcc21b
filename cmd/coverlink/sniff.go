package main

import (
	"fmt"
	"os"

	"coverlink"

	"github.com/spf13/cobra"
)

var sniffCmd = &cobra.Command{
	Use:   "sniff",
	Short: "Print every message under the shairport topic base",
	Long: `Subscribes to <topic-base>/# and prints each message. Text payloads show
their first 100 characters; binary payloads (cover art) show their size and
the first 50 bytes. Useful to see what a shairport-sync instance publishes.`,
	RunE: runSniff,
}

func runSniff(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	client := coverlink.NewMQTTClient(cfg.MQTT, "sniffer", logger)
	sniffer := coverlink.NewSniffer(os.Stdout, logger)
	if err := sniffer.Subscribe(client, cfg.MQTT.TopicBase); err != nil {
		return err
	}

	if err := connect(ctx, client); err != nil {
		return unlessInterrupted(ctx, err)
	}
	defer client.Disconnect()

	fmt.Fprintf(os.Stderr, "Listening for all topics under %s/# (Ctrl+C to stop)\n\n", cfg.MQTT.TopicBase)
	<-ctx.Done()
	fmt.Fprintf(os.Stderr, "%d messages\n", sniffer.Messages())
	return nil
}
