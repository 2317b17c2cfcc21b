package main

import (
	"context"
	"fmt"

	"coverlink"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var displayCmd = &cobra.Command{
	Use:   "display",
	Short: "Show the current cover and title on an SH1106 OLED",
	Long: `Follows the shairport-sync metadata and renders it on the display.

Modes:
  cover      cover on the left, artist and title on the right; the panel
             switches off after the inactivity timeout
  starfield  scrolling title over a 3D starfield

Use --device png to render into a PNG file instead of an I2C panel.`,
	RunE: runDisplay,
}

var (
	displayMode   string
	displayDevice string
	displayOutput string
	translated    bool
)

func init() {
	displayCmd.Flags().StringVar(&displayMode, "mode", "", "cover or starfield")
	displayCmd.Flags().StringVar(&displayDevice, "device", "", "sh1106 or png")
	displayCmd.Flags().StringVar(&displayOutput, "output", "", "PNG file for the png device")
	displayCmd.Flags().BoolVar(&translated, "translated", false, "read covers from the translator output topic")
}

func runDisplay(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if flags.Changed("mode") {
		cfg.Display.Mode = displayMode
	}
	if flags.Changed("device") {
		cfg.Display.Device = displayDevice
	}
	if flags.Changed("output") {
		cfg.Display.Output = displayOutput
	}
	if err := coverlink.NewConfigValidator().ValidateDisplayConfig(&cfg.Display); err != nil {
		return err
	}

	display, err := openDisplay(cfg.Display)
	if err != nil {
		return err
	}
	defer display.Close()

	history, err := coverlink.NewHistory(cfg.History, logger)
	if err != nil {
		return err
	}
	defer history.Close()

	topicBase := cfg.MQTT.TopicBase
	if translated {
		topicBase = cfg.Translator.TopicOut
	}
	state := coverlink.NewNowPlaying(topicBase, cfg.Display.CoverSize, logger)
	state.SetListener(history)

	client := coverlink.NewMQTTClient(cfg.MQTT, "display", logger)
	if err := state.Subscribe(client); err != nil {
		return err
	}

	runner := coverlink.NewRunner(cfg.Display, display, state, logger)

	health := coverlink.NewHealthServer(serviceName("display"), cfg.HealthCheckPort, logger)
	health.AddCheck("mqtt", func() error {
		if !client.IsConnected() {
			return coverlink.ErrNotConnected
		}
		return nil
	})
	health.AddStats("display", func() any { return runner.GetStats() })
	health.AddStats("mqtt", func() any { return client.GetStats() })
	health.AddStats("now_playing", func() any { return nowPlayingStatus(state.Snapshot()) })
	health.SetHistory(history)
	if err := health.Start(); err != nil {
		return err
	}
	defer health.Stop(context.Background())

	ctx, cancel := signalContext()
	defer cancel()

	logger.Info("Display starting",
		zap.String("mode", cfg.Display.Mode),
		zap.String("device", cfg.Display.Device),
		zap.String("topic_base", topicBase))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runner.Run(ctx)
	})
	g.Go(func() error {
		if err := connect(ctx, client); err != nil {
			return unlessInterrupted(ctx, err)
		}
		<-ctx.Done()
		client.Disconnect()
		return nil
	})

	err = g.Wait()
	logger.Info("Display stopped")
	return err
}

// openDisplay creates the configured output device.
func openDisplay(config coverlink.DisplayConfig) (coverlink.Display, error) {
	switch config.Device {
	case coverlink.DisplayDevicePNG:
		return coverlink.NewFileDisplay(config.Output, config.Rotate), nil
	case coverlink.DisplayDeviceSH1106:
		bus, err := coverlink.OpenI2C(config.I2CBus, config.Address)
		if err != nil {
			return nil, err
		}
		panel, err := coverlink.NewSH1106(bus, coverlink.DisplayWidth, coverlink.DisplayHeight, config.Rotate)
		if err != nil {
			bus.Close()
			return nil, err
		}
		return panel, nil
	default:
		return nil, fmt.Errorf("%w: unknown display device %q", coverlink.ErrInvalidConfiguration, config.Device)
	}
}

func nowPlayingStatus(s coverlink.Snapshot) map[string]any {
	return map[string]any{
		"title":         s.DisplayTitle(),
		"active":        s.Active,
		"has_cover":     s.Cover != nil,
		"last_activity": s.LastActivity,
		"revision":      s.Revision,
	}
}
