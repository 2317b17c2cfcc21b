package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"coverlink"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	configPath string
	envFile    string
	logLevel   string
	brokerHost string
	brokerPort int
	topicBase  string
	healthPort int

	// Set up by the root command before any subcommand runs
	cfg    *coverlink.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "coverlink",
	Short: "AirPlay cover art for small MQTT-connected displays",
	Long: `CoverLink follows the metadata shairport-sync publishes over MQTT and
shows the current cover, artist and title on a 128x64 OLED.

Configuration is layered: compiled-in credentials, then the YAML file given
with --config, then .env, then environment variables, then flags.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", envFile, err)
		}

		var err error
		cfg, err = coverlink.LoadConfig(configPath)
		if err != nil {
			return err
		}
		applyFlags(cmd, cfg)

		if err := coverlink.NewConfigValidator().Validate(cfg); err != nil {
			return err
		}

		logger, err = coverlink.NewLogger(cfg.LogLevel)
		if err != nil {
			return err
		}

		if fields := coverlink.NewConfigValidator().PlaceholderFields(cfg); len(fields) > 0 {
			logger.Warn("Credentials still hold template placeholders",
				zap.Strings("fields", fields))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVar(&brokerHost, "broker", "", "MQTT broker host")
	flags.IntVar(&brokerPort, "port", 0, "MQTT broker port")
	flags.StringVar(&topicBase, "topic-base", "", "shairport-sync topic namespace")
	flags.IntVar(&healthPort, "health-port", 0, "health check HTTP port (0 disables)")

	rootCmd.AddCommand(translateCmd, displayCmd, sniffCmd, historyCmd, credentialsCmd)
}

// applyFlags copies explicitly set flags over the loaded configuration.
func applyFlags(cmd *cobra.Command, c *coverlink.Config) {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		c.LogLevel = logLevel
	}
	if flags.Changed("broker") {
		c.MQTT.Broker = brokerHost
	}
	if flags.Changed("port") {
		c.MQTT.Port = brokerPort
	}
	if flags.Changed("topic-base") {
		c.MQTT.TopicBase = topicBase
		c.Translator.TopicIn = ""
	}
	if flags.Changed("health-port") {
		c.HealthCheckPort = healthPort
	}
	c.Normalize()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// connect keeps trying until the broker accepts the connection or ctx ends.
func connect(ctx context.Context, client *coverlink.MQTTClient) error {
	delay := time.Second
	for attempt := 1; ; attempt++ {
		err := client.Connect(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !coverlink.IsNetworkError(err) {
			return err
		}

		logger.Warn("Broker connection failed",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if delay < 30*time.Second {
			delay *= 2
		}
	}
}

// unlessInterrupted drops err when ctx was cancelled, which is a normal
// shutdown before the broker came up.
func unlessInterrupted(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func serviceName(role string) string {
	return strings.ToLower(coverlink.PROJECT_NAME) + "-" + role
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
