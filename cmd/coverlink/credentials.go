package main

import (
	"fmt"
	"io"
	"os"

	"coverlink"
	"coverlink/credentials"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Show the compiled-in credentials and the effective broker settings",
	Long: `Prints the credentials bundle built into this binary followed by the broker
settings after config file, environment and flags were applied. Passwords
are masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printCredentials(os.Stdout, credentials.Default(), cfg)
	},
}

type effectiveBroker struct {
	URL       string `yaml:"url"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	TopicBase string `yaml:"topic_base"`
	TopicIn   string `yaml:"topic_in"`
	TopicOut  string `yaml:"topic_out"`
}

func printCredentials(w io.Writer, bundle credentials.Bundle, c *coverlink.Config) error {
	password := ""
	if c.MQTT.Password != "" {
		password = "********"
	}

	out := struct {
		Compiled  credentials.Bundle `yaml:"compiled"`
		Effective effectiveBroker    `yaml:"effective"`
		Warnings  []string           `yaml:"placeholders,omitempty"`
	}{
		Compiled: bundle.Redacted(),
		Effective: effectiveBroker{
			URL:       c.MQTT.BrokerURL(),
			Username:  c.MQTT.Username,
			Password:  password,
			TopicBase: c.MQTT.TopicBase,
			TopicIn:   c.Translator.TopicIn,
			TopicOut:  c.Translator.TopicOut,
		},
		Warnings: coverlink.NewConfigValidator().PlaceholderFields(c),
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	return enc.Close()
}
