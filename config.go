// CoverLink - Configuration
// Copyright (c) 2025 - Open Source Project

package coverlink

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"coverlink/credentials"
)

// Config holds all configuration for the CoverLink services
type Config struct {
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Translator TranslatorConfig `yaml:"translator"`
	Display    DisplayConfig    `yaml:"display"`
	History    HistoryConfig    `yaml:"history"`

	LogLevel        string `yaml:"log_level"`
	HealthCheckPort int    `yaml:"health_check_port"`
}

// MQTTConfig contains MQTT broker configuration
type MQTTConfig struct {
	Broker         string        `yaml:"broker"`
	Port           int           `yaml:"port"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	ClientID       string        `yaml:"client_id"`
	TopicBase      string        `yaml:"topic_base"`
	QoS            byte          `yaml:"qos"`
	KeepAlive      time.Duration `yaml:"keep_alive"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// TranslatorConfig configures the cover translator
type TranslatorConfig struct {
	TopicIn       string        `yaml:"topic_in"`  // iotstack/shairport/#
	TopicOut      string        `yaml:"topic_out"` // iotstack/shairport-extension
	CoverSize     int           `yaml:"cover_size"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	CacheWindow   time.Duration `yaml:"cache_window"`
	CacheEntries  int           `yaml:"cache_entries"` // 0 disables the cover cache
}

// DisplayConfig configures the OLED display service
type DisplayConfig struct {
	Mode     string `yaml:"mode"`   // cover or starfield
	Device   string `yaml:"device"` // sh1106 or png
	I2CBus   int    `yaml:"i2c_bus"`
	Address  uint16 `yaml:"address"`
	Rotate   int    `yaml:"rotate"` // quarter turns
	Contrast uint8  `yaml:"contrast"`
	Output   string `yaml:"output"` // png device target

	CoverSize int           `yaml:"cover_size"`
	Timeout   time.Duration `yaml:"timeout"`
	FPS       int           `yaml:"fps"`

	FontPath  string  `yaml:"font_path"`
	FontSize  float64 `yaml:"font_size"`
	SmallFont float64 `yaml:"small_font_size"`
	LargeFont float64 `yaml:"large_font_size"`

	ScrollSpeed    int           `yaml:"scroll_speed"`
	ScrollDelay    time.Duration `yaml:"scroll_delay"`
	Stars          int           `yaml:"stars"`
	StarDepth      int           `yaml:"star_depth"`
	TitleBarHeight int           `yaml:"title_bar_height"`
}

// HistoryConfig configures play history storage
type HistoryConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DatabasePath    string        `yaml:"database_path"`
	RetentionDays   int           `yaml:"retention_days"` // 0 = forever
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// Display modes and devices.
const (
	DisplayModeCover     = "cover"
	DisplayModeStarfield = "starfield"

	DisplayDeviceSH1106 = "sh1106"
	DisplayDevicePNG    = "png"
)

// DefaultConfig returns the configuration derived from the compiled-in
// credentials bundle.
func DefaultConfig() *Config {
	bundle := credentials.Default()

	return &Config{
		MQTT: MQTTConfig{
			Broker:         bundle.BrokerHost,
			Port:           bundle.Port(),
			Username:       bundle.BrokerUser,
			Password:       bundle.BrokerPassword,
			ClientID:       "",
			TopicBase:      bundle.Topic(),
			QoS:            0,
			KeepAlive:      DefaultKeepAlive * time.Second,
			ConnectTimeout: 10 * time.Second,
		},
		Translator: TranslatorConfig{
			TopicOut:      DefaultTopicOut,
			CoverSize:     DefaultCoverSize,
			RetryAttempts: 3,
			RetryDelay:    time.Second,
			CacheWindow:   time.Hour,
			CacheEntries:  16,
		},
		Display: DisplayConfig{
			Mode:           DisplayModeCover,
			Device:         DisplayDeviceSH1106,
			I2CBus:         1,
			Address:        DisplayAddress,
			Rotate:         2,
			Contrast:       255,
			Output:         "coverlink.png",
			CoverSize:      DefaultCoverSize,
			Timeout:        5 * time.Minute,
			FPS:            30,
			FontPath:       "fonts/PixelOperator.ttf",
			FontSize:       16,
			SmallFont:      12,
			LargeFont:      14,
			ScrollSpeed:    2,
			ScrollDelay:    2 * time.Second,
			Stars:          512,
			StarDepth:      32,
			TitleBarHeight: 15,
		},
		History: HistoryConfig{
			Enabled:         false,
			DatabasePath:    "coverlink.db",
			RetentionDays:   90,
			CleanupInterval: time.Hour,
		},
		LogLevel:        "info",
		HealthCheckPort: 0,
	}
}

// LoadConfig builds the effective configuration: compiled-in defaults, then
// the optional YAML file at path, then environment variables.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfiguration, path, err)
		}
	}

	cfg.ApplyEnv()
	cfg.Normalize()
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables that are set.
func (c *Config) ApplyEnv() {
	// MQTT settings
	c.MQTT.Broker = getEnv("MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.Port = parseInt("MQTT_PORT", c.MQTT.Port)
	c.MQTT.Username = getEnv("MQTT_USER", c.MQTT.Username)
	c.MQTT.Password = getEnv("MQTT_PASS", c.MQTT.Password)
	c.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", c.MQTT.ClientID)
	c.MQTT.TopicBase = getEnv("MQTT_TOPIC_BASE", c.MQTT.TopicBase)
	c.MQTT.KeepAlive = parseDuration("MQTT_KEEP_ALIVE", c.MQTT.KeepAlive)

	// Translator settings
	c.Translator.TopicIn = getEnv("MQTT_TOPIC_IN", c.Translator.TopicIn)
	c.Translator.TopicOut = getEnv("MQTT_TOPIC_OUT", c.Translator.TopicOut)
	c.Translator.CoverSize = parseInt("COVER_SIZE", c.Translator.CoverSize)
	c.Translator.RetryAttempts = parseInt("RETRY_ATTEMPTS", c.Translator.RetryAttempts)
	c.Translator.RetryDelay = parseDuration("RETRY_DELAY", c.Translator.RetryDelay)
	c.Translator.CacheWindow = parseDuration("COVER_CACHE_WINDOW", c.Translator.CacheWindow)
	c.Translator.CacheEntries = parseInt("COVER_CACHE_ENTRIES", c.Translator.CacheEntries)

	// Display settings
	c.Display.Mode = getEnv("DISPLAY_MODE", c.Display.Mode)
	c.Display.Device = getEnv("DISPLAY_DEVICE", c.Display.Device)
	c.Display.I2CBus = parseInt("DISPLAY_I2C_BUS", c.Display.I2CBus)
	c.Display.Output = getEnv("DISPLAY_OUTPUT", c.Display.Output)
	c.Display.CoverSize = parseInt("COVER_SIZE", c.Display.CoverSize)
	c.Display.Timeout = parseDuration("DISPLAY_TIMEOUT", c.Display.Timeout)
	c.Display.FPS = parseInt("DISPLAY_FPS", c.Display.FPS)
	c.Display.FontPath = getEnv("DISPLAY_FONT", c.Display.FontPath)

	// History settings
	c.History.Enabled = parseBool("HISTORY_ENABLED", c.History.Enabled)
	c.History.DatabasePath = getEnv("HISTORY_DB_PATH", c.History.DatabasePath)
	c.History.RetentionDays = parseInt("HISTORY_RETENTION_DAYS", c.History.RetentionDays)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.HealthCheckPort = parseInt("HEALTH_CHECK_PORT", c.HealthCheckPort)
}

// Normalize fills derived defaults. The translator input filter follows the
// topic base unless it was set explicitly.
func (c *Config) Normalize() {
	if c.MQTT.TopicBase == "" {
		c.MQTT.TopicBase = credentials.DefaultTopicBase
	}
	c.MQTT.TopicBase = strings.TrimSuffix(c.MQTT.TopicBase, "/")
	if c.Translator.TopicIn == "" {
		c.Translator.TopicIn = Topic(c.MQTT.TopicBase, "#")
	}
	if c.Translator.TopicOut == "" {
		c.Translator.TopicOut = DefaultTopicOut
	}
	if c.MQTT.Port <= 0 {
		c.MQTT.Port = credentials.DefaultBrokerPort
	}
}

// BrokerURL returns the paho broker address.
func (m MQTTConfig) BrokerURL() string {
	return "tcp://" + net.JoinHostPort(m.Broker, strconv.Itoa(m.Port))
}

// Helper functions for parsing environment variables

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func parseDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
