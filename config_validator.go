// CoverLink - Configuration Validation
// Copyright (c) 2025 - Open Source Project

package coverlink

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ConfigValidator validates CoverLink configurations
type ConfigValidator struct{}

// NewConfigValidator creates a new configuration validator
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{}
}

// Validate checks the sections every command needs.
func (cv *ConfigValidator) Validate(config *Config) error {
	if config == nil {
		return invalid(errors.New("config cannot be nil"))
	}
	if err := cv.ValidateMQTTConfig(&config.MQTT); err != nil {
		return err
	}
	if _, err := ParseLogLevel(config.LogLevel); err != nil {
		return err
	}
	if config.HealthCheckPort < 0 || config.HealthCheckPort > 65535 {
		return invalid(errors.New("health_check_port must be between 0 and 65535"))
	}
	return cv.ValidateHistoryConfig(&config.History)
}

// ValidateMQTTConfig validates broker settings
func (cv *ConfigValidator) ValidateMQTTConfig(config *MQTTConfig) error {
	if config.Broker == "" {
		return invalid(errors.New("broker is required"))
	}

	if config.Port <= 0 || config.Port > 65535 {
		return invalid(fmt.Errorf("port %d out of range", config.Port))
	}

	if config.QoS > 2 {
		return invalid(errors.New("qos must be 0, 1 or 2"))
	}

	if config.KeepAlive < time.Second {
		return invalid(errors.New("keep_alive must be at least 1 second"))
	}

	if err := cv.ValidatePublishTopic(config.TopicBase); err != nil {
		return fmt.Errorf("topic_base: %w", err)
	}

	return nil
}

// ValidateTranslatorConfig validates cover translator settings
func (cv *ConfigValidator) ValidateTranslatorConfig(config *TranslatorConfig) error {
	if err := cv.ValidateSubscribeTopic(config.TopicIn); err != nil {
		return fmt.Errorf("topic_in: %w", err)
	}

	if err := cv.ValidatePublishTopic(config.TopicOut); err != nil {
		return fmt.Errorf("topic_out: %w", err)
	}

	if WildcardBase(config.TopicIn) == strings.TrimSuffix(config.TopicOut, "/") {
		return invalid(errors.New("topic_out must differ from the topic_in base"))
	}

	if config.CoverSize <= 0 || config.CoverSize > DisplayHeight {
		return invalid(fmt.Errorf("cover_size must be between 1 and %d", DisplayHeight))
	}

	if config.RetryAttempts < 0 {
		return invalid(errors.New("retry_attempts must be >= 0"))
	}

	if config.RetryDelay < 0 {
		return invalid(errors.New("retry_delay cannot be negative"))
	}

	if config.CacheEntries < 0 {
		return invalid(errors.New("cache_entries must be >= 0"))
	}

	if config.CacheEntries > 0 && config.CacheWindow <= 0 {
		return invalid(errors.New("cache_window must be positive when the cover cache is enabled"))
	}

	return nil
}

// ValidateDisplayConfig validates display settings
func (cv *ConfigValidator) ValidateDisplayConfig(config *DisplayConfig) error {
	switch config.Mode {
	case DisplayModeCover, DisplayModeStarfield:
	default:
		return invalid(fmt.Errorf("unknown display mode %q", config.Mode))
	}

	switch config.Device {
	case DisplayDeviceSH1106:
		if config.I2CBus < 0 {
			return invalid(errors.New("i2c_bus cannot be negative"))
		}
		if config.Address == 0 || config.Address > 0x7F {
			return invalid(fmt.Errorf("i2c address %#x is not a 7-bit address", config.Address))
		}
		// the panel is 128x64; a quarter turn does not fit its page layout
		if config.Rotate%2 != 0 {
			return invalid(errors.New("rotate must be 0 or 2 for the sh1106 device"))
		}
	case DisplayDevicePNG:
		if config.Output == "" {
			return invalid(errors.New("output is required for the png device"))
		}
	default:
		return invalid(fmt.Errorf("unknown display device %q", config.Device))
	}

	if config.Rotate < 0 || config.Rotate > 3 {
		return invalid(errors.New("rotate must be between 0 and 3"))
	}

	if config.CoverSize <= 0 || config.CoverSize > DisplayHeight {
		return invalid(fmt.Errorf("cover_size must be between 1 and %d", DisplayHeight))
	}

	if config.FPS <= 0 || config.FPS > 120 {
		return invalid(errors.New("fps must be between 1 and 120"))
	}

	if config.Timeout < 0 {
		return invalid(errors.New("timeout cannot be negative"))
	}

	if config.Stars < 0 {
		return invalid(errors.New("stars cannot be negative"))
	}

	if config.StarDepth < 2 {
		return invalid(errors.New("star_depth must be at least 2"))
	}

	if config.Mode == DisplayModeStarfield {
		if config.TitleBarHeight < 0 || config.TitleBarHeight >= DisplayHeight {
			return invalid(errors.New("title_bar_height out of range"))
		}
	}

	return nil
}

// ValidateHistoryConfig validates storage configuration
func (cv *ConfigValidator) ValidateHistoryConfig(config *HistoryConfig) error {
	if !config.Enabled {
		return nil // History is optional
	}

	if config.DatabasePath == "" {
		return invalid(errors.New("database_path is required when history is enabled"))
	}

	if config.RetentionDays < 0 {
		return invalid(errors.New("retention_days cannot be negative"))
	}

	if config.CleanupInterval <= 0 {
		return invalid(errors.New("cleanup_interval must be positive"))
	}

	return nil
}

// ValidatePublishTopic rejects empty topics and topics containing wildcards.
func (cv *ConfigValidator) ValidatePublishTopic(topic string) error {
	if topic == "" {
		return invalid(errors.New("topic cannot be empty"))
	}
	if strings.ContainsAny(topic, "+#") {
		return invalid(fmt.Errorf("topic %q cannot contain wildcards", topic))
	}
	return nil
}

// ValidateSubscribeTopic checks MQTT filter syntax: '#' only as the last
// level and wildcards only as whole levels.
func (cv *ConfigValidator) ValidateSubscribeTopic(filter string) error {
	if filter == "" {
		return invalid(errors.New("topic filter cannot be empty"))
	}

	levels := strings.Split(filter, "/")
	for i, level := range levels {
		if strings.Contains(level, "#") && (level != "#" || i != len(levels)-1) {
			return invalid(fmt.Errorf("'#' must be the last level in %q", filter))
		}
		if strings.Contains(level, "+") && level != "+" {
			return invalid(fmt.Errorf("'+' must occupy a whole level in %q", filter))
		}
	}
	return nil
}

// PlaceholderFields lists credentials that still hold template values.
func (cv *ConfigValidator) PlaceholderFields(config *Config) []string {
	var fields []string
	check := func(name, value string) {
		if strings.HasPrefix(value, "YOUR_") {
			fields = append(fields, name)
		}
	}
	check("mqtt.broker", config.MQTT.Broker)
	check("mqtt.username", config.MQTT.Username)
	check("mqtt.password", config.MQTT.Password)
	return fields
}

func invalid(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
}
