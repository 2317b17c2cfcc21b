// CoverLink - Build-time Credentials Template
// Copyright (c) 2025 - Open Source Project

// Package credentials holds the Wi-Fi and MQTT broker credentials compiled
// into the CoverLink binaries.
//
// Edit the placeholder values below before building, or leave this file
// untouched and inject the values at link time:
//
//	go build -ldflags "\
//	  -X coverlink/credentials.WiFiSSID=home \
//	  -X coverlink/credentials.BrokerHost=10.0.0.50 \
//	  -X coverlink/credentials.BrokerPort=1883" ./cmd/coverlink
//
// Only string variables can be set with -X, which is why BrokerPort is text.
// Keep real secrets out of version control.
package credentials

import (
	"strconv"
	"strings"
)

const (
	// DefaultBrokerPort is the plain MQTT port used when BrokerPort is empty or not a number.
	DefaultBrokerPort = 1883
	// DefaultTopicBase is the shairport-sync topic namespace used when TopicBase is empty.
	DefaultTopicBase = "iotstack/shairport"
)

// Wi-Fi
var (
	WiFiSSID     = "YOUR_WIFI_SSID"
	WiFiPassword = "YOUR_WIFI_PASSWORD"
)

// MQTT broker
var (
	BrokerHost     = "YOUR_MQTT_BROKER_IP"
	BrokerPort     = "1883"
	BrokerUser     = "YOUR_MQTT_USER"
	BrokerPassword = "YOUR_MQTT_PASSWORD"

	// TopicBase overrides DefaultTopicBase when non-empty.
	TopicBase = ""
)

// Bundle is a snapshot of the compiled-in credentials.
type Bundle struct {
	WiFiSSID       string `yaml:"wifi_ssid" json:"wifi_ssid"`
	WiFiPassword   string `yaml:"wifi_password" json:"-"`
	BrokerHost     string `yaml:"broker_host" json:"broker_host"`
	BrokerPort     int    `yaml:"broker_port" json:"broker_port"`
	BrokerUser     string `yaml:"broker_user" json:"broker_user"`
	BrokerPassword string `yaml:"broker_password" json:"-"`
	TopicBase      string `yaml:"topic_base" json:"topic_base"`
}

// Default returns the bundle compiled into this binary.
func Default() Bundle {
	return Bundle{
		WiFiSSID:       WiFiSSID,
		WiFiPassword:   WiFiPassword,
		BrokerHost:     BrokerHost,
		BrokerPort:     parsePort(BrokerPort),
		BrokerUser:     BrokerUser,
		BrokerPassword: BrokerPassword,
		TopicBase:      TopicBase,
	}
}

// Topic returns the effective topic namespace.
func (b Bundle) Topic() string {
	if b.TopicBase == "" {
		return DefaultTopicBase
	}
	return b.TopicBase
}

// Port returns the effective broker port.
func (b Bundle) Port() int {
	if b.BrokerPort <= 0 {
		return DefaultBrokerPort
	}
	return b.BrokerPort
}

func parsePort(s string) int {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || port <= 0 || port > 65535 {
		return DefaultBrokerPort
	}
	return port
}

const redacted = "********"

// Redacted returns a copy with the passwords masked, for printing.
func (b Bundle) Redacted() Bundle {
	if b.WiFiPassword != "" {
		b.WiFiPassword = redacted
	}
	if b.BrokerPassword != "" {
		b.BrokerPassword = redacted
	}
	return b
}
