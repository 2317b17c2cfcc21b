package coverlink

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coverlink/credentials"
)

// allConfigKeys lists every env var that LoadConfig reads.
var allConfigKeys = []string{
	"MQTT_BROKER", "MQTT_PORT", "MQTT_USER", "MQTT_PASS", "MQTT_CLIENT_ID",
	"MQTT_TOPIC_BASE", "MQTT_KEEP_ALIVE", "MQTT_TOPIC_IN", "MQTT_TOPIC_OUT",
	"COVER_SIZE", "RETRY_ATTEMPTS", "RETRY_DELAY", "COVER_CACHE_WINDOW", "COVER_CACHE_ENTRIES",
	"DISPLAY_MODE", "DISPLAY_DEVICE", "DISPLAY_I2C_BUS", "DISPLAY_OUTPUT",
	"DISPLAY_TIMEOUT", "DISPLAY_FPS", "DISPLAY_FONT",
	"HISTORY_ENABLED", "HISTORY_DB_PATH", "HISTORY_RETENTION_DAYS",
	"LOG_LEVEL", "HEALTH_CHECK_PORT",
}

// isolateConfigEnv unsets all config env vars so tests don't inherit values
// from the host environment.
func isolateConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range allConfigKeys {
		if orig, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	isolateConfigEnv(t)

	cfg, err := LoadConfig("")

	require.NoError(t, err)
	bundle := credentials.Default()
	assert.Equal(t, bundle.BrokerHost, cfg.MQTT.Broker)
	assert.Equal(t, 1883, cfg.MQTT.Port)
	assert.Equal(t, "iotstack/shairport", cfg.MQTT.TopicBase)
	assert.Equal(t, "iotstack/shairport/#", cfg.Translator.TopicIn)
	assert.Equal(t, "iotstack/shairport-extension", cfg.Translator.TopicOut)
	assert.Equal(t, 48, cfg.Translator.CoverSize)
	assert.Equal(t, 5*time.Minute, cfg.Display.Timeout)
	assert.Equal(t, 60*time.Second, cfg.MQTT.KeepAlive)
	assert.Equal(t, DisplayModeCover, cfg.Display.Mode)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("MQTT_BROKER", "10.0.0.50")
	t.Setenv("MQTT_PORT", "1884")
	t.Setenv("MQTT_USER", "mqtt")
	t.Setenv("MQTT_PASS", "secret")
	t.Setenv("MQTT_TOPIC_BASE", "living/airplay/")
	t.Setenv("DISPLAY_TIMEOUT", "30s")
	t.Setenv("HISTORY_ENABLED", "true")

	cfg, err := LoadConfig("")

	require.NoError(t, err)
	assert.Equal(t, "10.0.0.50", cfg.MQTT.Broker)
	assert.Equal(t, 1884, cfg.MQTT.Port)
	assert.Equal(t, "mqtt", cfg.MQTT.Username)
	assert.Equal(t, "secret", cfg.MQTT.Password)
	assert.Equal(t, "living/airplay", cfg.MQTT.TopicBase)
	assert.Equal(t, "living/airplay/#", cfg.Translator.TopicIn)
	assert.Equal(t, 30*time.Second, cfg.Display.Timeout)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, "tcp://10.0.0.50:1884", cfg.MQTT.BrokerURL())
}

func TestLoadConfig_InvalidEnvKeepsDefault(t *testing.T) {
	isolateConfigEnv(t)
	t.Setenv("MQTT_PORT", "not-a-port")
	t.Setenv("DISPLAY_TIMEOUT", "soon")

	cfg, err := LoadConfig("")

	require.NoError(t, err)
	assert.Equal(t, 1883, cfg.MQTT.Port)
	assert.Equal(t, 5*time.Minute, cfg.Display.Timeout)
}

func TestLoadConfig_YAMLThenEnv(t *testing.T) {
	isolateConfigEnv(t)
	path := filepath.Join(t.TempDir(), "coverlink.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mqtt:
  broker: broker.lan
  username: yaml-user
translator:
  topic_out: out/covers
  cover_size: 32
display:
  mode: starfield
  timeout: 90s
`), 0o600))
	t.Setenv("MQTT_USER", "env-user")

	cfg, err := LoadConfig(path)

	require.NoError(t, err)
	assert.Equal(t, "broker.lan", cfg.MQTT.Broker)
	assert.Equal(t, "env-user", cfg.MQTT.Username)
	assert.Equal(t, "out/covers", cfg.Translator.TopicOut)
	assert.Equal(t, 32, cfg.Translator.CoverSize)
	assert.Equal(t, DisplayModeStarfield, cfg.Display.Mode)
	assert.Equal(t, 90*time.Second, cfg.Display.Timeout)
	// untouched sections keep their defaults
	assert.Equal(t, 1883, cfg.MQTT.Port)
	assert.Equal(t, 30, cfg.Display.FPS)
}

func TestLoadConfig_BadYAML(t *testing.T) {
	isolateConfigEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mqtt: [unclosed"), 0o600))

	_, err := LoadConfig(path)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	isolateConfigEnv(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))

	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.MQTT.Broker = "localhost"
	cfg.Normalize()
	return cfg
}

func TestConfigValidator_Validate(t *testing.T) {
	cv := NewConfigValidator()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"empty broker", func(c *Config) { c.MQTT.Broker = "" }, true},
		{"port out of range", func(c *Config) { c.MQTT.Port = 70000 }, true},
		{"bad qos", func(c *Config) { c.MQTT.QoS = 3 }, true},
		{"short keepalive", func(c *Config) { c.MQTT.KeepAlive = 0 }, true},
		{"wildcard base", func(c *Config) { c.MQTT.TopicBase = "a/+/b" }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"bad health port", func(c *Config) { c.HealthCheckPort = -1 }, true},
		{"history without path", func(c *Config) {
			c.History.Enabled = true
			c.History.DatabasePath = ""
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cv.Validate(cfg)

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfiguration)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigValidator_Translator(t *testing.T) {
	cv := NewConfigValidator()
	cfg := validConfig()

	require.NoError(t, cv.ValidateTranslatorConfig(&cfg.Translator))

	same := cfg.Translator
	same.TopicOut = "iotstack/shairport"
	assert.Error(t, cv.ValidateTranslatorConfig(&same))

	big := cfg.Translator
	big.CoverSize = 65
	assert.Error(t, cv.ValidateTranslatorConfig(&big))

	cache := cfg.Translator
	cache.CacheWindow = 0
	assert.ErrorIs(t, cv.ValidateTranslatorConfig(&cache), ErrInvalidConfiguration)

	cache.CacheEntries = 0
	assert.NoError(t, cv.ValidateTranslatorConfig(&cache), "a disabled cache needs no window")
}

func TestConfigValidator_Display(t *testing.T) {
	cv := NewConfigValidator()
	cfg := validConfig()

	require.NoError(t, cv.ValidateDisplayConfig(&cfg.Display))

	bad := cfg.Display
	bad.Mode = "slideshow"
	assert.Error(t, cv.ValidateDisplayConfig(&bad))

	bad = cfg.Display
	bad.Address = 0x80
	assert.Error(t, cv.ValidateDisplayConfig(&bad))

	bad = cfg.Display
	bad.Device = DisplayDevicePNG
	bad.Output = ""
	assert.Error(t, cv.ValidateDisplayConfig(&bad))
}

func TestConfigValidator_DisplayStarsInCoverMode(t *testing.T) {
	cv := NewConfigValidator()
	cfg := validConfig()
	require.Equal(t, DisplayModeCover, cfg.Display.Mode)

	bad := cfg.Display
	bad.StarDepth = 1
	assert.ErrorIs(t, cv.ValidateDisplayConfig(&bad), ErrInvalidConfiguration)

	bad = cfg.Display
	bad.Stars = -1
	assert.ErrorIs(t, cv.ValidateDisplayConfig(&bad), ErrInvalidConfiguration)
}

func TestConfigValidator_DisplayRotate(t *testing.T) {
	cv := NewConfigValidator()
	cfg := validConfig()

	for _, rotate := range []int{0, 2} {
		ok := cfg.Display
		ok.Rotate = rotate
		assert.NoError(t, cv.ValidateDisplayConfig(&ok))
	}

	for _, rotate := range []int{1, 3} {
		bad := cfg.Display
		bad.Rotate = rotate
		assert.ErrorIs(t, cv.ValidateDisplayConfig(&bad), ErrInvalidConfiguration, "sh1106 rotate %d", rotate)
	}

	preview := cfg.Display
	preview.Device = DisplayDevicePNG
	preview.Rotate = 1
	assert.NoError(t, cv.ValidateDisplayConfig(&preview), "a png preview may be portrait")
}

func TestConfigValidator_SubscribeTopic(t *testing.T) {
	cv := NewConfigValidator()

	assert.NoError(t, cv.ValidateSubscribeTopic("iotstack/shairport/#"))
	assert.NoError(t, cv.ValidateSubscribeTopic("iotstack/+/cover"))
	assert.NoError(t, cv.ValidateSubscribeTopic("#"))
	assert.Error(t, cv.ValidateSubscribeTopic("iotstack/#/cover"))
	assert.Error(t, cv.ValidateSubscribeTopic("iotstack/shair#"))
	assert.Error(t, cv.ValidateSubscribeTopic("iotstack/sh+/cover"))
	assert.Error(t, cv.ValidateSubscribeTopic(""))
}

func TestConfigValidator_PlaceholderFields(t *testing.T) {
	cv := NewConfigValidator()
	cfg := DefaultConfig()
	cfg.MQTT.Broker = "YOUR_MQTT_BROKER_IP"
	cfg.MQTT.Username = "mqtt"
	cfg.MQTT.Password = "YOUR_MQTT_PASSWORD"

	assert.Equal(t, []string{"mqtt.broker", "mqtt.password"}, cv.PlaceholderFields(cfg))
}
