package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"matrix-server-go/internal/platform/errors"
)

// EnvPrefix prefixes every environment override, e.g. MATRIX_SERVER_PORT.
const EnvPrefix = "MATRIX_"

// DefaultSearchPaths are tried in order when no explicit path is set.
var DefaultSearchPaths = []string{".config.yaml", "config.yaml"}

// Loader reads the YAML configuration file and applies environment overrides
// on top of DefaultConfig.
type Loader struct {
	useDotEnv bool
	path      string
	lookupEnv func(string) (string, bool)
}

// NewLoader creates a loader that searches DefaultSearchPaths.
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		lookupEnv: os.LookupEnv,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath pins the configuration file instead of searching for one.
func (l *Loader) WithPath(path string) *Loader {
	l.path = strings.TrimSpace(path)
	return l
}

// WithEnv replaces the environment lookup (useful for tests).
func (l *Loader) WithEnv(lookup func(string) (string, bool)) *Loader {
	if lookup != nil {
		l.lookupEnv = lookup
	}
	return l
}

// Result captures the loaded configuration and its origin path.
type Result struct {
	Config *Config
	// Path is the file the configuration came from, or "defaults".
	Path string
}

// Load builds the effective configuration.
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		// a missing .env is normal outside development
		_ = godotenv.Load()
	}

	cfg := DefaultConfig()
	path, err := l.resolvePath()
	if err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.KindConfig, "config.read", fmt.Sprintf("failed to read %s", path), err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.KindConfig, "config.parse", fmt.Sprintf("failed to parse %s", path), err)
		}
	} else {
		path = "defaults"
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return &Result{Config: cfg, Path: path}, nil
}

func (l *Loader) resolvePath() (string, error) {
	if l.path != "" {
		if _, err := os.Stat(l.path); err != nil {
			return "", errors.Wrap(errors.KindConfig, "config.resolve", fmt.Sprintf("config file %s not accessible", l.path), err)
		}
		return l.path, nil
	}
	if v, ok := l.lookupEnv(EnvPrefix + "CONFIG"); ok && strings.TrimSpace(v) != "" {
		l.path = strings.TrimSpace(v)
		return l.resolvePath()
	}
	for _, candidate := range DefaultSearchPaths {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", nil
}

type envBinding struct {
	key   string
	apply func(cfg *Config, value string) error
}

var envBindings = []envBinding{
	{"SERVER_IP", func(c *Config, v string) error { c.Server.IP = v; return nil }},
	{"SERVER_PORT", intSetter(func(c *Config) *int { return &c.Server.Port })},
	{"LOG_LEVEL", func(c *Config, v string) error { c.Log.Level = v; return nil }},
	{"LOG_DIR", func(c *Config, v string) error { c.Log.Dir = v; return nil }},
	{"DATABASE_DSN", func(c *Config, v string) error { c.Database.DSN = v; return nil }},
	{"IMAGE_STORE_DRIVER", func(c *Config, v string) error { c.ImageStore.Driver = v; return nil }},
	{"REDIS_ADDR", func(c *Config, v string) error { c.ImageStore.Redis.Addr = v; return nil }},
	{"REDIS_PASSWORD", func(c *Config, v string) error { c.ImageStore.Redis.Password = v; return nil }},
	{"TRANSMISSION_TIMEOUT", durationSetter(func(c *Config) *time.Duration { return &c.Transmission.RequestTimeout })},
	{"TRANSMISSION_RETRY_ATTEMPTS", intSetter(func(c *Config) *int { return &c.Transmission.RetryAttempts })},
	{"MQTT_ENABLED", boolSetter(func(c *Config) *bool { return &c.MQTT.Enabled })},
	{"MQTT_BROKER", func(c *Config, v string) error { c.MQTT.Broker = v; return nil }},
	{"MQTT_USERNAME", func(c *Config, v string) error { c.MQTT.Username = v; return nil }},
	{"MQTT_PASSWORD", func(c *Config, v string) error { c.MQTT.Password = v; return nil }},
}

func intSetter(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func boolSetter(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func durationSetter(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}

func (l *Loader) applyEnv(cfg *Config) error {
	for _, b := range envBindings {
		value, ok := l.lookupEnv(EnvPrefix + b.key)
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if err := b.apply(cfg, value); err != nil {
			return errors.Wrap(errors.KindConfig, "config.env", fmt.Sprintf("invalid %s%s", EnvPrefix, b.key), err)
		}
	}
	return nil
}

// Validate rejects configurations the server cannot start with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New(errors.KindConfig, "config.validate", "config is nil")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New(errors.KindConfig, "config.validate", fmt.Sprintf("invalid server port: %d", cfg.Server.Port))
	}
	switch strings.ToLower(cfg.ImageStore.Driver) {
	case "memory", "sqlite":
	case "redis":
		if strings.TrimSpace(cfg.ImageStore.Redis.Addr) == "" {
			return errors.New(errors.KindConfig, "config.validate", "redis image store requires an address")
		}
	default:
		return errors.New(errors.KindConfig, "config.validate", fmt.Sprintf("unsupported image store driver: %s", cfg.ImageStore.Driver))
	}
	t := cfg.Transmission
	if t.RequestTimeout <= 0 {
		return errors.New(errors.KindConfig, "config.validate", "transmission.request_timeout must be positive")
	}
	if t.RetryAttempts < 1 {
		return errors.New(errors.KindConfig, "config.validate", "transmission.retry_attempts must be at least 1")
	}
	if t.RetryBaseDelay < 0 || t.RetryMaxDelay < t.RetryBaseDelay {
		return errors.New(errors.KindConfig, "config.validate", "transmission retry delays are inconsistent")
	}
	if cfg.Security.MaxFileSize <= 0 {
		return errors.New(errors.KindConfig, "config.validate", "security.max_file_size must be positive")
	}
	if cfg.MQTT.Enabled {
		u, err := url.Parse(cfg.MQTT.Broker)
		if err != nil || u.Host == "" {
			return errors.New(errors.KindConfig, "config.validate", fmt.Sprintf("invalid mqtt broker: %s", cfg.MQTT.Broker))
		}
		if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
			return errors.New(errors.KindConfig, "config.validate", fmt.Sprintf("invalid mqtt qos: %d", cfg.MQTT.QoS))
		}
	}
	return nil
}
