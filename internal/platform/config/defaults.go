package config

import "time"

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:   "0.0.0.0",
			Port: 8080,
		},
		Log: LogConfig{
			Level: "INFO",
			Dir:   "data/logs",
			File:  "server.log",
		},
		Web: WebConfig{
			Enabled:   true,
			StaticDir: "./web",
		},
		Database: DatabaseConfig{
			DSN: "data/matrix.db",
		},
		ImageStore: ImageStoreConfig{
			Driver: "sqlite",
			Redis: RedisStoreConfig{
				Addr:   "127.0.0.1:6379",
				Prefix: "matrix:image:",
			},
		},
		Transmission: TransmissionConfig{
			RequestTimeout: 15 * time.Second,
			RetryAttempts:  3,
			RetryBaseDelay: 100 * time.Millisecond,
			RetryMaxDelay:  time.Second,
			UserAgent:      "Matrix-Server/1.0",
		},
		Security: SecurityConfig{
			MaxFileSize:    10 * 1024 * 1024,
			MaxPixels:      40_000_000,
			MaxWidth:       8192,
			MaxHeight:      8192,
			AllowedFormats: []string{"jpeg", "jpg", "png", "gif", "webp", "bmp"},
			EnableDeepScan: true,
		},
		MQTT: MQTTConfig{
			Enabled:     false,
			Broker:      "tcp://127.0.0.1:1883",
			ClientID:    "matrix-server",
			TopicPrefix: "matrix",
			QoS:         1,
		},
	}
}
