package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "WHITEBOARD"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultLogLevel      = "info"
	defaultLogFormat     = "json"
	defaultPublicBaseURL = "http://localhost:3000"
	defaultSweepInterval = time.Minute
	defaultSendBuffer    = 256
	defaultMaxMessage    = 1024 * 1024
	defaultMessageRate   = 100
	defaultMessageBurst  = 200
	defaultPingInterval  = 54 * time.Second
	defaultPongWait      = 60 * time.Second
	defaultWriteWait     = 10 * time.Second
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	LogLevel       string
	LogFormat      string
	DatabasePath   string
	PublicBaseURL  string
	AllowedOrigins []string
	MaxElements    int
	UnclaimedTTL   time.Duration
	SweepInterval  time.Duration
	Realtime       RealtimeConfig
}

// RealtimeConfig tunes the websocket transport.
type RealtimeConfig struct {
	SendBuffer        int
	MaxMessageBytes   int64
	MessagesPerSecond float64
	MessageBurst      int
	PingInterval      time.Duration
	PongWait          time.Duration
	WriteWait         time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("database.path", "")
	configViper.SetDefault("directory.public_base_url", defaultPublicBaseURL)
	configViper.SetDefault("cors.allowed_origins", []string{"*"})
	configViper.SetDefault("canvas.max_elements", 0)
	configViper.SetDefault("rooms.unclaimed_ttl", time.Duration(0))
	configViper.SetDefault("rooms.sweep_interval", defaultSweepInterval)
	configViper.SetDefault("realtime.send_buffer", defaultSendBuffer)
	configViper.SetDefault("realtime.max_message_bytes", defaultMaxMessage)
	configViper.SetDefault("realtime.messages_per_second", defaultMessageRate)
	configViper.SetDefault("realtime.message_burst", defaultMessageBurst)
	configViper.SetDefault("realtime.ping_interval", defaultPingInterval)
	configViper.SetDefault("realtime.pong_wait", defaultPongWait)
	configViper.SetDefault("realtime.write_wait", defaultWriteWait)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    strings.TrimSpace(configViper.GetString("http.address")),
		LogLevel:       strings.TrimSpace(configViper.GetString("log.level")),
		LogFormat:      strings.ToLower(strings.TrimSpace(configViper.GetString("log.format"))),
		DatabasePath:   strings.TrimSpace(configViper.GetString("database.path")),
		PublicBaseURL:  strings.TrimSpace(configViper.GetString("directory.public_base_url")),
		AllowedOrigins: splitOrigins(configViper.GetStringSlice("cors.allowed_origins")),
		MaxElements:    configViper.GetInt("canvas.max_elements"),
		UnclaimedTTL:   configViper.GetDuration("rooms.unclaimed_ttl"),
		SweepInterval:  configViper.GetDuration("rooms.sweep_interval"),
		Realtime: RealtimeConfig{
			SendBuffer:        configViper.GetInt("realtime.send_buffer"),
			MaxMessageBytes:   configViper.GetInt64("realtime.max_message_bytes"),
			MessagesPerSecond: configViper.GetFloat64("realtime.messages_per_second"),
			MessageBurst:      configViper.GetInt("realtime.message_burst"),
			PingInterval:      configViper.GetDuration("realtime.ping_interval"),
			PongWait:          configViper.GetDuration("realtime.pong_wait"),
			WriteWait:         configViper.GetDuration("realtime.write_wait"),
		},
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if c.HTTPAddress == "" {
		return fmt.Errorf("http.address is required")
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("log.format must be json or console")
	}
	parsed, err := url.Parse(c.PublicBaseURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("directory.public_base_url must be an absolute http(s) url")
	}
	if c.MaxElements < 0 {
		return fmt.Errorf("canvas.max_elements must not be negative")
	}
	if c.UnclaimedTTL < 0 {
		return fmt.Errorf("rooms.unclaimed_ttl must not be negative")
	}
	if c.UnclaimedTTL > 0 && c.SweepInterval <= 0 {
		return fmt.Errorf("rooms.sweep_interval must be positive when rooms.unclaimed_ttl is set")
	}
	if c.Realtime.SendBuffer <= 0 {
		return fmt.Errorf("realtime.send_buffer must be positive")
	}
	if c.Realtime.MaxMessageBytes <= 0 {
		return fmt.Errorf("realtime.max_message_bytes must be positive")
	}
	if c.Realtime.MessagesPerSecond <= 0 || c.Realtime.MessageBurst <= 0 {
		return fmt.Errorf("realtime.messages_per_second and realtime.message_burst must be positive")
	}
	if c.Realtime.PongWait <= 0 || c.Realtime.WriteWait <= 0 {
		return fmt.Errorf("realtime.pong_wait and realtime.write_wait must be positive")
	}
	if c.Realtime.PingInterval <= 0 || c.Realtime.PingInterval >= c.Realtime.PongWait {
		return fmt.Errorf("realtime.ping_interval must be positive and shorter than realtime.pong_wait")
	}
	return nil
}

// splitOrigins accepts both list values and a comma separated env value.
func splitOrigins(values []string) []string {
	origins := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return origins
}
