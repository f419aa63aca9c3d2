// Package server provides configuration helpers that define runtime defaults,
// validation, and layered loading for the chat service.
package server

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings.
type Config struct {
	Port           string
	AllowedOrigins []string
	MaxMessageSize int64
	RateLimit      RateLimitConfig

	// SendBufferSize bounds each connection's outbound queue. A member whose
	// queue is full when a broadcast arrives is disconnected.
	SendBufferSize int
	HistoryLimit   int
	DefaultRoom    string
	Rooms          []chat.RoomConfig

	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
	ShutdownTimeout time.Duration
}

// Config keys understood by LoadConfig.
const (
	keyPort            = "port"
	keyAllowedOrigins  = "allowed_origins"
	keyMaxMessageSize  = "max_message_size"
	keyRateBurst       = "rate_limit.burst"
	keyRateRefill      = "rate_limit.refill_interval"
	keySendBuffer      = "send_buffer_size"
	keyHistoryLimit    = "history_limit"
	keyDefaultRoom     = "default_room"
	keyRooms           = "rooms"
	keyWriteWait       = "write_wait"
	keyPongWait        = "pong_wait"
	keyPingPeriod      = "ping_period"
	keyShutdownTimeout = "shutdown_timeout"
)

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Port:           ":8000",
		AllowedOrigins: []string{"*"},
		MaxMessageSize: 4096,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		SendBufferSize:  256,
		HistoryLimit:    chat.DefaultHistoryLimit,
		DefaultRoom:     "General",
		Rooms:           append([]chat.RoomConfig(nil), chat.DefaultRooms...),
		WriteWait:       10 * time.Second,
		PongWait:        60 * time.Second,
		PingPeriod:      54 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Sanitize replaces unusable values with defaults.
func (c Config) Sanitize() Config {
	def := DefaultConfig()

	if c.Port == "" {
		c.Port = def.Port
	}
	if !strings.Contains(c.Port, ":") {
		c.Port = ":" + c.Port
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = def.RateLimit.Burst
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = def.HistoryLimit
	}
	// History replay plus the user list and join notice must fit in the queue.
	if minBuffer := c.HistoryLimit + 2; c.SendBufferSize < minBuffer {
		c.SendBufferSize = max(minBuffer, def.SendBufferSize)
	}
	if c.DefaultRoom == "" {
		c.DefaultRoom = def.DefaultRoom
	}
	if c.Rooms == nil {
		c.Rooms = def.Rooms
	}
	if c.WriteWait <= 0 {
		c.WriteWait = def.WriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = def.PongWait
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	c.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
	return c
}

// NewViper returns a viper instance carrying the defaults and environment
// bindings for every key. configFile is optional.
func NewViper(configFile string) (*viper.Viper, error) {
	def := DefaultConfig()
	v := viper.New()

	v.SetDefault(keyPort, def.Port)
	v.SetDefault(keyAllowedOrigins, def.AllowedOrigins)
	v.SetDefault(keyMaxMessageSize, def.MaxMessageSize)
	v.SetDefault(keyRateBurst, def.RateLimit.Burst)
	v.SetDefault(keyRateRefill, def.RateLimit.RefillInterval.String())
	v.SetDefault(keySendBuffer, def.SendBufferSize)
	v.SetDefault(keyHistoryLimit, def.HistoryLimit)
	v.SetDefault(keyDefaultRoom, def.DefaultRoom)
	v.SetDefault(keyWriteWait, def.WriteWait)
	v.SetDefault(keyPongWait, def.PongWait)
	v.SetDefault(keyPingPeriod, def.PingPeriod)
	v.SetDefault(keyShutdownTimeout, def.ShutdownTimeout)

	v.SetEnvPrefix("CHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unprefixed names kept for existing deployments.
	bindings := map[string]string{
		keyPort:           "SERVER_PORT",
		keyAllowedOrigins: "ALLOWED_ORIGINS",
		keyMaxMessageSize: "MAX_MESSAGE_SIZE",
		keyRateBurst:      "RATE_LIMIT_BURST",
		keyRateRefill:     "RATE_LIMIT_REFILL_INTERVAL",
	}
	for key, env := range bindings {
		prefixed := "CHAT_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}
	return v, nil
}

// LoadConfig builds a sanitized Config from v.
func LoadConfig(v *viper.Viper) (Config, error) {
	cfg := Config{
		Port:           v.GetString(keyPort),
		AllowedOrigins: parseOrigins(v.GetStringSlice(keyAllowedOrigins)),
		MaxMessageSize: v.GetInt64(keyMaxMessageSize),
		RateLimit: RateLimitConfig{
			Burst:          v.GetInt(keyRateBurst),
			RefillInterval: parseRefillInterval(v.GetString(keyRateRefill), time.Second),
		},
		SendBufferSize:  v.GetInt(keySendBuffer),
		HistoryLimit:    v.GetInt(keyHistoryLimit),
		DefaultRoom:     v.GetString(keyDefaultRoom),
		WriteWait:       v.GetDuration(keyWriteWait),
		PongWait:        v.GetDuration(keyPongWait),
		PingPeriod:      v.GetDuration(keyPingPeriod),
		ShutdownTimeout: v.GetDuration(keyShutdownTimeout),
	}

	if v.IsSet(keyRooms) {
		if err := v.UnmarshalKey(keyRooms, &cfg.Rooms); err != nil {
			return Config{}, fmt.Errorf("decode %s: %w", keyRooms, err)
		}
		if cfg.Rooms == nil {
			cfg.Rooms = []chat.RoomConfig{}
		}
	}
	return cfg.Sanitize(), nil
}

// parseOrigins accepts both list values and a single comma separated string,
// which is how the environment supplies them.
func parseOrigins(values []string) []string {
	var origins []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				origins = append(origins, part)
			}
		}
	}
	return origins
}

// parseRefillInterval reads a bare integer as seconds and anything else as a
// Go duration string.
func parseRefillInterval(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
