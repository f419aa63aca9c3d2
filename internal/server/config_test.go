package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/chat"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ":8000", cfg.Port)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(4096), cfg.MaxMessageSize)
	assert.Equal(t, 5, cfg.RateLimit.Burst)
	assert.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
	assert.Equal(t, chat.DefaultHistoryLimit, cfg.HistoryLimit)
	assert.Equal(t, "General", cfg.DefaultRoom)
	assert.Equal(t, chat.DefaultRooms, cfg.Rooms)
	assert.Less(t, cfg.PingPeriod, cfg.PongWait)
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		in    Config
		check func(t *testing.T, got Config)
	}{
		{
			name: "zero value gets defaults",
			in:   Config{},
			check: func(t *testing.T, got Config) {
				def := DefaultConfig()
				assert.Equal(t, def.Port, got.Port)
				assert.Equal(t, def.MaxMessageSize, got.MaxMessageSize)
				assert.Equal(t, def.RateLimit, got.RateLimit)
				assert.Equal(t, def.HistoryLimit, got.HistoryLimit)
				assert.Equal(t, def.SendBufferSize, got.SendBufferSize)
				assert.Equal(t, def.DefaultRoom, got.DefaultRoom)
				assert.Equal(t, def.Rooms, got.Rooms)
				assert.Equal(t, def.ShutdownTimeout, got.ShutdownTimeout)
			},
		},
		{
			name: "bare port gets a colon",
			in:   Config{Port: "9000"},
			check: func(t *testing.T, got Config) {
				assert.Equal(t, ":9000", got.Port)
			},
		},
		{
			name: "send buffer grows to fit history replay",
			in:   Config{HistoryLimit: 500, SendBufferSize: 10},
			check: func(t *testing.T, got Config) {
				assert.GreaterOrEqual(t, got.SendBufferSize, 502)
			},
		},
		{
			name: "ping period must be shorter than pong wait",
			in:   Config{PongWait: 10 * time.Second, PingPeriod: 20 * time.Second},
			check: func(t *testing.T, got Config) {
				assert.Equal(t, 9*time.Second, got.PingPeriod)
			},
		},
		{
			name: "explicit empty room list is kept",
			in:   Config{Rooms: []chat.RoomConfig{}},
			check: func(t *testing.T, got Config) {
				assert.Empty(t, got.Rooms)
				assert.NotNil(t, got.Rooms)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, tt.in.Sanitize())
		})
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	v, err := NewViper("")
	require.NoError(t, err)

	cfg, err := LoadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example, http://b.example")
	t.Setenv("RATE_LIMIT_BURST", "12")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "3")
	t.Setenv("CHAT_HISTORY_LIMIT", "20")
	t.Setenv("CHAT_DEFAULT_ROOM", "Lobby")

	v, err := NewViper("")
	require.NoError(t, err)
	cfg, err := LoadConfig(v)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Port)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 12, cfg.RateLimit.Burst)
	assert.Equal(t, 3*time.Second, cfg.RateLimit.RefillInterval)
	assert.Equal(t, 20, cfg.HistoryLimit)
	assert.Equal(t, "Lobby", cfg.DefaultRoom)
}

func TestLoadConfigPrefixedEnvironmentWins(t *testing.T) {
	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("CHAT_PORT", "9200")

	v, err := NewViper("")
	require.NoError(t, err)
	cfg, err := LoadConfig(v)
	require.NoError(t, err)

	assert.Equal(t, ":9200", cfg.Port)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roomchat.yaml")
	content := `port: ":7000"
max_message_size: 1024
rate_limit:
  burst: 2
  refill_interval: 500ms
rooms:
  - name: Lobby
    topic: Say hello
  - name: Dev
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	v, err := NewViper(path)
	require.NoError(t, err)
	cfg, err := LoadConfig(v)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Port)
	assert.Equal(t, int64(1024), cfg.MaxMessageSize)
	assert.Equal(t, 2, cfg.RateLimit.Burst)
	assert.Equal(t, 500*time.Millisecond, cfg.RateLimit.RefillInterval)
	assert.Equal(t, []chat.RoomConfig{{Name: "Lobby", Topic: "Say hello"}, {Name: "Dev"}}, cfg.Rooms)
}

func TestNewViperMissingFile(t *testing.T) {
	_, err := NewViper(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestParseRefillInterval(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", time.Second},
		{"4", 4 * time.Second},
		{"250ms", 250 * time.Millisecond},
		{"-1", time.Second},
		{"0s", time.Second},
		{"soon", time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseRefillInterval(tt.in, time.Second))
		})
	}
}

func TestParseOrigins(t *testing.T) {
	assert.Nil(t, parseOrigins(nil))
	assert.Equal(t, []string{"a", "b", "c"}, parseOrigins([]string{"a,b", " c ", ""}))
}
