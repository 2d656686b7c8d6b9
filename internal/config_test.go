package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	req := require.New(t)
	t.Setenv("BOT_TOKEN", "123:abc")

	config, err := LoadConfig()

	req.NoError(err)
	req.Equal("123:abc", config.BotToken)
	req.Equal(20, config.NumberOfWorkers)
	req.Equal(5*time.Minute, config.DedupWindow)
	req.Equal(5*time.Minute, config.SnapshotInterval)
	req.Equal(StorageBadger, config.StorageBackend)
	req.Equal("https://api.telegram.org", config.TelegramAPIURL)
}

func TestLoadConfig_Token_Required(t *testing.T) {
	req := require.New(t)
	t.Setenv("BOT_TOKEN", "")

	_, err := LoadConfig()

	req.Error(err)
}

func TestConfig_Validate(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	valid, err := LoadConfig()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"no workers", func(c *Config) { c.NumberOfWorkers = 0 }},
		{"unknown backend", func(c *Config) { c.StorageBackend = "redis" }},
		{"file backend without path", func(c *Config) { c.StorageBackend = StorageFile; c.SnapshotFilepath = "" }},
		{"backoff bounds swapped", func(c *Config) { c.PollMinBackoff = time.Minute; c.PollMaxBackoff = time.Second }},
		{"tiny dedup window", func(c *Config) { c.DedupWindow = time.Millisecond }},
		{"bad log level", func(c *Config) { c.LogLevel = "LOUD" }},
		{"same ports", func(c *Config) { c.GrpcPort = c.Port }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid
			tt.mutate(&config)
			require.Error(t, config.Validate())
		})
	}
}
