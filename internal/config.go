package internal

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

const (
	StorageBadger = "badger"
	StorageFile   = "file"
)

type Config struct {
	BotToken       string `env:"BOT_TOKEN,required=true" validate:"required"`
	TelegramAPIURL string `env:"TELEGRAM_API_URL,default=https://api.telegram.org" validate:"required,url"`

	NumberOfWorkers int           `env:"NUMBER_OF_WORKERS,default=20" validate:"min=1,max=1024"`
	BufferSize      int           `env:"BUFFER_SIZE,default=100" validate:"min=1"`
	HandleTimeout   time.Duration `env:"HANDLE_TIMEOUT,default=30s" validate:"min=1s"`
	NotifyWorkers   int           `env:"NOTIFY_WORKERS,default=8" validate:"min=1,max=256"`
	DeliveryTimeout time.Duration `env:"DELIVERY_TIMEOUT,default=10s" validate:"min=100ms"`
	SendRetries     int           `env:"SEND_RETRIES,default=3" validate:"min=0,max=10"`
	DedupWindow     time.Duration `env:"DEDUP_WINDOW,default=5m" validate:"min=1s"`

	PollTimeout     time.Duration `env:"POLL_TIMEOUT,default=30s" validate:"min=0s,max=1m"`
	PollLimit       int           `env:"POLL_LIMIT,default=100" validate:"min=1,max=100"`
	PollMinBackoff  time.Duration `env:"POLL_MIN_BACKOFF,default=500ms" validate:"min=10ms"`
	PollMaxBackoff  time.Duration `env:"POLL_MAX_BACKOFF,default=30s" validate:"gtefield=PollMinBackoff"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=200ms" validate:"min=10ms"`

	SnapshotInterval  time.Duration `env:"SNAPSHOT_INTERVAL,default=5m" validate:"min=1s"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL,default=1m" validate:"min=1s"`
	StorageBackend    string        `env:"STORAGE_BACKEND,default=badger" validate:"oneof=badger file"`
	BadgerFilepath    string        `env:"BADGER_FILEPATH,default=./data/badger" validate:"required_if=StorageBackend badger"`
	SnapshotFilepath  string        `env:"SNAPSHOT_FILEPATH,default=./data/santa.json" validate:"required_if=StorageBackend file"`

	LogLevel string `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR debug info warn error"`
	Host     string `env:"HOST,default=localhost"`
	Port     int    `env:"PORT,default=8080" validate:"min=0,max=65535"`
	GrpcPort int    `env:"GRPC_PORT,default=0" validate:"min=0,max=65535"`
}

// LoadConfig reads the configuration from the environment and validates it.
func LoadConfig() (Config, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.GrpcPort != 0 && c.GrpcPort == c.Port {
		return fmt.Errorf("invalid config: GRPC_PORT and PORT are both %d", c.Port)
	}
	return nil
}
