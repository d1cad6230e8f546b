package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	SyncNone  = "none"
	SyncRedis = "redis"
	SyncNats  = "nats"
)

type Config struct {
	ServerAddr     string   `env:"PARTYNIGHT_ADDR"            envDefault:"localhost:3000"`
	AllowedOrigins []string `env:"PARTYNIGHT_ALLOWED_ORIGINS" envSeparator:","`

	// SyncBackend selects where party state is mirrored: none, redis or nats.
	SyncBackend string        `env:"PARTYNIGHT_SYNC_BACKEND" envDefault:"none"`
	RedisAddr   string        `env:"PARTYNIGHT_REDIS_ADDR"   envDefault:"localhost:6379"`
	NatsURL     string        `env:"PARTYNIGHT_NATS_URL"     envDefault:"nats://127.0.0.1:4222"`
	NatsBucket  string        `env:"PARTYNIGHT_NATS_BUCKET"  envDefault:"partynight"`
	MirrorTTL   time.Duration `env:"PARTYNIGHT_MIRROR_TTL"   envDefault:"24h"`

	HeartbeatInterval time.Duration `env:"PARTYNIGHT_HEARTBEAT_INTERVAL" envDefault:"30s"`
	HeartbeatTimeout  time.Duration `env:"PARTYNIGHT_HEARTBEAT_TIMEOUT"  envDefault:"5s"`
	CleanupGrace      time.Duration `env:"PARTYNIGHT_CLEANUP_GRACE"      envDefault:"5m"`

	// MessageRate is the sustained number of messages per second a client
	// may send, MessageBurst the number it may send at once.
	MessageRate  float64 `env:"PARTYNIGHT_MESSAGE_RATE"  envDefault:"20"`
	MessageBurst int     `env:"PARTYNIGHT_MESSAGE_BURST" envDefault:"40"`
}

// Load reads the configuration from the environment. The result is not
// validated so flags can still override it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.ServerAddr == "" {
		return errors.New("server address cannot be empty")
	}

	switch c.SyncBackend {
	case SyncNone:
	case SyncRedis:
		if c.RedisAddr == "" {
			return errors.New("redis address cannot be empty")
		}
	case SyncNats:
		if c.NatsURL == "" {
			return errors.New("nats url cannot be empty")
		}
		if c.NatsBucket == "" {
			return errors.New("nats bucket cannot be empty")
		}
	default:
		return fmt.Errorf("unknown sync backend %q", c.SyncBackend)
	}

	durations := []struct {
		name string
		d    time.Duration
	}{
		{"heartbeat interval", c.HeartbeatInterval},
		{"heartbeat timeout", c.HeartbeatTimeout},
		{"cleanup grace", c.CleanupGrace},
		{"mirror ttl", c.MirrorTTL},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.d)
		}
	}

	if c.HeartbeatTimeout >= c.HeartbeatInterval {
		return fmt.Errorf("heartbeat timeout %s must be shorter than the interval %s",
			c.HeartbeatTimeout, c.HeartbeatInterval)
	}

	if c.MessageRate <= 0 || c.MessageBurst <= 0 {
		return errors.New("message rate and burst must be positive")
	}

	return nil
}
