package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost:3000", cfg.ServerAddr)
	assert.Empty(t, cfg.AllowedOrigins)
	assert.Equal(t, SyncNone, cfg.SyncBackend)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 5*time.Second, cfg.HeartbeatTimeout)
	assert.Equal(t, 5*time.Minute, cfg.CleanupGrace)
	assert.Equal(t, 24*time.Hour, cfg.MirrorTTL)
	assert.Equal(t, 20.0, cfg.MessageRate)
	assert.Equal(t, 40, cfg.MessageBurst)
	assert.NoError(t, cfg.Validate(), "expected defaults to be valid")
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PARTYNIGHT_ADDR", ":9000")
	t.Setenv("PARTYNIGHT_ALLOWED_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("PARTYNIGHT_SYNC_BACKEND", "redis")
	t.Setenv("PARTYNIGHT_REDIS_ADDR", "redis:6379")
	t.Setenv("PARTYNIGHT_HEARTBEAT_INTERVAL", "10s")
	t.Setenv("PARTYNIGHT_HEARTBEAT_TIMEOUT", "2s")
	t.Setenv("PARTYNIGHT_CLEANUP_GRACE", "1m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ServerAddr)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.Equal(t, SyncRedis, cfg.SyncBackend)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, 10*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 2*time.Second, cfg.HeartbeatTimeout)
	assert.Equal(t, time.Minute, cfg.CleanupGrace)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("PARTYNIGHT_HEARTBEAT_INTERVAL", "soon")

	_, err := Load()
	assert.Error(t, err, "expected an unparsable duration to fail")
}

func validConfig() Config {
	return Config{
		ServerAddr:        "localhost:3000",
		SyncBackend:       SyncNone,
		RedisAddr:         "localhost:6379",
		NatsURL:           "nats://127.0.0.1:4222",
		NatsBucket:        "partynight",
		MirrorTTL:         24 * time.Hour,
		HeartbeatInterval: 30 * time.Second,
		HeartbeatTimeout:  5 * time.Second,
		CleanupGrace:      5 * time.Minute,
		MessageRate:       20,
		MessageBurst:      40,
	}
}

func TestValidate(t *testing.T) {
	tcases := []struct {
		name   string
		modify func(*Config)
		err    bool
	}{
		{
			name:   "valid config",
			modify: func(c *Config) {},
		},
		{
			name:   "empty address",
			modify: func(c *Config) { c.ServerAddr = "" },
			err:    true,
		},
		{
			name:   "unknown sync backend",
			modify: func(c *Config) { c.SyncBackend = "etcd" },
			err:    true,
		},
		{
			name:   "redis without address",
			modify: func(c *Config) { c.SyncBackend = SyncRedis; c.RedisAddr = "" },
			err:    true,
		},
		{
			name:   "nats",
			modify: func(c *Config) { c.SyncBackend = SyncNats },
		},
		{
			name:   "nats without bucket",
			modify: func(c *Config) { c.SyncBackend = SyncNats; c.NatsBucket = "" },
			err:    true,
		},
		{
			name:   "zero heartbeat interval",
			modify: func(c *Config) { c.HeartbeatInterval = 0 },
			err:    true,
		},
		{
			name:   "negative cleanup grace",
			modify: func(c *Config) { c.CleanupGrace = -time.Second },
			err:    true,
		},
		{
			name:   "timeout not shorter than interval",
			modify: func(c *Config) { c.HeartbeatTimeout = c.HeartbeatInterval },
			err:    true,
		},
		{
			name:   "zero message burst",
			modify: func(c *Config) { c.MessageBurst = 0 },
			err:    true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.modify(&cfg)

			err := cfg.Validate()
			if tc.err {
				assert.Error(t, err, "expected an error")
			} else {
				assert.NoError(t, err, "expected no error")
			}
		})
	}
}
