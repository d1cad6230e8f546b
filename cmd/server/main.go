package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/npezzotti/go-partynight/internal/api"
	"github.com/npezzotti/go-partynight/internal/config"
	"github.com/npezzotti/go-partynight/internal/heartbeat"
	"github.com/npezzotti/go-partynight/internal/mirror"
	"github.com/npezzotti/go-partynight/internal/party"
	"github.com/npezzotti/go-partynight/internal/presence"
	"github.com/npezzotti/go-partynight/internal/server"
	"github.com/npezzotti/go-partynight/internal/stats"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr              string
	syncBackend       string
	redisAddr         string
	natsURL           string
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	cleanupGrace      time.Duration
	allowedOrigins    stringSliceFlag
)

func main() {
	logger := log.New(os.Stderr, "[partynight] ", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config: ", err)
	}

	flag.StringVar(&addr, "addr", cfg.ServerAddr, "server address")
	flag.StringVar(&syncBackend, "sync", cfg.SyncBackend, "where to mirror party state: none, redis or nats")
	flag.StringVar(&redisAddr, "redis-addr", cfg.RedisAddr, "redis address")
	flag.StringVar(&natsURL, "nats-url", cfg.NatsURL, "nats server url")
	flag.DurationVar(&heartbeatInterval, "heartbeat-interval", cfg.HeartbeatInterval, "interval between heartbeat pings")
	flag.DurationVar(&heartbeatTimeout, "heartbeat-timeout", cfg.HeartbeatTimeout, "how long to wait for a heartbeat pong")
	flag.DurationVar(&cleanupGrace, "cleanup-grace", cfg.CleanupGrace, "how long an empty party is kept")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	cfg.ServerAddr = addr
	cfg.SyncBackend = syncBackend
	cfg.RedisAddr = redisAddr
	cfg.NatsURL = natsURL
	cfg.HeartbeatInterval = heartbeatInterval
	cfg.HeartbeatTimeout = heartbeatTimeout
	cfg.CleanupGrace = cleanupGrace
	if len(allowedOrigins) > 0 {
		cfg.AllowedOrigins = allowedOrigins
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal("config: ", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)
	statsUpdater.Run()
	defer statsUpdater.Stop()

	store := openStore(cfg, logger)

	// a nil Mirror keeps the registry purely in memory
	var partyMirror party.Mirror
	var async *mirror.Async
	if store != nil {
		defer func() {
			if err := store.Close(); err != nil {
				logger.Println("sync store close:", err)
			}
		}()

		async = mirror.NewAsync(store, logger, statsUpdater, 0)
		async.Start()
		partyMirror = async
	}

	registry := party.NewRegistry(logger, statsUpdater, partyMirror, cfg.CleanupGrace)
	registry.SetMirrorTTL(cfg.MirrorTTL)
	monitor := heartbeat.NewMonitor(logger, statsUpdater, cfg.HeartbeatInterval, cfg.HeartbeatTimeout)
	rooms := server.NewRooms(logger)
	protocol := presence.NewProtocol(logger, registry, monitor, rooms)
	partyServer := server.NewPartyServer(logger, statsUpdater, protocol, rooms, cfg.MessageRate, cfg.MessageBurst)

	srv := api.NewPartyApp(mux, logger, partyServer, registry, store, cfg)

	go partyServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Println("HTTP server shutdown:", err)
	}

	if err := partyServer.Shutdown(shutDownCtx); err != nil {
		logger.Println("party server shutdown:", err)
	}
	monitor.Stop()
	registry.Stop()

	if async != nil {
		logger.Println("flushing sync queue...")
		if err := async.Close(shutDownCtx); err != nil {
			logger.Println("sync queue close:", err)
		}
	}

	logger.Println("shutdown complete")
}

// openStore connects the configured sync backend. Connection failures are
// logged and the server keeps running with state held only in memory.
func openStore(cfg *config.Config, logger *log.Logger) mirror.Store {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch cfg.SyncBackend {
	case config.SyncRedis:
		store, err := mirror.NewRedisStore(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Printf("redis unavailable, continuing without sync: %v", err)
			return nil
		}
		logger.Printf("mirroring party state to redis at %s", cfg.RedisAddr)
		return store
	case config.SyncNats:
		store, err := mirror.NewNatsStore(ctx, cfg.NatsURL, cfg.NatsBucket, cfg.MirrorTTL, logger.Printf)
		if err != nil {
			logger.Printf("nats unavailable, continuing without sync: %v", err)
			return nil
		}
		logger.Printf("mirroring party state to nats bucket %q", cfg.NatsBucket)
		return store
	default:
		logger.Println("sync disabled, party state is kept in memory only")
		return nil
	}
}
