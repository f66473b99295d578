/*
Package main is the entry point for the StickyChat server.

It is responsible for loading configuration, initializing the global logging system,
choosing the persistence and cluster backends, wiring the routing core to the session
layer, setting up the HTTP server, and gracefully handling operating system interrupt
signals (SIGINT, SIGTERM) to ensure a smooth server shutdown.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"stickychat/internal/app/channel"
	"stickychat/internal/app/data"
	"stickychat/internal/app/db"
	"stickychat/internal/app/directory"
	"stickychat/internal/app/dm"
	"stickychat/internal/app/player"
	"stickychat/internal/app/session"
	"stickychat/internal/app/transport"
	"stickychat/internal/configs"
	"stickychat/internal/handler"
	"stickychat/internal/pkg/limiter"
	"stickychat/internal/pkg/logx"
	"stickychat/internal/pkg/pow"
)

// presence is what the server needs from a directory backend.
type presence interface {
	directory.Directory
	directory.Tracker
}

// cluster is what the server needs from a transport backend.
type cluster interface {
	transport.Adapter
	Bind(direct transport.DirectReceiver, channel transport.ChannelReceiver, failures transport.FailureHandler)
}

// backend bundles the directory and transport with the loops that keep them running.
type backend struct {
	directory presence
	transport cluster
	runners   []func(context.Context) error
	close     func()
}

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.IsDevelopment())
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Str("instance", cfg.InstanceID).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Bool("cluster", cfg.ClusterEnabled()).
		Bool("database", cfg.DatabaseDSN != "").
		Str("dm_threshold", cfg.DMPriorityThreshold.String()).
		Int("pow_difficulty", cfg.PowDifficulty).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := newRepository(ctx, cfg)
	if err != nil {
		logx.Fatal(err, "Failed to initialize player state storage")
	}
	defer closeRepo()

	be, err := newBackend(ctx, cfg)
	if err != nil {
		logx.Fatal(err, "Failed to initialize cluster backend")
	}
	defer be.close()

	registry := channel.NewRegistry()
	if cfg.ChannelsFile != "" {
		loadChannels(registry, cfg.ChannelsFile)
	}

	// Wire the routing core to the session layer.
	store := data.NewStore(repo)
	hub := session.NewHub(cfg.InstanceID, be.directory)
	if dir, ok := be.directory.(*directory.Redis); ok {
		dir.NotifyMoved(hub.PresenceMoved)
	}
	router := dm.NewRouter(store, be.directory, be.transport, hub, dm.Options{
		Threshold:  cfg.DMPriorityThreshold,
		HideBlocks: cfg.DMHideBlocks,
	})
	relay := channel.NewRelay(registry, hub, be.transport)
	be.transport.Bind(router, relay, hub)

	sendLimiter := limiter.NewKeyed("send", rate.Limit(cfg.DMRate), cfg.DMBurst)
	defer sendLimiter.Close()

	limiters := handler.NewLimiters()
	defer limiters.Close()

	var challenges *pow.Gate
	if cfg.PowDifficulty > 0 {
		challenges = pow.NewGate(cfg.PowDifficulty)
		defer challenges.Close()
	}

	deps := &handler.AppDeps{
		Config: cfg,
		Hub:    hub,
		Players: player.Deps{
			Store:    store,
			Channels: registry,
			Relay:    relay,
			Router:   router,
		},
		SendLimiter: sendLimiter,
		Challenges:  challenges,
	}

	// Setup HTTP server and routes
	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler.Router(deps, limiters),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, run := range be.runners {
		run := run
		g.Go(func() error { return run(gctx) })
	}

	g.Go(func() error {
		logx.Info(fmt.Sprintf("StickyChat Server starting on http://localhost%s", serverAddr), "instance", cfg.InstanceID)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// Wait for an interrupt signal or a failed background loop, then shut down with a timeout of 5 seconds.
	g.Go(func() error {
		<-gctx.Done()
		logx.Info("Received shutdown signal. Starting graceful shutdown...")

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()

		hub.Shutdown()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logx.Error(err, "Server stopped with error")
	}

	logx.Info("Server gracefully stopped.")
}

// newRepository returns the Postgres repository when a DSN is configured and the
// in-memory one otherwise.
func newRepository(ctx context.Context, cfg *configs.AppConfig) (data.Repository, func(), error) {
	if cfg.DatabaseDSN == "" {
		logx.Warn("DATABASE_URL not set. Player state is kept in memory and lost on restart.")
		return data.NewMemoryRepository(), func() {}, nil
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseDSN, db.PoolOptions{MaxConns: int32(cfg.DatabaseMaxConns)})
	if err != nil {
		return nil, nil, err
	}
	logx.Info("Database connection pool initialized.")
	return db.NewUserStateRepository(pool), pool.Close, nil
}

// newBackend returns the Redis directory and transport when an address is configured,
// and a single-instance in-process pair otherwise.
func newBackend(ctx context.Context, cfg *configs.AppConfig) (*backend, error) {
	if !cfg.ClusterEnabled() {
		logx.Info("REDIS_ADDR not set. Running as a single instance.")
		return &backend{
			directory: directory.NewMemory().View(cfg.InstanceID),
			transport: transport.NewHub().Join(cfg.InstanceID),
			close:     func() {},
		}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.RedisAddr, err)
	}
	logx.Info("Connected to Redis.", "addr", cfg.RedisAddr)

	dir := directory.NewRedis(client, cfg.InstanceID, directory.DefaultPresenceTTL)
	tr := transport.NewRedis(client, cfg.InstanceID)

	return &backend{
		directory: dir,
		transport: tr,
		runners:   []func(context.Context) error{dir.Run, tr.Run},
		close: func() {
			if err := client.Close(); err != nil {
				logx.Error(err, "Failed to close Redis client")
			}
		},
	}, nil
}

// loadChannels restores the channels defined in path. Malformed and duplicate
// definitions are logged and skipped.
func loadChannels(registry *channel.Registry, path string) {
	sections, err := configs.LoadChannelSections(path)
	if err != nil {
		logx.Fatal(err, "Failed to load channel definitions", "path", path)
	}

	for _, section := range sections {
		if _, err := registry.Deserialize(section.Key, section.Fields); err != nil {
			logx.Warn("Skipping channel definition", "key", section.Key, "error", err.Error())
		}
	}
	logx.Info("Channel definitions loaded.", "path", path, "sections", len(sections), "channels", len(registry.Channels()))
}
