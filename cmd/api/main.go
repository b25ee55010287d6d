package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"

	"cutline/internal/config"
	"cutline/internal/gateway"
	"cutline/internal/httpapi"
	"cutline/internal/httpapi/handlers"
	"cutline/internal/jobs"
	"cutline/internal/pkg/logger"
	"cutline/internal/pkg/shutdown"
	"cutline/internal/push"
	"cutline/internal/relay"
	"cutline/internal/repositories"
	"cutline/internal/storage"
)

func main() {
	app := &cli.Command{
		Name:  "cutline-api",
		Usage: "render job status API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env",
				Usage: "path to an optional .env file",
				Value: ".env",
			},
		},
		Action: serve,
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("env"))
	if err != nil {
		return err
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "cutline-api",
		AddSource:   cfg.Log.AddSource,
	})

	log.Info("starting cutline API",
		"version", "0.1.0",
		"instance", cfg.InstanceID,
	)

	// Initialize shutdown manager
	shutdownMgr := shutdown.NewManager(log, shutdown.DefaultTimeout)

	// Janitor and relay run until the "workers" shutdown handler fires.
	workersCtx, stopWorkers := context.WithCancel(ctx)

	deps := handlers.Deps{
		Gateway:  gateway.NewHTTPClient(cfg.RenderServiceURL, log),
		Fallback: cfg.StatusFallback,
		Instance: cfg.InstanceID,
		Log:      log,
		Stream: push.Options{
			Heartbeat:    cfg.Stream.Heartbeat,
			WriteTimeout: cfg.Stream.WriteTimeout,
		},
	}

	// Connect to PostgreSQL (ingest journal)
	if cfg.JournalEnabled() {
		log.Info("connecting to PostgreSQL")
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.LogFatal("failed to connect to PostgreSQL", err)
		}
		shutdownMgr.Register("postgres", func(ctx context.Context) error {
			pool.Close()
			return nil
		})
		if err := pool.Ping(ctx); err != nil {
			log.LogFatal("failed to ping PostgreSQL", err)
		}
		journal := repositories.NewEventRepository(pool)
		if err := journal.EnsureSchema(ctx); err != nil {
			log.LogFatal("failed to prepare journal schema", err)
		}
		deps.Pool = pool
		deps.Journal = journal
		log.Info("PostgreSQL connected, journal enabled")
	}

	// Connect to Redis (cross-replica relay)
	var rl *relay.Relay
	if cfg.RelayEnabled() {
		log.Info("connecting to Redis")
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		shutdownMgr.Register("redis", func(ctx context.Context) error {
			return rdb.Close()
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.LogFatal("failed to ping Redis", err)
		}
		rl = relay.New(rdb, cfg.Redis.Channel, cfg.InstanceID, log)
		deps.RDB = rdb
		deps.Relay = rl
		log.Info("Redis connected, relay enabled", "channel", cfg.Redis.Channel)
	}

	// Initialize storage provider (caption sidecars)
	sp, err := storage.NewProvider(ctx, cfg.Storage)
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}
	if sp != nil {
		deps.Storage = sp
		log.Info("storage provider initialized", "provider", sp.Provider())
	}

	tracker := jobs.NewTracker(jobs.Config{
		GraceWindow: cfg.Stream.GraceWindow,
		QueueSize:   cfg.Stream.QueueSize,
		Log:         log,
	})
	deps.Tracker = tracker

	router := httpapi.NewRouter(httpapi.Deps{
		Handlers:       deps,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Log:            log,
	})

	// Create HTTP server. WriteTimeout is replaced per write on event streams.
	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	// Shutdown waits for connections to go idle; event streams never do on
	// their own.
	server.RegisterOnShutdown(tracker.Close)

	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})
	shutdownMgr.RegisterSimple("workers", stopWorkers)

	go tracker.RunJanitor(workersCtx, cfg.JanitorInterval, cfg.RecordTTL)

	if rl != nil {
		go func() {
			if err := rl.Run(workersCtx, tracker); err != nil {
				log.LogError(workersCtx, "relay stopped", err)
			}
		}()
	}

	// Start server in goroutine
	go func() {
		log.Info("HTTP server listening",
			"addr", server.Addr,
			"port", cfg.HTTPPort,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	// Wait for shutdown signal
	shutdownMgr.Wait(ctx)
	return nil
}
