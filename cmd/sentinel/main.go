package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raaihank/pii-sentinel/internal/activity"
	"github.com/raaihank/pii-sentinel/internal/config"
	"github.com/raaihank/pii-sentinel/internal/logger"
	"github.com/raaihank/pii-sentinel/internal/pipeline"
	"github.com/raaihank/pii-sentinel/internal/proxy"
	"github.com/raaihank/pii-sentinel/internal/source"
	"github.com/raaihank/pii-sentinel/internal/websocket"
	"go.uber.org/zap"
)

var (
	version = proxy.Version
	commit  = "dev"
	date    = "unknown"
)

const pruneInterval = time.Hour

func main() {
	// Parse command line flags
	var (
		configPath   = flag.String("config", "", "Path to configuration file")
		showVersion  = flag.Bool("version", false, "Show version information")
		healthCheck  = flag.Bool("health-check", false, "Perform health check and exit")
		pushSnapshot = flag.Bool("push-snapshot", false, "Publish the configured aliases, rules and vault policy to Redis and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("PII-Sentinel %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *healthCheck {
		performHealthCheck(cfg.Server.Port)
		return
	}

	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	snap, err := source.FromConfig(cfg)
	if err != nil {
		log.Fatal("Invalid pipeline configuration", zap.Error(err))
	}

	if *pushSnapshot {
		if err := publishSnapshot(cfg, snap, log); err != nil {
			log.Fatal("Failed to publish snapshot", zap.Error(err))
		}
		return
	}

	log.Info("Starting PII-Sentinel",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
		zap.String("config_file", loader.ConfigFile()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orch := pipeline.New(pipeline.Deps{}, source.Options(cfg), log.Named("pipeline"))
	orch.Reload(snap)

	// Redis owns the user data when enabled; the config file still drives
	// options.
	var redisSource *source.RedisSource
	if cfg.Redis.Enabled {
		redisSource = source.NewRedisSource(cfg.Redis, orch, log.Logger)
		if err := redisSource.Start(ctx); err != nil {
			log.Warn("Redis snapshot source unavailable, using configuration file", zap.Error(err))
			redisSource.Close()
			redisSource = nil
		} else {
			defer redisSource.Close()
		}
	}

	loader.Watch(func(next *config.Config) {
		orch.SetOptions(source.Options(next))
		if redisSource != nil {
			return
		}
		snap, err := source.FromConfig(next)
		if err != nil {
			log.Warn("Ignoring configuration change", zap.Error(err))
			return
		}
		orch.Reload(snap)
	}, log.Logger)

	// Activity: memory ring for the API, optional Postgres history, live
	// WebSocket feed.
	memory := activity.NewMemoryLog(cfg.Activity.MaxEntries)
	var history activity.Reader = memory
	var recorders []activity.Recorder
	recorders = append(recorders, memory)

	if cfg.Database.Enabled {
		store, err := activity.NewStore(&activity.StoreConfig{
			DatabaseURL:     cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		}, log.Logger)
		if err != nil {
			log.Warn("Activity store unavailable, keeping history in memory only", zap.Error(err))
		} else {
			defer store.Close()
			recorders = append(recorders, store)
			history = store
			if cfg.Database.Retention > 0 {
				go runPrune(ctx, store, cfg.Database.Retention, log)
			}
		}
	}

	var hub *websocket.Hub
	if cfg.WebSocket.Enabled {
		hub = websocket.NewHub(&websocket.HubConfig{
			BroadcastActivity:    cfg.WebSocket.Events.BroadcastActivity,
			BroadcastSystem:      cfg.WebSocket.Events.BroadcastSystem,
			BroadcastConnections: cfg.WebSocket.Events.BroadcastConnections,
			Username:             cfg.WebSocket.Username,
			Password:             cfg.WebSocket.Password,
		}, log.Logger)
		go hub.Run(ctx)
		recorders = append(recorders, hub)
	}

	server, err := proxy.New(cfg, log, proxy.Deps{
		Orchestrator: orch,
		Recorder:     activity.NewMulti(log.Logger, recorders...),
		History:      history,
		Hub:          hub,
	})
	if err != nil {
		log.Fatal("Failed to create API server", zap.Error(err))
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start(ctx)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil {
			log.Error("Server error", zap.Error(err))
		}
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer stopCancel()

		if err := server.Stop(stopCtx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
			os.Exit(1)
		}

		log.Info("Server shutdown complete")
	}
}

// publishSnapshot stores snap in Redis and notifies running instances.
func publishSnapshot(cfg *config.Config, snap pipeline.Snapshot, log *logger.Logger) error {
	src := source.NewRedisSource(cfg.Redis, nil, log.Logger)
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return src.Publish(ctx, snap)
}

// runPrune drops activity older than retention once per interval.
func runPrune(ctx context.Context, store *activity.Store, retention time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		if _, err := store.Prune(ctx, retention); err != nil {
			log.Warn("Failed to prune activity log", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// performHealthCheck performs a health check against the running server
func performHealthCheck(port int) {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(fmt.Sprintf("http://localhost:%d/health", port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
