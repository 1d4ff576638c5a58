package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"agrichain/config"
	"agrichain/core/events"
	"agrichain/core/genesis"
	"agrichain/core/state"
	"agrichain/gateway/idempotency"
	"agrichain/gateway/middleware"
	"agrichain/gateway/orderbook"
	"agrichain/gateway/routes"
	"agrichain/native/escrow"
	"agrichain/native/poll"
	"agrichain/observability"
	"agrichain/observability/logging"
	telemetry "agrichain/observability/otel"
	"agrichain/storage"
)

const (
	eventHistory      = 1024
	maintenanceEvery  = time.Minute
	idempotencyMaxAge = 24 * time.Hour
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.toml", "path to escrowd configuration")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.Setup("escrowd", cfg.Environment, logging.FileOptions{Path: cfg.LogFile})
	err = run(cfg, logger)
	if err != nil {
		logger.Error("escrowd stopped", "error", err)
	}
	_ = logCloser.Close()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "escrowd",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("initialise telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	db, err := openDatabase(cfg.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()
	manager := state.NewManager(db)

	if strings.TrimSpace(cfg.GenesisFile) != "" {
		spec, err := genesis.LoadSpec(cfg.GenesisFile)
		if err != nil {
			return err
		}
		applied, err := genesis.Apply(manager, spec)
		if err != nil {
			return err
		}
		if applied {
			logger.Info("genesis applied", "allocations", len(spec.Alloc))
		}
	}

	broadcaster := events.NewBroadcaster(eventHistory)
	emitter := events.Multi{broadcaster, observability.EscrowMetrics()}

	engineCfg, err := cfg.EscrowEngineConfig()
	if err != nil {
		return err
	}
	escrowEngine, err := escrow.NewEngine(engineCfg)
	if err != nil {
		return err
	}
	escrowEngine.SetState(manager.EscrowBackend())
	escrowEngine.SetEmitter(emitter)

	pollEngine := poll.NewEngine()
	pollEngine.SetState(manager.PollBackend())
	pollEngine.SetEmitter(emitter)

	gatewayDB, err := idempotency.Dial(cfg.Idempotency.Driver, cfg.Idempotency.DSN)
	if err != nil {
		return err
	}
	idem, err := idempotency.NewStore(gatewayDB)
	if err != nil {
		return err
	}
	defer idem.Close()
	var orders *orderbook.Store
	if cfg.OrderBook.Enabled {
		if orders, err = orderbook.NewStore(gatewayDB); err != nil {
			return err
		}
	}

	limiter := middleware.NewRateLimiter(middleware.RateLimit{
		RequestsPerMinute: float64(cfg.RateLimit.RequestsPerMinute),
		Burst:             cfg.RateLimit.Burst,
	})

	handler, err := routes.New(routes.Config{
		Escrow:   escrowEngine,
		Polls:    pollEngine,
		Accounts: manager,
		Events:   broadcaster,
		Authenticator: middleware.NewAuthenticator(middleware.AuthConfig{
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  cfg.Auth.ClockSkew,
		}, logger),
		RateLimiter: limiter,
		Idempotency: idem,
		OrderBook:   orders,
		Logger:      logger,
		HealthCheck: func() error {
			_, err := manager.TotalSupply()
			return err
		},
	})
	if err != nil {
		return fmt.Errorf("configure routes: %w", err)
	}

	go maintain(ctx, logger, limiter, idem)

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("escrowd listening", "address", listener.Addr().String(), "env", cfg.Environment)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	return nil
}

func openDatabase(dir string) (storage.Database, error) {
	if strings.TrimSpace(dir) == "" {
		return storage.NewMemDB(), nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDB(dir)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	return db, nil
}

// maintain drops idle rate limit buckets and expired idempotency responses.
func maintain(ctx context.Context, logger *slog.Logger, limiter *middleware.RateLimiter, idem *idempotency.Store) {
	ticker := time.NewTicker(maintenanceEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			limiter.Sweep()
			pruned, err := idem.Prune(ctx, now.Add(-idempotencyMaxAge))
			if err != nil {
				logger.Warn("idempotency prune failed", "error", err)
				continue
			}
			if pruned > 0 {
				logger.Debug("idempotency responses pruned", "count", pruned)
			}
		}
	}
}
