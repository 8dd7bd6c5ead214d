package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"lienledger/core/events"
	"lienledger/observability/logging"
	telemetry "lienledger/observability/otel"
	"lienledger/rpc"
	"lienledger/rpc/modules"
	"lienledger/services/liend/archive"
	"lienledger/services/liend/config"
	"lienledger/services/liend/middleware"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/liend/config.yaml", "path to liend config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.SetupWithOptions("liend", cfg.Environment, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "liend",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	db, err := openStorage(cfg.Storage)
	if err != nil {
		log.Fatalf("open storage: %v", err)
	}
	defer db.Close()

	bus := events.NewBus()
	core, err := buildLedger(cfg.Ledger, db, bus)
	if err != nil {
		log.Fatalf("build ledger: %v", err)
	}
	defer subscribeEventLog(bus, logger)()

	module := modules.NewLienModule(core.engine, core.bank, core.vaults, core.state)
	if cfg.Archive.Driver != "" {
		gormDB, err := archive.Open(cfg.Archive.Driver, cfg.Archive.DSN)
		if err != nil {
			log.Fatalf("open archive: %v", err)
		}
		eventArchive, err := archive.New(gormDB, logger)
		if err != nil {
			log.Fatalf("init archive: %v", err)
		}
		defer eventArchive.Subscribe(bus)()
		module.SetEventSource(eventArchive)
	}

	var secret string
	if cfg.Auth.Enabled {
		secret = strings.TrimSpace(os.Getenv(cfg.Auth.SecretEnv))
		if secret == "" {
			log.Fatalf("auth: environment variable %s is empty", cfg.Auth.SecretEnv)
		}
	}
	authenticator := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:    cfg.Auth.Enabled,
		HMACSecret: secret,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		ScopeClaim: cfg.Auth.ScopeClaim,
	}, logger)
	limiter := middleware.NewRateLimiter(middleware.RateLimit{
		RatePerSecond: cfg.RateLimit.RatePerSecond,
		Burst:         cfg.RateLimit.Burst,
	}, logger)
	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName: "liend",
		LogRequests: cfg.Logging.LogRequests,
	}, prometheus.DefaultRegisterer, logger)

	server := rpc.NewServer(module, bus, logger)
	router := newRouter(server, routerDeps{
		obs:    obs,
		cors:   middleware.CORSConfig{AllowedOrigins: cfg.CORS.AllowedOrigins},
		auth:   authenticator,
		limits: limiter,
	})

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		log.Fatalf("listen on %s: %v", cfg.ListenAddress, err)
	}
	if cfg.TLS.AllowInsecure {
		tcpAddr, _ := listener.Addr().(*net.TCPAddr)
		loopback := tcpAddr != nil && tcpAddr.IP != nil && tcpAddr.IP.IsLoopback()
		if cfg.Environment != "dev" && !loopback {
			log.Fatalf("plaintext liend mode is restricted to loopback listeners or dev environment")
		}
	}

	httpServer := &http.Server{
		Handler:           otelhttp.NewHandler(router, "liend"),
		ReadHeaderTimeout: 10 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("liend listening", slog.String("address", cfg.ListenAddress), slog.Bool("tls", cfg.TLS.CertPath != ""))
		if cfg.TLS.CertPath != "" {
			serverErr <- httpServer.ServeTLS(listener, cfg.TLS.CertPath, cfg.TLS.KeyPath)
			return
		}
		serverErr <- httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forcing server stop", slog.Any("error", err))
			_ = httpServer.Close()
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve http", slog.Any("error", err))
		}
	}
}

type routerDeps struct {
	obs    *middleware.Observability
	cors   middleware.CORSConfig
	auth   *middleware.Authenticator
	limits *middleware.RateLimiter
}

// newRouter mounts the JSON-RPC endpoint, the event stream and the operator
// endpoints. Authentication runs before rate limiting so limits are keyed by
// caller.
func newRouter(server *rpc.Server, deps routerDeps) http.Handler {
	router := chi.NewRouter()
	router.Use(deps.obs.Middleware)
	router.Use(middleware.CORS(deps.cors))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	router.Handle("/metrics", promhttp.Handler())

	router.Group(func(r chi.Router) {
		r.Use(deps.auth.Middleware)
		r.Use(deps.limits.Middleware)
		r.Handle("/rpc", server)
		r.Handle("/ws/events", server.EventsHandler())
	})
	return router
}
