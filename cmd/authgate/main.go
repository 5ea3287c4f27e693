// Command authgate runs an authenticating reverse gate in front of HTTP
// handlers. Every request outside the configured public paths must carry a
// verifiable token, either from the browser session or the Authorization
// header.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vyrodovalexey/authgate/internal/auth"
	"github.com/vyrodovalexey/authgate/internal/auth/jwt"
	"github.com/vyrodovalexey/authgate/internal/auth/oidc"
	"github.com/vyrodovalexey/authgate/internal/config"
	"github.com/vyrodovalexey/authgate/internal/observability"
	"github.com/vyrodovalexey/authgate/internal/server"
	"github.com/vyrodovalexey/authgate/internal/session"
)

// Build metadata, injected via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configPath := flag.String("config", envOrDefault("AUTHGATE_CONFIG", "config.yaml"),
		"path to the configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("authgate %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting authgate",
		observability.String("version", version),
		observability.String("config", *configPath),
	)

	tracer, err := observability.NewTracer(context.Background(), cfg.Tracing)
	if err != nil {
		logger.Fatal("failed to initialize tracing", observability.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to shut down tracing", observability.Error(err))
		}
	}()

	authMetrics := auth.NewMetrics()
	jwtMetrics := jwt.NewMetrics()
	sessions := session.NewManager(cfg.Session, session.WithLogger(logger))

	gate, err := buildGate(cfg, sessions, logger, authMetrics, jwtMetrics)
	if err != nil {
		logger.Fatal("failed to build authentication gate", observability.Error(err))
	}

	var login *oidc.LoginHandler
	if cfg.Login.Enabled {
		login = oidc.NewLoginHandler(cfg.Login, sessions, oidc.WithLoginLogger(logger))
	}

	srv := server.New(cfg, gate, login, server.WithLogger(logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Provider and public path changes apply without a restart. Server
	// level settings such as the listen address still need one.
	watcher, err := config.NewWatcher(*configPath, func(newCfg *config.Config) {
		newGate, err := buildGate(newCfg, sessions, logger, authMetrics, jwtMetrics)
		if err != nil {
			logger.Error("configuration reload kept previous gate", observability.Error(err))
			return
		}
		srv.SetGate(newGate)
	}, config.WithWatcherLogger(logger))
	if err != nil {
		logger.Warn("configuration watching disabled", observability.Error(err))
	} else {
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("failed to start configuration watcher", observability.Error(err))
		}
		defer func() { _ = watcher.Stop() }()
	}

	if err := srv.Run(ctx); err != nil {
		logger.Fatal("server failed", observability.Error(err))
	}

	logger.Info("authgate stopped")
}

// buildGate assembles the verifier and gate from configuration. Metrics
// instances are reused across reloads because collectors register once.
func buildGate(
	cfg *config.Config,
	sessions *session.Manager,
	logger observability.Logger,
	authMetrics *auth.Metrics,
	jwtMetrics *jwt.Metrics,
) (*auth.Gate, error) {
	verifier, err := jwt.NewVerifier(&cfg.Auth,
		jwt.WithVerifierLogger(logger),
		jwt.WithVerifierMetrics(jwtMetrics),
	)
	if err != nil {
		return nil, err
	}

	return auth.NewGate(verifier, cfg.Auth.PublicPaths,
		auth.WithGateLogger(logger),
		auth.WithGateMetrics(authMetrics),
		auth.WithSessionReader(sessions.Reader()),
	), nil
}

func envOrDefault(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
