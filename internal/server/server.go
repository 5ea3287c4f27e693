// Package server wires the authentication gate, the login flow and the
// protected routes into one HTTP server.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vyrodovalexey/authgate/internal/auth"
	"github.com/vyrodovalexey/authgate/internal/auth/oidc"
	"github.com/vyrodovalexey/authgate/internal/config"
	"github.com/vyrodovalexey/authgate/internal/observability"
)

// Server is the authgate HTTP server.
type Server struct {
	cfg        *config.Config
	engine     *gin.Engine
	httpServer *http.Server
	logger     observability.Logger

	// gate is swappable so configuration reloads take effect without a
	// restart.
	gate atomic.Pointer[auth.Gate]
}

// Option is a functional option for configuring the server.
type Option func(*Server)

// WithLogger sets the logger for the server.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates the HTTP server. The login handler may be nil when the login
// flow is disabled.
func New(cfg *config.Config, gate *auth.Gate, login *oidc.LoginHandler, opts ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:    cfg,
		logger: observability.NopLogger(),
	}
	s.gate.Store(gate)

	for _, opt := range opts {
		opt(s)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestID())
	engine.Use(RequestLogger(s.logger))
	engine.Use(CORS(cfg.Server.CORS))
	engine.Use(s.gateMiddleware())

	engine.GET("/healthz", s.handleHealthz)

	if login != nil {
		engine.GET("/login", gin.WrapF(login.Login))
		engine.GET("/auth", gin.WrapF(login.Callback))
		engine.GET("/logout", gin.WrapF(login.Logout))
	}

	if cfg.Metrics.Enabled {
		engine.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	engine.GET("/service", s.handleService)
	engine.GET("/userinfo", s.handleUserInfo)

	s.engine = engine
	s.httpServer = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      engine,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	return s
}

// Handler exposes the router. Used in tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// SetGate replaces the active gate. Requests in flight keep the gate they
// started with.
func (s *Server) SetGate(gate *auth.Gate) {
	s.gate.Store(gate)
	s.logger.Info("authentication gate replaced")
}

// gateMiddleware adapts the gate's net/http middleware to gin. The chain
// only continues when the gate invoked its next handler.
func (s *Server) gateMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		gate := s.gate.Load()

		passed := false
		gate.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			passed = true
			c.Request = r
		})).ServeHTTP(c.Writer, c.Request)

		if !passed {
			c.Abort()
			return
		}
		c.Next()
	}
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening",
			observability.String("address", s.httpServer.Addr),
		)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(), time.Duration(s.cfg.Server.ShutdownTimeout))
	defer cancel()

	s.logger.Info("shutting down server")
	return s.httpServer.Shutdown(shutdownCtx)
}
