// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

// Package httpapi serves the JSON authentication API: signup, email
// verification, login and the session-protected routes.
package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/cors"
	"github.com/samber/oops"

	"github.com/mentorhub/mentorhub/internal/auth"
	"github.com/mentorhub/mentorhub/internal/config"
	"github.com/mentorhub/mentorhub/internal/observability"
)

// RoutePrefix is where the auth routes are mounted.
const RoutePrefix = "/api/v1/auth"

// AccountService is the account lifecycle the handlers drive.
type AccountService interface {
	Signup(ctx context.Context, in auth.SignupInput) (*auth.User, error)
	VerifyEmail(ctx context.Context, token string) (*auth.User, *auth.Session, error)
	Login(ctx context.Context, email, password string) (*auth.User, *auth.Session, error)
	ResendVerification(ctx context.Context, email string) error
	ChangePassword(ctx context.Context, user *auth.User, in auth.PasswordChangeInput) (*auth.Session, error)
}

// Deps holds the collaborators of a Server.
type Deps struct {
	Config   *config.Config
	Accounts AccountService
	Sessions *auth.SessionTokenService
	Users    auth.UserRepository

	// Metrics may be nil.
	Metrics *observability.Metrics
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Server is the API HTTP server.
type Server struct {
	addr     string
	accounts AccountService
	gate     *Gate
	limiter  *RateLimiter
	cors     *cors.Cors
	cookies  cookieWriter
	metrics  *observability.Metrics
	logger   *slog.Logger

	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates a Server. It starts the rate limiter's cleanup
// goroutine; Stop or Close releases it.
func NewServer(deps Deps) (*Server, error) {
	switch {
	case deps.Config == nil:
		return nil, oops.Errorf("config is required")
	case deps.Accounts == nil:
		return nil, oops.Errorf("account service is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	gate, err := NewGate(deps.Sessions, deps.Users, deps.Metrics, logger)
	if err != nil {
		return nil, err
	}

	cfg := deps.Config
	return &Server{
		addr:     cfg.HTTPAddr,
		accounts: deps.Accounts,
		gate:     gate,
		limiter: NewRateLimiter(RateLimiterConfig{
			Burst:      cfg.RateLimitBurst,
			Window:     cfg.RateLimitWindow,
			TrustProxy: cfg.TrustProxy,
		}, deps.Metrics),
		cors:    newCORS(cfg.CORSOrigins),
		cookies: cookieWriter{production: cfg.Production()},
		metrics: deps.Metrics,
		logger:  logger,
	}, nil
}

// Handler returns the full middleware chain around the routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.routes(mux)

	var h http.Handler = mux
	h = s.limiter.Middleware(h)
	h = s.cors.Handler(h)
	h = recoverPanics(s.logger, h)
	h = observe(s.logger, s.metrics, h)
	return traced(h)
}

func (s *Server) routes(mux *http.ServeMux) {
	admins := s.gate.RequireRoles(auth.NewRoleSet(auth.RoleAdmin))
	protect := s.gate.Authenticate

	mux.HandleFunc("POST "+RoutePrefix+"/signup", s.handleSignup)
	mux.HandleFunc("POST "+RoutePrefix+"/login", s.handleLogin)
	mux.HandleFunc("POST "+RoutePrefix+"/verify-email/{token}", s.handleVerifyEmail)
	mux.HandleFunc("POST "+RoutePrefix+"/resend-verification", s.handleResendVerification)
	mux.HandleFunc("POST "+RoutePrefix+"/logout", s.handleLogout)
	mux.Handle("GET "+RoutePrefix+"/me", protect(http.HandlerFunc(s.handleCurrentUser)))
	mux.Handle("PATCH "+RoutePrefix+"/update-password", protect(http.HandlerFunc(s.handleUpdatePassword)))
	mux.Handle("GET "+RoutePrefix+"/test", protect(admins(http.HandlerFunc(s.handleCurrentUser))))
	mux.HandleFunc("/", s.handleNotFound)
}

// Start listens and serves in the background. Serve failures arrive on the
// returned channel, which is closed once the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("HTTP_ALREADY_RUNNING").Errorf("http server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("HTTP_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := s.httpServer.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("http server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("http server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop drains in-flight requests, then stops the rate limiter.
func (s *Server) Stop(ctx context.Context) error {
	defer s.limiter.Close()

	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return oops.With("operation", "shutdown_http_server").Wrap(err)
	}
	s.logger.Info("http server stopped")
	return nil
}

// Close releases background resources of a server that was never started.
func (s *Server) Close() {
	s.limiter.Close()
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
