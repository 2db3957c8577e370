// Package server exposes the exchange over HTTP: REST endpoints for orders,
// fills, books, markets and positions, and a websocket stream for live
// events.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/madschristensen99/rushTrade/internal/crypto"
	"github.com/madschristensen99/rushTrade/internal/domain"
	"github.com/madschristensen99/rushTrade/internal/server/handler"
	"github.com/madschristensen99/rushTrade/internal/server/middleware"
	"github.com/madschristensen99/rushTrade/internal/server/ws"
)

const shutdownTimeout = 10 * time.Second

// Config carries the listener settings.
type Config struct {
	Port        int
	CORSOrigins []string
}

// Handlers bundles the REST handlers the server mounts.
type Handlers struct {
	Health    *handler.HealthHandler
	Orders    *handler.OrderHandler
	Fills     *handler.FillHandler
	Books     *handler.BookHandler
	Markets   *handler.MarketHandler
	Positions *handler.PositionHandler
	Exchange  *handler.ExchangeHandler
}

// Server is the HTTP front of the exchange.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer mounts the routes and middleware. A nil auth disables request
// signing, a nil limiter disables rate limiting and a nil hub disables the
// websocket endpoint.
func NewServer(
	cfg Config,
	handlers Handlers,
	wsHub *ws.Hub,
	auth *crypto.APIAuth,
	limiter domain.RateLimiter,
	logger *slog.Logger,
) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", handlers.Health.Get)

	mux.HandleFunc("POST /api/v1/orders", handlers.Orders.Submit)
	mux.HandleFunc("GET /api/v1/orders", handlers.Orders.List)
	mux.HandleFunc("GET /api/v1/orders/{hash}", handlers.Orders.Get)
	mux.HandleFunc("DELETE /api/v1/orders/{hash}", handlers.Orders.Cancel)

	mux.HandleFunc("GET /api/v1/fills", handlers.Fills.List)
	mux.HandleFunc("GET /api/v1/book", handlers.Books.Get)

	mux.HandleFunc("GET /api/v1/markets", handlers.Markets.List)
	mux.HandleFunc("POST /api/v1/markets/sync", handlers.Markets.Sync)
	mux.HandleFunc("GET /api/v1/markets/{conditionID}", handlers.Markets.Get)
	mux.HandleFunc("GET /api/v1/markets/{conditionID}/book", handlers.Books.GetMarket)

	mux.HandleFunc("GET /api/v1/positions/{wallet}", handlers.Positions.List)
	mux.HandleFunc("GET /api/v1/exchange", handlers.Exchange.Get)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.Handle)
	}

	var h http.Handler = mux
	h = middleware.Auth(auth)(h)
	if limiter != nil {
		h = middleware.RateLimit(limiter, logger)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Start serves until the context is cancelled, then drains in-flight
// requests before returning.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.logger.Info("api server started", slog.String("addr", s.httpServer.Addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		s.logger.Info("api server stopped")
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}
}
