// Package server serves the exchange's JSON-RPC namespaces over HTTP and
// websockets, next to health and metrics endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/defistate/defistate-amm-go/router"
	"github.com/defistate/defistate-amm-go/streams/jsonrpc/api"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 10 * time.Second

	// WebsocketPath is where subscriptions are served.
	WebsocketPath = "/ws"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the configuration of a Server.
type Config struct {
	ListenAddr string
	Router     *router.Router
	// Bank is optional; the ledger namespace is only served when set.
	Bank *ledger.Bank
	// Gatherer is optional; /metrics is only served when set.
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	EventBuffer    int
	Logger         Logger
}

func (c *Config) validate() error {
	if c.ListenAddr == "" {
		return errors.New("config: ListenAddr is required")
	}
	if c.Router == nil {
		return errors.New("config: Router cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// Server is the daemon's HTTP front end.
type Server struct {
	rpc        *rpc.Server
	router     *mux.Router
	exchange   *router.Router
	httpServer *http.Server
	logger     Logger
}

// NewServer registers the JSON-RPC namespaces and builds the HTTP handler
// chain. It does not start listening.
func NewServer(cfg *Config) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	rpcServer := rpc.NewServer()
	ammAPI, err := api.NewAPI(&api.Config{Router: cfg.Router, Logger: cfg.Logger, EventBuffer: cfg.EventBuffer})
	if err != nil {
		return nil, err
	}
	if err := rpcServer.RegisterName(api.Namespace, ammAPI); err != nil {
		return nil, fmt.Errorf("failed to register %s namespace: %w", api.Namespace, err)
	}
	if cfg.Bank != nil {
		ledgerAPI, err := api.NewLedgerAPI(cfg.Bank)
		if err != nil {
			return nil, err
		}
		if err := rpcServer.RegisterName(api.LedgerNamespace, ledgerAPI); err != nil {
			return nil, fmt.Errorf("failed to register %s namespace: %w", api.LedgerNamespace, err)
		}
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s := &Server{
		rpc:      rpcServer,
		router:   mux.NewRouter(),
		exchange: cfg.Router,
		logger:   cfg.Logger,
	}

	s.router.Handle("/", rpcServer).Methods(http.MethodPost)
	s.router.Handle(WebsocketPath, rpcServer.WebsocketHandler(origins))
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if cfg.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	handler := handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{cfg.Logger}))(c.Handler(s.router))

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}
	return s, nil
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe listens on the configured address and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then stops the RPC
// server and shuts the HTTP server down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()
	s.logger.Info("JSON-RPC server listening", "addr", ln.Addr().String(), "ws", WebsocketPath)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down JSON-RPC server")
	// closes websocket codecs, which Shutdown does not track
	s.rpc.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "ok",
		"pools":     s.exchange.Registry().Len(),
		"timestamp": time.Now().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Warn("Failed to write health response", "error", err)
	}
}

type recoveryLogger struct {
	logger Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error("Recovered from panic in HTTP handler", "panic", fmt.Sprint(v...))
}
