package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/rumor-ml/commons.systems/cardledger/internal/handlers"
	"github.com/rumor-ml/commons.systems/cardledger/internal/importer"
	"github.com/rumor-ml/commons.systems/cardledger/internal/ledger"
	"github.com/rumor-ml/commons.systems/cardledger/internal/middleware"
	"github.com/rumor-ml/commons.systems/cardledger/internal/reconcile"
	"github.com/rumor-ml/commons.systems/cardledger/internal/streaming"
)

const shutdownTimeout = 30 * time.Second

// Deps are the services exposed over HTTP
type Deps struct {
	Ledger    *ledger.Service
	Importer  *importer.Importer
	Engine    *reconcile.Engine
	Tolerance reconcile.Tolerance
	// Events receives ledger changes for GET /api/events. A hub is created when nil.
	Events *streaming.Hub
}

// Server represents the ledger API server
type Server struct {
	mux    *http.ServeMux
	events *streaming.Hub
	log    zerolog.Logger
}

// New creates a new server instance
func New(deps Deps, log zerolog.Logger) *Server {
	if deps.Events == nil {
		deps.Events = streaming.NewHub(log)
	}
	s := &Server{
		mux:    http.NewServeMux(),
		events: deps.Events,
		log:    log,
	}
	s.setupRoutes(deps)
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(deps Deps) {
	s.mux.HandleFunc("GET /health", handlers.HealthCheck)

	s.mux.HandleFunc("GET /api/events", handlers.NewEventsHandler(deps.Events).Stream)

	lh := handlers.NewLedgerHandler(deps.Ledger, deps.Events)
	s.mux.HandleFunc("GET /api/cards", lh.ListCards)
	s.mux.HandleFunc("POST /api/cards", lh.CreateCard)
	s.mux.HandleFunc("GET /api/cards/{id}/invoice", lh.Invoice)
	s.mux.HandleFunc("GET /api/cards/{id}/preview", lh.Preview)
	s.mux.HandleFunc("POST /api/purchases", lh.CreatePurchase)
	s.mux.HandleFunc("GET /api/transactions", lh.ListTransactions)

	rh := handlers.NewReconcileHandler(deps.Importer, deps.Engine, deps.Tolerance, deps.Events)
	s.mux.HandleFunc("POST /api/statements/import", rh.Import)
	s.mux.HandleFunc("GET /api/statements", rh.ListStatements)
	s.mux.HandleFunc("POST /api/statements/{id}/match", rh.Match)
	s.mux.HandleFunc("POST /api/statements/{id}/unmatch", rh.Unmatch)
	s.mux.HandleFunc("POST /api/statements/{id}/materialize", rh.Materialize)
	s.mux.HandleFunc("POST /api/reconcile/auto", rh.AutoMatch)
	s.mux.HandleFunc("GET /api/batches/latest", rh.LatestBatch)
	s.mux.HandleFunc("POST /api/batches/latest/undo", rh.UndoLatestBatch)
	s.mux.HandleFunc("GET /api/months/{month}", rh.MonthSummary)
}

// Handler returns the HTTP handler with the middleware chain applied
func (s *Server) Handler() http.Handler {
	return middleware.Chain(s.mux,
		middleware.Recovery(s.log),
		middleware.RequestID,
		middleware.Logger(s.log),
		middleware.CORS,
	)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", ln.Addr().String()).Msg("starting API server")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down server")
	// Closing the hub ends open event streams so Shutdown does not wait on them
	s.events.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
