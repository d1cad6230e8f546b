package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-partynight/internal/config"
	"github.com/npezzotti/go-partynight/internal/mirror"
	"github.com/npezzotti/go-partynight/internal/party"
	"github.com/npezzotti/go-partynight/internal/server"
)

type PartyApp struct {
	log            *log.Logger
	mux            *http.Server
	ps             *server.PartyServer
	registry       *party.Registry
	store          mirror.Store
	allowedOrigins []string
}

// NewPartyApp mounts the HTTP routes on mux. store may be nil when state is
// not mirrored.
func NewPartyApp(mux *http.ServeMux, logger *log.Logger, ps *server.PartyServer, registry *party.Registry, store mirror.Store, cfg *config.Config) *PartyApp {
	s := &PartyApp{
		log:            logger,
		ps:             ps,
		registry:       registry,
		store:          store,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /health", s.healthCheck)
	mux.HandleFunc("GET /api/party/{partyId}/presence", s.partyPresence)
	mux.HandleFunc("GET /ws", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = handlers.LoggingHandler(logger.Writer(), h)
	h = s.errorHandler(h)

	s.mux = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *PartyApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *PartyApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
