// Package api is the router's control surface: health, stats and mapping
// introspection plus the operator overrides. It never places trades directly;
// mutating endpoints hand control events to the owning trader.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/mirrorfx/router/internal/config"
	"github.com/mirrorfx/router/internal/copier"
	"github.com/mirrorfx/router/internal/mapstore"
	"github.com/mirrorfx/router/internal/models"
	"github.com/mirrorfx/router/internal/pool"
)

// TraderHub delivers control events to the per-source traders.
type TraderHub interface {
	// Post delivers an event to the source's trader. False means the source
	// is unknown or the trader's queue dropped the event.
	Post(sourceAccountID string, ev copier.Event) bool
	// Sources lists the active source accounts.
	Sources() []string
}

// Server is the control API HTTP server.
type Server struct {
	router     *chi.Mux
	server     *http.Server
	store      mapstore.Store
	routes     *config.Provider
	breaker    *pool.BreakerSet
	stats      *models.StatsRegistry
	traders    TraderHub
	logger     *logrus.Logger
	port       int
	instanceID string
	startedAt  time.Time
}

// Config wires the server.
type Config struct {
	Port       int
	InstanceID string
}

// NewServer creates the control API server.
func NewServer(cfg Config, store mapstore.Store, routes *config.Provider, breaker *pool.BreakerSet,
	stats *models.StatsRegistry, traders TraderHub, logger *logrus.Logger) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		store:      store,
		routes:     routes,
		breaker:    breaker,
		stats:      stats,
		traders:    traders,
		logger:     logger,
		port:       cfg.Port,
		instanceID: cfg.InstanceID,
		startedAt:  time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/stats", s.handleStats)
	s.router.Get("/mappings", s.handleMappings)
	s.router.Get("/breaker", s.handleBreaker)

	s.router.Post("/mappings/{sourceID}/{positionID}/resync", s.handleResync)
	s.router.Post("/mappings/{sourceID}/{positionID}", s.handleManualDelete)

	s.router.Post("/callbacks/pool-reconnect", s.handlePoolReconnect)
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.WithField("port", s.port).Info("control API listening")
	return s.server.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

type healthResponse struct {
	Status     string   `json:"status"`
	InstanceID string   `json:"instance_id"`
	Uptime     string   `json:"uptime"`
	Store      string   `json:"store"`
	Pool       string   `json:"pool"`
	Sources    []string `json:"sources"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:     "ok",
		InstanceID: s.instanceID,
		Uptime:     time.Since(s.startedAt).Round(time.Second).String(),
		Store:      "ok",
		Pool:       "ok",
		Sources:    s.traders.Sources(),
	}
	if err := s.store.Ping(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Store = err.Error()
	}
	// Pool reachability is inferred from the breaker: a tripped account means
	// recent definitive failures against the pool.
	for _, b := range s.breaker.Snapshot() {
		if b.Alerted {
			resp.Status = "degraded"
			resp.Pool = fmt.Sprintf("account %s failing", b.AccountID)
			break
		}
	}
	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.stats.Snapshot())
}

func (s *Server) handleMappings(w http.ResponseWriter, r *http.Request) {
	sources := s.traders.Sources()
	if src := r.URL.Query().Get("source"); src != "" {
		sources = []string{src}
	}
	out := make(map[string][]models.Mapping, len(sources))
	for _, src := range sources {
		mappings, err := s.store.GetAccountMappings(r.Context(), src)
		if err != nil {
			s.logger.WithError(err).WithField("source", src).Error("failed to load mappings")
			http.Error(w, "mapping store unavailable", http.StatusServiceUnavailable)
			return
		}
		if mappings == nil {
			mappings = []models.Mapping{}
		}
		out[src] = mappings
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBreaker(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.breaker.Snapshot())
}

// handleResync forces a destination exit for one source position.
func (s *Server) handleResync(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceID")
	positionID := chi.URLParam(r, "positionID")

	if !s.traders.Post(sourceID, copier.Event{Kind: copier.EventForceExit, PositionID: positionID}) {
		http.Error(w, "unknown source or queue full", http.StatusConflict)
		return
	}
	s.logger.WithFields(logrus.Fields{
		"source":   sourceID,
		"position": positionID,
	}).Warn("operator forced exit")
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "exit queued"})
}

// handleManualDelete unlinks every leg of a source position. The destination
// positions stay open and will be swept as orphans unless the operator takes
// them over.
func (s *Server) handleManualDelete(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceID")
	positionID := chi.URLParam(r, "positionID")

	legs, err := s.store.GetPositionMappings(r.Context(), sourceID, positionID)
	if err != nil {
		http.Error(w, "mapping store unavailable", http.StatusServiceUnavailable)
		return
	}
	if len(legs) == 0 {
		http.Error(w, "no mappings for position", http.StatusNotFound)
		return
	}

	deleted := 0
	for i := range legs {
		m := &legs[i]
		info := models.CloseInfo{
			SourceAccountID:  m.SourceAccountID,
			SourcePositionID: m.SourcePositionID,
			DestAccountID:    m.DestAccountID,
			DestPositionID:   m.DestPositionID,
			Result:           "manual",
			ClosedAt:         time.Now(),
		}
		if err := s.store.RecordClose(r.Context(), info); err != nil {
			s.logger.WithError(err).Warn("failed to record manual close")
		}
		if err := s.store.DeleteMapping(r.Context(), m.SourceAccountID, m.SourcePositionID, m.DestAccountID); err != nil {
			s.logger.WithError(err).WithField("dest", m.DestAccountID).Error("failed to delete mapping")
			continue
		}
		deleted++
	}
	s.logger.WithFields(logrus.Fields{
		"source":   sourceID,
		"position": positionID,
		"deleted":  deleted,
	}).Warn("operator deleted mappings")
	s.writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

// handlePoolReconnect is the callback the pool invokes after a broker stream
// resync. Every trader refreshes immediately instead of waiting for its tick.
func (s *Server) handlePoolReconnect(w http.ResponseWriter, _ *http.Request) {
	for _, src := range s.traders.Sources() {
		s.traders.Post(src, copier.Event{Kind: copier.EventResync})
	}
	s.logger.Info("pool reconnection callback received, resyncing all traders")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("failed to encode response")
	}
}
