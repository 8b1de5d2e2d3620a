// Package api exposes the matching engine over HTTP and fans trade
// events out to websocket subscribers. The core contract lives in the
// engine package; this layer only translates.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"simex/domain/book"
	"simex/engine"
	"simex/engine/events"
)

type Server struct {
	engine *engine.Engine
	router *mux.Router
	hub    *Hub
	srv    *http.Server
	log    *zap.Logger
}

func NewServer(eng *engine.Engine, log *zap.Logger) *Server {
	s := &Server{
		engine: eng,
		router: mux.NewRouter(),
		hub:    NewHub(log),
		log:    log,
	}
	s.setupRoutes()

	// Feed the websocket hub off the event queue like any subscriber.
	eng.Events().Subscribe(events.TypeTrade, func(payload any) {
		if t, ok := payload.(book.Trade); ok {
			s.hub.BroadcastTrade(t)
		}
	})
	return s
}

func (s *Server) setupRoutes() {
	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	v1.HandleFunc("/orders/batch", s.handleSubmitBatch).Methods("POST")
	v1.HandleFunc("/markets/{symbol}/book", s.handleGetBook).Methods("GET")
	v1.HandleFunc("/snapshot", s.handleGetSnapshot).Methods("GET")
	v1.HandleFunc("/stats", s.handleGetStats).Methods("GET")

	s.router.HandleFunc("/ws", s.hub.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the hub and the HTTP listener. Blocks until Shutdown.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(s.router)

	s.srv = &http.Server{Addr: addr, Handler: handler}
	s.log.Info("api server starting", zap.String("addr", addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req engine.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body", err.Error())
		return
	}

	res, err := s.engine.ProcessOrder(r.Context(), req)
	if err != nil {
		respondStatus(w, err, res)
		return
	}
	respondJSON(w, res)
}

func (s *Server) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []engine.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body", err.Error())
		return
	}
	respondJSON(w, s.engine.ProcessBatch(r.Context(), reqs))
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	levels := queryInt(r, "levels", 0)

	snap, err := s.engine.MarketSnapshot(r.Context(), []string{symbol}, levels)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "snapshot unavailable", err.Error())
		return
	}
	respondJSON(w, snap[symbol])
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("symbols")
	if raw == "" {
		respondError(w, http.StatusBadRequest, "missing symbols parameter", "")
		return
	}
	symbols := strings.Split(raw, ",")
	levels := queryInt(r, "levels", 0)

	snap, err := s.engine.MarketSnapshot(r.Context(), symbols, levels)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "snapshot unavailable", err.Error())
		return
	}
	respondJSON(w, snap)
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.engine.Stats())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// respondStatus maps engine errors onto HTTP statuses. Validation and
// self-trade rejections carry the partial result in the body.
func respondStatus(w http.ResponseWriter, err error, res engine.Result) {
	switch {
	case errors.Is(err, book.ErrInvalidQuantity),
		errors.Is(err, book.ErrInvalidPrice),
		errors.Is(err, book.ErrInvalidSide):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(res)
	case errors.Is(err, book.ErrSelfTrade):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(res)
	default:
		respondError(w, http.StatusServiceUnavailable, "order not processed", err.Error())
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
