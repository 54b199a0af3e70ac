// Package api serves the read-only HTTP surface: health, the
// situation catalog, and waiting-room lookup for join screens. All
// gameplay goes through the websocket gateway.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/cbodonnell/trustecho/pkg/game"
	"github.com/cbodonnell/trustecho/pkg/log"
	"github.com/cbodonnell/trustecho/pkg/store"
	"github.com/gorilla/mux"
)

type APIServer struct {
	server *http.Server
	tls    *TLSConfig
}

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type NewAPIServerOptions struct {
	Port          int
	TLS           *TLSConfig
	Store         store.Store
	SituationPool *game.SituationPool
}

// NewAPIServer creates a new http.Server for handling API requests
func NewAPIServer(opts NewAPIServerOptions) *APIServer {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", handleHealthz).Methods(http.MethodGet)
	router.HandleFunc("/situations", handleListSituations(opts.SituationPool)).Methods(http.MethodGet)
	router.HandleFunc("/rooms/{roomCode}", handleGetRoom(opts.Store)).Methods(http.MethodGet)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}
	return &APIServer{
		server: server,
		tls:    opts.TLS,
	}
}

// Start starts the APIServer
func (s *APIServer) Start() {
	var listenAndServe func() error
	if s.tls != nil {
		log.Info("API server listening on %s with TLS", s.server.Addr)
		listenAndServe = func() error {
			return s.server.ListenAndServeTLS(s.tls.CertFile, s.tls.KeyFile)
		}
	} else {
		log.Info("API server listening on %s", s.server.Addr)
		listenAndServe = s.server.ListenAndServe
	}
	if err := listenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			log.Info("API server closed")
			return
		}
		log.Error("API server error: %v", err)
	}
}

// Stop stops the APIServer
func (s *APIServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response: %v", err)
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func handleListSituations(pool *game.SituationPool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, pool.Situations())
	}
}

func handleGetRoom(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomCode := strings.ToUpper(mux.Vars(r)["roomCode"])
		g, err := s.FindWaitingGame(r.Context(), roomCode)
		if err != nil {
			if store.IsNotFound(err) {
				http.Error(w, "Room not found", http.StatusNotFound)
				return
			}
			log.Error("failed to look up room %s: %v", roomCode, err)
			http.Error(w, "Failed to look up room", http.StatusInternalServerError)
			return
		}
		writeJSON(w, g)
	}
}
