// Package ops exposes a small HTTP surface for health checks and delivery
// counters.
package ops

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/talebot/internal/bot"
)

// StatsProvider yields current delivery counters.
type StatsProvider interface {
	Stats() bot.Stats
}

// NewServer builds the ops HTTP server.
func NewServer(addr string, stats StatsProvider) *http.Server {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", handleHealth).Methods("GET")
	r.HandleFunc("/statusz", handleStatus(stats)).Methods("GET")

	return &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func handleStatus(stats StatsProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats.Stats()); err != nil {
			log.Error().Err(err).Msg("Failed to encode status")
		}
	}
}
