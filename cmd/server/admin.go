package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"bouncer/evidence"
	"bouncer/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	defaultEvidenceLimit = 50
	maxEvidenceLimit     = 1000
)

// newAdminRouter serves operators only: health, metrics and recent evidence. It is not behind the firewall.
func newAdminRouter(logger zerolog.Logger, reg *prometheus.Registry, store evidence.Store) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Method(http.MethodGet, "/metrics", metrics.Handler(reg))

	r.Get("/evidence", func(w http.ResponseWriter, r *http.Request) {
		limit, err := parseLimit(r.URL.Query().Get("limit"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		records, err := store.Recent(r.Context(), limit)
		if err != nil {
			logger.Error().Err(err).Msg("Error while listing evidence")
			http.Error(w, "evidence unavailable", http.StatusServiceUnavailable)
			return
		}
		if records == nil {
			records = []evidence.Record{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(records)
	})

	return r
}

func parseLimit(s string) (limit int, err error) {
	if s == "" {
		limit = defaultEvidenceLimit
		return
	}

	limit, err = strconv.Atoi(s)
	if err != nil || limit < 0 {
		err = strconv.ErrSyntax
		return
	}
	if limit > maxEvidenceLimit {
		limit = maxEvidenceLimit
	}
	return
}
