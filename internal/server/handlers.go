package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aethernet/indexer/internal/build"
	"github.com/aethernet/indexer/internal/store"
)

type apiNode struct {
	Pubkey    string `json:"pubkey"`
	Authority string `json:"authority"`
	URI       string `json:"uri"`
}

type apiStats struct {
	TotalNodes int64 `json:"total_nodes"`
}

type apiHealth struct {
	Status           string `json:"status"`
	LastSuccess      string `json:"last_success,omitempty"`
	StalenessSeconds int64  `json:"staleness_seconds"`
}

func (s *Server) getRootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "aethernet indexer %s\n", build.Version)
		fmt.Fprint(w, "- GET /nodes\n")
		fmt.Fprint(w, "- GET /stats\n")
		fmt.Fprint(w, "- GET /healthz\n")
	}
}

func (s *Server) getNodesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		nodes, err := s.store.ReadAllNodes(r.Context())
		if err != nil {
			log.Errorf("reading nodes: %s", err)
			http.Error(w, "failed to fetch nodes from database", http.StatusInternalServerError)
			return
		}

		out := make([]apiNode, 0, len(nodes))
		for _, n := range nodes {
			out = append(out, apiNode{Pubkey: n.Pubkey, Authority: n.Authority, URI: n.URI})
		}

		writeJSON(w, out)
	}
}

func (s *Server) getStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := s.store.LatestStats(r.Context())
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				http.Error(w, "no reconciliation has committed yet", http.StatusNotFound)
				return
			}

			log.Errorf("reading stats: %s", err)
			http.Error(w, "failed to fetch stats from database", http.StatusInternalServerError)
			return
		}

		writeJSON(w, apiStats{TotalNodes: snap.TotalNodes})
	}
}

// getHealthzHandler reports liveness plus staleness: how long ago the last
// cycle committed. Staleness is -1 until the first successful cycle.
func (s *Server) getHealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := apiHealth{Status: "ok", StalenessSeconds: -1}

		if last, ok := s.recon.LastSuccess(); ok {
			health.LastSuccess = last.UTC().Format(time.RFC3339)
			health.StalenessSeconds = int64(time.Since(last).Seconds())
		}

		writeJSON(w, health)
	}
}

func (s *Server) getMetricsHandler() http.Handler {
	return promhttp.Handler()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("encoding response: %s", err)
	}
}
