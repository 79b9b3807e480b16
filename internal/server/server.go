package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	logging "github.com/ipfs/go-log/v2"

	"github.com/aethernet/indexer/internal/metrics"
	"github.com/aethernet/indexer/internal/reconciler"
	"github.com/aethernet/indexer/internal/store"
)

var log = logging.Logger("server")

type config struct {
	metricsEndpointToken string
}

type Option func(*config)

// WithMetricsEndpoint enables the Prometheus endpoint, guarded by the given
// bearer token.
func WithMetricsEndpoint(authToken string) Option {
	return func(c *config) {
		c.metricsEndpointToken = authToken
	}
}

// Server is the read-only HTTP front. It only ever reads committed store
// state; all writes belong to the reconciler.
type Server struct {
	cfg   *config
	store store.Store
	recon *reconciler.Reconciler
}

func New(sto store.Store, recon *reconciler.Reconciler, opts ...Option) (*Server, error) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Server{cfg: cfg, store: sto, recon: recon}, nil
}

func (s *Server) Handler() (http.Handler, error) {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /", s.getRootHandler())
	mux.HandleFunc("GET /nodes", s.getNodesHandler())
	mux.HandleFunc("GET /stats", s.getStatsHandler())
	mux.HandleFunc("GET /healthz", s.getHealthzHandler())

	if s.cfg.metricsEndpointToken != "" {
		if err := metrics.Init(); err != nil {
			return nil, fmt.Errorf("initializing metrics: %w", err)
		}
		mux.Handle("GET /metrics", BearerAuthMiddleware(s.getMetricsHandler(), s.cfg.metricsEndpointToken))
	} else {
		log.Warnf("metrics endpoint is disabled")
	}

	return CORSMiddleware(mux), nil
}

func (s *Server) ListenAndServe(addr string) error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}

	log.Infof("listening on %s", addr)
	return http.ListenAndServe(addr, handler)
}

// CORSMiddleware allows any origin. The front serves read-only public data.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func BearerAuthMiddleware(next http.Handler, token string) http.Handler {
	expected := "Bearer " + token
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if subtle.ConstantTimeCompare([]byte(auth), []byte(expected)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
