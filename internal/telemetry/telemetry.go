// Package telemetry exposes poll-loop counters over Prometheus.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds the poll-loop counters
type Metrics struct {
	CyclesTotal     prometheus.Counter
	CyclesSucceeded prometheus.Counter
	CyclesFailed    prometheus.Counter
	Attempts        *prometheus.CounterVec
	Discoveries     prometheus.Counter
}

// NewMetrics creates and registers the counters on a fresh registry
func NewMetrics() (*Metrics, *prometheus.Registry) {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stationpoller_cycles_total",
			Help: "Poll cycles started.",
		}),
		CyclesSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stationpoller_cycles_succeeded_total",
			Help: "Poll cycles that delivered a batch.",
		}),
		CyclesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stationpoller_cycles_failed_total",
			Help: "Poll cycles that exhausted all retries.",
		}),
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stationpoller_attempts_total",
			Help: "Fetch/decode/deliver attempts by result.",
		}, []string{"result"}),
		Discoveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stationpoller_discoveries_total",
			Help: "Successful station discoveries.",
		}),
	}

	registry.MustRegister(m.CyclesTotal, m.CyclesSucceeded, m.CyclesFailed, m.Attempts, m.Discoveries)
	return m, registry
}

// Server serves /metrics and /healthz
type Server struct {
	server *http.Server
	logger *zap.SugaredLogger
}

// NewServer creates the telemetry HTTP server
func NewServer(listenAddr string, registry *prometheus.Registry, logger *zap.SugaredLogger) *Server {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)

	return &Server{
		server: &http.Server{
			Addr:         listenAddr,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start serves until the listener fails or Shutdown is called
func (s *Server) Start() {
	s.logger.Infof("telemetry listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Errorf("telemetry server error: %v", err)
	}
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
