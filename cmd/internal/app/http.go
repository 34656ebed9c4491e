package app

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authapi "basecampy/cmd/internal/auth/api"
)

type healthMessage struct {
	Message string `json:"message"`
}

type healthEnvelope struct {
	StatusCode int           `json:"statusCode"`
	Data       healthMessage `json:"data"`
	Message    string        `json:"message"`
	Success    bool          `json:"success"`
}

func registerHTTP(mux *http.ServeMux, log Logger, cfg Config, be *backend, gatherer prometheus.Gatherer, auth *authapi.Handler) {
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Welcome to basecampy"))
	})

	mux.HandleFunc("/api/v1/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(healthEnvelope{
			StatusCode: http.StatusOK,
			Data:       healthMessage{Message: "Server is running"},
			Message:    "Successful",
			Success:    true,
		})
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.ReadinessRequireStore && be.kind == backendMemory {
			http.Error(w, "persistent store not configured", http.StatusServiceUnavailable)
			return
		}
		if err := be.Ready(r.Context()); err != nil {
			log.Warn("readyz.store.not_ready", "store", be.kind, "err", err)
			http.Error(w, "store not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	if cfg.MetricsEnabled && gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	auth.Register(mux)
}
