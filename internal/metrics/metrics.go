package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ResolverHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optionsim_resolver_hits_total", Help: "Option series resolved, by storage tier"},
		[]string{"tier"},
	)
	Skips = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optionsim_skips_total", Help: "Candidates skipped, by reason"},
		[]string{"reason"},
	)
	Outcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optionsim_outcomes_total", Help: "Simulated trade outcomes"},
		[]string{"outcome"},
	)
	BlobRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optionsim_blob_requests_total", Help: "Remote blob store calls"},
		[]string{"op", "status"},
	)
)

func init() {
	prometheus.MustRegister(ResolverHits, Skips, Outcomes, BlobRequests)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
