package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Exporter exposes metrics via HTTP
type Exporter struct {
	log    logrus.FieldLogger
	server *http.Server
}

// NewExporter creates an exporter serving gatherer on addr at /metrics.
func NewExporter(log logrus.FieldLogger, addr string, gatherer prometheus.Gatherer) *Exporter {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &Exporter{
		log: log.WithField("component", "metrics"),
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler returns the HTTP handler of the exporter.
func (e *Exporter) Handler() http.Handler {
	return e.server.Handler
}

// Start serves until ctx is cancelled.
func (e *Exporter) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := e.server.Shutdown(shutdownCtx); err != nil {
			e.log.WithError(err).Warn("Failed to shut down metrics server")
		}
	}()

	e.log.WithField("addr", e.server.Addr).Info("Serving metrics")

	if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
