// Package metrics exports trading-loop metrics to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder implements ports.Metrics with its own registry.
type Recorder struct {
	registry *prometheus.Registry

	decisions     *prometheus.CounterVec
	skips         *prometheus.CounterVec
	orders        *prometheus.CounterVec
	exits         *prometheus.CounterVec
	realizedPNL   *prometheus.GaugeVec
	openPositions prometheus.Gauge
}

// NewRecorder creates and registers every collector.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "equitybot_decisions_total", Help: "Pipeline decisions by deciding stage and result"},
			[]string{"stage", "passed"},
		),
		skips: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "equitybot_skips_total", Help: "Candidates skipped before an order, by reason"},
			[]string{"reason"},
		),
		orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "equitybot_orders_total", Help: "Orders placed by side and result"},
			[]string{"side", "accepted"},
		),
		exits: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "equitybot_exits_total", Help: "Exit actions executed by rule"},
			[]string{"rule"},
		),
		realizedPNL: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "equitybot_realized_pnl", Help: "Realized PnL for the current period"},
			[]string{"period"},
		),
		openPositions: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "equitybot_open_positions", Help: "Open positions held"},
		),
	}
	r.registry.MustRegister(r.decisions, r.skips, r.orders, r.exits, r.realizedPNL, r.openPositions)
	return r
}

// Registry exposes the registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func (r *Recorder) ObserveDecision(stage string, passed bool) {
	r.decisions.WithLabelValues(stage, strconv.FormatBool(passed)).Inc()
}

func (r *Recorder) IncSkip(reason string) { r.skips.WithLabelValues(reason).Inc() }

func (r *Recorder) IncOrder(side string, accepted bool) {
	r.orders.WithLabelValues(side, strconv.FormatBool(accepted)).Inc()
}

func (r *Recorder) IncExit(rule string) { r.exits.WithLabelValues(rule).Inc() }

func (r *Recorder) SetRealizedPNL(daily, weekly float64) {
	r.realizedPNL.WithLabelValues("daily").Set(daily)
	r.realizedPNL.WithLabelValues("weekly").Set(weekly)
}

func (r *Recorder) SetOpenPositions(n int) { r.openPositions.Set(float64(n)) }

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Server serves /metrics until Shutdown.
type Server struct {
	srv *http.Server
}

// Serve starts the metrics endpoint on addr in the background.
func Serve(addr string, r *Recorder, onError func(error)) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) && onError != nil {
			onError(err)
		}
	}()
	return &Server{srv: srv}
}

// Shutdown stops the endpoint.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
