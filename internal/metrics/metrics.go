// Package metrics exposes the engine's Prometheus instrumentation. One
// Metrics value is created at startup and shared; all collectors are
// registered on its private registry, served by the status server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	CycleDuration      prometheus.Histogram
	CyclesTotal        prometheus.Counter
	MarketsScanned     prometheus.Gauge
	OpportunitiesFound *prometheus.CounterVec
	RankedOpportunities prometheus.Gauge
	OpenPositions      prometheus.Gauge
	PositionsOpened    prometheus.Counter
	PositionsClosed    *prometheus.CounterVec
	RealizedPnlUSD     prometheus.Gauge
	EquityUSD          prometheus.Gauge
	TradingPaused      prometheus.Gauge
	StaleSnapshots     prometheus.Counter
	AlertsSent         prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "polyscout_cycle_duration_seconds",
			Help:    "Wall-clock duration of one full scan cycle.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "polyscout_cycles_total",
			Help: "Completed scan cycles since start.",
		}),
		MarketsScanned: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "polyscout_markets_scanned",
			Help: "Markets passing the quality filter in the last cycle.",
		}),
		OpportunitiesFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "polyscout_opportunities_found_total",
			Help: "Opportunities emitted, labeled by detector.",
		}, []string{"detector"}),
		RankedOpportunities: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "polyscout_ranked_opportunities",
			Help: "Opportunities surviving filter and conflict resolution in the last cycle.",
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "polyscout_open_positions",
			Help: "Currently open positions.",
		}),
		PositionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "polyscout_positions_opened_total",
			Help: "Positions opened since start.",
		}),
		PositionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "polyscout_positions_closed_total",
			Help: "Positions closed since start, labeled by exit reason.",
		}, []string{"reason"}),
		RealizedPnlUSD: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "polyscout_realized_pnl_usd",
			Help: "Cumulative realized P&L in USD.",
		}),
		EquityUSD: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "polyscout_equity_usd",
			Help: "Cash plus mark-to-market value of open positions.",
		}),
		TradingPaused: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "polyscout_trading_paused",
			Help: "1 when the risk circuit breaker blocks entries.",
		}),
		StaleSnapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "polyscout_stale_snapshots_total",
			Help: "Cycles that ran on a stale market snapshot.",
		}),
		AlertsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "polyscout_alerts_sent_total",
			Help: "Alerts dispatched to notification channels.",
		}),
	}
	reg.MustRegister(
		m.CycleDuration, m.CyclesTotal, m.MarketsScanned,
		m.OpportunitiesFound, m.RankedOpportunities,
		m.OpenPositions, m.PositionsOpened, m.PositionsClosed,
		m.RealizedPnlUSD, m.EquityUSD, m.TradingPaused,
		m.StaleSnapshots, m.AlertsSent,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
