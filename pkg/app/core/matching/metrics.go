package matching

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/uhyunpark/hyperspot/pkg/app/core/orderbook"
)

// Metrics are the exchange's prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	OrdersReceivedTotal   *prometheus.CounterVec
	OrdersRejectedTotal   *prometheus.CounterVec
	OrdersCancelledTotal  *prometheus.CounterVec
	TradesExecutedTotal   *prometheus.CounterVec
	TradedVolumeTotal     *prometheus.CounterVec
	SettlementFailures    *prometheus.CounterVec
	CurrentOrderbookDepth *prometheus.GaugeVec
	BestPrice             *prometheus.GaugeVec
	OrderLatencySeconds   *prometheus.HistogramVec
	TradeSizeDistribution *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OrdersReceivedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_received_total",
				Help: "Total number of orders received by the matching engine",
			},
			[]string{"pair", "kind"},
		),
		OrdersRejectedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_rejected_total",
				Help: "Total number of orders rejected",
			},
			[]string{"pair", "reason"},
		),
		OrdersCancelledTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_cancelled_total",
				Help: "Total number of resting orders cancelled",
			},
			[]string{"pair"},
		),
		TradesExecutedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trades_executed_total",
				Help: "Total number of trades executed",
			},
			[]string{"pair"},
		),
		TradedVolumeTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "traded_volume_total",
				Help: "Total base volume traded",
			},
			[]string{"pair"},
		),
		SettlementFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_failures_total",
				Help: "Matches aborted because a settlement leg failed",
			},
			[]string{"pair"},
		),
		CurrentOrderbookDepth: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "current_orderbook_depth",
				Help: "Current number of resting orders",
			},
			[]string{"pair", "side"},
		),
		BestPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "best_price",
				Help: "Current best bid/ask price (0 when the side is empty)",
			},
			[]string{"pair", "side"},
		),
		OrderLatencySeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "order_latency_seconds",
				Help:    "Time taken to process an order submission",
				Buckets: prometheus.ExponentialBuckets(0.00001, 2, 15), // 10µs to ~160ms
			},
			[]string{"pair", "kind"},
		),
		TradeSizeDistribution: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trade_size_distribution",
				Help:    "Distribution of trade sizes in base units",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 12),
			},
			[]string{"pair"},
		),
	}
}

func (m *Metrics) orderReceived(pair string, kind orderbook.Kind) {
	if m == nil {
		return
	}
	m.OrdersReceivedTotal.WithLabelValues(pair, kind.String()).Inc()
}

func (m *Metrics) orderRejected(pair string, err error) {
	if m == nil {
		return
	}
	m.OrdersRejectedTotal.WithLabelValues(pair, rejectReason(err)).Inc()
	if rejectReason(err) == "settlement" {
		m.SettlementFailures.WithLabelValues(pair).Inc()
	}
}

func (m *Metrics) orderCancelled(pair string) {
	if m == nil {
		return
	}
	m.OrdersCancelledTotal.WithLabelValues(pair).Inc()
}

func (m *Metrics) latency(pair string, kind orderbook.Kind, seconds float64) {
	if m == nil {
		return
	}
	m.OrderLatencySeconds.WithLabelValues(pair, kind.String()).Observe(seconds)
}

func (m *Metrics) trade(t Trade) {
	if m == nil {
		return
	}
	qty := t.Quantity.Float64()
	m.TradesExecutedTotal.WithLabelValues(t.Pair).Inc()
	m.TradedVolumeTotal.WithLabelValues(t.Pair).Add(qty)
	m.TradeSizeDistribution.WithLabelValues(t.Pair).Observe(qty)
}

// bookState refreshes the depth and best price gauges of one book.
func (m *Metrics) bookState(b *orderbook.Book) {
	if m == nil {
		return
	}
	for _, side := range []orderbook.Side{orderbook.Bid, orderbook.Ask} {
		idx := b.Index(side)
		m.CurrentOrderbookDepth.WithLabelValues(b.Pair(), side.String()).Set(float64(idx.Orders()))
		price := 0.0
		if lvl := idx.Best(); lvl != nil {
			price = lvl.Price.Float64()
		}
		m.BestPrice.WithLabelValues(b.Pair(), side.String()).Set(price)
	}
}
