package metrics

import (
	"math/big"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"lienledger/core/types"
	"lienledger/native/lien"
)

type LienMetrics struct {
	operations   *prometheus.CounterVec
	failures     *prometheus.CounterVec
	events       *prometheus.CounterVec
	openLiens    prometheus.Gauge
	liquidations prometheus.Counter
	settled      *prometheus.CounterVec
	shortfall    prometheus.Counter
}

var (
	lienOnce     sync.Once
	lienRegistry *LienMetrics
)

// Lien returns the process-wide ledger metrics, registering them with the
// default prometheus registry on first use.
func Lien() *LienMetrics {
	lienOnce.Do(func() {
		lienRegistry = NewLienMetrics()
		lienRegistry.MustRegister(prometheus.DefaultRegisterer)
	})
	return lienRegistry
}

// NewLienMetrics builds unregistered collectors. Tests register them with a
// private registry.
func NewLienMetrics() *LienMetrics {
	return &LienMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lienledger",
			Subsystem: "lien",
			Name:      "operations_total",
			Help:      "Ledger operations segmented by operation and outcome.",
		}, []string{"operation", "outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lienledger",
			Subsystem: "lien",
			Name:      "failures_total",
			Help:      "Rejected ledger operations segmented by operation and error kind.",
		}, []string{"operation", "kind"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lienledger",
			Subsystem: "lien",
			Name:      "events_total",
			Help:      "Committed ledger events by type.",
		}, []string{"type"}),
		openLiens: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lienledger",
			Subsystem: "lien",
			Name:      "open_liens",
			Help:      "Liens created since start that have not been retired.",
		}),
		liquidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lienledger",
			Subsystem: "lien",
			Name:      "liquidations_total",
			Help:      "Collaterals routed to auction.",
		}),
		settled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lienledger",
			Subsystem: "lien",
			Name:      "settled_amount_total",
			Help:      "Debt repaid in token base units by settlement path.",
		}, []string{"path"}),
		shortfall: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lienledger",
			Subsystem: "lien",
			Name:      "auction_shortfall_total",
			Help:      "Frozen debt left unpaid by auction settlements.",
		}),
	}
}

// MustRegister registers every collector with reg.
func (m *LienMetrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.operations, m.failures, m.events, m.openLiens, m.liquidations, m.settled, m.shortfall)
}

// ObserveOperation records the outcome of a ledger call.
func (m *LienMetrics) ObserveOperation(operation string, err error) {
	if m == nil {
		return
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if err == nil {
		m.operations.WithLabelValues(op, "success").Inc()
		return
	}
	m.operations.WithLabelValues(op, "error").Inc()
	kind := "internal"
	if k := lien.KindOf(err); k != 0 {
		kind = strings.ReplaceAll(k.String(), " ", "_")
	}
	m.failures.WithLabelValues(op, kind).Inc()
}

// ObserveEvent folds a committed ledger event into the gauges. It is meant to
// be subscribed to the event bus.
func (m *LienMetrics) ObserveEvent(evt *types.Event) {
	if m == nil || evt == nil {
		return
	}
	m.events.WithLabelValues(evt.Type).Inc()
	switch evt.Type {
	case lien.EventTypeLienCreated:
		m.openLiens.Inc()
	case lien.EventTypeLienBuyout:
		// The replacement lien has its own created event.
		m.openLiens.Dec()
	case lien.EventTypeLienLiquidated:
		m.liquidations.Inc()
	case lien.EventTypeLienPayment:
		m.openLiens.Dec()
		path := "direct"
		if remaining, ok := evt.Attributes["remaining"]; ok {
			path = "auction"
			m.shortfall.Add(parseAmount(remaining))
		}
		m.settled.WithLabelValues(path).Add(parseAmount(evt.Attributes["amount"]))
	}
}

func parseAmount(raw string) float64 {
	v, ok := new(big.Float).SetString(strings.TrimSpace(raw))
	if !ok || v.Sign() < 0 {
		return 0
	}
	f, _ := v.Float64()
	return f
}
