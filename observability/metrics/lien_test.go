package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"lienledger/core/types"
	"lienledger/native/lien"
)

func TestObserveEvent(t *testing.T) {
	m := NewLienMetrics()
	m.MustRegister(prometheus.NewRegistry())

	m.ObserveEvent(&types.Event{Type: lien.EventTypeLienCreated})
	m.ObserveEvent(&types.Event{Type: lien.EventTypeLienCreated})
	m.ObserveEvent(&types.Event{Type: lien.EventTypeLienPayment, Attributes: map[string]string{"amount": "15"}})
	m.ObserveEvent(&types.Event{Type: lien.EventTypeLienLiquidated})
	m.ObserveEvent(&types.Event{Type: lien.EventTypeLienPayment, Attributes: map[string]string{"amount": "4", "remaining": "6"}})

	if got := testutil.ToFloat64(m.openLiens); got != 0 {
		t.Fatalf("expected no open liens, got %v", got)
	}
	if got := testutil.ToFloat64(m.liquidations); got != 1 {
		t.Fatalf("expected one liquidation, got %v", got)
	}
	if got := testutil.ToFloat64(m.settled.WithLabelValues("direct")); got != 15 {
		t.Fatalf("expected 15 settled directly, got %v", got)
	}
	if got := testutil.ToFloat64(m.settled.WithLabelValues("auction")); got != 4 {
		t.Fatalf("expected 4 settled by auction, got %v", got)
	}
	if got := testutil.ToFloat64(m.shortfall); got != 6 {
		t.Fatalf("expected shortfall 6, got %v", got)
	}
	if got := testutil.ToFloat64(m.events.WithLabelValues(lien.EventTypeLienCreated)); got != 2 {
		t.Fatalf("expected two created events, got %v", got)
	}
}

func TestObserveOperation(t *testing.T) {
	m := NewLienMetrics()
	m.MustRegister(prometheus.NewRegistry())

	m.ObserveOperation("lien_makePayment", nil)
	m.ObserveOperation("lien_makePayment", lien.ErrInvalidHash)
	m.ObserveOperation("lien_makePayment", errors.New("disk"))

	if got := testutil.ToFloat64(m.operations.WithLabelValues("lien_makePayment", "error")); got != 2 {
		t.Fatalf("expected two failures, got %v", got)
	}
	if got := testutil.ToFloat64(m.failures.WithLabelValues("lien_makePayment", "invalid_state")); got != 1 {
		t.Fatalf("expected one invalid state failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.failures.WithLabelValues("lien_makePayment", "internal")); got != 1 {
		t.Fatalf("expected one internal failure, got %v", got)
	}
}
