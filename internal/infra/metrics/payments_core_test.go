//go:build !integration

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestAddPayments(t *testing.T) {
	c := paymentsTotal.WithLabelValues("expired")
	before := testutil.ToFloat64(c)

	AddPayments("Expired", 3)
	AddPayments("expired", 0)
	AddPayments("expired", -2)

	if got := testutil.ToFloat64(c) - before; got != 3 {
		t.Errorf("expected 3 more expired payments, got %v", got)
	}
}

func TestIncLateCharge(t *testing.T) {
	before := testutil.ToFloat64(lateChargesTotal)
	IncLateCharge()
	if got := testutil.ToFloat64(lateChargesTotal) - before; got != 1 {
		t.Errorf("expected one late charge, got %v", got)
	}
}
