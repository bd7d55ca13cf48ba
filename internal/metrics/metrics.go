package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Core counts order lifecycle outcomes.
type Core struct {
	OrderTransitions *prometheus.CounterVec
	BudgetRejections prometheus.Counter
	GatewayConfirms  *prometheus.CounterVec
	Compensations    *prometheus.CounterVec
}

// NewCore registers the collectors on reg. Pass prometheus.NewRegistry() in tests.
func NewCore(reg prometheus.Registerer) *Core {
	m := &Core{
		OrderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snackorder",
			Subsystem: "orders",
			Name:      "transitions_total",
			Help:      "Order status changes by resulting status.",
		}, []string{"status"}),
		BudgetRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "snackorder",
			Subsystem: "budget",
			Name:      "insufficient_total",
			Help:      "Approvals refused because the period budget was insufficient.",
		}),
		GatewayConfirms: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snackorder",
			Subsystem: "payment",
			Name:      "gateway_confirms_total",
			Help:      "Payment confirmation calls by result.",
		}, []string{"result"}),
		Compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snackorder",
			Subsystem: "payment",
			Name:      "compensations_total",
			Help:      "Compensation saga runs by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(m.OrderTransitions, m.BudgetRejections, m.GatewayConfirms, m.Compensations)
	return m
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
