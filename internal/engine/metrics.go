package engine

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var transitionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "modreg_module_operations_total",
		Help: "Registry operations by outcome (ok, rejected, error).",
	},
	[]string{"op", "result"},
)

func init() {
	prometheus.MustRegister(transitionsTotal)
}

func observe(op string, err error) {
	transitionsTotal.WithLabelValues(op, outcome(err)).Inc()
}

func outcome(err error) string {
	var re *Error
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &re):
		return "rejected"
	default:
		return "error"
	}
}
