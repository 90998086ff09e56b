package vault

import (
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	bookingsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sessionvault",
		Subsystem: "vault",
		Name:      "bookings_created_total",
		Help:      "Total bookings created.",
	})

	bookingsSettled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sessionvault",
		Subsystem: "vault",
		Name:      "bookings_settled_total",
		Help:      "Total bookings that left pending, by final status.",
	}, []string{"status"}) // "finalized", "reclaimed"

	settledVolume = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sessionvault",
		Subsystem: "vault",
		Name:      "settled_units_total",
		Help:      "Base units released from custody, by recipient side.",
	}, []string{"side"}) // "payee", "payer"

	operationErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sessionvault",
		Subsystem: "vault",
		Name:      "operation_errors_total",
		Help:      "Rejected vault operations by operation and error code.",
	}, []string{"operation", "code"})

	sessionUsage = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sessionvault",
		Subsystem: "vault",
		Name:      "session_usage_ratio",
		Help:      "Charged duration as a fraction of booked duration at finalization.",
		Buckets:   []float64{0, 0.1, 0.25, 0.5, 0.75, 0.9, 1},
	})

	reclaimableBookings = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sessionvault",
		Subsystem: "vault",
		Name:      "reclaimable_bookings",
		Help:      "Pending bookings older than the staleness threshold at the last monitor scan.",
	})
)

func init() {
	prometheus.MustRegister(
		bookingsCreated,
		bookingsSettled,
		settledVolume,
		operationErrors,
		sessionUsage,
		reclaimableBookings,
	)
}

func observe(operation string, err error) {
	if err != nil {
		operationErrors.WithLabelValues(operation, ErrorCode(err)).Inc()
	}
}

func addVolume(side string, v *big.Int) {
	if v == nil || v.Sign() <= 0 {
		return
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	settledVolume.WithLabelValues(side).Add(f)
}
