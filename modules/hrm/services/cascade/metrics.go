package cascade

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iota-uz/competency-hub/modules/hrm/domain/orglevel"
)

var (
	fetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hrm",
		Subsystem: "cascade",
		Name:      "fetches_total",
		Help:      "Option fetches issued by the cascade resolver broken down by level and outcome.",
	}, []string{"level", "result"})

	guardSkips = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hrm",
		Subsystem: "cascade",
		Name:      "guard_skips_total",
		Help:      "Re-observed parents whose options were already current.",
	}, []string{"level"})
)

func recordFetch(level orglevel.Level, result string) {
	fetches.WithLabelValues(level.Key(), result).Inc()
}

func recordGuardSkip(level orglevel.Level) {
	guardSkips.WithLabelValues(level.Key()).Inc()
}
