package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "markme_sessions_scheduled_total",
		Help: "Delayed firing messages enqueued by the materializer.",
	})

	OverridesSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "markme_overrides_submitted_total",
		Help: "Accepted session overrides by action.",
	}, []string{"action"})

	Firings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "markme_session_firings_total",
		Help: "Firing messages handled by outcome.",
	}, []string{"outcome"})

	AggregationEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "markme_aggregation_events_total",
		Help: "Attendance mutation feed events by result.",
	}, []string{"result"})
)
