package push

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coursebeat_push_deliveries_total",
		Help: "Per-endpoint push delivery outcomes by channel.",
	}, []string{"channel", "outcome"})

	subscriptionsDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coursebeat_push_subscriptions_deleted_total",
		Help: "Subscriptions removed after the provider reported them permanently invalid.",
	})

	droppedSubscriptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coursebeat_push_subscriptions_malformed_total",
		Help: "Subscription records discarded by the partitioner as malformed.",
	})
)

func recordChannel(channel string, r ChannelResult) {
	deliveriesTotal.WithLabelValues(channel, "success").Add(float64(r.Success))
	deliveriesTotal.WithLabelValues(channel, "temporary_failure").Add(float64(r.Temporary))
	deliveriesTotal.WithLabelValues(channel, "invalid").Add(float64(len(r.Invalid)))
}
