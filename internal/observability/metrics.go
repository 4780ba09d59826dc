// Package observability registers the bot's Prometheus metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	postsEnqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "groupsbot_posts_enqueued_total",
			Help: "Total number of channel posts accepted for diffusion.",
		},
	)
	postsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupsbot_posts_rejected_total",
			Help: "Total number of channel posts rejected before enqueue.",
		},
		[]string{"reason"},
	)
	deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupsbot_deliveries_total",
			Help: "Total number of per-subscriber-chat delivery attempts.",
		},
		[]string{"status"},
	)
	staleLinksPrunedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupsbot_stale_links_pruned_total",
			Help: "Total number of directory rows pruned by self-healing reads.",
		},
		[]string{"kind"},
	)
	membersReapedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "groupsbot_members_reaped_total",
			Help: "Total number of inactive members evicted from public groups.",
		},
	)
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "groupsbot_diffusion_queue_depth",
			Help: "Number of posts waiting in the diffusion queue.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		postsEnqueuedTotal,
		postsRejectedTotal,
		deliveriesTotal,
		staleLinksPrunedTotal,
		membersReapedTotal,
		queueDepth,
	)
}

// IncPostEnqueued records one accepted channel post.
func IncPostEnqueued() {
	postsEnqueuedTotal.Inc()
}

// IncPostRejected records one rejected post with the rejection reason.
func IncPostRejected(reason string) {
	postsRejectedTotal.WithLabelValues(reason).Inc()
}

// IncDelivery records one delivery attempt outcome ("ok" or "error").
func IncDelivery(status string) {
	deliveriesTotal.WithLabelValues(status).Inc()
}

// IncStaleLinkPruned records one self-healed directory row by entity kind.
func IncStaleLinkPruned(kind string) {
	staleLinksPrunedTotal.WithLabelValues(kind).Inc()
}

// IncMemberReaped records one inactivity eviction.
func IncMemberReaped() {
	membersReapedTotal.Inc()
}

// SetQueueDepth reports the current diffusion queue length.
func SetQueueDepth(depth int) {
	queueDepth.Set(float64(depth))
}
