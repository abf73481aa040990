package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commission_orders_processed_total",
		Help: "Total number of finalized orders run through the commission engine",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commission_orders_failed_total",
		Help: "Total number of orders whose commission pass failed",
	}, []string{"reason"})

	EntriesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commission_entries_created_total",
		Help: "Total number of commission ledger entries created",
	})

	LinesSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commission_lines_skipped_total",
		Help: "Total number of order lines skipped for missing tier or pricing",
	})

	ComputeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "commission_compute_latency_seconds",
		Help:    "Latency of per-order commission computation",
		Buckets: prometheus.DefBuckets,
	})

	EntriesMarkedPaidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "commission_entries_marked_paid_total",
		Help: "Total number of ledger entries transitioned to PAID",
	})

	MarkPaidRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commission_mark_paid_rejected_total",
		Help: "Total number of rejected mark-paid batches",
	}, []string{"reason"})

	RelationshipLinksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relationship_links_total",
		Help: "Total number of upline edges created",
	})

	RelationshipLinksRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relationship_links_rejected_total",
		Help: "Total number of rejected upline link attempts",
	}, []string{"reason"})

	TreeBuildLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "network_tree_build_latency_seconds",
		Help:    "Latency of downline tree construction",
		Buckets: prometheus.DefBuckets,
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
