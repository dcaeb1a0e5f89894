// Package metrics exposes Prometheus instrumentation for role computation
// and synchronization. Collectors register on the default registry; the host
// process decides where to serve them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Rule execution metrics
var (
	// RuleRunsTotal tracks rule executions by rule name and outcome.
	RuleRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epilink_rule_runs_total",
			Help: "Total number of rule executions by rule and status",
		},
		[]string{"rule", "status"},
	)

	// RuleRunDuration tracks rule execution duration.
	RuleRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "epilink_rule_run_duration_seconds",
			Help:    "Rule execution duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"rule"},
	)

	// RuleCacheHitsTotal tracks cache hits on rule results.
	RuleCacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epilink_rule_cache_hits_total",
			Help: "Total number of rule result cache hits",
		},
		[]string{"rule"},
	)

	// RuleCacheMissesTotal tracks cache misses on rule results.
	RuleCacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epilink_rule_cache_misses_total",
			Help: "Total number of rule result cache misses",
		},
		[]string{"rule"},
	)
)

// Role synchronization metrics
var (
	// RoleSyncsTotal tracks per-guild role diff applications by outcome.
	RoleSyncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epilink_role_syncs_total",
			Help: "Total number of per-guild role synchronizations by status",
		},
		[]string{"guild", "status"},
	)

	// IdentityDisclosuresTotal tracks automated identity disclosures
	// performed for strong rule execution.
	IdentityDisclosuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "epilink_identity_disclosures_total",
			Help: "Total number of automated identity disclosures",
		},
	)

	// ResyncTasksTotal tracks background resync tasks by outcome.
	ResyncTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epilink_resync_tasks_total",
			Help: "Total number of background resync tasks by status",
		},
		[]string{"status"},
	)
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)
