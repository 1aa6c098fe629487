package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		permitDecisionsTotal,
		usageCommitsTotal,
		usageCommitFailuresTotal,
		packAccessChecksTotal,
		entitlementChangesTotal,
	)
}

var (
	permitDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permit_decisions_total",
			Help: "Generation permits issued, by decision (unlimited/allowed/exhausted/no_access/error).",
		},
		[]string{"decision"},
	)

	usageCommitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "usage_commits_total",
			Help: "Usage records appended after a successful generation.",
		},
	)

	usageCommitFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "usage_commit_failures_total",
			Help: "Usage records that could not be written; the generation was still delivered.",
		},
	)

	packAccessChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pack_access_checks_total",
			Help: "Pack access checks by result (granted/denied).",
		},
		[]string{"result"},
	)

	entitlementChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlement_changes_total",
			Help: "Entitlement grants and revocations by access type.",
		},
		[]string{"action", "access_type"},
	)
)

func IncPermitDecision(decision string) {
	permitDecisionsTotal.WithLabelValues(norm(decision)).Inc()
}

func IncUsageCommit(ok bool) {
	if ok {
		usageCommitsTotal.Inc()
		return
	}
	usageCommitFailuresTotal.Inc()
}

func IncPackAccessCheck(granted bool) {
	result := "denied"
	if granted {
		result = "granted"
	}
	packAccessChecksTotal.WithLabelValues(result).Inc()
}

func AddEntitlementChange(action, accessType string, n int) {
	entitlementChangesTotal.WithLabelValues(norm(action), norm(accessType)).Add(float64(n))
}
