// Package metrics provides Prometheus instrumentation for the guardian
// moderation engine: message throughput by outcome, violations by detector,
// enforcement actions by type, and collaborator failure counts.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MessagesTotal counts messages by outcome. The gateway reports
	// "accepted" and "ignored"; the engine reports "clean", "violation",
	// "quiet_deleted" and "exempt".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "guardian_messages_total",
		Help: "Total number of messages screened, by outcome",
	}, []string{"result"})

	// ViolationsTotal counts violations by the detector that fired.
	ViolationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "guardian_violations_total",
		Help: "Total number of policy violations, by reason kind",
	}, []string{"kind"})

	// ActionsTotal counts enforcement actions by type: "delete", "warn",
	// "mute", "ban".
	ActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "guardian_actions_total",
		Help: "Total number of enforcement actions taken, by action",
	}, []string{"action"})

	// NotificationsExpired counts self-deleted enforcement notices.
	NotificationsExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "guardian_notifications_expired_total",
		Help: "Total number of enforcement notices that reached their TTL",
	})

	// CollaboratorErrors counts failed chat-platform API calls by operation.
	CollaboratorErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "guardian_collaborator_errors_total",
		Help: "Total number of failed moderation API calls, by operation",
	}, []string{"op"})

	// InboundDuplicates counts webhook deliveries dropped by the dedupe
	// gate.
	InboundDuplicates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "guardian_inbound_duplicates_total",
		Help: "Total number of duplicate webhook updates dropped",
	})

	// InboundThrottled counts messages dropped by the intake rate limiter.
	InboundThrottled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "guardian_inbound_throttled_total",
		Help: "Total number of messages dropped by the intake rate limiter",
	})
)

func init() {
	prometheus.MustRegister(
		MessagesTotal,
		ViolationsTotal,
		ActionsTotal,
		NotificationsExpired,
		CollaboratorErrors,
		InboundDuplicates,
		InboundThrottled,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
