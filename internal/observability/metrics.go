package observability

import "github.com/prometheus/client_golang/prometheus"

// Domain counters for the chat flow. HTTP-level metrics live in the
// middleware package; these count business events regardless of transport.
var (
	SessionsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "livechat_sessions_started_total",
			Help: "Visitor sessions created.",
		},
	)

	MessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_messages_sent_total",
			Help: "Messages persisted, by sender role.",
		},
		[]string{"sender"},
	)

	// AnalyticsDropped counts best-effort analytics writes that failed.
	AnalyticsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_analytics_dropped_total",
			Help: "Analytics events that could not be written.",
		},
		[]string{"event"},
	)

	AutoReplies = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "livechat_autoreplies_total",
			Help: "Bot replies posted from canned responses.",
		},
	)

	ConfigCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_config_cache_lookups_total",
			Help: "Chatbot config cache lookups by result (hit|miss|error).",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(SessionsStarted, MessagesSent, AnalyticsDropped, AutoReplies, ConfigCacheLookups)
}
