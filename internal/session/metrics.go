package session

import "github.com/prometheus/client_golang/prometheus"

// MessagesReceived counts validated inbound messages by message type.
var MessagesReceived = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fixengine_messages_received_total",
		Help: "Total number of inbound messages accepted by the session layer",
	},
	[]string{"msg_type"},
)

// MessagesSent counts outbound messages by message type.
var MessagesSent = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fixengine_messages_sent_total",
		Help: "Total number of outbound messages produced by the session layer",
	},
	[]string{"msg_type"},
)

// RejectsSent counts Reject messages sent to the peer by reject reason code.
var RejectsSent = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fixengine_rejects_sent_total",
		Help: "Total number of session-level Rejects sent, by SessionRejectReason",
	},
	[]string{"reason"},
)

// ResendRequestsSent counts gap-recovery ResendRequests this side initiated.
var ResendRequestsSent = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "fixengine_resend_requests_sent_total",
		Help: "Total number of ResendRequests sent to recover sequence gaps",
	},
)

// SessionFailures counts transitions into the terminal Failed state.
var SessionFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fixengine_session_failures_total",
		Help: "Total number of sessions that entered the Failed state",
	},
	[]string{"reason"},
)

// GarbledMessages counts inbound byte sequences that could not be framed.
var GarbledMessages = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "fixengine_garbled_messages_total",
		Help: "Total number of garbled inbound messages discarded",
	},
)

func init() {
	prometheus.MustRegister(MessagesReceived, MessagesSent, RejectsSent)
	prometheus.MustRegister(ResendRequestsSent, SessionFailures, GarbledMessages)
}
