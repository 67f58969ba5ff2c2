package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lifeline_requests_created_total",
		Help: "Total number of blood requests successfully created.",
	})

	RequestsApprovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lifeline_requests_approved_total",
		Help: "Total number of requests approved for dispatch.",
	})

	OTPVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lifeline_otp_verifications_total",
		Help: "OTP verification attempts by outcome.",
	},
		[]string{"outcome"},
	)

	LocationsRelayedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lifeline_locations_relayed_total",
		Help: "Total number of courier location samples relayed to viewers.",
	})

	TrackingSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lifeline_tracking_subscribers",
		Help: "Current number of live tracking subscriptions.",
	})

	BriefingCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lifeline_briefing_calls_total",
		Help: "Courier briefing generations by outcome.",
	},
		[]string{"outcome"},
	)
)
