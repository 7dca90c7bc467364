package challenge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	participantsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stepvault",
		Subsystem: "challenge",
		Name:      "participants_total",
		Help:      "Number of participants admitted to a challenge",
	}, []string{"id"})

	verificationsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stepvault",
		Subsystem: "challenge",
		Name:      "verifications_total",
		Help:      "Number of processed step-count verifications",
	}, []string{"result"})

	completedMetric = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stepvault",
		Subsystem: "challenge",
		Name:      "completed_total",
		Help:      "Number of challenges whose rewards were processed",
	})

	payoutsMetric = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stepvault",
		Subsystem: "challenge",
		Name:      "payout_units_total",
		Help:      "Total funds paid out of challenge vaults, in the smallest currency unit",
	})
)

const (
	verificationAccepted  = "accepted"
	verificationDuplicate = "duplicate"
	verificationBelowGoal = "below_goal"
)
