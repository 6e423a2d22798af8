package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	claimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rocketjob_claims_total",
			Help: "Total claim attempts by result",
		},
		[]string{"result"},
	)

	slicesFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rocketjob_slices_finished_total",
			Help: "Slices reported finished by workers, by outcome",
		},
		[]string{"outcome"},
	)

	requeuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rocketjob_requeued_total",
			Help: "Slices returned to the queue by recovery calls",
		},
		[]string{"kind"},
	)

	rateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rocketjob_claims_rate_limited_total",
			Help: "Claim requests rejected by the per-worker rate limit",
		},
	)

	slicesByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rocketjob_slices",
			Help: "Slices currently in each state",
		},
		[]string{"state"},
	)
)
