// Package metrics exposes Prometheus collectors for the L402 enforcement
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChallengesIssued tracks 402 challenges minted, by outcome
	ChallengesIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "l402_challenges_issued_total",
		Help: "Total number of L402 payment challenges issued",
	}, []string{"result"})

	// Verifications tracks credential verification attempts, by outcome
	Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "l402_verifications_total",
		Help: "Total number of L402 credential verification attempts",
	}, []string{"result"})

	// RegistryEntries tracks consumed credentials currently held in the
	// single-use registry
	RegistryEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "l402_registry_entries",
		Help: "Number of consumed credentials tracked by the single-use registry",
	})

	// ReapedEntries tracks registry entries removed by the background sweep
	ReapedEntries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "l402_reaped_entries_total",
		Help: "Total number of expired registry entries removed by the reaper",
	})
)

// Verification outcome label values.
const (
	ResultOK        = "ok"
	ResultMalformed = "malformed"
	ResultDecode    = "decode_failed"
	ResultForbidden = "forbidden"
	ResultReplay    = "replay"
	ResultError     = "error"
)
