// Package metrics defines the custom Prometheus metrics of the registration
// service. Metrics register themselves with the default registry on import
// through promauto, so the /metrics endpoint exposes them without extra wiring.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "registration"

// ── Intake metrics ────────────────────────────────────────────────────────────

// RegistrationsCreatedTotal counts issued tickets.
// Label:
//   - registration_type: the intake channel (e.g. "onsite", "complimentary")
var RegistrationsCreatedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registrations_created_total",
		Help:      "Total number of registrations issued, by intake channel.",
	},
	[]string{"registration_type"},
)

// RegistrationsRejectedTotal counts intake requests that did not produce a ticket.
// Label:
//   - reason: "validation", "intake_closed", "duplicate_person", "duplicate_email",
//     "conflict", "configuration_missing" or "lock_unavailable"
var RegistrationsRejectedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registrations_rejected_total",
		Help:      "Total number of rejected registration requests, by reason.",
	},
	[]string{"reason"},
)

// ── Check-in metrics ──────────────────────────────────────────────────────────

// ScansTotal counts check-in scans.
// Label:
//   - first_scan: "true" when the scan confirmed the registration
var ScansTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scans_total",
		Help:      "Total number of check-in scans.",
	},
	[]string{"first_scan"},
)

// PrintsTotal counts print transitions.
// Labels:
//   - type: "badge" or "ticket"
//   - status: the status reached ("printed" or "reprinted")
var PrintsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "prints_total",
		Help:      "Total number of badge and ticket prints, by type and resulting status.",
	},
	[]string{"type", "status"},
)

// CheckinErrorsTotal counts rejected scan and print attempts.
// Label:
//   - reason: "not_found", "forbidden", "reprint_limit", "stale",
//     "configuration_missing" or "unavailable"
var CheckinErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkin_errors_total",
		Help:      "Total number of failed scan and print attempts, by reason.",
	},
	[]string{"reason"},
)

// ── Asset metrics ─────────────────────────────────────────────────────────────

// AssetsGeneratedTotal counts QR asset generation attempts.
// Labels:
//   - mode: "inline" or "background"
//   - result: "ok" or "error"
var AssetsGeneratedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "assets_generated_total",
		Help:      "Total number of QR asset generation attempts, by mode and result.",
	},
	[]string{"mode", "result"},
)

// AssetGenerationDuration measures how long encoding and storing one asset takes.
var AssetGenerationDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "asset_generation_duration_seconds",
		Help:      "Duration of QR asset encoding and storage.",
		Buckets:   prometheus.DefBuckets,
	},
)

// AssetQueueDepth tracks pending asset jobs per dispatcher worker.
// Label:
//   - worker_id: numeric worker index
var AssetQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "asset_queue_depth",
		Help:      "Current number of asset jobs pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// AssetJobsDroppedTotal counts jobs abandoned after exhausting their attempts.
var AssetJobsDroppedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "asset_jobs_dropped_total",
		Help:      "Total number of asset jobs abandoned after the maximum number of attempts.",
	},
)
