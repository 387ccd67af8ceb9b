/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics exposes the monitor's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// EventsInsertedTotal tracks accepted telemetry events
	EventsInsertedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chief_monitor_events_inserted_total",
			Help: "Total number of telemetry events accepted and stored",
		},
		[]string{"source_type"},
	)

	// EventsDroppedTotal tracks events rejected at normalization
	EventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chief_monitor_events_dropped_total",
			Help: "Total number of telemetry events dropped at ingest",
		},
	)

	// OpenAlerts tracks currently open alerts by type
	OpenAlerts = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chief_monitor_open_alerts",
			Help: "Number of currently open alerts",
		},
		[]string{"type"},
	)

	// CheckStatus reports each job's check state (1 for the active status)
	CheckStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chief_monitor_check_status",
			Help: "Per-job check status (1 for the current status, 0 otherwise)",
		},
		[]string{"job", "status"},
	)

	// EvaluatorSweepsTotal tracks completed lateness sweeps
	EvaluatorSweepsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chief_monitor_evaluator_sweeps_total",
			Help: "Total number of completed evaluator sweeps",
		},
	)

	// EventsPrunedTotal tracks events removed by retention
	EventsPrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chief_monitor_events_pruned_total",
			Help: "Total number of events removed by the retention sweeper",
		},
	)
)

func init() {
	prometheus.MustRegister(
		EventsInsertedTotal,
		EventsDroppedTotal,
		OpenAlerts,
		CheckStatus,
		EvaluatorSweepsTotal,
		EventsPrunedTotal,
	)
}

// RecordIngest records the outcome of one ingest request.
func RecordIngest(inserted map[string]int, dropped int) {
	for sourceType, count := range inserted {
		EventsInsertedTotal.WithLabelValues(sourceType).Add(float64(count))
	}
	if dropped > 0 {
		EventsDroppedTotal.Add(float64(dropped))
	}
}

// UpdateOpenAlerts replaces the open-alert gauge values.
func UpdateOpenAlerts(counts map[string]int64) {
	OpenAlerts.Reset()
	for alertType, count := range counts {
		OpenAlerts.WithLabelValues(alertType).Set(float64(count))
	}
}

// UpdateCheckStatus sets the status gauge family for one job.
func UpdateCheckStatus(job, status string) {
	for _, s := range []string{"UP", "LATE", "DOWN"} {
		value := 0.0
		if s == status {
			value = 1.0
		}
		CheckStatus.WithLabelValues(job, s).Set(value)
	}
}
