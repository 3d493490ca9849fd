/*
Package metrics provides Prometheus metrics and health endpoints for Vigil.

The metrics package exposes counters and histograms for every engine
component: batch execution, HTTP probing, monitor state transitions,
incident lifecycle actions, and notification dispatch. It also tracks
per-component health for the /health and /ready endpoints served in
serve mode.

# Metrics

Batch execution (labelled by component):

	vigil_batches_total{component,result}
	vigil_batch_items_processed_total{component}
	vigil_batch_duration_seconds{component}

Probing:

	vigil_probes_total{result}
	vigil_probe_duration_seconds

State machines and incidents:

	vigil_monitor_transitions_total{to}
	vigil_incidents_total{action}
	vigil_notifications_total{channel,result}

# Usage

Timing a batch:

	timer := metrics.NewTimer()
	n, err := executor.ExecuteBatch(ctx)
	timer.ObserveDuration(metrics.BatchDuration.WithLabelValues("http-monitors"))

Serving metrics and health:

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
*/
package metrics
