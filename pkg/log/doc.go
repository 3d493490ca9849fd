/*
Package log provides structured logging for Vigil using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity level for production debugging.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("http-monitors")           │          │
	│  │  - WithOrgID("org-uuid")                    │          │
	│  │  - WithMonitorID("monitor-uuid")            │          │
	│  │  - WithTaskID("db-backup")                  │          │
	│  │  - WithIncidentID("incident-uuid")          │          │
	│  └────────────────────────────────────────────┘          │
	└────────────────────────────────────────────────────────┘

# Usage

Initializing the logger:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Component loggers:

	logger := log.WithComponent("http-monitors")
	logger.Info().Int("monitors", n).Dur("elapsed", d).Msg("batch executed")

	logger.Error().
		Err(err).
		Str("monitor_id", m.ID.String()).
		Msg("ping handling failed")

Every worker pool logs batch size, duration, and errors with structured
fields; transient batch failures are logged at error level and the worker
continues on the next tick.

# Best Practices

Do:
  - Use Info level for production
  - Use structured fields for queryable data
  - Create component-specific loggers
  - Log errors with .Err() for stack traces

Don't:
  - Log secrets or notification recipient data
  - Use Debug level in production
  - Concatenate strings (use .Str, .Int)
*/
package log
