/*
Package task implements the scheduled-task lifecycle coordinator.

Tasks are executed externally; runners report start, heartbeat, and
finish through the coordinator, which applies each transition to the
task+run aggregate inside one transaction. The timing states (Due, Late,
Absent) are advanced by the sweeps in the collector package, but every
status change funnels through the same Advance function:

	Healthy/Pending ──due──▶ Due ──late──▶ Late ──absent──▶ Absent
	       ▲                  │              │                 │
	       │ finish ok        └───── start ──┴──────┬──────────┘
	       │                                        ▼
	    Running ◀───────────────────────────── (new run)
	       │ finish failure / run died
	       ▼
	    Failing

A start out of Late or Absent resolves the open lateness incident; a
failed finish opens a run-sourced incident. Cron schedules accept both
5-field and 6-field forms, the seconds field defaulting to 0.
*/
package task
