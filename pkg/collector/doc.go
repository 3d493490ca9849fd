/*
Package collector implements the periodic sweeps over scheduled tasks
and task runs.

Four collectors share one shape: claim a skip-locked batch of
candidates, transition each through the task state machine, write the
incident side effects, commit. Each exposes a one-shot Collect(now) for
operator invocation; the worker package drives the periodic loops.

  - Due: Healthy/Pending tasks whose next_due_at elapsed become Due.
  - Late: Due tasks past their start window become Late and open the
    lateness incident.
  - Absent: Late tasks past their lateness window become Absent,
    escalating (or re-synthesizing) the lateness incident.
  - DeadRun: Running runs whose heartbeat aged past the timeout become
    Dead, flip the task to Failing, and open a run-sourced incident.

Collect is idempotent per tick: re-running with the same now after a
successful commit finds no candidates and is a no-op.
*/
package collector
