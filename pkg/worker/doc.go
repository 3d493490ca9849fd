/*
Package worker provides the generic worker pool driving every periodic
engine component.

Each component (monitor executor, the four collectors, the notification
dispatcher) gets its own pool: n workers, one tick per interval, one
batch per tick. Errors abort the batch, never the worker. Stop lets the
in-flight batch finish before returning, so an interrupt never tears a
transaction down mid-commit.
*/
package worker
