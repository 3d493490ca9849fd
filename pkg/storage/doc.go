/*
Package storage provides the transactional state store underneath every
engine component.

The store exposes one repository per entity (monitors, tasks, task runs,
incidents, timeline events, notification rows), all scoped to a single
transaction:

	store.WithTx(ctx, func(tx storage.Tx) error {
		monitors, err := tx.Monitors().ClaimDue(ctx, now, limit)
		...
	})

Batch processors rely on two properties of this layer:

  - Claim methods select with FOR UPDATE SKIP LOCKED, so concurrent
    workers of the same component always receive disjoint batches.
  - A whole batch commits or rolls back atomically. Entity updates,
    incident writes, timeline appends, and notification upserts from one
    sweep land in a single transaction.

The production implementation runs on PostgreSQL via pgx. Schema
migrations are embedded and applied with goose. The incident timeline is
partitioned by month on created_at; CreateMonthlyPartitions provisions
partitions ahead of time and is safe to run concurrently.

Memory implements the same interface on maps guarded by one mutex and is
used throughout the engine's tests.
*/
package storage
