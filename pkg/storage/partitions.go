package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/vigilhq/vigil/pkg/log"
)

// partitionMonthsAhead is how many future months (beyond the current one)
// the maintenance job keeps provisioned.
const partitionMonthsAhead = 2

// CreateMonthlyPartitions ensures timeline partitions exist for the
// current month and the next partitionMonthsAhead months. It is
// idempotent and safe to run from several nodes at once.
func (p *Postgres) CreateMonthlyPartitions(ctx context.Context, now time.Time) (int, error) {
	created := 0
	for offset := 0; offset <= partitionMonthsAhead; offset++ {
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, offset, 0)
		monthEnd := monthStart.AddDate(0, 1, 0)
		name := fmt.Sprintf("incident_timeline_events_%s", monthStart.Format("200601"))

		var exists bool
		err := p.pool.QueryRow(ctx,
			`SELECT to_regclass($1) IS NOT NULL`, name).Scan(&exists)
		if err != nil {
			return created, fmt.Errorf("failed to check partition %s: %w", name, err)
		}
		if exists {
			continue
		}

		_, err = p.pool.Exec(ctx, fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s PARTITION OF incident_timeline_events
			 FOR VALUES FROM ('%s') TO ('%s')`,
			name,
			monthStart.Format("2006-01-02"),
			monthEnd.Format("2006-01-02")))
		if err != nil {
			return created, fmt.Errorf("failed to create partition %s: %w", name, err)
		}

		log.WithComponent("storage").Info().
			Str("partition", name).
			Msg("created timeline partition")
		created++
	}
	return created, nil
}
