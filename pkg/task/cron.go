package task

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vigilhq/vigil/pkg/types"
)

// cronParser accepts both the 5-field form and the 6-field form with a
// leading seconds field; an absent seconds field defaults to 0.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron validates a cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, types.NewValidationError("cron_schedule", "%v", err)
	}
	return schedule, nil
}

// NextDue computes the next occurrence of the task's schedule strictly
// after from. Tasks without a schedule have no due time.
func NextDue(t *types.Task, from time.Time) (*time.Time, error) {
	if t.CronSchedule == nil || *t.CronSchedule == "" {
		return nil, nil
	}
	schedule, err := ParseCron(*t.CronSchedule)
	if err != nil {
		return nil, err
	}
	next := schedule.Next(from)
	if next.IsZero() {
		return nil, nil
	}
	return &next, nil
}
