package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var scheduleCronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func normalizeCronExpr(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	return strings.Join(strings.Fields(trimmed), " ")
}

// NextRun resolves the next fire time for a cron expression, in UTC.
func NextRun(cronExpr string, from time.Time) (time.Time, error) {
	cronExpr = normalizeCronExpr(cronExpr)
	if cronExpr == "" {
		return time.Time{}, fmt.Errorf("cron expression is empty")
	}
	base := from
	if base.IsZero() {
		base = time.Now().UTC()
	}
	spec, err := scheduleCronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression: %w", err)
	}
	return spec.Next(base.UTC()).UTC(), nil
}
