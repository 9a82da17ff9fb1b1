// Package periodicscan is an optional, disabled-by-default enrichment
// beyond spec.md: a background loop that runs the Scan Engine on a cron
// schedule read from Settings. Scheduling follows the cron.Schedule +
// Next(now) polling pattern in internal/agent/device/policy.schedule,
// adapted from a readiness check consulted by a caller into a
// self-driving ticker loop owned by this package.
package periodicscan

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/iotstackcloud/teltonikaupdater/internal/store"
	"github.com/iotstackcloud/teltonikaupdater/internal/store/model"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scanner is the subset of the scan Engine this loop needs.
type Scanner interface {
	Run(ctx context.Context, routerIDs []uuid.UUID) error
}

// pollInterval is a var rather than a const so tests can shrink it.
var pollInterval = 30 * time.Second

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Loop polls Settings[scan_cron] every 30s; when set to a valid 5-field
// cron expression, it runs a full-fleet scan at each scheduled tick. An
// empty or invalid expression disables the loop entirely — this is
// enrichment, not a spec.md requirement, so it defaults to off.
type Loop struct {
	store   *store.Store
	scanner Scanner
	log     logrus.FieldLogger
}

// New constructs a periodic-scan Loop.
func New(s *store.Store, scanner Scanner, log logrus.FieldLogger) *Loop {
	return &Loop{store: s, scanner: scanner, log: log}
}

// Run blocks until ctx is cancelled, re-reading the cron setting and
// triggering scans as scheduled.
func (l *Loop) Run(ctx context.Context) {
	var schedule cron.Schedule
	var nextRun time.Time

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expr, ok, err := l.store.GetSetting(model.SettingScanCron)
			if err != nil {
				l.log.WithError(err).Error("periodicscan: failed to read schedule setting")
				continue
			}
			if !ok || expr == "" {
				schedule = nil
				continue
			}

			parsed, err := cronParser.Parse(expr)
			if err != nil {
				l.log.WithError(err).WithField("expr", expr).Warn("periodicscan: invalid cron expression, scan disabled")
				schedule = nil
				continue
			}

			now := time.Now()
			if schedule == nil {
				schedule = parsed
				nextRun = schedule.Next(now)
				continue
			}

			if !now.Before(nextRun) {
				l.log.Info("periodicscan: triggering scheduled fleet scan")
				if err := l.scanner.Run(ctx, nil); err != nil {
					l.log.WithError(err).Error("periodicscan: scheduled scan failed")
				}
				nextRun = schedule.Next(now)
			}
		}
	}
}
