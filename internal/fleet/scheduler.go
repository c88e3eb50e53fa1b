// Package fleet runs the periodic housekeeping of the bot fleet on cron
// schedules: reconciling bots with the database and expiring unpaid orders.
package fleet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// Job is one scheduled task. Schedule is a five-field cron expression.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Scheduler checks its jobs once a minute and runs those that are due.
type Scheduler struct {
	jobs []Job
	tick time.Duration
}

// NewScheduler validates every schedule. Jobs with an empty schedule are
// dropped, so a disabled job is configured by leaving it blank.
func NewScheduler(jobs ...Job) (*Scheduler, error) {
	s := &Scheduler{tick: time.Minute}
	for _, j := range jobs {
		if j.Schedule == "" {
			continue
		}
		if !gronx.New().IsValid(j.Schedule) {
			return nil, fmt.Errorf("job %s: invalid schedule %q", j.Name, j.Schedule)
		}
		s.jobs = append(s.jobs, j)
	}
	return s, nil
}

// Jobs returns the enabled jobs.
func (s *Scheduler) Jobs() []Job {
	return s.jobs
}

// Due returns the jobs whose schedule matches the minute of now.
func (s *Scheduler) Due(now time.Time) []Job {
	now = now.Truncate(time.Minute)
	var due []Job
	for _, j := range s.jobs {
		ok, err := gronx.New().IsDue(j.Schedule, now)
		if err != nil {
			slog.Warn("schedule check failed", "job", j.Name, "error", err)
			continue
		}
		if ok {
			due = append(due, j)
		}
	}
	return due
}

// Run ticks until ctx is cancelled. Due jobs run sequentially on the
// scheduler goroutine; a failing job is logged and does not stop the others.
func (s *Scheduler) Run(ctx context.Context) {
	if len(s.jobs) == 0 {
		return
	}
	for _, j := range s.jobs {
		slog.Info("scheduled job", "job", j.Name, "schedule", j.Schedule)
	}

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.runDue(ctx, now)
		}
	}
}

func (s *Scheduler) runDue(ctx context.Context, now time.Time) {
	for _, j := range s.Due(now) {
		start := time.Now()
		if err := j.Run(ctx); err != nil {
			slog.Error("scheduled job failed", "job", j.Name, "error", err)
			continue
		}
		slog.Debug("scheduled job done", "job", j.Name, "took", time.Since(start))
	}
}
