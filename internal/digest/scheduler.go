package digest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"beacon/internal/jobs"
	"beacon/internal/subscription"
)

const (
	CadenceDaily   = "daily_digest"
	CadenceWeekly  = "weekly_digest"
	CadenceCleanup = "cleanup"
)

// JobQueue is the job store surface the scheduler consumes.
type JobQueue interface {
	Enqueue(ctx context.Context, jobType string, payload any, scheduledFor time.Time) (jobs.Job, error)
	ClaimReady(ctx context.Context, limit int) ([]jobs.Job, error)
	MarkCompleted(ctx context.Context, id uint64) error
	MarkFailed(ctx context.Context, id uint64, reason string) error
	PurgeOlderThan(ctx context.Context, days int) (int64, error)
}

// StateStore persists per-cadence last-run watermarks across restarts.
type StateStore interface {
	LastRun(ctx context.Context, cadence string) (*time.Time, error)
	SetLastRun(ctx context.Context, cadence string, t time.Time) error
}

// CadenceLister resolves which projects need a cadence job.
type CadenceLister interface {
	ProjectIDsWithFrequency(ctx context.Context, freq subscription.Frequency) ([]uint64, error)
}

// Scheduler is the single control loop: on every tick it checks whether any
// cadence is due, enqueues cadence jobs, and drains ready jobs from the
// store. There is deliberately no second consumer; the SKIP LOCKED claim in
// the store is what makes adding one a scaling decision instead of a bug.
type Scheduler struct {
	Jobs     JobQueue
	State    StateStore
	Subs     CadenceLister
	Computer *Computer
	Log      *slog.Logger

	TickInterval  time.Duration
	DrainBatch    int
	DailyHourUTC  int
	WeeklyHourUTC int
	WeeklyDay     time.Weekday
	CleanupHour   int
	RetentionDays int

	// now is swappable for tests; nil means time.Now.
	now func() time.Time
}

func (s *Scheduler) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Run ticks until the context is cancelled. The first tick fires immediately
// so a restart right after a trigger hour does not wait a full interval.
func (s *Scheduler) Run(ctx context.Context) {
	interval := s.TickInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	s.Log.Info("scheduler started",
		"tick", interval.String(),
		"daily_hour_utc", s.DailyHourUTC,
		"weekly_hour_utc", s.WeeklyHourUTC,
		"weekly_day", s.WeeklyDay.String(),
		"cleanup_hour_utc", s.CleanupHour,
	)

	s.Tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick evaluates cadence gates once and always drains the queue. Cadence
// failures are logged and swallowed: a broken 09:00 enqueue means no digest
// that day rather than a retry storm.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.clock().UTC()

	s.runCadence(ctx, CadenceDaily, now, func() error {
		return s.enqueueCadence(ctx, subscription.FrequencyDaily, jobs.TypeDailyDigest, now)
	})
	s.runCadence(ctx, CadenceWeekly, now, func() error {
		return s.enqueueCadence(ctx, subscription.FrequencyWeekly, jobs.TypeWeeklyDigest, now)
	})
	s.runCadence(ctx, CadenceCleanup, now, func() error {
		deleted, err := s.Jobs.PurgeOlderThan(ctx, s.RetentionDays)
		if err == nil {
			s.Log.Info("purged terminal jobs", "deleted", deleted, "retention_days", s.RetentionDays)
		}
		return err
	})

	s.drain(ctx)
}

// runCadence fires fn when the cadence window is open and advances last_run
// whether or not fn failed. Retrying within the same window would mean
// duplicate digests on repeated partial failures, which is worse than a
// missed day.
func (s *Scheduler) runCadence(ctx context.Context, cadence string, now time.Time, fn func() error) {
	lastRun, err := s.State.LastRun(ctx, cadence)
	if err != nil {
		s.Log.Error("read cadence state failed", "cadence", cadence, "error", err)
		return
	}

	if !s.cadenceDue(cadence, now, lastRun) {
		return
	}

	s.Log.Info("cadence due", "cadence", cadence)
	if err := fn(); err != nil {
		s.Log.Error("cadence run failed", "cadence", cadence, "error", err)
	}
	if err := s.State.SetLastRun(ctx, cadence, now); err != nil {
		s.Log.Error("persist cadence state failed", "cadence", cadence, "error", err)
	}
}

func (s *Scheduler) cadenceDue(cadence string, now time.Time, lastRun *time.Time) bool {
	switch cadence {
	case CadenceDaily:
		return dailyDue(now, lastRun, s.DailyHourUTC)
	case CadenceWeekly:
		return weeklyDue(now, lastRun, s.WeeklyHourUTC, s.WeeklyDay)
	case CadenceCleanup:
		return dailyDue(now, lastRun, s.CleanupHour)
	}
	return false
}

// dailyDue is true once per UTC day, from triggerHour onward: the current
// time has passed today's trigger instant and last_run has not.
func dailyDue(now time.Time, lastRun *time.Time, triggerHour int) bool {
	now = now.UTC()
	trigger := time.Date(now.Year(), now.Month(), now.Day(), triggerHour, 0, 0, 0, time.UTC)
	if now.Before(trigger) {
		return false
	}
	return lastRun == nil || lastRun.UTC().Before(trigger)
}

// weeklyDue gates dailyDue additionally on the target weekday.
func weeklyDue(now time.Time, lastRun *time.Time, triggerHour int, day time.Weekday) bool {
	if now.UTC().Weekday() != day {
		return false
	}
	return dailyDue(now, lastRun, triggerHour)
}

// enqueueCadence queues one job per project with at least one subscriber at
// the frequency. One job per project keeps a bad project from blocking the
// others' digests.
func (s *Scheduler) enqueueCadence(ctx context.Context, freq subscription.Frequency, jobType string, now time.Time) error {
	projectIDs, err := s.Subs.ProjectIDsWithFrequency(ctx, freq)
	if err != nil {
		return fmt.Errorf("list projects with %s subscribers: %w", freq, err)
	}

	var firstErr error
	enqueued := 0
	for _, pid := range projectIDs {
		if _, err := s.Jobs.Enqueue(ctx, jobType, jobs.ScheduledPayload{ProjectID: pid}, now); err != nil {
			s.Log.Error("enqueue cadence job failed", "type", jobType, "project_id", pid, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		enqueued++
	}

	s.Log.Info("cadence jobs enqueued", "type", jobType, "projects", enqueued)
	return firstErr
}

// drain claims and processes up to DrainBatch ready jobs. A job that errors
// goes through MarkFailed, which reschedules with backoff or parks it.
func (s *Scheduler) drain(ctx context.Context) {
	limit := s.DrainBatch
	if limit <= 0 {
		limit = 10
	}

	claimed, err := s.Jobs.ClaimReady(ctx, limit)
	if err != nil {
		s.Log.Error("claim jobs failed", "error", err)
		return
	}

	for _, j := range claimed {
		if err := s.processJob(ctx, j); err != nil {
			s.Log.Warn("job failed", "job_id", j.ID, "type", j.Type, "attempt", j.Attempts, "error", err)
			if err := s.Jobs.MarkFailed(ctx, j.ID, err.Error()); err != nil {
				s.Log.Error("mark failed errored", "job_id", j.ID, "error", err)
			}
			continue
		}
		if err := s.Jobs.MarkCompleted(ctx, j.ID); err != nil {
			s.Log.Error("mark completed errored", "job_id", j.ID, "error", err)
		}
	}
}

func (s *Scheduler) processJob(ctx context.Context, j jobs.Job) error {
	switch j.Type {
	case jobs.TypeInstantDigest:
		var p jobs.InstantPayload
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return fmt.Errorf("bad payload: %w", err)
		}
		return s.Computer.ProcessInstant(ctx, p)
	case jobs.TypeDailyDigest:
		var p jobs.ScheduledPayload
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return fmt.Errorf("bad payload: %w", err)
		}
		return s.Computer.ProcessScheduled(ctx, p, subscription.FrequencyDaily)
	case jobs.TypeWeeklyDigest:
		var p jobs.ScheduledPayload
		if err := json.Unmarshal(j.Payload, &p); err != nil {
			return fmt.Errorf("bad payload: %w", err)
		}
		return s.Computer.ProcessScheduled(ctx, p, subscription.FrequencyWeekly)
	default:
		return fmt.Errorf("unknown job type %q", j.Type)
	}
}

// TriggerCadence is the administrative escape hatch: enqueue a cadence's jobs
// right now without touching last_run, so the scheduled run still fires on
// its own.
func (s *Scheduler) TriggerCadence(ctx context.Context, cadence string) error {
	now := s.clock().UTC()
	switch cadence {
	case CadenceDaily:
		return s.enqueueCadence(ctx, subscription.FrequencyDaily, jobs.TypeDailyDigest, now)
	case CadenceWeekly:
		return s.enqueueCadence(ctx, subscription.FrequencyWeekly, jobs.TypeWeeklyDigest, now)
	default:
		return fmt.Errorf("unknown cadence %q", cadence)
	}
}

type CadenceStatus struct {
	Cadence     string     `json:"cadence"`
	TriggerHour int        `json:"trigger_hour_utc"`
	LastRun     *time.Time `json:"last_run"`
	Due         bool       `json:"due"`
}

type Snapshot struct {
	Now      time.Time       `json:"now_utc"`
	Weekday  string          `json:"weekday"`
	Cadences []CadenceStatus `json:"cadences"`
}

// Snapshot reports current gating state for the admin surface.
func (s *Scheduler) Snapshot(ctx context.Context) (Snapshot, error) {
	now := s.clock().UTC()
	snap := Snapshot{Now: now, Weekday: now.Weekday().String()}

	for _, c := range []struct {
		name string
		hour int
	}{
		{CadenceDaily, s.DailyHourUTC},
		{CadenceWeekly, s.WeeklyHourUTC},
		{CadenceCleanup, s.CleanupHour},
	} {
		lastRun, err := s.State.LastRun(ctx, c.name)
		if err != nil {
			return snap, err
		}
		snap.Cadences = append(snap.Cadences, CadenceStatus{
			Cadence:     c.name,
			TriggerHour: c.hour,
			LastRun:     lastRun,
			Due:         s.cadenceDue(c.name, now, lastRun),
		})
	}
	return snap, nil
}
