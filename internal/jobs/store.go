package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("job not found")

type Store struct {
	DB *gorm.DB
}

// Enqueue inserts a pending job. There is no dedup here; callers own the
// decision of when a job is worth queuing.
func (s *Store) Enqueue(ctx context.Context, jobType string, payload any, scheduledFor time.Time) (Job, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Job{}, err
	}
	j := Job{
		Type:         jobType,
		Payload:      b,
		Status:       StatusPending,
		ScheduledFor: scheduledFor,
	}
	err = s.DB.WithContext(ctx).Create(&j).Error
	return j, err
}

// ClaimReady atomically claims up to limit due jobs, oldest scheduled_for
// first, flipping them to processing and bumping attempts in the same
// statement. FOR UPDATE SKIP LOCKED keeps concurrent claimers from
// double-claiming, which makes running a second worker safe rather than a
// correctness hazard.
func (s *Store) ClaimReady(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	var claimed []Job
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Raw(`
with cte as (
  select id
  from jobs
  where status = 'pending' and scheduled_for <= now()
  order by scheduled_for asc
  for update skip locked
  limit ?
)
update jobs
set status = 'processing', attempts = attempts + 1, updated_at = now()
where id in (select id from cte)
returning *;
`, limit).Scan(&claimed).Error
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *Store) MarkCompleted(ctx context.Context, id uint64) error {
	return s.DB.WithContext(ctx).
		Exec(`update jobs set status = 'completed', updated_at = now() where id = ?`, id).Error
}

// MarkFailed either reschedules the job with quadratic backoff or, once the
// attempt ceiling is hit, parks it as failed. scheduled_for is left untouched
// on the terminal transition.
func (s *Store) MarkFailed(ctx context.Context, id uint64, reason string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var j Job
		if err := tx.Where("id = ?", id).First(&j).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if j.Attempts >= MaxAttempts {
			return tx.Exec(`update jobs set status = 'failed', last_error = ?, updated_at = now() where id = ?`,
				reason, id).Error
		}

		next := time.Now().Add(BackoffDelay(j.Attempts))
		return tx.Exec(`
update jobs
set status = 'pending', scheduled_for = ?, last_error = ?, updated_at = now()
where id = ?`, next, reason, id).Error
	})
}

// BackoffDelay is attempts² minutes: 1, 4, 9 for attempts 1, 2, 3.
func BackoffDelay(attempts int) time.Duration {
	return time.Duration(attempts*attempts) * time.Minute
}

// PurgeOlderThan deletes terminal jobs created before the cutoff and returns
// how many rows went away.
func (s *Store) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	res := s.DB.WithContext(ctx).
		Where("status IN ? AND created_at < ?", []string{StatusCompleted, StatusFailed}, cutoff).
		Delete(&Job{})
	return res.RowsAffected, res.Error
}

type Stats struct {
	ByStatus map[string]int64 `json:"by_status"`
	ByType   map[string]int64 `json:"by_type"`
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	type row struct {
		Key   string
		Count int64
	}
	out := Stats{ByStatus: map[string]int64{}, ByType: map[string]int64{}}

	var byStatus []row
	if err := s.DB.WithContext(ctx).Model(&Job{}).
		Select("status as key, count(*) as count").
		Group("status").
		Scan(&byStatus).Error; err != nil {
		return out, err
	}
	for _, r := range byStatus {
		out.ByStatus[r.Key] = r.Count
	}

	var byType []row
	if err := s.DB.WithContext(ctx).Model(&Job{}).
		Select("type as key, count(*) as count").
		Group("type").
		Scan(&byType).Error; err != nil {
		return out, err
	}
	for _, r := range byType {
		out.ByType[r.Key] = r.Count
	}
	return out, nil
}

// List returns recent jobs for the admin surface, newest first.
func (s *Store) List(ctx context.Context, status string, limit int) ([]Job, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := s.DB.WithContext(ctx).Order("created_at desc").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []Job
	err := q.Find(&out).Error
	return out, err
}

// Retry puts a failed job back in the queue immediately. Attempts are not
// reset; the counter only ever goes up.
func (s *Store) Retry(ctx context.Context, id uint64) error {
	res := s.DB.WithContext(ctx).
		Exec(`update jobs set status = 'pending', scheduled_for = now(), updated_at = now() where id = ? and status = 'failed'`, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id uint64) error {
	res := s.DB.WithContext(ctx).Where("id = ?", id).Delete(&Job{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
