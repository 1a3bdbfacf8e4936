package jobs

import "time"

const (
	TypeInstantDigest = "instant_digest"
	TypeDailyDigest   = "daily_digest"
	TypeWeeklyDigest  = "weekly_digest"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// MaxAttempts is the retry ceiling. A job whose attempt count has reached it
// is parked as failed for manual inspection instead of being rescheduled.
const MaxAttempts = 3

type Job struct {
	ID      uint64 `gorm:"primaryKey"`
	Type    string `gorm:"type:text;index;not null"`
	Payload []byte `gorm:"type:jsonb;not null;default:'{}'::jsonb"`

	Status   string `gorm:"index;not null;default:'pending'"`
	Attempts int    `gorm:"not null;default:0"`

	LastError *string `gorm:"type:text"`

	ScheduledFor time.Time `gorm:"index;not null"`
	CreatedAt    time.Time `gorm:"not null;default:now()"`
	UpdatedAt    time.Time `gorm:"not null;default:now()"`
}

// InstantPayload snapshots the subscriber set at enqueue time; emails are
// re-fetched by id at send time.
type InstantPayload struct {
	ProjectID     uint64   `json:"project_id"`
	UpdateID      uint64   `json:"update_id"`
	SubscriberIDs []uint64 `json:"subscriber_ids"`
}

// ScheduledPayload carries only the project; the subscriber set is resolved
// live when the job runs.
type ScheduledPayload struct {
	ProjectID uint64 `json:"project_id"`
}

// Terminal reports whether the job can never run again.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}
