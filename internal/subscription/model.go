package subscription

import "time"

type Frequency string

const (
	FrequencyInstant Frequency = "instant"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
)

func ParseFrequency(s string) (Frequency, bool) {
	switch Frequency(s) {
	case FrequencyInstant, FrequencyDaily, FrequencyWeekly:
		return Frequency(s), true
	}
	return "", false
}

// Subscription ties one email to one project at exactly one frequency.
// LastSentAt is the watermark: everything created after it is "new" for this
// subscriber. It only ever moves forward, and only after a confirmed send.
type Subscription struct {
	ID         uint64     `gorm:"primaryKey"`
	ProjectID  uint64     `gorm:"index;not null;uniqueIndex:uq_subscriptions_project_email"`
	Email      string     `gorm:"not null;uniqueIndex:uq_subscriptions_project_email"`
	Frequency  Frequency  `gorm:"type:text;index;not null"`
	LastSentAt *time.Time `gorm:"type:timestamptz"`
	CreatedAt  time.Time  `gorm:"not null;default:now()"`
}
