package jobs

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SchedulerState persists the per-cadence last-run watermark so a restarted
// process does not re-fire a cadence inside the same window.
type SchedulerState struct {
	Cadence   string    `gorm:"primaryKey"`
	LastRun   time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

type StateStore struct {
	DB *gorm.DB
}

// LastRun returns nil when the cadence has never fired.
func (s *StateStore) LastRun(ctx context.Context, cadence string) (*time.Time, error) {
	var st SchedulerState
	err := s.DB.WithContext(ctx).Where("cadence = ?", cadence).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t := st.LastRun
	return &t, nil
}

func (s *StateStore) SetLastRun(ctx context.Context, cadence string, t time.Time) error {
	st := SchedulerState{Cadence: cadence, LastRun: t, UpdatedAt: time.Now()}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cadence"}},
		DoUpdates: clause.Assignments(map[string]any{"last_run": t, "updated_at": time.Now()}),
	}).Create(&st).Error
}
