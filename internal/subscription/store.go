package subscription

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	DB *gorm.DB
}

// Subscribe upserts on (project_id, email): re-subscribing with a different
// frequency overwrites the existing row instead of adding a second one. The
// watermark is left alone so a frequency change never re-delivers old
// updates.
func (s *Store) Subscribe(ctx context.Context, projectID uint64, email string, freq Frequency) (Subscription, error) {
	sub := Subscription{
		ProjectID: projectID,
		Email:     strings.TrimSpace(strings.ToLower(email)),
		Frequency: freq,
	}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}, {Name: "email"}},
		DoUpdates: clause.Assignments(map[string]any{"frequency": freq}),
	}).Create(&sub).Error
	if err != nil {
		return sub, err
	}

	// re-read so callers see the surviving row, not the insert attempt
	err = s.DB.WithContext(ctx).
		Where("project_id = ? AND email = ?", projectID, sub.Email).
		First(&sub).Error
	return sub, err
}

func (s *Store) Unsubscribe(ctx context.Context, projectID uint64, email string) error {
	res := s.DB.WithContext(ctx).
		Where("project_id = ? AND email = ?", projectID, strings.TrimSpace(strings.ToLower(email))).
		Delete(&Subscription{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ByProjectAndFrequency(ctx context.Context, projectID uint64, freq Frequency) ([]Subscription, error) {
	var out []Subscription
	err := s.DB.WithContext(ctx).
		Where("project_id = ? AND frequency = ?", projectID, freq).
		Order("id asc").
		Find(&out).Error
	return out, err
}

func (s *Store) ByIDs(ctx context.Context, ids []uint64) ([]Subscription, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []Subscription
	err := s.DB.WithContext(ctx).Where("id IN ?", ids).Order("id asc").Find(&out).Error
	return out, err
}

func (s *Store) ByProject(ctx context.Context, projectID uint64) ([]Subscription, error) {
	var out []Subscription
	err := s.DB.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// ProjectIDsWithFrequency lists the distinct projects that have at least one
// subscriber at the given frequency. The scheduler enqueues one cadence job
// per returned project.
func (s *Store) ProjectIDsWithFrequency(ctx context.Context, freq Frequency) ([]uint64, error) {
	var ids []uint64
	err := s.DB.WithContext(ctx).Model(&Subscription{}).
		Distinct("project_id").
		Where("frequency = ?", freq).
		Order("project_id asc").
		Pluck("project_id", &ids).Error
	return ids, err
}

// AdvanceWatermark moves last_sent_at forward for the given subscriptions.
// The WHERE guard keeps the watermark monotonic even if a stale job reports
// success after a newer run already advanced it.
func (s *Store) AdvanceWatermark(ctx context.Context, ids []uint64, sentAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return s.DB.WithContext(ctx).Model(&Subscription{}).
		Where("id IN ? AND (last_sent_at IS NULL OR last_sent_at < ?)", ids, sentAt).
		Update("last_sent_at", sentAt).Error
}
