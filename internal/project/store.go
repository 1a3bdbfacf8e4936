package project

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("not found")
var ErrTooManyImages = errors.New("too many images")

const maxImagesPerUpdate = 4

type Store struct {
	DB *gorm.DB
}

type CreateProjectInput struct {
	Name       string
	BrandColor string
	LogoURL    string
}

func (s *Store) CreateProject(ctx context.Context, ownerID uint64, in CreateProjectInput) (Project, error) {
	p := Project{
		OwnerID:     ownerID,
		Name:        in.Name,
		PublicToken: uuid.NewString(),
	}
	if in.BrandColor != "" {
		p.BrandColor = in.BrandColor
	}
	p.LogoURL = in.LogoURL

	err := s.DB.WithContext(ctx).Create(&p).Error
	return p, err
}

func (s *Store) ProjectByID(ctx context.Context, id uint64) (Project, error) {
	var p Project
	err := s.DB.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return p, ErrNotFound
	}
	return p, err
}

func (s *Store) ProjectByToken(ctx context.Context, token string) (Project, error) {
	var p Project
	err := s.DB.WithContext(ctx).Where("public_token = ?", token).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return p, ErrNotFound
	}
	return p, err
}

func (s *Store) ProjectsByOwner(ctx context.Context, ownerID uint64) ([]Project, error) {
	var out []Project
	err := s.DB.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at desc").Find(&out).Error
	return out, err
}

func (s *Store) UpdateBranding(ctx context.Context, ownerID, projectID uint64, name, color, logoURL string) error {
	res := s.DB.WithContext(ctx).Model(&Project{}).
		Where("id = ? AND owner_id = ?", projectID, ownerID).
		Updates(map[string]any{
			"name":        name,
			"brand_color": color,
			"logo_url":    logoURL,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

type LinkInput struct {
	URL         string
	Title       string
	Description string
}

type CreateUpdateInput struct {
	Body      string
	ImageURLs []string
	Link      *LinkInput
}

// CreateUpdate persists the update and its attachments in one transaction.
func (s *Store) CreateUpdate(ctx context.Context, projectID uint64, in CreateUpdateInput) (Update, error) {
	if len(in.ImageURLs) > maxImagesPerUpdate {
		return Update{}, ErrTooManyImages
	}

	u := Update{
		ProjectID: projectID,
		Body:      in.Body,
		Tags:      pq.StringArray(ExtractTags(in.Body)),
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&u).Error; err != nil {
			return err
		}
		for i, url := range in.ImageURLs {
			img := Image{UpdateID: u.ID, URL: url, Position: i}
			if err := tx.Create(&img).Error; err != nil {
				return err
			}
		}
		if in.Link != nil {
			l := Link{
				UpdateID:    u.ID,
				URL:         in.Link.URL,
				Title:       in.Link.Title,
				Description: in.Link.Description,
			}
			if err := tx.Create(&l).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return u, err
}

func (s *Store) EditUpdateBody(ctx context.Context, projectID, updateID uint64, body string) error {
	res := s.DB.WithContext(ctx).Model(&Update{}).
		Where("id = ? AND project_id = ?", updateID, projectID).
		Updates(map[string]any{
			"body":       body,
			"tags":       pq.StringArray(ExtractTags(body)),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteUpdate(ctx context.Context, projectID, updateID uint64) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND project_id = ?", updateID, projectID).Delete(&Update{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Where("update_id = ?", updateID).Delete(&Image{}).Error; err != nil {
			return err
		}
		return tx.Where("update_id = ?", updateID).Delete(&Link{}).Error
	})
}

// UpdateWithMedia loads one update plus attachments.
func (s *Store) UpdateWithMedia(ctx context.Context, updateID uint64) (UpdateWithMedia, error) {
	var u Update
	err := s.DB.WithContext(ctx).Where("id = ?", updateID).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return UpdateWithMedia{}, ErrNotFound
	}
	if err != nil {
		return UpdateWithMedia{}, err
	}

	out, err := s.attachMedia(ctx, []Update{u})
	if err != nil {
		return UpdateWithMedia{}, err
	}
	return out[0], nil
}

// UpdatesSince returns updates created strictly after the given instant,
// oldest first, with attachments. This is the digest window query.
func (s *Store) UpdatesSince(ctx context.Context, projectID uint64, after time.Time) ([]UpdateWithMedia, error) {
	var rows []Update
	err := s.DB.WithContext(ctx).
		Where("project_id = ? AND created_at > ?", projectID, after).
		Order("created_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return s.attachMedia(ctx, rows)
}

// ListUpdates is the public timeline read: newest first, optional tag filter.
func (s *Store) ListUpdates(ctx context.Context, projectID uint64, tag string, limit int) ([]UpdateWithMedia, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := s.DB.WithContext(ctx).Where("project_id = ?", projectID)
	if tag != "" {
		q = q.Where("? = any(tags)", tag)
	}

	var rows []Update
	if err := q.Order("created_at desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return s.attachMedia(ctx, rows)
}

func (s *Store) attachMedia(ctx context.Context, rows []Update) ([]UpdateWithMedia, error) {
	out := make([]UpdateWithMedia, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}

	ids := make([]uint64, 0, len(rows))
	for _, u := range rows {
		ids = append(ids, u.ID)
	}

	var images []Image
	if err := s.DB.WithContext(ctx).
		Where("update_id IN ?", ids).
		Order("update_id asc, position asc").
		Find(&images).Error; err != nil {
		return nil, err
	}

	var links []Link
	if err := s.DB.WithContext(ctx).
		Where("update_id IN ?", ids).
		Order("id asc").
		Find(&links).Error; err != nil {
		return nil, err
	}

	imagesByUpdate := map[uint64][]Image{}
	for _, img := range images {
		imagesByUpdate[img.UpdateID] = append(imagesByUpdate[img.UpdateID], img)
	}

	// first link per update only
	linkByUpdate := map[uint64]Link{}
	for _, l := range links {
		if _, ok := linkByUpdate[l.UpdateID]; !ok {
			linkByUpdate[l.UpdateID] = l
		}
	}

	for _, u := range rows {
		m := UpdateWithMedia{Update: u, Images: imagesByUpdate[u.ID]}
		if l, ok := linkByUpdate[u.ID]; ok {
			link := l
			m.Link = &link
		}
		out = append(out, m)
	}
	return out, nil
}
