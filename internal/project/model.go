package project

import (
	"time"

	"github.com/lib/pq"
)

// Project groups updates and carries the branding used in rendered emails.
// PublicToken is the magic-link token: it grants read access to the timeline
// and is embedded in every email URL.
type Project struct {
	ID          uint64    `gorm:"primaryKey"`
	OwnerID     uint64    `gorm:"index;not null"`
	Name        string    `gorm:"type:text;not null"`
	BrandColor  string    `gorm:"type:text;not null;default:'#2563eb'"`
	LogoURL     string    `gorm:"type:text;not null;default:''"`
	PublicToken string    `gorm:"uniqueIndex;not null"`
	CreatedAt   time.Time `gorm:"not null;default:now()"`
}

// Update is one timestamped entry on a project timeline. Body stays editable
// after creation; attached media does not.
type Update struct {
	ID        uint64         `gorm:"primaryKey"`
	ProjectID uint64         `gorm:"index;not null"`
	Body      string         `gorm:"type:text;not null"`
	Tags      pq.StringArray `gorm:"type:text[];not null;default:'{}'"`
	CreatedAt time.Time      `gorm:"index;not null;default:now()"`
	UpdatedAt time.Time      `gorm:"not null;default:now()"`
}

type Image struct {
	ID       uint64 `gorm:"primaryKey"`
	UpdateID uint64 `gorm:"index;not null"`
	URL      string `gorm:"type:text;not null"`
	Position int    `gorm:"not null;default:0"`
}

type Link struct {
	ID          uint64 `gorm:"primaryKey"`
	UpdateID    uint64 `gorm:"index;not null"`
	URL         string `gorm:"type:text;not null"`
	Title       string `gorm:"type:text;not null;default:''"`
	Description string `gorm:"type:text;not null;default:''"`
}

// UpdateWithMedia is an update plus its attachments, the shape every read
// path and every rendered email works with. Link is the first persisted link
// only; additional rows are never surfaced.
type UpdateWithMedia struct {
	Update Update
	Images []Image
	Link   *Link
}
