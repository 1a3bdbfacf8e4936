package auth

import "time"

// User is a project owner. Public subscribers are not users; they only ever
// hold a subscription row keyed by email.
type User struct {
	ID           uint64    `gorm:"primaryKey"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null;default:now()"`
}
