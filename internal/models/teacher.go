package models

import "time"

// Teacher is a staff profile. Its id is shared with the user profile id
// carried in access tokens.
type Teacher struct {
	ID             uint      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Username       string    `gorm:"size:120;uniqueIndex;not null" json:"username"`
	FirstName      string    `gorm:"size:120" json:"first_name"`
	LastName       string    `gorm:"size:120" json:"last_name"`
	ProfilePicture string    `gorm:"size:512" json:"profile_picture"`
	IsActive       bool      `gorm:"not null" json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
