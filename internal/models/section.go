package models

import "time"

// Section periods.
const (
	PeriodMorning   = "morning"
	PeriodAfternoon = "afternoon"
)

// Section is a classroom grouping of students with at most one teacher.
type Section struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:120;uniqueIndex;not null" json:"name"`
	Classroom   string    `gorm:"size:64;not null" json:"classroom"`
	Period      string    `gorm:"size:16;not null" json:"period"`
	MaxCapacity int       `gorm:"not null" json:"max_capacity"`
	SchoolYear  string    `gorm:"size:16;not null" json:"school_year"`
	IsActive    bool      `gorm:"not null" json:"is_active"`
	TeacherID   *uint     `gorm:"uniqueIndex" json:"teacher_id"`
	Teacher     *Teacher  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
