package models

import (
	"time"

	"gorm.io/datatypes"
)

// Student represents an enrolled learner. Section assignment and the active
// flag are the only fields the classroom dashboard mutates.
type Student struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	ParentID       *uint           `gorm:"index" json:"parent_id"`
	SectionID      *uint           `gorm:"index" json:"section_id"`
	Section        *Section        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	FirstName      string          `gorm:"size:120" json:"first_name"`
	LastName       string          `gorm:"size:120" json:"last_name"`
	DateOfBirth    *datatypes.Date `json:"date_of_birth"`
	StudentCode    string          `gorm:"size:64;uniqueIndex:idx_students_student_code,where:student_code <> ''" json:"student_code"`
	EnrollmentDate *datatypes.Date `json:"enrollment_date"`
	IsActive       bool            `gorm:"not null" json:"is_active"`
	ProfilePicture string          `gorm:"size:512" json:"profile_picture"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
