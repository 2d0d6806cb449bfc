package models

import "time"

// QuizAttempt records one completed quiz by a student.
type QuizAttempt struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	StudentID   uint      `gorm:"not null;index" json:"student_id"`
	QuizTitle   string    `gorm:"size:255;not null" json:"quiz_title"`
	Score       float64   `gorm:"not null" json:"score"`
	MaxScore    float64   `gorm:"not null" json:"max_score"`
	CompletedAt time.Time `gorm:"not null;index" json:"completed_at"`
}

// Percent returns the score as a percentage of MaxScore, assuming 100 when unset.
func (q QuizAttempt) Percent() float64 {
	maxScore := q.MaxScore
	if maxScore <= 0 {
		maxScore = 100
	}
	return q.Score / maxScore * 100
}

// LessonView records a student opening a lesson.
type LessonView struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	StudentID       uint      `gorm:"not null;index" json:"student_id"`
	LessonTitle     string    `gorm:"size:255;not null" json:"lesson_title"`
	DurationSeconds int       `gorm:"not null;default:0" json:"duration_seconds"`
	ViewedAt        time.Time `gorm:"not null;index" json:"viewed_at"`
}
