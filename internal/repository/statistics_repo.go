package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/classroom-api/internal/models"
)

// StatisticsRange bounds statistics reads to a student set and a time window.
// A nil StudentIDs slice means every student; an empty one means none.
type StatisticsRange struct {
	StudentIDs []uint
	From       time.Time
	To         time.Time
}

// StatisticsRepository supplies quiz and lesson engagement records.
type StatisticsRepository interface {
	ListQuizAttempts(ctx context.Context, rng StatisticsRange) ([]models.QuizAttempt, error)
	ListLessonViews(ctx context.Context, rng StatisticsRange) ([]models.LessonView, error)
}

type statisticsRepository struct {
	db *gorm.DB
}

// NewStatisticsRepository constructs the statistics repository.
func NewStatisticsRepository(db *gorm.DB) StatisticsRepository {
	return &statisticsRepository{db: db}
}

func (r *statisticsRepository) ListQuizAttempts(ctx context.Context, rng StatisticsRange) ([]models.QuizAttempt, error) {
	if rng.StudentIDs != nil && len(rng.StudentIDs) == 0 {
		return []models.QuizAttempt{}, nil
	}

	query := r.db.WithContext(ctx).Model(&models.QuizAttempt{})
	query = scopeRange(query, "completed_at", rng)

	var attempts []models.QuizAttempt
	if err := query.Order("completed_at ASC").Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}

func (r *statisticsRepository) ListLessonViews(ctx context.Context, rng StatisticsRange) ([]models.LessonView, error) {
	if rng.StudentIDs != nil && len(rng.StudentIDs) == 0 {
		return []models.LessonView{}, nil
	}

	query := r.db.WithContext(ctx).Model(&models.LessonView{})
	query = scopeRange(query, "viewed_at", rng)

	var views []models.LessonView
	if err := query.Order("viewed_at ASC").Find(&views).Error; err != nil {
		return nil, err
	}
	return views, nil
}

func scopeRange(query *gorm.DB, column string, rng StatisticsRange) *gorm.DB {
	if rng.StudentIDs != nil {
		query = query.Where("student_id IN ?", rng.StudentIDs)
	}
	if !rng.From.IsZero() {
		query = query.Where(column+" >= ?", rng.From)
	}
	if !rng.To.IsZero() {
		query = query.Where(column+" < ?", rng.To)
	}
	return query
}
