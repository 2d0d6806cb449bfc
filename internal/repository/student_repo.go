package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/classroom-api/internal/models"
)

// StudentFilter narrows student snapshot reads.
type StudentFilter struct {
	IDs        []uint
	SectionID  *uint
	ActiveOnly bool
}

// StudentRepository provides access to student records.
type StudentRepository interface {
	List(ctx context.Context, filter StudentFilter) ([]models.Student, error)
	GetByID(ctx context.Context, id uint) (models.Student, error)
	UpdateSection(ctx context.Context, id uint, sectionID *uint) (models.Student, error)
	UpdateProfilePicture(ctx context.Context, id uint, reference string) error
	BulkUpdate(ctx context.Context, ids []uint, updates map[string]interface{}) (int64, error)
	BulkDelete(ctx context.Context, ids []uint) (int64, error)
	CreateBatch(ctx context.Context, students []models.Student) (int64, error)
}

type studentRepository struct {
	db *gorm.DB
}

// NewStudentRepository constructs a student repository.
func NewStudentRepository(db *gorm.DB) StudentRepository {
	return &studentRepository{db: db}
}

func (r *studentRepository) List(ctx context.Context, filter StudentFilter) ([]models.Student, error) {
	query := r.db.WithContext(ctx).Model(&models.Student{})
	if len(filter.IDs) > 0 {
		query = query.Where("id IN ?", filter.IDs)
	}
	if filter.SectionID != nil {
		query = query.Where("section_id = ?", *filter.SectionID)
	}
	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}

	var students []models.Student
	if err := query.Order("last_name ASC, first_name ASC, id ASC").Find(&students).Error; err != nil {
		return nil, err
	}
	return students, nil
}

func (r *studentRepository) GetByID(ctx context.Context, id uint) (models.Student, error) {
	var student models.Student
	if err := r.db.WithContext(ctx).First(&student, id).Error; err != nil {
		return models.Student{}, err
	}

	return student, nil
}

func (r *studentRepository) UpdateSection(ctx context.Context, id uint, sectionID *uint) (models.Student, error) {
	var value interface{} = gorm.Expr("NULL")
	if sectionID != nil {
		value = *sectionID
	}

	result := r.db.WithContext(ctx).Model(&models.Student{}).Where("id = ?", id).Update("section_id", value)
	if result.Error != nil {
		return models.Student{}, result.Error
	}
	if result.RowsAffected == 0 {
		return models.Student{}, gorm.ErrRecordNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *studentRepository) UpdateProfilePicture(ctx context.Context, id uint, reference string) error {
	result := r.db.WithContext(ctx).Model(&models.Student{}).Where("id = ?", id).Update("profile_picture", reference)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// BulkUpdate applies updates to every id or to none of them. Unknown ids
// abort the whole call with gorm.ErrRecordNotFound.
func (r *studentRepository) BulkUpdate(ctx context.Context, ids []uint, updates map[string]interface{}) (int64, error) {
	unique := uniqueIDs(ids)
	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureAllExist(tx, unique); err != nil {
			return err
		}
		result := tx.Model(&models.Student{}).Where("id IN ?", unique).Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		affected = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// BulkDelete removes every id or none of them.
func (r *studentRepository) BulkDelete(ctx context.Context, ids []uint) (int64, error) {
	unique := uniqueIDs(ids)
	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureAllExist(tx, unique); err != nil {
			return err
		}
		result := tx.Where("id IN ?", unique).Delete(&models.Student{})
		if result.Error != nil {
			return result.Error
		}
		affected = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

func (r *studentRepository) CreateBatch(ctx context.Context, students []models.Student) (int64, error) {
	if len(students) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).CreateInBatches(&students, 100)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func ensureAllExist(tx *gorm.DB, ids []uint) error {
	if len(ids) == 0 {
		return gorm.ErrRecordNotFound
	}
	var count int64
	if err := tx.Model(&models.Student{}).Where("id IN ?", ids).Count(&count).Error; err != nil {
		return err
	}
	if count != int64(len(ids)) {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	result := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}
