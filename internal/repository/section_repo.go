package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/classroom-api/internal/models"
	"github.com/noah-isme/classroom-api/internal/roster"
)

// ErrTeacherTaken reports that the teacher was assigned to another section
// by a concurrent transaction.
var ErrTeacherTaken = errors.New("teacher is already assigned to another section")

// SectionRepository persists classroom sections and their teacher links.
type SectionRepository interface {
	List(ctx context.Context) ([]models.Section, error)
	GetByID(ctx context.Context, id uint) (models.Section, error)
	Create(ctx context.Context, section *models.Section) error
	Update(ctx context.Context, id uint, updates map[string]interface{}) (models.Section, error)
	Delete(ctx context.Context, id uint) error
	CountStudents(ctx context.Context, id uint) (int64, error)
	ApplyTeacherPlan(ctx context.Context, plan roster.Plan) error
}

type sectionRepository struct {
	db *gorm.DB
}

// NewSectionRepository constructs a section repository.
func NewSectionRepository(db *gorm.DB) SectionRepository {
	return &sectionRepository{db: db}
}

func (r *sectionRepository) List(ctx context.Context) ([]models.Section, error) {
	var sections []models.Section
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&sections).Error; err != nil {
		return nil, err
	}
	return sections, nil
}

func (r *sectionRepository) GetByID(ctx context.Context, id uint) (models.Section, error) {
	var section models.Section
	if err := r.db.WithContext(ctx).First(&section, id).Error; err != nil {
		return models.Section{}, err
	}
	return section, nil
}

// Create inserts a section. When section.TeacherID is set the teacher is
// moved to the new section in the same transaction.
func (r *sectionRepository) Create(ctx context.Context, section *models.Section) error {
	if section.TeacherID == nil {
		return r.db.WithContext(ctx).Create(section).Error
	}

	teacherID := *section.TeacherID
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		section.TeacherID = nil
		if err := tx.Create(section).Error; err != nil {
			return err
		}
		target := section.ID
		return applyTeacherPlan(tx, roster.Plan{TeacherID: teacherID, Target: &target})
	})
	if err != nil {
		section.ID = 0
		return err
	}
	section.TeacherID = &teacherID
	return nil
}

func (r *sectionRepository) Update(ctx context.Context, id uint, updates map[string]interface{}) (models.Section, error) {
	result := r.db.WithContext(ctx).Model(&models.Section{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return models.Section{}, result.Error
	}
	if result.RowsAffected == 0 {
		return models.Section{}, gorm.ErrRecordNotFound
	}
	return r.GetByID(ctx, id)
}

// Delete removes a section. Students still referencing it make the delete
// fail with a foreign key violation.
func (r *sectionRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var referenced int64
		if err := tx.Model(&models.Student{}).Where("section_id = ?", id).Count(&referenced).Error; err != nil {
			return err
		}
		if referenced > 0 {
			return gorm.ErrForeignKeyViolated
		}

		result := tx.Delete(&models.Section{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *sectionRepository) CountStudents(ctx context.Context, id uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Student{}).Where("section_id = ?", id).Count(&count).Error
	return count, err
}

// ApplyTeacherPlan releases every section owned by the plan's teacher and
// assigns the target in one transaction. A missing target rolls back the release.
func (r *sectionRepository) ApplyTeacherPlan(ctx context.Context, plan roster.Plan) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return applyTeacherPlan(tx, plan)
	})
}

// applyTeacherPlan relies on the unique teacher_id index: a section claimed
// by a concurrent transaction after the release makes the assignment fail
// with ErrTeacherTaken.
func applyTeacherPlan(tx *gorm.DB, plan roster.Plan) error {
	release := tx.Model(&models.Section{}).
		Where("teacher_id = ?", plan.TeacherID).
		Update("teacher_id", gorm.Expr("NULL"))
	if release.Error != nil {
		return release.Error
	}

	if plan.Target == nil {
		return nil
	}

	assign := tx.Model(&models.Section{}).
		Where("id = ?", *plan.Target).
		Update("teacher_id", plan.TeacherID)
	if assign.Error != nil {
		if errors.Is(assign.Error, gorm.ErrDuplicatedKey) {
			return ErrTeacherTaken
		}
		return assign.Error
	}
	if assign.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
