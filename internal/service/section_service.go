package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/classroom-api/internal/dto"
	"github.com/noah-isme/classroom-api/internal/models"
	"github.com/noah-isme/classroom-api/internal/repository"
	"github.com/noah-isme/classroom-api/internal/roster"
)

const (
	tableSections = "sections"
	tableTeachers = "teachers"
	tableStudents = "students"
)

// SectionService manages sections and the teacher that owns each of them.
type SectionService interface {
	Create(ctx context.Context, actor ActivityActor, req dto.SectionCreateRequest) (dto.SectionResponse, error)
	Update(ctx context.Context, actor ActivityActor, id uint, req dto.SectionUpdateRequest) (dto.SectionResponse, error)
	Delete(ctx context.Context, actor ActivityActor, id uint) error
	AssignTeacher(ctx context.Context, actor ActivityActor, teacherID, sectionID uint) (dto.TeacherResponse, error)
	UnassignTeacher(ctx context.Context, actor ActivityActor, teacherID uint) (dto.TeacherResponse, error)
}

type sectionService struct {
	repo      repository.SectionRepository
	teachers  repository.TeacherRepository
	loader    *RosterLoader
	avatars   AvatarResolver
	events    RosterEvents
	activity  ActivityRecorder
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewSectionService constructs the section service.
func NewSectionService(repo repository.SectionRepository, teachers repository.TeacherRepository, loader *RosterLoader, avatars AvatarResolver, events RosterEvents, activity ActivityRecorder, validate *validator.Validate, logger zerolog.Logger) SectionService {
	return &sectionService{
		repo:      repo,
		teachers:  teachers,
		loader:    loader,
		avatars:   avatars,
		events:    events,
		activity:  activity,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "section_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/classroom-api/internal/service/section"),
	}
}

func (s *sectionService) Create(ctx context.Context, actor ActivityActor, req dto.SectionCreateRequest) (dto.SectionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.SectionResponse{}, err
	}

	section := models.Section{
		Name:        s.clean(req.Name),
		Classroom:   s.clean(req.Classroom),
		Period:      req.Period,
		MaxCapacity: req.MaxCapacity,
		SchoolYear:  s.clean(req.SchoolYear),
		IsActive:    true,
	}
	if req.IsActive != nil {
		section.IsActive = *req.IsActive
	}
	if section.Name == "" {
		return dto.SectionResponse{}, errors.New("section name is empty after sanitization")
	}
	if req.TeacherID != nil {
		if _, err := s.teachers.GetByID(ctx, *req.TeacherID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return dto.SectionResponse{}, ErrTeacherNotFound
			}
			return dto.SectionResponse{}, err
		}
	}

	section.TeacherID = req.TeacherID

	// The repository creates the section and moves the teacher in one transaction.
	if err := s.repo.Create(ctx, &section); err != nil {
		return dto.SectionResponse{}, translateSectionError(err)
	}

	metadata := map[string]interface{}{"name": section.Name}
	s.publish(ctx, tableSections, RosterActionCreate, section.ID)
	if req.TeacherID != nil {
		metadata["teacher_id"] = *req.TeacherID
		s.publish(ctx, tableTeachers, RosterActionUpdate, *req.TeacherID)
	}
	recordActivity(ctx, s.activity, s.logger, actor, "section.created", "section", uintRef(section.ID), metadata)

	return s.response(ctx, section.ID)
}

func (s *sectionService) Update(ctx context.Context, actor ActivityActor, id uint, req dto.SectionUpdateRequest) (dto.SectionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.SectionResponse{}, err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		name := s.clean(*req.Name)
		if name == "" {
			return dto.SectionResponse{}, errors.New("section name is empty after sanitization")
		}
		updates["name"] = name
	}
	if req.Classroom != nil {
		updates["classroom"] = s.clean(*req.Classroom)
	}
	if req.Period != nil {
		updates["period"] = *req.Period
	}
	if req.SchoolYear != nil {
		updates["school_year"] = s.clean(*req.SchoolYear)
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.MaxCapacity != nil {
		count, err := s.repo.CountStudents(ctx, id)
		if err != nil {
			return dto.SectionResponse{}, err
		}
		if int64(*req.MaxCapacity) < count {
			return dto.SectionResponse{}, ErrSectionFull
		}
		updates["max_capacity"] = *req.MaxCapacity
	}

	if len(updates) == 0 {
		return s.response(ctx, id)
	}

	if _, err := s.repo.Update(ctx, id, updates); err != nil {
		return dto.SectionResponse{}, translateSectionError(err)
	}

	s.publish(ctx, tableSections, RosterActionUpdate, id)
	recordActivity(ctx, s.activity, s.logger, actor, "section.updated", "section", uintRef(id), map[string]interface{}{
		"fields": updateKeys(updates),
	})

	return s.response(ctx, id)
}

func (s *sectionService) Delete(ctx context.Context, actor ActivityActor, id uint) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return translateSectionError(err)
	}

	s.publish(ctx, tableSections, RosterActionDelete, id)
	recordActivity(ctx, s.activity, s.logger, actor, "section.deleted", "section", uintRef(id), nil)
	return nil
}

func (s *sectionService) AssignTeacher(ctx context.Context, actor ActivityActor, teacherID, sectionID uint) (dto.TeacherResponse, error) {
	ctx, span := s.tracer.Start(ctx, "sections.assign_teacher", trace.WithAttributes(
		attribute.Int64("teacher.id", int64(teacherID)),
		attribute.Int64("section.id", int64(sectionID)),
	))
	defer span.End()

	snapshot, err := s.loader.Load(ctx)
	if err != nil {
		span.RecordError(err)
		return dto.TeacherResponse{}, err
	}
	if _, ok := snapshot.TeacherByID(teacherID); !ok {
		return dto.TeacherResponse{}, ErrTeacherNotFound
	}

	plan, err := roster.PlanReassignment(snapshot.Sections, teacherID, sectionID)
	if err != nil {
		if errors.Is(err, roster.ErrUnknownSection) {
			return dto.TeacherResponse{}, ErrSectionNotFound
		}
		return dto.TeacherResponse{}, err
	}

	if err := s.repo.ApplyTeacherPlan(ctx, plan); err != nil {
		span.RecordError(err)
		return dto.TeacherResponse{}, translateSectionError(err)
	}

	metadata := map[string]interface{}{
		"section_id": sectionID,
		"released":   plan.Release,
	}
	if plan.Displaced != nil {
		metadata["displaced_teacher_id"] = *plan.Displaced
	}
	s.afterPlan(ctx, actor, "teacher.assigned", plan, metadata)

	return s.teacherAfter(ctx, plan, snapshot, teacherID), nil
}

func (s *sectionService) UnassignTeacher(ctx context.Context, actor ActivityActor, teacherID uint) (dto.TeacherResponse, error) {
	snapshot, err := s.loader.Load(ctx)
	if err != nil {
		return dto.TeacherResponse{}, err
	}
	if _, ok := snapshot.TeacherByID(teacherID); !ok {
		return dto.TeacherResponse{}, ErrTeacherNotFound
	}

	plan := roster.PlanUnassignment(snapshot.Sections, teacherID)
	if err := s.repo.ApplyTeacherPlan(ctx, plan); err != nil {
		return dto.TeacherResponse{}, translateSectionError(err)
	}

	s.afterPlan(ctx, actor, "teacher.unassigned", plan, map[string]interface{}{"released": plan.Release})
	return s.teacherAfter(ctx, plan, snapshot, teacherID), nil
}

func (s *sectionService) afterPlan(ctx context.Context, actor ActivityActor, action string, plan roster.Plan, metadata map[string]interface{}) {
	changed := append([]uint(nil), plan.Release...)
	if plan.Target != nil {
		changed = append(changed, *plan.Target)
	}
	s.publish(ctx, tableSections, RosterActionUpdate, changed...)
	s.publish(ctx, tableTeachers, RosterActionUpdate, plan.TeacherID)
	recordActivity(ctx, s.activity, s.logger, actor, action, "teacher", uintRef(plan.TeacherID), metadata)
}

// teacherAfter derives the teacher row from the committed plan without a second read.
func (s *sectionService) teacherAfter(ctx context.Context, plan roster.Plan, snapshot roster.Snapshot, teacherID uint) dto.TeacherResponse {
	sections := plan.Apply(snapshot.Sections)
	after := roster.NewSnapshot(sections, nil, snapshot.Teachers)
	teacher, _ := after.TeacherByID(teacherID)
	return dto.TeacherResponse{
		ID:                teacher.ID,
		Username:          teacher.Username,
		FirstName:         teacher.FirstName,
		LastName:          teacher.LastName,
		IsActive:          teacher.Active,
		AssignedSection:   teacher.AssignedSection,
		AssignedSectionID: teacher.AssignedID,
		AvatarURL:         s.resolve(ctx, teacher.ProfilePicture),
	}
}

func (s *sectionService) resolve(ctx context.Context, reference string) string {
	if s.avatars == nil {
		return reference
	}
	return s.avatars.Resolve(ctx, reference)
}

func (s *sectionService) response(ctx context.Context, id uint) (dto.SectionResponse, error) {
	snapshot, err := s.loader.Load(ctx)
	if err != nil {
		return dto.SectionResponse{}, err
	}
	section, ok := snapshot.SectionByID(id)
	if !ok {
		return dto.SectionResponse{}, ErrSectionNotFound
	}
	return newSectionResponse(section, snapshot), nil
}

func (s *sectionService) publish(ctx context.Context, table, action string, ids ...uint) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, NewRosterChange(table, action, ids...))
}

func (s *sectionService) clean(value string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(value))
}

func translateSectionError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrSectionNotFound
	case errors.Is(err, repository.ErrTeacherTaken):
		return ErrTeacherAssignmentConflict
	case isUniqueViolation(err):
		return ErrSectionNameTaken
	case isForeignKeyViolation(err):
		return ErrSectionInUse
	default:
		return err
	}
}

func updateKeys(updates map[string]interface{}) []string {
	keys := make([]string, 0, len(updates))
	for key := range updates {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
