package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/classroom-api/internal/dto"
	"github.com/noah-isme/classroom-api/internal/roster"
)

// ClassroomService serves the read side of the classroom dashboard. Every call
// fetches a full snapshot and derives the session's view from it.
type ClassroomService interface {
	View(ctx context.Context, session roster.Session, query dto.RosterQuery) (dto.RosterViewResponse, error)
	Students(ctx context.Context, session roster.Session, query dto.RosterQuery) ([]dto.StudentResponse, error)
	Teachers(ctx context.Context, session roster.Session, search string) ([]dto.TeacherResponse, error)
	Sections(ctx context.Context, session roster.Session) ([]dto.SectionResponse, error)
}

type classroomService struct {
	loader  *RosterLoader
	store   SelectionStore
	avatars AvatarResolver
	logger  zerolog.Logger
	tracer  trace.Tracer
}

// NewClassroomService constructs the classroom read service.
func NewClassroomService(loader *RosterLoader, store SelectionStore, avatars AvatarResolver, logger zerolog.Logger) ClassroomService {
	return &classroomService{
		loader:  loader,
		store:   store,
		avatars: avatars,
		logger:  logger.With().Str("component", "classroom_service").Logger(),
		tracer:  otel.Tracer("github.com/noah-isme/classroom-api/internal/service/classroom"),
	}
}

func (s *classroomService) View(ctx context.Context, session roster.Session, query dto.RosterQuery) (dto.RosterViewResponse, error) {
	ctx, span := s.tracer.Start(ctx, "classroom.view", trace.WithAttributes(
		attribute.String("session.role", string(session.Role)),
		attribute.String("roster.section", query.Section),
	))
	defer span.End()

	visible, snapshot, scoped, err := s.loader.Visible(ctx, session, query.Filter())
	if err != nil {
		span.RecordError(err)
		return dto.RosterViewResponse{}, err
	}

	selection := s.selection(ctx, session.UserID)
	selection.SetVisible(roster.VisibleIDs(visible))

	sections := roster.VisibleSections(snapshot.Sections, scoped)
	teachers := roster.VisibleTeachers(snapshot.Teachers, scoped, "")
	span.SetAttributes(attribute.Int("roster.visible_students", len(visible)))

	return dto.RosterViewResponse{
		Students:  s.studentResponses(ctx, visible, selection),
		Sections:  sectionResponses(sections, snapshot),
		Teachers:  s.teacherResponses(ctx, teachers),
		Summary:   summaryResponse(roster.Summarize(visible, sections)),
		Selection: newSelectionResponse(selection),
		Query:     dto.RosterQuery{Search: strings.TrimSpace(query.Search), Section: strings.TrimSpace(query.Section)},
	}, nil
}

func (s *classroomService) Students(ctx context.Context, session roster.Session, query dto.RosterQuery) ([]dto.StudentResponse, error) {
	visible, _, _, err := s.loader.Visible(ctx, session, query.Filter())
	if err != nil {
		return nil, err
	}
	selection := s.selection(ctx, session.UserID)
	selection.SetVisible(roster.VisibleIDs(visible))
	return s.studentResponses(ctx, visible, selection), nil
}

func (s *classroomService) Teachers(ctx context.Context, session roster.Session, search string) ([]dto.TeacherResponse, error) {
	snapshot, scoped, err := s.loader.LoadScoped(ctx, session)
	if err != nil {
		return nil, err
	}
	return s.teacherResponses(ctx, roster.VisibleTeachers(snapshot.Teachers, scoped, strings.TrimSpace(search))), nil
}

func (s *classroomService) Sections(ctx context.Context, session roster.Session) ([]dto.SectionResponse, error) {
	snapshot, scoped, err := s.loader.LoadScoped(ctx, session)
	if err != nil {
		return nil, err
	}
	return sectionResponses(roster.VisibleSections(snapshot.Sections, scoped), snapshot), nil
}

func (s *classroomService) selection(ctx context.Context, userID uint) *roster.Selection {
	if s.store == nil {
		return roster.NewSelection()
	}
	selection, err := s.store.Load(ctx, userID)
	if err != nil {
		s.logger.Warn().Err(err).Uint("user_id", userID).Msg("failed to load selection")
		return roster.NewSelection()
	}
	return selection
}

func (s *classroomService) resolve(ctx context.Context, reference string) string {
	if s.avatars == nil {
		return reference
	}
	return s.avatars.Resolve(ctx, reference)
}

func (s *classroomService) studentResponses(ctx context.Context, students []roster.Student, selection *roster.Selection) []dto.StudentResponse {
	responses := make([]dto.StudentResponse, 0, len(students))
	for _, student := range students {
		responses = append(responses, dto.StudentResponse{
			ID:          student.ID,
			ParentID:    student.ParentID,
			SectionID:   student.SectionID,
			SectionName: student.SectionName,
			FirstName:   student.FirstName,
			LastName:    student.LastName,
			StudentCode: student.Code,
			IsActive:    student.Active,
			AvatarURL:   s.resolve(ctx, student.ProfilePicture),
			Selected:    selection.Has(student.ID),
		})
	}
	return responses
}

func (s *classroomService) teacherResponses(ctx context.Context, teachers []roster.Teacher) []dto.TeacherResponse {
	responses := make([]dto.TeacherResponse, 0, len(teachers))
	for _, teacher := range teachers {
		responses = append(responses, dto.TeacherResponse{
			ID:                teacher.ID,
			Username:          teacher.Username,
			FirstName:         teacher.FirstName,
			LastName:          teacher.LastName,
			IsActive:          teacher.Active,
			AssignedSection:   teacher.AssignedSection,
			AssignedSectionID: teacher.AssignedID,
			AvatarURL:         s.resolve(ctx, teacher.ProfilePicture),
		})
	}
	return responses
}

func sectionResponses(sections []roster.Section, snapshot roster.Snapshot) []dto.SectionResponse {
	responses := make([]dto.SectionResponse, 0, len(sections))
	for _, section := range sections {
		responses = append(responses, newSectionResponse(section, snapshot))
	}
	return responses
}

func newSectionResponse(section roster.Section, snapshot roster.Snapshot) dto.SectionResponse {
	response := dto.SectionResponse{
		ID:           section.ID,
		Name:         section.Name,
		Classroom:    section.Classroom,
		Period:       section.Period,
		MaxCapacity:  section.MaxCapacity,
		SchoolYear:   section.SchoolYear,
		IsActive:     section.Active,
		TeacherID:    section.TeacherID,
		StudentCount: section.StudentCount,
	}
	if section.TeacherID != nil {
		if teacher, ok := snapshot.TeacherByID(*section.TeacherID); ok {
			response.TeacherName = strings.TrimSpace(roster.FullName(teacher.FirstName, teacher.LastName))
		}
	}
	return response
}

func summaryResponse(summary roster.Summary) dto.RosterSummaryResponse {
	loads := make([]dto.SectionLoadResponse, 0, len(summary.Sections))
	for _, load := range summary.Sections {
		loads = append(loads, dto.SectionLoadResponse{
			SectionID:   load.SectionID,
			Name:        load.Name,
			Students:    load.Students,
			MaxCapacity: load.MaxCapacity,
		})
	}
	return dto.RosterSummaryResponse{
		Total:      summary.Total,
		Active:     summary.Active,
		Inactive:   summary.Inactive,
		Unassigned: summary.Unassigned,
		Sections:   loads,
	}
}
