package service

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/classroom-api/internal/models"
	"github.com/noah-isme/classroom-api/internal/repository"
	"github.com/noah-isme/classroom-api/internal/roster"
)

// RosterLoader fetches a complete, consistent snapshot of the roster store.
type RosterLoader struct {
	sections repository.SectionRepository
	students repository.StudentRepository
	teachers repository.TeacherRepository
	tracer   trace.Tracer
}

// NewRosterLoader constructs a loader over the roster repositories.
func NewRosterLoader(sections repository.SectionRepository, students repository.StudentRepository, teachers repository.TeacherRepository) *RosterLoader {
	return &RosterLoader{
		sections: sections,
		students: students,
		teachers: teachers,
		tracer:   otel.Tracer("github.com/noah-isme/classroom-api/internal/service/roster"),
	}
}

// Load reads sections, students and teachers and returns a snapshot with the
// derived section names and teacher assignments.
func (l *RosterLoader) Load(ctx context.Context) (roster.Snapshot, error) {
	ctx, span := l.tracer.Start(ctx, "roster.load")
	defer span.End()

	sections, err := l.sections.List(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list_sections_failed")
		return roster.Snapshot{}, err
	}

	students, err := l.students.List(ctx, repository.StudentFilter{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list_students_failed")
		return roster.Snapshot{}, err
	}

	teachers, err := l.teachers.List(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list_teachers_failed")
		return roster.Snapshot{}, err
	}

	span.SetAttributes(
		attribute.Int("roster.sections", len(sections)),
		attribute.Int("roster.students", len(students)),
		attribute.Int("roster.teachers", len(teachers)),
	)

	return roster.NewSnapshot(toRosterSections(sections), toRosterStudents(students), toRosterTeachers(teachers)), nil
}

// LoadScoped loads a snapshot and completes the session with its section context.
func (l *RosterLoader) LoadScoped(ctx context.Context, session roster.Session) (roster.Snapshot, roster.Session, error) {
	snapshot, err := l.Load(ctx)
	if err != nil {
		return roster.Snapshot{}, session, err
	}
	return snapshot, snapshot.Scope(session), nil
}

// Visible returns the students the session sees under the filter.
func (l *RosterLoader) Visible(ctx context.Context, session roster.Session, filter roster.Filter) ([]roster.Student, roster.Snapshot, roster.Session, error) {
	snapshot, scoped, err := l.LoadScoped(ctx, session)
	if err != nil {
		return nil, roster.Snapshot{}, session, err
	}
	return roster.VisibleStudents(snapshot.Students, scoped, normalizeFilter(filter)), snapshot, scoped, nil
}

func normalizeFilter(filter roster.Filter) roster.Filter {
	filter.Search = strings.TrimSpace(filter.Search)
	filter.Section = strings.TrimSpace(filter.Section)
	return filter
}

func toRosterSections(sections []models.Section) []roster.Section {
	result := make([]roster.Section, 0, len(sections))
	for _, section := range sections {
		result = append(result, roster.Section{
			ID:          section.ID,
			Name:        section.Name,
			Classroom:   section.Classroom,
			Period:      section.Period,
			MaxCapacity: section.MaxCapacity,
			SchoolYear:  section.SchoolYear,
			Active:      section.IsActive,
			TeacherID:   section.TeacherID,
		})
	}
	return result
}

func toRosterStudents(students []models.Student) []roster.Student {
	result := make([]roster.Student, 0, len(students))
	for _, student := range students {
		result = append(result, roster.Student{
			ID:             student.ID,
			ParentID:       student.ParentID,
			SectionID:      student.SectionID,
			FirstName:      student.FirstName,
			LastName:       student.LastName,
			Code:           student.StudentCode,
			Active:         student.IsActive,
			ProfilePicture: student.ProfilePicture,
		})
	}
	return result
}

func toRosterTeachers(teachers []models.Teacher) []roster.Teacher {
	result := make([]roster.Teacher, 0, len(teachers))
	for _, teacher := range teachers {
		result = append(result, roster.Teacher{
			ID:             teacher.ID,
			Username:       teacher.Username,
			FirstName:      teacher.FirstName,
			LastName:       teacher.LastName,
			ProfilePicture: teacher.ProfilePicture,
			Active:         teacher.IsActive,
		})
	}
	return result
}
