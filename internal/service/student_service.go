package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/classroom-api/internal/dto"
	"github.com/noah-isme/classroom-api/internal/models"
	"github.com/noah-isme/classroom-api/internal/repository"
	"github.com/noah-isme/classroom-api/internal/roster"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// StudentService applies roster mutations to students.
type StudentService interface {
	AssignSection(ctx context.Context, actor ActivityActor, studentID uint, sectionID *uint) (dto.StudentResponse, error)
	Bulk(ctx context.Context, session roster.Session, req dto.BulkStudentRequest) (dto.BulkResultResponse, error)
	Import(ctx context.Context, actor ActivityActor, content []byte) (dto.ImportResultResponse, error)
}

type studentService struct {
	repo      repository.StudentRepository
	sections  repository.SectionRepository
	loader    *RosterLoader
	selection SelectionService
	store     SelectionStore
	events    RosterEvents
	activity  ActivityRecorder
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewStudentService constructs the student mutation service.
func NewStudentService(repo repository.StudentRepository, sections repository.SectionRepository, loader *RosterLoader, selection SelectionService, store SelectionStore, events RosterEvents, activity ActivityRecorder, validate *validator.Validate, logger zerolog.Logger) StudentService {
	return &studentService{
		repo:      repo,
		sections:  sections,
		loader:    loader,
		selection: selection,
		store:     store,
		events:    events,
		activity:  activity,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "student_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/classroom-api/internal/service/student"),
	}
}

func (s *studentService) AssignSection(ctx context.Context, actor ActivityActor, studentID uint, sectionID *uint) (dto.StudentResponse, error) {
	student, err := s.repo.GetByID(ctx, studentID)
	if err != nil {
		return dto.StudentResponse{}, translateStudentError(err)
	}

	sectionName := ""
	if sectionID != nil {
		section, err := s.sections.GetByID(ctx, *sectionID)
		if err != nil {
			return dto.StudentResponse{}, translateSectionError(err)
		}
		sectionName = section.Name
		alreadyThere := student.SectionID != nil && *student.SectionID == section.ID
		if !alreadyThere {
			if err := s.ensureCapacity(ctx, section, 1); err != nil {
				return dto.StudentResponse{}, err
			}
		}
	}

	updated, err := s.repo.UpdateSection(ctx, studentID, sectionID)
	if err != nil {
		return dto.StudentResponse{}, translateStudentError(err)
	}

	s.publish(ctx, RosterActionUpdate, studentID)
	metadata := map[string]interface{}{"section_id": nil}
	if sectionID != nil {
		metadata["section_id"] = *sectionID
	}
	recordActivity(ctx, s.activity, s.logger, actor, "student.section_changed", "student", uintRef(studentID), metadata)

	return dto.StudentResponse{
		ID:          updated.ID,
		ParentID:    updated.ParentID,
		SectionID:   updated.SectionID,
		SectionName: sectionName,
		FirstName:   updated.FirstName,
		LastName:    updated.LastName,
		StudentCode: updated.StudentCode,
		IsActive:    updated.IsActive,
	}, nil
}

func (s *studentService) Bulk(ctx context.Context, session roster.Session, req dto.BulkStudentRequest) (dto.BulkResultResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.BulkResultResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "students.bulk", trace.WithAttributes(
		attribute.String("bulk.action", req.Action),
	))
	defer span.End()

	ids := dedupeIDs(req.IDs)
	if len(ids) > 0 && !session.IsAdmin() {
		if err := s.ensureVisible(ctx, session, ids); err != nil {
			return dto.BulkResultResponse{}, err
		}
	}
	if len(ids) == 0 {
		effective, err := s.selection.Effective(ctx, session, dto.RosterQuery{Search: req.Search, Section: req.Section})
		if err != nil {
			return dto.BulkResultResponse{}, err
		}
		ids = effective
	}
	if len(ids) == 0 {
		return dto.BulkResultResponse{}, ErrEmptySelection
	}
	span.SetAttributes(attribute.Int("bulk.ids", len(ids)))

	var (
		affected int64
		err      error
		action   string
		eventAct string
	)
	switch req.Action {
	case dto.BulkActionUpdate:
		affected, err = s.bulkUpdate(ctx, ids, req.Patch)
		action, eventAct = "students.bulk_updated", RosterActionUpdate
	case dto.BulkActionDelete:
		affected, err = s.repo.BulkDelete(ctx, ids)
		action, eventAct = "students.bulk_deleted", RosterActionDelete
	}
	if err != nil {
		span.RecordError(err)
		return dto.BulkResultResponse{}, translateStudentError(err)
	}

	if req.Action == dto.BulkActionDelete {
		s.forget(ctx, session.UserID, ids)
	}
	s.publish(ctx, eventAct, ids...)
	recordActivity(ctx, s.activity, s.logger, ActorFromSession(session), action, "student", nil, map[string]interface{}{
		"ids":   ids,
		"count": affected,
	})

	return dto.BulkResultResponse{Action: req.Action, IDs: ids, Affected: affected}, nil
}

// ensureVisible rejects explicit ids outside the students the session may see.
func (s *studentService) ensureVisible(ctx context.Context, session roster.Session, ids []uint) error {
	visible, _, _, err := s.loader.Visible(ctx, session, roster.Filter{})
	if err != nil {
		return err
	}
	allowed := make(map[uint]struct{}, len(visible))
	for _, student := range visible {
		allowed[student.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := allowed[id]; !ok {
			return ErrRosterForbidden
		}
	}
	return nil
}

func (s *studentService) bulkUpdate(ctx context.Context, ids []uint, patch dto.BulkStudentPatch) (int64, error) {
	updates := map[string]interface{}{}
	switch {
	case patch.ClearSection:
		updates["section_id"] = nil
	case patch.SectionID != nil:
		section, err := s.sections.GetByID(ctx, *patch.SectionID)
		if err != nil {
			return 0, translateSectionError(err)
		}
		students, err := s.repo.List(ctx, repository.StudentFilter{IDs: ids})
		if err != nil {
			return 0, err
		}
		if len(students) != len(ids) {
			return 0, ErrStudentNotFound
		}
		incoming := 0
		for _, student := range students {
			if student.SectionID == nil || *student.SectionID != section.ID {
				incoming++
			}
		}
		if err := s.ensureCapacity(ctx, section, incoming); err != nil {
			return 0, err
		}
		updates["section_id"] = section.ID
	}
	if patch.IsActive != nil {
		updates["is_active"] = *patch.IsActive
	}
	if len(updates) == 0 {
		return 0, ErrEmptyPatch
	}
	return s.repo.BulkUpdate(ctx, ids, updates)
}

func (s *studentService) ensureCapacity(ctx context.Context, section models.Section, incoming int) error {
	if incoming <= 0 || section.MaxCapacity <= 0 {
		return nil
	}
	count, err := s.sections.CountStudents(ctx, section.ID)
	if err != nil {
		return err
	}
	if count+int64(incoming) > int64(section.MaxCapacity) {
		return ErrSectionFull
	}
	return nil
}

// forget drops deleted ids from the caller's stored selection.
func (s *studentService) forget(ctx context.Context, userID uint, ids []uint) {
	if s.store == nil {
		return
	}
	selection, err := s.store.Load(ctx, userID)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to load selection after delete")
		return
	}
	for _, id := range ids {
		selection.ToggleOne(id, false)
	}
	if err := s.store.Save(ctx, userID, selection); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store selection after delete")
	}
}

func (s *studentService) Import(ctx context.Context, actor ActivityActor, content []byte) (dto.ImportResultResponse, error) {
	if detected := mimetype.Detect(content); !detected.Is(xlsxMIME) && !detected.Is("application/zip") {
		return dto.ImportResultResponse{}, ErrInvalidImport
	}

	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return dto.ImportResultResponse{}, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to close roster spreadsheet")
		}
	}()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return dto.ImportResultResponse{}, fmt.Errorf("%w: no sheets", ErrInvalidImport)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return dto.ImportResultResponse{}, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	if len(rows) == 0 {
		return dto.ImportResultResponse{}, fmt.Errorf("%w: empty sheet", ErrInvalidImport)
	}

	sections, err := s.sections.List(ctx)
	if err != nil {
		return dto.ImportResultResponse{}, err
	}
	existing, err := s.repo.List(ctx, repository.StudentFilter{})
	if err != nil {
		return dto.ImportResultResponse{}, err
	}

	parsed := parseRosterSheet(rows, s.clean)
	plan := planImport(parsed, sections, existing)
	result := dto.ImportResultResponse{Skipped: len(plan.errors), Errors: plan.errors}
	if len(plan.students) == 0 {
		return result, nil
	}

	imported, err := s.repo.CreateBatch(ctx, plan.students)
	if err != nil {
		if isUniqueViolation(err) {
			return dto.ImportResultResponse{}, ErrStudentCodeTaken
		}
		return dto.ImportResultResponse{}, err
	}
	result.Imported = imported

	ids := make([]uint, 0, len(plan.students))
	for _, student := range plan.students {
		ids = append(ids, student.ID)
	}
	s.publish(ctx, RosterActionCreate, ids...)
	recordActivity(ctx, s.activity, s.logger, actor, "students.imported", "student", nil, map[string]interface{}{
		"imported": imported,
		"skipped":  result.Skipped,
	})

	return result, nil
}

func (s *studentService) publish(ctx context.Context, action string, ids ...uint) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, NewRosterChange(tableStudents, action, ids...))
}

func (s *studentService) clean(value string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(value))
}

type importRow struct {
	line      int
	code      string
	firstName string
	lastName  string
	section   string
	active    *bool
}

// parseRosterSheet maps spreadsheet columns by header. It accepts either
// separate first/last name columns or the single "Student Name" column
// written by the roster export.
func parseRosterSheet(rows [][]string, clean func(string) string) []importRow {
	columns := map[string]int{}
	for idx, header := range rows[0] {
		key := strings.ToLower(strings.Join(strings.Fields(strings.ReplaceAll(header, "_", " ")), " "))
		switch key {
		case "id", "code", "student code", "student id":
			columns["code"] = idx
		case "first name", "firstname":
			columns["first"] = idx
		case "last name", "lastname", "surname":
			columns["last"] = idx
		case "student name", "name", "full name":
			columns["name"] = idx
		case "section", "section name", "class":
			columns["section"] = idx
		case "active", "is active", "status":
			columns["active"] = idx
		}
	}

	cell := func(row []string, column string) string {
		idx, ok := columns[column]
		if !ok || idx >= len(row) {
			return ""
		}
		return clean(row[idx])
	}

	result := make([]importRow, 0, len(rows)-1)
	for i, row := range rows[1:] {
		entry := importRow{
			line:      i + 2,
			code:      cell(row, "code"),
			firstName: cell(row, "first"),
			lastName:  cell(row, "last"),
			section:   cell(row, "section"),
		}
		if entry.firstName == "" && entry.lastName == "" {
			entry.firstName, entry.lastName = splitFullName(cell(row, "name"))
		}
		if entry.code == roster.NoStudentCode {
			entry.code = ""
		}
		if entry.section == roster.NoSection {
			entry.section = ""
		}
		if raw := cell(row, "active"); raw != "" {
			if active, ok := parseActive(raw); ok {
				entry.active = &active
			}
		}
		result = append(result, entry)
	}
	return result
}

type importPlan struct {
	students []models.Student
	errors   []string
}

func planImport(rows []importRow, sections []models.Section, existing []models.Student) importPlan {
	byName := make(map[string]models.Section, len(sections))
	load := make(map[uint]int, len(sections))
	for _, section := range sections {
		byName[strings.ToLower(section.Name)] = section
	}
	codes := make(map[string]struct{}, len(existing))
	for _, student := range existing {
		if student.StudentCode != "" {
			codes[strings.ToLower(student.StudentCode)] = struct{}{}
		}
		if student.SectionID != nil {
			load[*student.SectionID]++
		}
	}

	plan := importPlan{errors: []string{}}
	for _, row := range rows {
		if row.firstName == "" && row.lastName == "" {
			plan.errors = append(plan.errors, fmt.Sprintf("row %d: missing student name", row.line))
			continue
		}
		if row.code != "" {
			if _, dup := codes[strings.ToLower(row.code)]; dup {
				plan.errors = append(plan.errors, fmt.Sprintf("row %d: student code %s already exists", row.line, row.code))
				continue
			}
		}

		student := models.Student{
			FirstName:   row.firstName,
			LastName:    row.lastName,
			StudentCode: row.code,
			IsActive:    true,
		}
		if row.active != nil {
			student.IsActive = *row.active
		}
		if row.section != "" {
			section, ok := byName[strings.ToLower(row.section)]
			if !ok {
				plan.errors = append(plan.errors, fmt.Sprintf("row %d: unknown section %s", row.line, row.section))
				continue
			}
			if section.MaxCapacity > 0 && load[section.ID] >= section.MaxCapacity {
				plan.errors = append(plan.errors, fmt.Sprintf("row %d: section %s is full", row.line, section.Name))
				continue
			}
			id := section.ID
			student.SectionID = &id
			load[section.ID]++
		}
		if row.code != "" {
			codes[strings.ToLower(row.code)] = struct{}{}
		}
		plan.students = append(plan.students, student)
	}
	return plan
}

func splitFullName(full string) (string, string) {
	full = strings.TrimSpace(full)
	if full == "" || full == roster.NoName {
		return "", ""
	}
	idx := strings.LastIndex(full, " ")
	if idx < 0 {
		return full, ""
	}
	return strings.TrimSpace(full[:idx]), strings.TrimSpace(full[idx+1:])
}

func parseActive(raw string) (bool, bool) {
	switch strings.ToLower(raw) {
	case "active", "yes", "y":
		return true, true
	case "inactive", "no", "n":
		return false, true
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return parsed, true
}

func translateStudentError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrStudentNotFound
	default:
		return err
	}
}

func dedupeIDs(ids []uint) []uint {
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
