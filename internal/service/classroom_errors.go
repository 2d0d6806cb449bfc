package service

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrSectionNotFound indicates the requested section does not exist.
	ErrSectionNotFound = errors.New("section not found")
	// ErrSectionNameTaken indicates another section already uses the name.
	ErrSectionNameTaken = errors.New("a section with this name already exists")
	// ErrSectionInUse indicates the section still has students assigned.
	ErrSectionInUse = errors.New("section still has students assigned")
	// ErrSectionFull indicates the section reached its maximum capacity.
	ErrSectionFull = errors.New("section has reached its maximum capacity")
	// ErrTeacherAssignmentConflict indicates a concurrent request assigned the teacher elsewhere.
	ErrTeacherAssignmentConflict = errors.New("teacher was assigned to another section concurrently, reload and retry")
	// ErrStudentCodeTaken indicates another student already uses the student code.
	ErrStudentCodeTaken = errors.New("a student with this code already exists")
	// ErrStudentNotFound indicates one or more students do not exist.
	ErrStudentNotFound = errors.New("student not found")
	// ErrTeacherNotFound indicates the requested teacher does not exist.
	ErrTeacherNotFound = errors.New("teacher not found")
	// ErrEmptySelection indicates a bulk action was requested with nothing selected.
	ErrEmptySelection = errors.New("no students selected")
	// ErrEmptyPatch indicates a bulk update without any field to change.
	ErrEmptyPatch = errors.New("bulk update patch is empty")
	// ErrRosterForbidden indicates the session may not act on the requested rows.
	ErrRosterForbidden = errors.New("not allowed to modify these students")
	// ErrInvalidImport indicates the uploaded roster file could not be read.
	ErrInvalidImport = errors.New("invalid roster spreadsheet")
	// ErrUnsupportedAvatar indicates the uploaded picture is not an accepted image type.
	ErrUnsupportedAvatar = errors.New("unsupported image type")
	// ErrAvatarTooLarge indicates the uploaded picture exceeds the configured limit.
	ErrAvatarTooLarge = errors.New("image exceeds maximum size")
	// ErrInsightsUnavailable indicates no narrator is configured.
	ErrInsightsUnavailable = errors.New("statistics insights are not configured")
)

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate") || strings.Contains(msg, "23505")
}

func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "foreign key") || strings.Contains(msg, "23503")
}
