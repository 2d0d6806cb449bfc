package dto

import (
	"time"

	"github.com/noah-isme/classroom-api/internal/roster"
)

// RosterQuery captures the search term and section selector sent by the dashboard.
type RosterQuery struct {
	Search  string `json:"search" query:"search"`
	Section string `json:"section" query:"section" validate:"omitempty,max=120"`
}

// Filter converts the query into a roster filter.
func (q RosterQuery) Filter() roster.Filter {
	return roster.Filter{Search: q.Search, Section: q.Section}
}

// SectionResponse serializes a section with its derived fields.
type SectionResponse struct {
	ID           uint   `json:"id"`
	Name         string `json:"name"`
	Classroom    string `json:"classroom"`
	Period       string `json:"period"`
	MaxCapacity  int    `json:"max_capacity"`
	SchoolYear   string `json:"school_year"`
	IsActive     bool   `json:"is_active"`
	TeacherID    *uint  `json:"teacher_id"`
	TeacherName  string `json:"teacher_name"`
	StudentCount int    `json:"student_count"`
}

// StudentResponse serializes a visible roster row.
type StudentResponse struct {
	ID          uint   `json:"id"`
	ParentID    *uint  `json:"parent_id"`
	SectionID   *uint  `json:"section_id"`
	SectionName string `json:"section_name"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	StudentCode string `json:"student_code"`
	IsActive    bool   `json:"is_active"`
	AvatarURL   string `json:"avatar_url"`
	Selected    bool   `json:"selected"`
}

// TeacherResponse serializes a teacher with the section it owns.
type TeacherResponse struct {
	ID                uint   `json:"id"`
	Username          string `json:"username"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	IsActive          bool   `json:"is_active"`
	AssignedSection   string `json:"assigned_section"`
	AssignedSectionID *uint  `json:"assigned_section_id"`
	AvatarURL         string `json:"avatar_url"`
}

// SectionLoadResponse reports how many visible students a section holds.
type SectionLoadResponse struct {
	SectionID   uint   `json:"section_id"`
	Name        string `json:"name"`
	Students    int    `json:"students"`
	MaxCapacity int    `json:"max_capacity"`
}

// RosterSummaryResponse feeds the dashboard summary cards.
type RosterSummaryResponse struct {
	Total      int                   `json:"total"`
	Active     int                   `json:"active"`
	Inactive   int                   `json:"inactive"`
	Unassigned int                   `json:"unassigned"`
	Sections   []SectionLoadResponse `json:"sections"`
}

// SelectionResponse describes the caller's bulk selection against the visible set.
type SelectionResponse struct {
	SelectedIDs  []uint `json:"selected_ids"`
	EffectiveIDs []uint `json:"effective_ids"`
	SelectAll    bool   `json:"select_all"`
	VisibleCount int    `json:"visible_count"`
}

// RosterViewResponse is the complete classroom view for one session.
type RosterViewResponse struct {
	Students  []StudentResponse     `json:"students"`
	Sections  []SectionResponse     `json:"sections"`
	Teachers  []TeacherResponse     `json:"teachers"`
	Summary   RosterSummaryResponse `json:"summary"`
	Selection SelectionResponse     `json:"selection"`
	Query     RosterQuery           `json:"query"`
}

// SectionCreateRequest captures the required section fields.
type SectionCreateRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=120"`
	Classroom   string `json:"classroom" validate:"required,max=64"`
	Period      string `json:"period" validate:"required,oneof=morning afternoon"`
	MaxCapacity int    `json:"max_capacity" validate:"required,gt=0"`
	SchoolYear  string `json:"school_year" validate:"required,max=16"`
	IsActive    *bool  `json:"is_active"`
	TeacherID   *uint  `json:"teacher_id"`
}

// SectionUpdateRequest patches section fields.
type SectionUpdateRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=120"`
	Classroom   *string `json:"classroom" validate:"omitempty,min=1,max=64"`
	Period      *string `json:"period" validate:"omitempty,oneof=morning afternoon"`
	MaxCapacity *int    `json:"max_capacity" validate:"omitempty,gt=0"`
	SchoolYear  *string `json:"school_year" validate:"omitempty,min=1,max=16"`
	IsActive    *bool   `json:"is_active"`
}

// StudentSectionRequest moves a student to a section, or out of every section when SectionID is null.
type StudentSectionRequest struct {
	SectionID *uint `json:"section_id"`
}

// TeacherSectionRequest assigns a teacher to a section.
type TeacherSectionRequest struct {
	SectionID uint `json:"section_id" validate:"required"`
}

// Bulk actions.
const (
	BulkActionUpdate = "update"
	BulkActionDelete = "delete"
)

// BulkStudentPatch lists the fields a bulk update may change.
type BulkStudentPatch struct {
	SectionID    *uint `json:"section_id"`
	ClearSection bool  `json:"clear_section"`
	IsActive     *bool `json:"is_active"`
}

// BulkStudentRequest applies an action to explicit ids or, when IDs is
// empty, to the caller's visible selection.
type BulkStudentRequest struct {
	Action  string           `json:"action" validate:"required,oneof=update delete"`
	IDs     []uint           `json:"ids" validate:"omitempty,dive,gt=0"`
	Patch   BulkStudentPatch `json:"patch"`
	Search  string           `json:"search"`
	Section string           `json:"section"`
}

// BulkResultResponse reports the outcome of a bulk operation.
type BulkResultResponse struct {
	Action   string `json:"action"`
	IDs      []uint `json:"ids"`
	Affected int64  `json:"affected"`
}

// SelectionToggleRequest checks or unchecks one student.
type SelectionToggleRequest struct {
	ID      uint   `json:"id" validate:"required"`
	Checked bool   `json:"checked"`
	Search  string `json:"search"`
	Section string `json:"section"`
}

// SelectionToggleAllRequest checks or unchecks every visible student.
type SelectionToggleAllRequest struct {
	Checked bool   `json:"checked"`
	Search  string `json:"search"`
	Section string `json:"section"`
}

// ImportResultResponse summarises a spreadsheet import.
type ImportResultResponse struct {
	Imported int64    `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}

// AvatarResponse returns the resolved picture of a profile.
type AvatarResponse struct {
	Reference string `json:"reference"`
	URL       string `json:"url"`
}

// RosterChangeEvent notifies subscribers that roster rows changed.
type RosterChangeEvent struct {
	ID         string    `json:"id"`
	Table      string    `json:"table"`
	Action     string    `json:"action"`
	IDs        []uint    `json:"ids"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RosterStreamFrame is pushed to websocket subscribers after a change.
type RosterStreamFrame struct {
	Type   string              `json:"type"`
	Event  *RosterChangeEvent  `json:"event,omitempty"`
	Roster *RosterViewResponse `json:"roster,omitempty"`
	Error  string              `json:"error,omitempty"`
}
