package roster

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func uintPtr(v uint) *uint {
	return &v
}

func sampleSnapshot() Snapshot {
	sections := []Section{
		{ID: 1, Name: "Bee", MaxCapacity: 20, Active: true, TeacherID: uintPtr(100)},
		{ID: 2, Name: "Owl", MaxCapacity: 2, Active: true},
	}
	students := []Student{
		{ID: 10, FirstName: "Ana", LastName: "Cruz", Code: "S1", SectionID: uintPtr(1), Active: true},
		{ID: 11, FirstName: "Ben", LastName: "Cruz", Code: "S2", Active: true},
		{ID: 12, FirstName: "Cara", LastName: "Diaz", Code: "S3", SectionID: uintPtr(2)},
		{ID: 13, FirstName: "Dan", LastName: "Eze", Code: "S4", SectionID: uintPtr(1), Active: true},
	}
	teachers := []Teacher{
		{ID: 100, Username: "mrivera", FirstName: "Marta", LastName: "Rivera", Active: true},
		{ID: 101, Username: "jlee", FirstName: "Jon", LastName: "Lee", Active: true},
	}
	return NewSnapshot(sections, students, teachers)
}

func names(students []Student) []string {
	result := make([]string, 0, len(students))
	for _, student := range students {
		result = append(result, student.FirstName)
	}
	return result
}

func TestVisibleStudentsAdminScenario(t *testing.T) {
	snapshot := NewSnapshot(
		[]Section{{ID: 1, Name: "Bee"}},
		[]Student{
			{ID: 1, FirstName: "Ana", LastName: "Cruz", Code: "S1", SectionID: uintPtr(1)},
			{ID: 2, FirstName: "Ben", LastName: "Cruz", Code: "S2"},
		},
		nil,
	)
	admin := Session{Role: RoleAdmin, UserID: 1}

	both := VisibleStudents(snapshot.Students, admin, Filter{Search: "cruz", Section: SectionAll})
	require.Equal(t, []string{"Ana", "Ben"}, names(both))

	unassigned := VisibleStudents(snapshot.Students, admin, Filter{Search: "cruz", Section: SectionUnassigned})
	require.Equal(t, []string{"Ben"}, names(unassigned))

	byCode := VisibleStudents(snapshot.Students, admin, Filter{Search: "S1", Section: SectionAll})
	require.Equal(t, []string{"Ana"}, names(byCode))
}

func TestVisibleStudentsAdminSectionName(t *testing.T) {
	snapshot := sampleSnapshot()
	admin := Session{Role: RoleAdmin}

	result := VisibleStudents(snapshot.Students, admin, Filter{Section: "Bee"})
	require.Equal(t, []string{"Ana", "Dan"}, names(result))

	require.Len(t, VisibleStudents(snapshot.Students, admin, Filter{}), 4)
	require.Empty(t, VisibleStudents(snapshot.Students, admin, Filter{Section: "Missing"}))
}

func TestVisibleStudentsSearchProperty(t *testing.T) {
	snapshot := sampleSnapshot()
	admin := Session{Role: RoleAdmin}
	terms := []string{"", "a", "CRUZ", "ana c", "s3", "zz", " ", "n C"}

	for _, term := range terms {
		visible := VisibleStudents(snapshot.Students, admin, Filter{Search: term, Section: SectionAll})
		included := make(map[uint]bool, len(visible))
		for _, student := range visible {
			included[student.ID] = true
		}
		for _, student := range snapshot.Students {
			lowered := strings.ToLower(term)
			expected := term == "" ||
				strings.Contains(strings.ToLower(student.FirstName+" "+student.LastName), lowered) ||
				strings.Contains(strings.ToLower(student.Code), lowered)
			require.Equal(t, expected, included[student.ID], "term %q student %d", term, student.ID)
		}
	}
}

func TestVisibleStudentsToleratesMissingNames(t *testing.T) {
	students := []Student{{ID: 1, Code: "X9"}, {ID: 2, FirstName: "Solo"}}
	admin := Session{Role: RoleAdmin}

	require.Len(t, VisibleStudents(students, admin, Filter{Search: "x9"}), 1)
	require.Len(t, VisibleStudents(students, admin, Filter{Search: "solo"}), 1)
	require.Len(t, VisibleStudents(students, admin, Filter{}), 2)
}

func TestVisibleStudentsTeacher(t *testing.T) {
	snapshot := sampleSnapshot()

	teacher := snapshot.Scope(Session{Role: RoleTeacher, UserID: 100})
	require.Equal(t, "Bee", teacher.AssignedSection)

	result := VisibleStudents(snapshot.Students, teacher, Filter{Section: "Owl"})
	require.Equal(t, []string{"Ana", "Dan"}, names(result), "teacher ignores the section selector")

	result = VisibleStudents(snapshot.Students, teacher, Filter{Search: "dan"})
	require.Equal(t, []string{"Dan"}, names(result))
}

func TestVisibleStudentsTeacherWithoutSectionIsEmpty(t *testing.T) {
	snapshot := sampleSnapshot()
	teacher := snapshot.Scope(Session{Role: RoleTeacher, UserID: 101})
	require.Empty(t, teacher.AssignedSection)

	for _, term := range []string{"", "a", "S1"} {
		require.Empty(t, VisibleStudents(snapshot.Students, teacher, Filter{Search: term, Section: SectionAll}))
	}
}

func TestVisibleStudentsStudentRole(t *testing.T) {
	snapshot := sampleSnapshot()

	student := snapshot.Scope(Session{Role: RoleStudent, UserID: 10})
	require.NotNil(t, student.SectionID)
	require.Equal(t, []string{"Ana", "Dan"}, names(VisibleStudents(snapshot.Students, student, Filter{Section: SectionAll})))

	loner := snapshot.Scope(Session{Role: RoleStudent, UserID: 11})
	require.Nil(t, loner.SectionID)
	require.Equal(t, []string{"Ben"}, names(VisibleStudents(snapshot.Students, loner, Filter{})))

}

func TestVisibleStudentsStudentMovedSinceTokenIssued(t *testing.T) {
	snapshot := NewSnapshot(
		[]Section{{ID: 1, Name: "Bee"}, {ID: 2, Name: "Ant"}},
		[]Student{
			{ID: 5, FirstName: "Moved", LastName: "Kid", SectionID: uintPtr(2)},
			{ID: 6, FirstName: "Old", LastName: "Mate", SectionID: uintPtr(1)},
			{ID: 8, FirstName: "New", LastName: "Mate", SectionID: uintPtr(2)},
		},
		nil,
	)

	session := snapshot.Scope(Session{Role: RoleStudent, UserID: 5, SectionID: uintPtr(1)})
	require.NotNil(t, session.SectionID)
	require.Equal(t, uint(2), *session.SectionID)
	require.Equal(t, []string{"Moved", "New"}, names(VisibleStudents(snapshot.Students, session, Filter{})))

	unassigned := NewSnapshot(snapshot.Sections, []Student{{ID: 5, FirstName: "Moved"}, {ID: 6, FirstName: "Old", SectionID: uintPtr(1)}}, nil)
	session = unassigned.Scope(Session{Role: RoleStudent, UserID: 5, SectionID: uintPtr(1)})
	require.Nil(t, session.SectionID)
	require.Equal(t, []string{"Moved"}, names(VisibleStudents(unassigned.Students, session, Filter{})))

	unknown := snapshot.Scope(Session{Role: RoleStudent, UserID: 77, SectionID: uintPtr(1)})
	require.Equal(t, uint(1), *unknown.SectionID)
}

func TestVisibleRosterForParent(t *testing.T) {
	snapshot := NewSnapshot(
		[]Section{{ID: 1, Name: "Bee", TeacherID: uintPtr(100)}, {ID: 2, Name: "Owl", TeacherID: uintPtr(101)}},
		[]Student{
			{ID: 7, FirstName: "Own", LastName: "Child", ParentID: uintPtr(9), SectionID: uintPtr(1)},
			{ID: 8, FirstName: "Classmate", SectionID: uintPtr(1)},
			{ID: 9, FirstName: "Unrelated", LastName: "Child", SectionID: uintPtr(2)},
		},
		[]Teacher{{ID: 100, Username: "bee"}, {ID: 101, Username: "owl"}},
	)

	parent := snapshot.Scope(Session{Role: RoleParent, UserID: 9, SectionID: uintPtr(2)})
	require.Nil(t, parent.SectionID)
	require.Equal(t, []uint{1}, parent.ChildSections)
	require.Equal(t, []string{"Own"}, names(VisibleStudents(snapshot.Students, parent, Filter{})))

	teachers := VisibleTeachers(snapshot.Teachers, parent, "")
	require.Len(t, teachers, 1)
	require.Equal(t, "bee", teachers[0].Username)
	sections := VisibleSections(snapshot.Sections, parent)
	require.Len(t, sections, 1)
	require.Equal(t, "Bee", sections[0].Name)

	childless := snapshot.Scope(Session{Role: RoleParent, UserID: 42})
	require.Empty(t, VisibleStudents(snapshot.Students, childless, Filter{}))
	require.Empty(t, VisibleSections(snapshot.Sections, childless))
}

func TestVisibleTeachersAndSections(t *testing.T) {
	snapshot := sampleSnapshot()

	admin := Session{Role: RoleAdmin}
	require.Len(t, VisibleTeachers(snapshot.Teachers, admin, ""), 2)
	require.Len(t, VisibleTeachers(snapshot.Teachers, admin, "JLEE"), 1)
	require.Len(t, VisibleSections(snapshot.Sections, admin), 2)

	teacher := snapshot.Scope(Session{Role: RoleTeacher, UserID: 100})
	visible := VisibleTeachers(snapshot.Teachers, teacher, "")
	require.Len(t, visible, 1)
	require.Equal(t, uint(100), visible[0].ID)
	sections := VisibleSections(snapshot.Sections, teacher)
	require.Len(t, sections, 1)
	require.Equal(t, "Bee", sections[0].Name)

	student := snapshot.Scope(Session{Role: RoleStudent, UserID: 13})
	visible = VisibleTeachers(snapshot.Teachers, student, "")
	require.Len(t, visible, 1)
	require.Equal(t, "mrivera", visible[0].Username)
	require.Len(t, VisibleSections(snapshot.Sections, student), 1)
}

func TestSnapshotResolvesSectionNamesFromRows(t *testing.T) {
	snapshot := NewSnapshot(
		[]Section{{ID: 1, Name: "Renamed"}},
		[]Student{
			{ID: 1, SectionID: uintPtr(1), SectionName: "Stale"},
			{ID: 2, SectionID: uintPtr(42), SectionName: "Ghost"},
		},
		nil,
	)

	require.Equal(t, "Renamed", snapshot.Students[0].SectionName)
	require.Empty(t, snapshot.Students[1].SectionName)
	require.Equal(t, 1, snapshot.Sections[0].StudentCount)
}

func TestSummarize(t *testing.T) {
	snapshot := sampleSnapshot()
	summary := Summarize(snapshot.Students, snapshot.Sections)

	require.Equal(t, 4, summary.Total)
	require.Equal(t, 3, summary.Active)
	require.Equal(t, 1, summary.Inactive)
	require.Equal(t, 1, summary.Unassigned)
	require.Len(t, summary.Sections, 2)
	require.Equal(t, 2, summary.Sections[0].Students)
	require.Equal(t, 1, summary.Sections[1].Students)
}
