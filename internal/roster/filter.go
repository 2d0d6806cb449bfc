package roster

import "strings"

// Section filter values with special meaning.
const (
	SectionAll        = "all"
	SectionUnassigned = "unassigned"
)

// Filter holds the free-text search term and the section selector.
type Filter struct {
	Search  string
	Section string
}

// VisibleStudents returns the students that pass both the search predicate
// and the role-dependent section predicate, in input order.
func VisibleStudents(students []Student, session Session, filter Filter) []Student {
	result := make([]Student, 0, len(students))
	if session.Role == RoleTeacher && session.AssignedSection == "" {
		return result
	}

	needle := strings.ToLower(filter.Search)
	for _, student := range students {
		if matchesSearch(student, needle) && matchesSection(student, session, filter.Section) {
			result = append(result, student)
		}
	}
	return result
}

// VisibleIDs returns the ids of the given students.
func VisibleIDs(students []Student) []uint {
	ids := make([]uint, 0, len(students))
	for _, student := range students {
		ids = append(ids, student.ID)
	}
	return ids
}

// FullName joins first and last name, tolerating either being empty.
func FullName(first, last string) string {
	return first + " " + last
}

func matchesSearch(student Student, needle string) bool {
	if needle == "" {
		return true
	}
	name := strings.ToLower(FullName(student.FirstName, student.LastName))
	if strings.Contains(name, needle) {
		return true
	}
	return strings.Contains(strings.ToLower(student.Code), needle)
}

func matchesSection(student Student, session Session, selected string) bool {
	switch session.Role {
	case RoleAdmin:
		switch selected {
		case "", SectionAll:
			return true
		case SectionUnassigned:
			return student.SectionID == nil || student.SectionName == ""
		default:
			return student.SectionName == selected
		}
	case RoleTeacher:
		return session.AssignedSection != "" && student.SectionName == session.AssignedSection
	case RoleParent:
		return student.ParentID != nil && *student.ParentID == session.UserID
	default:
		if student.ID == session.UserID {
			return true
		}
		if session.SectionID == nil {
			return false
		}
		return student.SectionID != nil && *student.SectionID == *session.SectionID
	}
}

// VisibleTeachers returns the teachers a session may see. Admins get every
// teacher matching the search term (name or username), teachers only see
// themselves, parents see the teachers of their children's sections and
// everybody else sees the teacher of their own section.
func VisibleTeachers(teachers []Teacher, session Session, search string) []Teacher {
	needle := strings.ToLower(search)
	result := make([]Teacher, 0, len(teachers))
	for _, teacher := range teachers {
		if !teacherMatchesSearch(teacher, needle) {
			continue
		}
		switch session.Role {
		case RoleAdmin:
			result = append(result, teacher)
		case RoleTeacher:
			if teacher.ID == session.UserID {
				result = append(result, teacher)
			}
		case RoleParent:
			if teacher.AssignedID != nil && containsID(session.ChildSections, *teacher.AssignedID) {
				result = append(result, teacher)
			}
		default:
			if session.SectionID != nil && teacher.AssignedID != nil && *teacher.AssignedID == *session.SectionID {
				result = append(result, teacher)
			}
		}
	}
	return result
}

func teacherMatchesSearch(teacher Teacher, needle string) bool {
	if needle == "" {
		return true
	}
	name := strings.ToLower(FullName(teacher.FirstName, teacher.LastName))
	return strings.Contains(name, needle) || strings.Contains(strings.ToLower(teacher.Username), needle)
}

// VisibleSections returns the sections a session may see.
func VisibleSections(sections []Section, session Session) []Section {
	result := make([]Section, 0, len(sections))
	for _, section := range sections {
		switch session.Role {
		case RoleAdmin:
			result = append(result, section)
		case RoleTeacher:
			if session.AssignedSection != "" && section.Name == session.AssignedSection {
				result = append(result, section)
			}
		case RoleParent:
			if containsID(session.ChildSections, section.ID) {
				result = append(result, section)
			}
		default:
			if session.SectionID != nil && section.ID == *session.SectionID {
				result = append(result, section)
			}
		}
	}
	return result
}

func containsID(ids []uint, id uint) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
