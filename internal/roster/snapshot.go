package roster

// Section is a classroom grouping as seen by the derivation functions.
type Section struct {
	ID          uint
	Name        string
	Classroom   string
	Period      string
	MaxCapacity int
	SchoolYear  string
	Active      bool
	TeacherID   *uint
	// StudentCount is derived by NewSnapshot.
	StudentCount int
}

// Student is a roster row. SectionName is resolved by NewSnapshot from the
// referenced section and is never taken from a stored label.
type Student struct {
	ID             uint
	ParentID       *uint
	SectionID      *uint
	FirstName      string
	LastName       string
	Code           string
	Active         bool
	ProfilePicture string
	SectionName    string
}

// Teacher is a roster row. AssignedSection is resolved by NewSnapshot.
type Teacher struct {
	ID              uint
	Username        string
	FirstName       string
	LastName        string
	ProfilePicture  string
	Active          bool
	AssignedSection string
	AssignedID      *uint
}

// Snapshot is one consistent view of the roster store.
type Snapshot struct {
	Sections []Section
	Students []Student
	Teachers []Teacher
}

// NewSnapshot copies the fetched rows and derives section names, student
// counts and teacher assignments from them.
func NewSnapshot(sections []Section, students []Student, teachers []Teacher) Snapshot {
	byID := make(map[uint]int, len(sections))
	resolvedSections := make([]Section, len(sections))
	for i, section := range sections {
		section.StudentCount = 0
		resolvedSections[i] = section
		byID[section.ID] = i
	}

	resolvedStudents := make([]Student, len(students))
	for i, student := range students {
		student.SectionName = ""
		if student.SectionID != nil {
			if idx, ok := byID[*student.SectionID]; ok {
				student.SectionName = resolvedSections[idx].Name
				resolvedSections[idx].StudentCount++
			}
		}
		resolvedStudents[i] = student
	}

	resolvedTeachers := make([]Teacher, len(teachers))
	for i, teacher := range teachers {
		teacher.AssignedSection = ""
		teacher.AssignedID = nil
		for _, section := range resolvedSections {
			if section.TeacherID != nil && *section.TeacherID == teacher.ID {
				id := section.ID
				teacher.AssignedSection = section.Name
				teacher.AssignedID = &id
				break
			}
		}
		resolvedTeachers[i] = teacher
	}

	return Snapshot{
		Sections: resolvedSections,
		Students: resolvedStudents,
		Teachers: resolvedTeachers,
	}
}

// SectionByID returns the section with the given id.
func (s Snapshot) SectionByID(id uint) (Section, bool) {
	for _, section := range s.Sections {
		if section.ID == id {
			return section, true
		}
	}
	return Section{}, false
}

// TeacherByID returns the teacher with the given id.
func (s Snapshot) TeacherByID(id uint) (Teacher, bool) {
	for _, teacher := range s.Teachers {
		if teacher.ID == id {
			return teacher, true
		}
	}
	return Teacher{}, false
}

// StudentByID returns the student with the given id.
func (s Snapshot) StudentByID(id uint) (Student, bool) {
	for _, student := range s.Students {
		if student.ID == id {
			return student, true
		}
	}
	return Student{}, false
}

// Scope completes a session with the section context it needs for filtering:
// the teacher's assigned section name, the student's own section id or the
// sections of a parent's children. Section context always comes from the
// snapshot rows; a section id carried by the token is only used for a
// student the snapshot does not know.
func (s Snapshot) Scope(session Session) Session {
	switch session.Role {
	case RoleTeacher:
		session.AssignedSection = ""
		if teacher, ok := s.TeacherByID(session.UserID); ok {
			session.AssignedSection = teacher.AssignedSection
		}
	case RoleStudent:
		if student, ok := s.StudentByID(session.UserID); ok {
			session.SectionID = nil
			if student.SectionID != nil && student.SectionName != "" {
				id := *student.SectionID
				session.SectionID = &id
			}
		}
	case RoleParent:
		session.SectionID = nil
		session.ChildSections = nil
		seen := map[uint]bool{}
		for _, child := range s.ChildrenOf(session.UserID) {
			if child.SectionID == nil || child.SectionName == "" || seen[*child.SectionID] {
				continue
			}
			seen[*child.SectionID] = true
			session.ChildSections = append(session.ChildSections, *child.SectionID)
		}
	}
	return session
}

// ChildrenOf returns the students whose parent is the given user.
func (s Snapshot) ChildrenOf(parentID uint) []Student {
	var children []Student
	for _, student := range s.Students {
		if student.ParentID != nil && *student.ParentID == parentID {
			children = append(children, student)
		}
	}
	return children
}
