package roster

import "errors"

// ErrUnknownSection is returned when a plan targets a section that is not in the snapshot.
var ErrUnknownSection = errors.New("section not found in roster")

// Plan is a single teacher transition. Release lists every section that
// currently references the teacher; Target is the section that will reference
// the teacher afterwards, or nil when the teacher becomes unassigned.
//
// A plan must be executed as one unit: releasing without assigning the target
// leaves the teacher-section graph in a state no caller asked for.
type Plan struct {
	TeacherID uint
	Release   []uint
	Target    *uint
	// Displaced is the teacher that previously owned Target, if any.
	Displaced *uint
}

// PlanReassignment moves teacherID to the target section, releasing every
// section that references the teacher today.
func PlanReassignment(sections []Section, teacherID, targetID uint) (Plan, error) {
	plan := Plan{TeacherID: teacherID}
	found := false
	for _, section := range sections {
		if section.TeacherID != nil && *section.TeacherID == teacherID && section.ID != targetID {
			plan.Release = append(plan.Release, section.ID)
		}
		if section.ID == targetID {
			found = true
			if section.TeacherID != nil && *section.TeacherID != teacherID {
				displaced := *section.TeacherID
				plan.Displaced = &displaced
			}
		}
	}
	if !found {
		return Plan{}, ErrUnknownSection
	}
	target := targetID
	plan.Target = &target
	return plan, nil
}

// PlanUnassignment releases every section that references teacherID.
func PlanUnassignment(sections []Section, teacherID uint) Plan {
	plan := Plan{TeacherID: teacherID}
	for _, section := range sections {
		if section.TeacherID != nil && *section.TeacherID == teacherID {
			plan.Release = append(plan.Release, section.ID)
		}
	}
	return plan
}

// Apply returns the sections as they look after the plan has been committed.
// The input slice is not modified.
func (p Plan) Apply(sections []Section) []Section {
	release := make(map[uint]struct{}, len(p.Release))
	for _, id := range p.Release {
		release[id] = struct{}{}
	}

	result := make([]Section, len(sections))
	for i, section := range sections {
		if _, ok := release[section.ID]; ok {
			section.TeacherID = nil
		}
		if section.TeacherID != nil && *section.TeacherID == p.TeacherID {
			section.TeacherID = nil
		}
		if p.Target != nil && section.ID == *p.Target {
			teacher := p.TeacherID
			section.TeacherID = &teacher
		}
		result[i] = section
	}
	return result
}
