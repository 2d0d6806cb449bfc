package roster

// SectionLoad reports how full a section is within the visible set.
type SectionLoad struct {
	SectionID   uint
	Name        string
	Students    int
	MaxCapacity int
}

// Summary aggregates the dashboard cards for a visible student set.
type Summary struct {
	Total      int
	Active     int
	Inactive   int
	Unassigned int
	Sections   []SectionLoad
}

// Summarize counts the visible students, split by status and section. Only
// the given sections are reported, in their input order.
func Summarize(students []Student, sections []Section) Summary {
	summary := Summary{Total: len(students)}
	perSection := make(map[string]int, len(sections))
	for _, student := range students {
		if student.Active {
			summary.Active++
		} else {
			summary.Inactive++
		}
		if student.SectionName == "" {
			summary.Unassigned++
			continue
		}
		perSection[student.SectionName]++
	}

	summary.Sections = make([]SectionLoad, 0, len(sections))
	for _, section := range sections {
		summary.Sections = append(summary.Sections, SectionLoad{
			SectionID:   section.ID,
			Name:        section.Name,
			Students:    perSection[section.Name],
			MaxCapacity: section.MaxCapacity,
		})
	}
	return summary
}
