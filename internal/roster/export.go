package roster

import (
	"encoding/csv"
	"io"
	"sort"
	"strings"
)

// Placeholders used when a student field is missing from an export row.
const (
	NoName           = "No Name"
	NoSection        = "Unassigned"
	NoStudentCode    = "N/A"
	csvHeaderID      = "ID"
	csvHeaderName    = "Student Name"
	csvHeaderSection = "Section"
)

// Row is one flattened export line.
type Row struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Section string `json:"section"`
}

// Header returns the column titles shared by every export format.
func Header() []string {
	return []string{csvHeaderID, csvHeaderName, csvHeaderSection}
}

// Values returns the row as ordered column values.
func (r Row) Values() []string {
	return []string{r.ID, r.Name, r.Section}
}

// BuildRows flattens students into export rows, keeping input order.
func BuildRows(students []Student) []Row {
	rows := make([]Row, 0, len(students))
	for _, student := range students {
		row := Row{ID: student.Code, Name: NoName, Section: student.SectionName}
		if student.FirstName != "" && student.LastName != "" {
			row.Name = FullName(student.FirstName, student.LastName)
		}
		if row.Section == "" {
			row.Section = NoSection
		}
		if row.ID == "" {
			row.ID = NoStudentCode
		}
		rows = append(rows, row)
	}
	return rows
}

// WriteCSV serialises rows with the ID,Student Name,Section header. Fields
// containing the delimiter, quotes or line breaks are quoted.
func WriteCSV(w io.Writer, rows []Row) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header()); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write(row.Values()); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// SortByName orders students by last name then first name, case-insensitive.
// The input slice is not modified.
func SortByName(students []Student) []Student {
	sorted := append([]Student(nil), students...)
	sort.SliceStable(sorted, func(i, j int) bool {
		li, lj := strings.ToLower(sorted[i].LastName), strings.ToLower(sorted[j].LastName)
		if li != lj {
			return li < lj
		}
		return strings.ToLower(sorted[i].FirstName) < strings.ToLower(sorted[j].FirstName)
	})
	return sorted
}
