package attendance

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"classattend/internal/model"
)

// CSVTimeLayout is how marked_at appears in exports.
const CSVTimeLayout = "2006-01-02 15:04:05"

// ExportCSV writes attendance records with a header row. Missing student details become "N/A".
func ExportCSV(w io.Writer, records []model.Attendance) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Name", "Email", "Student ID", "Time Marked"}); err != nil {
		return err
	}
	for _, a := range records {
		name, email, matric := "N/A", "N/A", "N/A"
		if p := a.Student; p != nil {
			name = orNA(p.FullName)
			if p.Email != "" {
				email = p.Email
			}
			matric = orNA(p.MatricNo)
		}
		if err := cw.Write([]string{name, email, matric, a.MarkedAt.UTC().Format(CSVTimeLayout)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSVFilename names an export after the lecture's course and date.
func CSVFilename(l model.Lecture) string {
	code := strings.ReplaceAll(strings.TrimSpace(l.CourseCode), " ", "_")
	if code == "" {
		code = "lecture"
	}
	return fmt.Sprintf("attendance_%s_%s.csv", code, l.ScheduledAt.UTC().Format("2006-01-02"))
}

func orNA(s *string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return "N/A"
	}
	return *s
}
