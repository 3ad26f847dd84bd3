// Package export renders fetched attendance lists as downloadable files. It
// only ever sees data already loaded from the backend; an empty list is a
// user-facing "nothing to export", never an empty file.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"attendclient/internal/api"
)

// ErrNoRecords means there is nothing to export yet.
var ErrNoRecords = errors.New("nothing to export")

const markedAtLayout = "2006-01-02 15:04:05"

// Filename returns the download name for an export: attendance_<id>_<ISO>.csv
func Filename(id string, now time.Time) string {
	return fmt.Sprintf("attendance_%s_%s.csv", id, now.UTC().Format(time.RFC3339))
}

// WriteCSV writes the student view: Subject,Marked At. encoding/csv handles
// the double-quote escaping for values containing commas or quotes.
func WriteCSV(w io.Writer, records []api.Record) error {
	if len(records) == 0 {
		return ErrNoRecords
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Subject", "Marked At"}); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write([]string{r.Subject, r.MarkedAt.Format(markedAtLayout)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTeacherCSV writes the teacher view, which also names the student.
func WriteTeacherCSV(w io.Writer, records []api.Record) error {
	if len(records) == 0 {
		return ErrNoRecords
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Student Name", "Roll Number", "Subject", "Marked At"}); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write([]string{r.StudentName, r.RollNo, r.Subject, r.MarkedAt.Format(markedAtLayout)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
