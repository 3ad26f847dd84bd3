package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"attendclient/internal/api"
)

// XLSXFilename returns the spreadsheet download name for an export.
func XLSXFilename(id string, now time.Time) string {
	return fmt.Sprintf("attendance_%s_%s.xlsx", id, now.UTC().Format(time.RFC3339))
}

// WriteXLSX writes the teacher view as a spreadsheet, one sheet named
// Attendance with the same columns as the teacher CSV.
func WriteXLSX(w io.Writer, records []api.Record) error {
	if len(records) == 0 {
		return ErrNoRecords
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Attendance"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}

	header := []interface{}{"Student Name", "Roll Number", "Subject", "Marked At"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{r.StudentName, r.RollNo, r.Subject, r.MarkedAt.Format(markedAtLayout)}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	_, err = f.WriteTo(w)
	return err
}
