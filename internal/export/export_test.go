package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"attendclient/internal/api"
)

func sampleRecords() []api.Record {
	return []api.Record{
		{
			StudentName: "Asha K",
			RollNo:      "21E001",
			Subject:     "EMT",
			MarkedAt:    api.Time{Time: time.Date(2025, 9, 1, 9, 5, 0, 0, time.UTC)},
		},
		{
			StudentName: `Ravi "RV" N`,
			RollNo:      "21E002",
			Subject:     "VLSI, lab",
			MarkedAt:    api.Time{Time: time.Date(2025, 9, 1, 10, 15, 0, 0, time.UTC)},
		},
	}
}

func TestFilename(t *testing.T) {
	now := time.Date(2025, 9, 1, 9, 5, 0, 0, time.UTC)
	assert.Equal(t, "attendance_21E001_2025-09-01T09:05:00Z.csv", Filename("21E001", now))
	assert.Equal(t, "attendance_EMP01_2025-09-01T09:05:00Z.xlsx", XLSXFilename("EMP01", now))
}

func TestWriteCSVStudentView(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRecords()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Subject", "Marked At"}, rows[0])
	assert.Equal(t, []string{"EMT", "2025-09-01 09:05:00"}, rows[1])
	// Comma inside the subject must survive the round trip.
	assert.Equal(t, []string{"VLSI, lab", "2025-09-01 10:15:00"}, rows[2])
}

func TestWriteTeacherCSVIncludesStudentColumns(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTeacherCSV(&buf, sampleRecords()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Student Name", "Roll Number", "Subject", "Marked At"}, rows[0])
	assert.Equal(t, `Ravi "RV" N`, rows[2][0], "embedded quotes must survive")
}

func TestEmptyListIsAnError(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, WriteCSV(&buf, nil), ErrNoRecords)
	assert.ErrorIs(t, WriteTeacherCSV(&buf, nil), ErrNoRecords)
	assert.ErrorIs(t, WriteXLSX(&buf, nil), ErrNoRecords)
	assert.Zero(t, buf.Len(), "an empty export must not produce a file")
}

func TestWriteXLSXRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sampleRecords()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Attendance"}, f.GetSheetList())

	rows, err := f.GetRows("Attendance")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Student Name", "Roll Number", "Subject", "Marked At"}, rows[0])
	assert.Equal(t, []string{"Asha K", "21E001", "EMT", "2025-09-01 09:05:00"}, rows[1])
}
