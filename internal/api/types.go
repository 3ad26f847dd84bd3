package api

import (
	"fmt"
	"strings"
	"time"
)

// Time handles the backend's two timestamp renditions: RFC 3339 and the naive
// "2006-01-02 15:04:05" strings its CSV-facing handlers emit. Naive strings
// carry no offset; they are wall-clock in the backend's own zone and are
// parsed there, otherwise every expiry would land hours off.
type Time struct {
	time.Time
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// backendLocation interprets naive timestamps. The deployed backend runs in
// IST; SetBackendTimezone overrides the default.
var backendLocation = defaultBackendLocation()

func defaultBackendLocation() *time.Location {
	if loc, err := time.LoadLocation("Asia/Kolkata"); err == nil {
		return loc
	}
	// No tz database on this host; IST has no DST so a fixed offset is exact.
	return time.FixedZone("IST", 5*3600+30*60)
}

// SetBackendTimezone sets the zone naive backend timestamps are read in.
// Call once at startup, before any response is decoded.
func SetBackendTimezone(name string) error {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fmt.Errorf("backend timezone: %w", err)
	}
	backendLocation = loc
	return nil
}

func (t *Time) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339, s); err == nil {
		t.Time = parsed
		return nil
	}
	for _, layout := range naiveLayouts {
		if parsed, err := time.ParseInLocation(layout, s, backendLocation); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

func (t Time) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.UTC().Format(time.RFC3339) + `"`), nil
}

// IssuedOTP is the backend's answer to a generate request.
type IssuedOTP struct {
	Code       string `json:"otp"`
	Subject    string `json:"subject"`
	ValidUntil Time   `json:"valid_till"`
}

// OTPInfo is a code's live metadata, from check-otp or the teacher's list.
type OTPInfo struct {
	Code       string `json:"otp"`
	Subject    string `json:"subject"`
	ValidFrom  Time   `json:"start_time"`
	ValidUntil Time   `json:"end_time"`
}

// Submission is a signed attendance claim. VisitorID is the device
// fingerprint; both location fields are required before the claim is sent.
type Submission struct {
	RollNo    string  `json:"roll_no"`
	Subject   string  `json:"subject"`
	Code      string  `json:"otp"`
	VisitorID string  `json:"visitorId"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
}

// MarkResult confirms a successful submission.
type MarkResult struct {
	Message  string `json:"message"`
	MarkedAt Time   `json:"marked_at"`
}

// Record is one attendance event as either dashboard sees it.
type Record struct {
	StudentName string `json:"student_name,omitempty"`
	RollNo      string `json:"roll_no,omitempty"`
	Subject     string `json:"subject"`
	MarkedAt    Time   `json:"marked_at"`
}

// Profile is the student's own master data.
type Profile struct {
	RollNo     string `json:"roll_no"`
	FullName   string `json:"full_name"`
	Department string `json:"department"`
	Course     string `json:"course"`
	Semester   int    `json:"semester"`
	Section    string `json:"section"`
}

// LoginResult is what a login endpoint answers. Older backend deployments
// return only the message; Token and Name are then empty.
type LoginResult struct {
	Message string `json:"message"`
	Token   string `json:"token"`
	Name    string `json:"name"`
}

// StudentRegistration is a pending student sign-up.
type StudentRegistration struct {
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	DOB        string `json:"dob"`
	Gender     string `json:"gender"`
	Address    string `json:"address"`
	RollNo     string `json:"roll_no"`
	Department string `json:"department"`
	Course     string `json:"course"`
	Semester   int    `json:"semester"`
	Section    string `json:"section"`
}

// TeacherRegistration is a pending teacher sign-up.
type TeacherRegistration struct {
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	DOB        string `json:"dob"`
	Gender     string `json:"gender"`
	Address    string `json:"address"`
	EmployeeID string `json:"employee_id"`
	Subject    string `json:"subject"`
}

// Registrant is an entry in an admin review list. ID carries the canonical
// identity for the role: roll number for students, employee id for teachers.
type Registrant struct {
	RollNo     string `json:"roll_no,omitempty"`
	EmployeeID string `json:"employee_id,omitempty"`
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Department string `json:"department,omitempty"`
	Subject    string `json:"subject,omitempty"`
}

// ID returns the canonical identity for the registrant's role.
func (r Registrant) ID() string {
	if r.RollNo != "" {
		return r.RollNo
	}
	return r.EmployeeID
}

// RegistrationStatus is an admin review bucket.
type RegistrationStatus string

const (
	StatusPending  RegistrationStatus = "pending"
	StatusApproved RegistrationStatus = "approved"
	StatusRejected RegistrationStatus = "rejected"
)
