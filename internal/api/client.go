// Package api is the client for the remote attendance backend. The backend
// owns every business rule (who may log in, which codes are live, what counts
// as a duplicate); this client only shapes requests, attaches the bearer
// credential and translates failures into the error taxonomy the front ends
// show.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"attendclient/internal/metrics"
	"attendclient/internal/session"
)

// Client talks to the attendance backend over REST.
type Client struct {
	http     *resty.Client
	sessions *session.Store
	log      *zap.Logger
}

// New builds a client bound to the given backend. Every request carries the
// session's bearer token when one exists; any 401 clears the session before
// the error reaches the caller.
func New(baseURL string, timeout time.Duration, sessions *session.Store, log *zap.Logger) *Client {
	httpc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	httpc.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if token := sessions.Token(); token != "" {
			req.SetAuthToken(token)
		}
		return nil
	})

	return &Client{http: httpc, sessions: sessions, log: log}
}

// BaseURL reports where the client points, for health output.
func (c *Client) BaseURL() string { return c.http.BaseURL }

// LoginStudent authenticates a student by roll number and date of birth.
func (c *Client) LoginStudent(ctx context.Context, rollNo, dob string) (LoginResult, error) {
	var out LoginResult
	err := c.do(ctx, http.MethodPost, "/login/student",
		map[string]string{"roll_no": rollNo, "dob": dob}, &out)
	return out, err
}

// LoginTeacher authenticates a teacher by employee id and date of birth.
func (c *Client) LoginTeacher(ctx context.Context, employeeID, dob string) (LoginResult, error) {
	var out LoginResult
	err := c.do(ctx, http.MethodPost, "/login/teacher",
		map[string]string{"employee_id": employeeID, "dob": dob}, &out)
	return out, err
}

// LoginAdmin authenticates the administrator.
func (c *Client) LoginAdmin(ctx context.Context, userID, password string) (LoginResult, error) {
	var out LoginResult
	err := c.do(ctx, http.MethodPost, "/admin/login",
		map[string]string{"user_id": userID, "password": password}, &out)
	return out, err
}

// RegisterStudent submits a student registration for admin review.
func (c *Client) RegisterStudent(ctx context.Context, reg StudentRegistration) error {
	return c.do(ctx, http.MethodPost, "/register/student", reg, nil)
}

// RegisterTeacher submits a teacher registration for admin review.
func (c *Client) RegisterTeacher(ctx context.Context, reg TeacherRegistration) error {
	return c.do(ctx, http.MethodPost, "/register/teacher", reg, nil)
}

// GenerateOTP asks the backend to issue a code for one class session. The
// code and its expiry are server-assigned.
func (c *Client) GenerateOTP(ctx context.Context, employeeID, subject string, durationMinutes int) (IssuedOTP, error) {
	var out IssuedOTP
	err := c.do(ctx, http.MethodPost, "/teacher/generate-otp", map[string]any{
		"employee_id":      employeeID,
		"subject":          subject,
		"duration_minutes": durationMinutes,
	}, &out)
	return out, err
}

// CheckOTP fetches a code's live metadata. Advisory only: a good answer here
// is never authorization, the authoritative check happens on submission.
func (c *Client) CheckOTP(ctx context.Context, code string) (OTPInfo, error) {
	var out OTPInfo
	err := c.do(ctx, http.MethodGet, "/student/check-otp/"+code, nil, &out)
	if out.Code == "" {
		out.Code = code
	}
	return out, err
}

// ListOTPs returns the codes issued by a teacher, expired ones included.
func (c *Client) ListOTPs(ctx context.Context, employeeID string) ([]OTPInfo, error) {
	var out []OTPInfo
	err := c.do(ctx, http.MethodGet, "/teacher/view-otps/"+employeeID, nil, &out)
	return out, err
}

// MarkAttendance posts a signed attendance claim.
func (c *Client) MarkAttendance(ctx context.Context, sub Submission) (MarkResult, error) {
	var out MarkResult
	err := c.do(ctx, http.MethodPost, "/student/markAttendance", sub, &out)
	return out, err
}

// StudentAttendance lists a student's own records.
func (c *Client) StudentAttendance(ctx context.Context, rollNo string) ([]Record, error) {
	var out []Record
	err := c.do(ctx, http.MethodGet, "/student/view-attendance/"+rollNo, nil, &out)
	return out, err
}

// TeacherAttendance lists records marked against a teacher's codes.
func (c *Client) TeacherAttendance(ctx context.Context, employeeID string) ([]Record, error) {
	var out []Record
	err := c.do(ctx, http.MethodGet, "/teacher/view-attendance/"+employeeID, nil, &out)
	return out, err
}

// StudentProfile fetches a student's master data.
func (c *Client) StudentProfile(ctx context.Context, rollNo string) (Profile, error) {
	var out Profile
	err := c.do(ctx, http.MethodGet, "/student/profile/"+rollNo, nil, &out)
	return out, err
}

// ListRegistrations returns one admin review bucket. role is "students" or
// "teachers" on the wire.
func (c *Client) ListRegistrations(ctx context.Context, status RegistrationStatus, role session.Role) ([]Registrant, error) {
	var out []Registrant
	err := c.do(ctx, http.MethodGet,
		fmt.Sprintf("/admin/list/%s/%ss", status, role), nil, &out)
	return out, err
}

// ApproveRegistration approves a pending registrant by its canonical id.
func (c *Client) ApproveRegistration(ctx context.Context, role session.Role, id string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/admin/approve/%s/%s", role, id), nil, nil)
}

// RejectRegistration rejects a pending registrant by its canonical id.
func (c *Client) RejectRegistration(ctx context.Context, role session.Role, id string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/admin/reject/%s/%s", role, id), nil, nil)
}

// Health probes the backend root.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/")
	if err != nil {
		return transportError(err)
	}
	if resp.StatusCode() >= 500 {
		return fmt.Errorf("attendance backend unhealthy: %s", resp.Status())
	}
	return nil
}

// do runs one request and maps the response onto the error taxonomy.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		c.log.Warn("backend request failed",
			zap.String("method", method), zap.String("path", path), zap.Error(err))
		return transportError(err)
	}

	switch {
	case resp.StatusCode() == http.StatusUnauthorized:
		// Global session-expiry rule: credentials are gone, back to login.
		c.sessions.Clear()
		metrics.SessionExpiries.Inc()
		return ErrSessionExpired
	case resp.StatusCode() >= 400:
		detail := decodeDetail(resp.Body())
		c.log.Debug("backend rejected request",
			zap.String("path", path), zap.Int("status", resp.StatusCode()), zap.String("detail", detail))
		return newAPIError(resp.StatusCode(), detail)
	}

	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// decodeDetail pulls the backend's own failure wording out of an error body.
// FastAPI nests it under "detail", either as a string or a list of field
// errors with msg entries.
func decodeDetail(body []byte) string {
	var withDetail struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &withDetail); err != nil || len(withDetail.Detail) == 0 {
		return ""
	}

	var asString string
	if err := json.Unmarshal(withDetail.Detail, &asString); err == nil {
		return asString
	}

	var asList []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(withDetail.Detail, &asList); err == nil && len(asList) > 0 {
		msg := asList[0].Msg
		for _, item := range asList[1:] {
			msg += ", " + item.Msg
		}
		return msg
	}
	return ""
}
