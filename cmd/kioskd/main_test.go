package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"attendclient/internal/api"
	"attendclient/internal/config"
)

// fakeBackend answers the endpoints the mark workflow touches and counts how
// often the record list is fetched.
type fakeBackend struct {
	attendanceFetches atomic.Int32
	marks             atomic.Int32
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login/student", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"message": "login successful", "token": "tok", "name": "Asha",
		})
	})
	mux.HandleFunc("/student/markAttendance", func(w http.ResponseWriter, r *http.Request) {
		b.marks.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"message":   "Attendance marked",
			"marked_at": "2025-09-01 09:05:00",
		})
	})
	mux.HandleFunc("/student/view-attendance/21E001", func(w http.ResponseWriter, r *http.Request) {
		b.attendanceFetches.Add(1)
		// Includes an older record the kiosk has never seen, so an answer
		// containing it can only come from this fetch.
		_, _ = w.Write([]byte(`[
			{"subject":"VLSI","marked_at":"2025-08-28 10:00:00"},
			{"subject":"EMT","marked_at":"2025-09-01 09:05:00"}
		]`))
	})
	return mux
}

func newTestRouter(t *testing.T, backendURL string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.App{
		Env:              "test",
		BackendURL:       backendURL,
		RequestTimeout:   5 * time.Second,
		GeoTimeout:       time.Second,
		StaticLat:        12.97,
		StaticLng:        77.59,
		FingerprintCache: filepath.Join(t.TempDir(), "device_id"),
		RateLimitPerMin:  1000,
	}
	return newServer(cfg, zap.NewNop()).router()
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestMarkAnswersWithReloadedRecordList(t *testing.T) {
	backend := &fakeBackend{}
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)
	router := newTestRouter(t, srv.URL)

	w := doJSON(t, router, http.MethodPost, "/api/login", map[string]string{
		"role": "student", "user_id": "21e001", "secret": "2003-01-01",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Zero(t, backend.attendanceFetches.Load())

	w = doJSON(t, router, http.MethodPost, "/api/student/mark", map[string]string{
		"subject": "EMT", "otp": "AB12CD",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, int32(1), backend.marks.Load())
	assert.Equal(t, int32(1), backend.attendanceFetches.Load(),
		"the record list must be refetched after marking")

	var resp struct {
		Records []api.Record `json:"records"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	// The answer mirrors the backend's list, older entries included. Nothing
	// is appended locally on top of it.
	require.Len(t, resp.Records, 2)
	assert.Equal(t, "VLSI", resp.Records[0].Subject)
	assert.Equal(t, "EMT", resp.Records[1].Subject)
}

func TestMarkRequiresStudentSession(t *testing.T) {
	backend := &fakeBackend{}
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)
	router := newTestRouter(t, srv.URL)

	w := doJSON(t, router, http.MethodPost, "/api/student/mark", map[string]string{
		"subject": "EMT", "otp": "AB12CD",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, backend.marks.Load())
}
