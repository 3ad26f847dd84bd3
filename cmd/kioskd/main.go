package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"attendclient/internal/api"
	"attendclient/internal/app"
	"attendclient/internal/attendance"
	"attendclient/internal/clock"
	"attendclient/internal/config"
	"attendclient/internal/export"
	"attendclient/internal/httpmiddleware"
	"attendclient/internal/otp"
	signals "attendclient/internal/signal"
	"attendclient/internal/session"
)

// kioskd is the local HTTP front end: it serves the student, teacher and
// admin dashboard actions on a LAN port and forwards everything to the remote
// attendance backend. No business rule lives here.
func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := app.NewLogger(cfg.Env)
	defer func() { _ = logger.Sync() }()

	if err := api.SetBackendTimezone(cfg.BackendTZ); err != nil {
		logger.Warn("unknown backend timezone, keeping default",
			zap.String("tz", cfg.BackendTZ), zap.Error(err))
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal("kiosk server failed", zap.Error(err))
	}
}

// server holds the wired client-side components behind the HTTP handlers.
type server struct {
	cfg      config.App
	log      *zap.Logger
	sessions *session.Store
	client   *api.Client
	tracker  *otp.Tracker
	flow     *attendance.Flow
}

func newServer(cfg config.App, logger *zap.Logger) *server {
	sessions := session.NewStore()
	client := api.New(cfg.BackendURL, cfg.RequestTimeout, sessions, logger)

	tracker := otp.NewTracker(client, clock.Real{}, logger)
	sessions.OnClear(tracker.Reset)

	var locator signals.Locator
	if cfg.HasStaticLocation() {
		locator = signals.StaticLocator{Lat: cfg.StaticLat, Lng: cfg.StaticLng}
	} else {
		locator = signals.NewIPLocator(cfg.GeoProviderURL, cfg.GeoTimeout)
	}
	fingerprints := signals.NewDeviceFingerprint(cfg.FingerprintCache)
	flow := attendance.NewFlow(client, fingerprints, locator, cfg.GeoTimeout, logger)

	return &server{
		cfg:      cfg,
		log:      logger,
		sessions: sessions,
		client:   client,
		tracker:  tracker,
		flow:     flow,
	}
}

func (s *server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(s.cfg.RateLimitPerMin, s.cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		if err := s.client.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "backend": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "backend": s.client.BaseURL()})
	})

	r.POST("/api/login", func(c *gin.Context) {
		var req struct {
			Role   string `json:"role" binding:"required"`
			UserID string `json:"user_id" binding:"required"`
			Secret string `json:"secret" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()
		userID := strings.ToUpper(strings.TrimSpace(req.UserID))
		var (
			result api.LoginResult
			err    error
			role   session.Role
		)
		switch session.Role(req.Role) {
		case session.RoleStudent:
			role = session.RoleStudent
			result, err = s.client.LoginStudent(ctx, userID, req.Secret)
		case session.RoleTeacher:
			role = session.RoleTeacher
			result, err = s.client.LoginTeacher(ctx, userID, req.Secret)
		case session.RoleAdmin:
			role = session.RoleAdmin
			result, err = s.client.LoginAdmin(ctx, req.UserID, req.Secret)
			userID = req.UserID
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "role must be student, teacher or admin"})
			return
		}
		if err != nil {
			httpError(c, err)
			return
		}

		s.sessions.Begin(session.Session{Role: role, UserID: userID, Name: result.Name, Token: result.Token})
		if role == session.RoleTeacher {
			s.tracker.Bind(userID)
			// Best effort: a cold kiosk still shows codes issued moments
			// earlier from another machine.
			if err := s.tracker.Refresh(ctx); err != nil {
				s.log.Warn("initial code refresh failed", zap.Error(err))
			}
		}
		c.JSON(http.StatusOK, gin.H{"message": result.Message, "role": role, "user_id": userID, "name": result.Name})
	})

	r.POST("/api/logout", func(c *gin.Context) {
		s.sessions.Clear()
		c.JSON(http.StatusOK, gin.H{"message": "logged out"})
	})

	r.POST("/api/register/student", func(c *gin.Context) {
		var reg api.StudentRegistration
		if err := c.ShouldBindJSON(&reg); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := s.client.RegisterStudent(c.Request.Context(), reg); err != nil {
			httpError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "registration request submitted"})
	})

	r.POST("/api/register/teacher", func(c *gin.Context) {
		var reg api.TeacherRegistration
		if err := c.ShouldBindJSON(&reg); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := s.client.RegisterTeacher(c.Request.Context(), reg); err != nil {
			httpError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "registration request submitted"})
	})

	teacher := r.Group("/api/teacher")

	teacher.POST("/otps", func(c *gin.Context) {
		if _, err := s.sessions.Require(session.RoleTeacher); err != nil {
			httpError(c, err)
			return
		}
		var req struct {
			Subject         string `json:"subject" binding:"required"`
			DurationMinutes int    `json:"duration_minutes" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		issued, err := s.tracker.Issue(c.Request.Context(), req.Subject, req.DurationMinutes)
		if err != nil {
			httpError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"otp":         issued.Code,
			"subject":     issued.Subject,
			"valid_till":  issued.ValidUntil,
			"active_otps": s.tracker.Active(),
		})
	})

	teacher.GET("/otps", func(c *gin.Context) {
		if _, err := s.sessions.Require(session.RoleTeacher); err != nil {
			httpError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"otps": s.tracker.Active()})
	})

	teacher.GET("/attendance", func(c *gin.Context) {
		sess, err := s.sessions.Require(session.RoleTeacher)
		if err != nil {
			httpError(c, err)
			return
		}
		records, err := s.client.TeacherAttendance(c.Request.Context(), sess.UserID)
		if err != nil {
			httpError(c, err)
			return
		}
		filt := attendance.Filter{Date: c.Query("date"), Month: c.Query("month")}
		c.JSON(http.StatusOK, gin.H{"records": filt.Apply(records)})
	})

	teacher.GET("/attendance.csv", func(c *gin.Context) {
		sess, err := s.sessions.Require(session.RoleTeacher)
		if err != nil {
			httpError(c, err)
			return
		}
		records, err := s.client.TeacherAttendance(c.Request.Context(), sess.UserID)
		if err != nil {
			httpError(c, err)
			return
		}
		serveExport(c, export.Filename(sess.UserID, time.Now()), "text/csv", func(buf *bytes.Buffer) error {
			return export.WriteTeacherCSV(buf, records)
		})
	})

	teacher.GET("/attendance.xlsx", func(c *gin.Context) {
		sess, err := s.sessions.Require(session.RoleTeacher)
		if err != nil {
			httpError(c, err)
			return
		}
		records, err := s.client.TeacherAttendance(c.Request.Context(), sess.UserID)
		if err != nil {
			httpError(c, err)
			return
		}
		serveExport(c, export.XLSXFilename(sess.UserID, time.Now()),
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			func(buf *bytes.Buffer) error {
				return export.WriteXLSX(buf, records)
			})
	})

	student := r.Group("/api/student")

	student.GET("/check/:code", func(c *gin.Context) {
		if _, err := s.sessions.Require(session.RoleStudent); err != nil {
			httpError(c, err)
			return
		}
		info, err := s.flow.CheckCode(c.Request.Context(), c.Param("code"))
		if err != nil {
			httpError(c, err)
			return
		}
		c.JSON(http.StatusOK, info)
	})

	student.POST("/mark", func(c *gin.Context) {
		sess, err := s.sessions.Require(session.RoleStudent)
		if err != nil {
			httpError(c, err)
			return
		}
		var req struct {
			Subject string `json:"subject"`
			Code    string `json:"otp"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		record, err := s.flow.Submit(c.Request.Context(), sess.UserID, req.Subject, req.Code)
		if err != nil {
			httpError(c, err)
			return
		}
		// The record list is reloaded from the backend rather than appended,
		// so the answer reflects what actually counts as marked.
		records, err := s.flow.Records(c.Request.Context(), sess.UserID, attendance.Filter{})
		if err != nil {
			s.log.Warn("record reload after submit failed", zap.Error(err))
		}
		c.JSON(http.StatusCreated, gin.H{"marked": record, "records": records})
	})

	student.GET("/attendance", func(c *gin.Context) {
		sess, err := s.sessions.Require(session.RoleStudent)
		if err != nil {
			httpError(c, err)
			return
		}
		filt := attendance.Filter{
			Subject: c.Query("subject"),
			Date:    c.Query("date"),
			Month:   c.Query("month"),
		}
		records, err := s.flow.Records(c.Request.Context(), sess.UserID, filt)
		if err != nil {
			httpError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
	})

	student.GET("/attendance.csv", func(c *gin.Context) {
		sess, err := s.sessions.Require(session.RoleStudent)
		if err != nil {
			httpError(c, err)
			return
		}
		records, err := s.flow.Records(c.Request.Context(), sess.UserID, attendance.Filter{})
		if err != nil {
			httpError(c, err)
			return
		}
		serveExport(c, export.Filename(sess.UserID, time.Now()), "text/csv", func(buf *bytes.Buffer) error {
			return export.WriteCSV(buf, records)
		})
	})

	student.GET("/profile", func(c *gin.Context) {
		sess, err := s.sessions.Require(session.RoleStudent)
		if err != nil {
			httpError(c, err)
			return
		}
		profile, err := s.client.StudentProfile(c.Request.Context(), sess.UserID)
		if err != nil {
			httpError(c, err)
			return
		}
		c.JSON(http.StatusOK, profile)
	})

	admin := r.Group("/api/admin")

	admin.GET("/registrations/:role", func(c *gin.Context) {
		if _, err := s.sessions.Require(session.RoleAdmin); err != nil {
			httpError(c, err)
			return
		}
		role, ok := reviewRole(c.Param("role"))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "role must be student or teacher"})
			return
		}
		status := api.RegistrationStatus(c.DefaultQuery("status", string(api.StatusPending)))
		list, err := s.client.ListRegistrations(c.Request.Context(), status, role)
		if err != nil {
			httpError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"registrations": list})
	})

	admin.POST("/:action/:role/:id", func(c *gin.Context) {
		if _, err := s.sessions.Require(session.RoleAdmin); err != nil {
			httpError(c, err)
			return
		}
		role, ok := reviewRole(c.Param("role"))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "role must be student or teacher"})
			return
		}
		var err error
		switch c.Param("action") {
		case "approve":
			err = s.client.ApproveRegistration(c.Request.Context(), role, c.Param("id"))
		case "reject":
			err = s.client.RejectRegistration(c.Request.Context(), role, c.Param("id"))
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "action must be approve or reject"})
			return
		}
		if err != nil {
			httpError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": c.Param("action") + "d"})
	})

	return r
}

func runHTTP(cfg config.App, logger *zap.Logger) error {
	s := newServer(cfg, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.KioskPort,
		Handler:      s.router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("kiosk listening", zap.String("addr", srv.Addr), zap.String("backend", cfg.BackendURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("forced shutdown", zap.Error(err))
	}
	s.tracker.Reset()
	return nil
}

// reviewRole maps a path segment onto the admin review roles.
func reviewRole(s string) (session.Role, bool) {
	switch s {
	case "student", "students":
		return session.RoleStudent, true
	case "teacher", "teachers":
		return session.RoleTeacher, true
	}
	return "", false
}

// serveExport renders an attachment, mapping an empty list onto a visible
// notice instead of an empty download.
func serveExport(c *gin.Context, filename, contentType string, write func(*bytes.Buffer) error) {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		if errors.Is(err, export.ErrNoRecords) {
			c.JSON(http.StatusConflict, gin.H{"error": export.ErrNoRecords.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

// httpError translates the client error taxonomy onto HTTP statuses.
func httpError(c *gin.Context, err error) {
	var (
		validation *attendance.ValidationError
		sigErr     *attendance.SignalError
		backendErr *api.Error
	)
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, api.ErrSessionExpired), errors.Is(err, session.ErrNotLoggedIn):
		status = http.StatusUnauthorized
	case errors.As(err, &validation),
		errors.Is(err, otp.ErrUnknownSubject),
		errors.Is(err, otp.ErrBadDuration):
		status = http.StatusBadRequest
	case errors.Is(err, otp.ErrIssueInFlight), errors.Is(err, attendance.ErrSubmissionInFlight):
		status = http.StatusConflict
	case errors.Is(err, api.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &sigErr):
		status = http.StatusInternalServerError
	case errors.As(err, &backendErr):
		status = backendErr.Status
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// CORS middleware for browser requests against the kiosk port.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}
