package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"attendclient/internal/api"
	"attendclient/internal/app"
	"attendclient/internal/attendance"
	"attendclient/internal/clock"
	"attendclient/internal/config"
	"attendclient/internal/export"
	"attendclient/internal/otp"
	signals "attendclient/internal/signal"
	"attendclient/internal/session"
)

const usage = `attendctl — command-line front end for the attendance backend

usage: attendctl <command> [flags]

commands:
  health                      probe the backend
  issue                       issue a class code (teacher)
  otps                        list currently valid codes (teacher)
  watch                       keep printing the active code list until Ctrl-C (teacher)
  check                       look up a code's subject and window (student)
  mark                        mark attendance with a code (student)
  records                     show attendance history (student or teacher)
  export                      write attendance history to a CSV or XLSX file
  register-student            submit a student registration
  register-teacher            submit a teacher registration
  registrations               list registrations by status (admin)
  approve | reject            review a pending registration (admin)
`

type cli struct {
	cfg      config.App
	log      *zap.Logger
	sessions *session.Store
	client   *api.Client
	tracker  *otp.Tracker
	flow     *attendance.Flow
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := config.Load()
	logger := app.NewLogger(cfg.Env)
	defer func() { _ = logger.Sync() }()

	if err := api.SetBackendTimezone(cfg.BackendTZ); err != nil {
		logger.Warn("unknown backend timezone, keeping default",
			zap.String("tz", cfg.BackendTZ), zap.Error(err))
	}

	sessions := session.NewStore()
	client := api.New(cfg.BackendURL, cfg.RequestTimeout, sessions, logger)

	var locator signals.Locator
	if cfg.HasStaticLocation() {
		locator = signals.StaticLocator{Lat: cfg.StaticLat, Lng: cfg.StaticLng}
	} else {
		locator = signals.NewIPLocator(cfg.GeoProviderURL, cfg.GeoTimeout)
	}

	c := &cli{
		cfg:      cfg,
		log:      logger,
		sessions: sessions,
		client:   client,
		tracker:  otp.NewTracker(client, clock.Real{}, logger),
		flow: attendance.NewFlow(client,
			signals.NewDeviceFingerprint(cfg.FingerprintCache), locator, cfg.GeoTimeout, logger),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := c.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (c *cli) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "health":
		if err := c.client.Health(ctx); err != nil {
			return err
		}
		fmt.Println("backend ok:", c.client.BaseURL())
		return nil
	case "issue":
		return c.issue(ctx, args)
	case "otps":
		return c.otps(ctx, args)
	case "watch":
		return c.watch(ctx, args)
	case "check":
		return c.check(ctx, args)
	case "mark":
		return c.mark(ctx, args)
	case "records":
		return c.records(ctx, args)
	case "export":
		return c.export(ctx, args)
	case "register-student":
		return c.registerStudent(ctx, args)
	case "register-teacher":
		return c.registerTeacher(ctx, args)
	case "registrations":
		return c.registrations(ctx, args)
	case "approve", "reject":
		return c.review(ctx, command, args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

// loginTeacher authenticates and binds the tracker for teacher commands.
func (c *cli) loginTeacher(ctx context.Context, employeeID, dob string) error {
	employeeID = strings.ToUpper(strings.TrimSpace(employeeID))
	result, err := c.client.LoginTeacher(ctx, employeeID, dob)
	if err != nil {
		return err
	}
	c.sessions.Begin(session.Session{
		Role: session.RoleTeacher, UserID: employeeID, Name: result.Name, Token: result.Token,
	})
	c.tracker.Bind(employeeID)
	return nil
}

func (c *cli) loginStudent(ctx context.Context, rollNo, dob string) (string, error) {
	rollNo = strings.ToUpper(strings.TrimSpace(rollNo))
	result, err := c.client.LoginStudent(ctx, rollNo, dob)
	if err != nil {
		return "", err
	}
	c.sessions.Begin(session.Session{
		Role: session.RoleStudent, UserID: rollNo, Name: result.Name, Token: result.Token,
	})
	return rollNo, nil
}

func (c *cli) loginAdmin(ctx context.Context, userID, password string) error {
	result, err := c.client.LoginAdmin(ctx, userID, password)
	if err != nil {
		return err
	}
	c.sessions.Begin(session.Session{
		Role: session.RoleAdmin, UserID: userID, Name: result.Name, Token: result.Token,
	})
	return nil
}

func (c *cli) issue(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("issue", flag.ExitOnError)
	id := fs.String("id", "", "employee id")
	dob := fs.String("dob", "", "date of birth (YYYY-MM-DD)")
	subject := fs.String("subject", "", "teaching subject ("+strings.Join(otp.Subjects, ", ")+")")
	minutes := fs.Int("minutes", 5, "validity window in minutes")
	_ = fs.Parse(args)

	if err := c.loginTeacher(ctx, *id, *dob); err != nil {
		return err
	}
	issued, err := c.tracker.Issue(ctx, *subject, *minutes)
	if err != nil {
		return err
	}
	fmt.Printf("code %s for %s, valid until %s\n",
		issued.Code, issued.Subject, issued.ValidUntil.Local().Format(time.RFC1123))
	return nil
}

func (c *cli) otps(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("otps", flag.ExitOnError)
	id := fs.String("id", "", "employee id")
	dob := fs.String("dob", "", "date of birth (YYYY-MM-DD)")
	_ = fs.Parse(args)

	if err := c.loginTeacher(ctx, *id, *dob); err != nil {
		return err
	}
	if err := c.tracker.Refresh(ctx); err != nil {
		return err
	}
	printOTPs(c.tracker.Active())
	return nil
}

// watch keeps the active list on screen, re-rendering as codes expire. A
// demonstration that expiry needs no refresh: entries disappear on their own.
func (c *cli) watch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	id := fs.String("id", "", "employee id")
	dob := fs.String("dob", "", "date of birth (YYYY-MM-DD)")
	interval := fs.Duration("interval", 2*time.Second, "render interval")
	_ = fs.Parse(args)

	if err := c.loginTeacher(ctx, *id, *dob); err != nil {
		return err
	}
	if err := c.tracker.Refresh(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	var lastCount = -1
	for {
		active := c.tracker.Active()
		if len(active) != lastCount {
			fmt.Printf("---- %s ----\n", time.Now().Format(time.TimeOnly))
			printOTPs(active)
			lastCount = len(active)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			c.tracker.Reset()
			return nil
		}
	}
}

func (c *cli) check(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	code := fs.String("code", "", "code to look up")
	_ = fs.Parse(args)

	info, err := c.flow.CheckCode(ctx, *code)
	if errors.Is(err, api.ErrNotFound) {
		fmt.Println("invalid or expired code")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("code %s is for %s, active %s until %s\n",
		info.Code, info.Subject,
		info.ValidFrom.Local().Format(time.RFC1123),
		info.ValidUntil.Local().Format(time.RFC1123))
	return nil
}

func (c *cli) mark(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("mark", flag.ExitOnError)
	roll := fs.String("roll", "", "roll number")
	dob := fs.String("dob", "", "date of birth (YYYY-MM-DD)")
	subject := fs.String("subject", "", "teaching subject")
	code := fs.String("code", "", "one-time code")
	_ = fs.Parse(args)

	rollNo, err := c.loginStudent(ctx, *roll, *dob)
	if err != nil {
		return err
	}
	record, err := c.flow.Submit(ctx, rollNo, *subject, *code)
	if err != nil {
		return err
	}
	fmt.Printf("attendance marked for %s at %s\n",
		record.Subject, record.MarkedAt.Local().Format(time.RFC1123))

	records, err := c.flow.Records(ctx, rollNo, attendance.Filter{})
	if err != nil {
		return err
	}
	fmt.Printf("%d records on file\n", len(records))
	return nil
}

func (c *cli) records(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("records", flag.ExitOnError)
	role := fs.String("role", "student", "student or teacher")
	id := fs.String("id", "", "roll number or employee id")
	dob := fs.String("dob", "", "date of birth (YYYY-MM-DD)")
	subject := fs.String("subject", "", "filter by subject")
	date := fs.String("date", "", "filter by date (YYYY-MM-DD)")
	month := fs.String("month", "", "filter by month (YYYY-MM)")
	_ = fs.Parse(args)

	filt := attendance.Filter{Subject: *subject, Date: *date, Month: *month}
	records, err := c.fetchRecords(ctx, *role, *id, *dob)
	if err != nil {
		return err
	}
	records = filt.Apply(records)
	if len(records) == 0 {
		fmt.Println("no attendance marked yet")
		return nil
	}
	for _, r := range records {
		line := r.Subject + "\t" + r.MarkedAt.Local().Format("2006-01-02 15:04:05")
		if r.RollNo != "" {
			line = r.RollNo + "\t" + line
		}
		fmt.Println(line)
	}
	return nil
}

func (c *cli) export(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	role := fs.String("role", "student", "student or teacher")
	id := fs.String("id", "", "roll number or employee id")
	dob := fs.String("dob", "", "date of birth (YYYY-MM-DD)")
	format := fs.String("format", "csv", "csv or xlsx")
	out := fs.String("out", "", "output path (default attendance_<id>_<timestamp>.<format>)")
	_ = fs.Parse(args)

	records, err := c.fetchRecords(ctx, *role, *id, *dob)
	if err != nil {
		return err
	}

	name := *out
	if name == "" {
		if *format == "xlsx" {
			name = export.XLSXFilename(*id, time.Now())
		} else {
			name = export.Filename(*id, time.Now())
		}
	}

	f, err := os.Create(name)
	if err != nil {
		return err
	}
	switch *format {
	case "xlsx":
		err = export.WriteXLSX(f, records)
	default:
		if *role == "teacher" {
			err = export.WriteTeacherCSV(f, records)
		} else {
			err = export.WriteCSV(f, records)
		}
	}
	closeErr := f.Close()
	if err != nil {
		// Don't leave an empty download behind.
		_ = os.Remove(name)
		return err
	}
	if closeErr != nil {
		return closeErr
	}
	fmt.Println("wrote", name)
	return nil
}

func (c *cli) fetchRecords(ctx context.Context, role, id, dob string) ([]api.Record, error) {
	switch role {
	case "teacher":
		if err := c.loginTeacher(ctx, id, dob); err != nil {
			return nil, err
		}
		sess, _ := c.sessions.Current()
		return c.client.TeacherAttendance(ctx, sess.UserID)
	default:
		rollNo, err := c.loginStudent(ctx, id, dob)
		if err != nil {
			return nil, err
		}
		return c.client.StudentAttendance(ctx, rollNo)
	}
}

func (c *cli) registerStudent(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register-student", flag.ExitOnError)
	var reg api.StudentRegistration
	fs.StringVar(&reg.FullName, "name", "", "full name")
	fs.StringVar(&reg.Email, "email", "", "email address")
	fs.StringVar(&reg.Phone, "phone", "", "10-digit phone number")
	fs.StringVar(&reg.DOB, "dob", "", "date of birth (YYYY-MM-DD)")
	fs.StringVar(&reg.Gender, "gender", "", "gender")
	fs.StringVar(&reg.Address, "address", "", "address")
	fs.StringVar(&reg.RollNo, "roll", "", "roll number")
	fs.StringVar(&reg.Department, "department", "", "department")
	fs.StringVar(&reg.Course, "course", "", "course")
	fs.IntVar(&reg.Semester, "semester", 1, "semester")
	fs.StringVar(&reg.Section, "section", "", "section")
	_ = fs.Parse(args)

	if reg.FullName == "" || reg.RollNo == "" || reg.Email == "" || reg.DOB == "" {
		return errors.New("name, roll, email and dob are required")
	}
	if err := c.client.RegisterStudent(ctx, reg); err != nil {
		return err
	}
	fmt.Println("registration request submitted, wait for admin approval")
	return nil
}

func (c *cli) registerTeacher(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register-teacher", flag.ExitOnError)
	var reg api.TeacherRegistration
	fs.StringVar(&reg.FullName, "name", "", "full name")
	fs.StringVar(&reg.Email, "email", "", "email address")
	fs.StringVar(&reg.Phone, "phone", "", "10-digit phone number")
	fs.StringVar(&reg.DOB, "dob", "", "date of birth (YYYY-MM-DD)")
	fs.StringVar(&reg.Gender, "gender", "", "gender")
	fs.StringVar(&reg.Address, "address", "", "address")
	fs.StringVar(&reg.EmployeeID, "id", "", "employee id")
	fs.StringVar(&reg.Subject, "subject", "", "teaching subject")
	_ = fs.Parse(args)

	if reg.FullName == "" || reg.EmployeeID == "" || reg.Email == "" || reg.DOB == "" {
		return errors.New("name, id, email and dob are required")
	}
	if err := c.client.RegisterTeacher(ctx, reg); err != nil {
		return err
	}
	fmt.Println("registration request submitted, wait for admin approval")
	return nil
}

func (c *cli) registrations(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("registrations", flag.ExitOnError)
	admin := fs.String("admin", "", "admin user id")
	password := fs.String("password", "", "admin password")
	role := fs.String("role", "student", "student or teacher")
	status := fs.String("status", "pending", "pending, approved or rejected")
	_ = fs.Parse(args)

	if err := c.loginAdmin(ctx, *admin, *password); err != nil {
		return err
	}
	list, err := c.client.ListRegistrations(ctx, api.RegistrationStatus(*status), session.Role(*role))
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Printf("no %s %ss\n", *status, *role)
		return nil
	}
	for _, reg := range list {
		fmt.Printf("%s\t%s\t%s\n", reg.ID(), reg.FullName, reg.Email)
	}
	return nil
}

func (c *cli) review(ctx context.Context, action string, args []string) error {
	fs := flag.NewFlagSet(action, flag.ExitOnError)
	admin := fs.String("admin", "", "admin user id")
	password := fs.String("password", "", "admin password")
	role := fs.String("role", "student", "student or teacher")
	target := fs.String("target", "", "roll number (student) or employee id (teacher)")
	_ = fs.Parse(args)

	if *target == "" {
		return errors.New("target is required")
	}
	if err := c.loginAdmin(ctx, *admin, *password); err != nil {
		return err
	}

	var err error
	if action == "approve" {
		err = c.client.ApproveRegistration(ctx, session.Role(*role), *target)
	} else {
		err = c.client.RejectRegistration(ctx, session.Role(*role), *target)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s %sd\n", *target, action)
	return nil
}

func printOTPs(active []otp.OTP) {
	if len(active) == 0 {
		fmt.Println("no active codes")
		return
	}
	for _, o := range active {
		fmt.Printf("%s\t%s\tvalid until %s\n",
			o.Code, o.Subject, o.ValidUntil.Local().Format(time.TimeOnly))
	}
}
