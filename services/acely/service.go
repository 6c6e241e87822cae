// Package acely scrapes per-student SAT analytics out of the Acely admin
// console and pushes them to the shared datastore.
package acely

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"classlens-backend/lib/authflow"
	"classlens-backend/lib/browser"
	"classlens-backend/lib/runstore"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("classlens.services.acely")

const (
	platformName       = "acely"
	defaultBaseURL     = "https://app.acely.ai"
	signInPath         = "/sign-in"
	adminConsolePath   = "/team/admin-console"
	studentsTable      = "acely_students"
	pageSourceScript   = "document.documentElement.outerHTML"
	defaultStepWait    = time.Second * 3
	defaultRunInterval = time.Hour * 24
)

var manageUsersLocators = []browser.Locator{
	{Name: "manage users tab by exact text", XPath: "//button[text()='Manage Users']"},
	{Name: "manage users tab by role", XPath: "//button[@role='tab' and contains(text(), 'Manage Users')]"},
	{Name: "manage users tab by partial text", XPath: "//button[contains(text(), 'Manage Users')]"},
}

// Authenticator establishes a logged-in browser session on the console.
type Authenticator interface {
	Authenticate(ctx context.Context, cfg authflow.SessionConfig) authflow.Result
}

// Uploader writes rows into a datastore table, merging on conflict.
type Uploader interface {
	Upsert(ctx context.Context, table, onConflict string, rows any) error
}

type Config struct {
	Identity authflow.Identity
	Headless bool
	// BaseUrl overrides the production console origin, mainly for tests.
	BaseUrl string
	// TargetEmails restricts scraping to these students. Empty scrapes the
	// whole roster.
	TargetEmails []string
	// SnapshotDir receives a JSON dump of each run. Empty disables snapshots.
	SnapshotDir string
	StepWait    time.Duration
	RunInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseUrl == "" {
		c.BaseUrl = defaultBaseURL
	}
	if c.StepWait <= 0 {
		c.StepWait = defaultStepWait
	}
	if c.RunInterval <= 0 {
		c.RunInterval = defaultRunInterval
	}
	return c
}

type Service struct {
	auth     Authenticator
	uploader Uploader
	runs     *runstore.Store
	clock    authflow.Clock
	cfg      Config
}

// NewService wires the scraper together. uploader and runs may be nil to
// disable uploading and run bookkeeping respectively.
func NewService(auth Authenticator, uploader Uploader, runs *runstore.Store, cfg Config) *Service {
	return &Service{
		auth:     auth,
		uploader: uploader,
		runs:     runs,
		clock:    authflow.SystemClock(),
		cfg:      cfg.withDefaults(),
	}
}

type Summary struct {
	AttemptsUsed int
	Students     []StudentData
	Missing      []string
	Uploaded     int
	SnapshotPath string
}

// Run performs one full scrape: authenticate, walk the roster, extract each
// dashboard, upload and snapshot the results.
func (s *Service) Run(ctx context.Context) (Summary, error) {
	ctx, span := tracer.Start(ctx, "acely:Run")
	defer span.End()

	started := s.clock.Now()
	var runID int64
	if s.runs != nil {
		var err error
		runID, err = s.runs.Begin(ctx, platformName, started)
		if err != nil {
			slog.WarnContext(ctx, "record run start", "err", err)
		}
	}

	summary, err := s.run(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(
		attribute.Int("auth_attempts", summary.AttemptsUsed),
		attribute.Int("students_scraped", len(summary.Students)),
	)

	if s.runs != nil && runID != 0 {
		outcome := runstore.OutcomeSucceeded
		var errText string
		if err != nil {
			outcome = runstore.OutcomeFailed
			errText = err.Error()
		}
		finishErr := s.runs.Finish(ctx, runstore.FinishRequest{
			RunID:           runID,
			FinishedAt:      s.clock.Now(),
			AuthAttempts:    summary.AttemptsUsed,
			StudentsScraped: len(summary.Students),
			Outcome:         outcome,
			Error:           errText,
		})
		if finishErr != nil {
			slog.WarnContext(ctx, "record run finish", "err", finishErr)
		}
	}

	return summary, err
}

func (s *Service) run(ctx context.Context) (Summary, error) {
	var summary Summary

	result := s.auth.Authenticate(ctx, authflow.SessionConfig{
		Identity:        s.cfg.Identity,
		Headless:        s.cfg.Headless,
		EntryURL:        s.cfg.BaseUrl + signInPath,
		VerificationURL: s.cfg.BaseUrl + adminConsolePath,
		StepWait:        s.cfg.StepWait,
	})
	summary.AttemptsUsed = result.AttemptsUsed
	if result.Outcome != authflow.OutcomeAuthenticated {
		if result.Err != nil {
			return summary, fmt.Errorf("authenticate: %s: %w", result.Outcome, result.Err)
		}
		return summary, fmt.Errorf("authenticate: %s", result.Outcome)
	}
	session := result.Session
	defer session.Quit()

	roster, err := s.discoverRoster(ctx, session)
	if err != nil {
		return summary, err
	}
	targets, missing := FilterRoster(roster, s.cfg.TargetEmails)
	summary.Missing = missing
	for _, email := range missing {
		slog.WarnContext(ctx, "student not on roster", "email", email)
	}

	for _, entry := range targets {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		data, err := s.scrapeStudent(ctx, session, entry)
		if err != nil {
			slog.WarnContext(ctx, "scrape student", "email", entry.Email, "err", err)
			continue
		}
		summary.Students = append(summary.Students, data)

		if s.uploader != nil {
			err := s.uploader.Upsert(ctx, studentsTable, "email", []Row{TransformRow(data)})
			if err != nil {
				slog.WarnContext(ctx, "upload student", "email", entry.Email, "err", err)
				continue
			}
			summary.Uploaded++
		}
	}

	if s.cfg.SnapshotDir != "" && len(summary.Students) > 0 {
		path, err := WriteSnapshot(s.cfg.SnapshotDir, s.clock.Now(), summary.Students)
		if err != nil {
			slog.WarnContext(ctx, "write snapshot", "err", err)
		} else {
			summary.SnapshotPath = path
		}
	}

	return summary, nil
}

// discoverRoster opens the Manage Users tab of the admin console and parses
// the student table off the rendered page.
func (s *Service) discoverRoster(ctx context.Context, session browser.Session) ([]RosterEntry, error) {
	ctx, span := tracer.Start(ctx, "acely:discoverRoster")
	defer span.End()

	err := session.Navigate(ctx, s.cfg.BaseUrl+adminConsolePath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "navigate to admin console")
		return nil, err
	}
	if err := s.clock.Sleep(ctx, s.cfg.StepWait); err != nil {
		return nil, err
	}

	clicked := false
	for _, loc := range manageUsersLocators {
		candidates, err := session.FindCandidates(ctx, loc)
		if err != nil {
			continue
		}
		for _, el := range candidates {
			visible, err := session.IsVisible(ctx, el)
			if err != nil || !visible {
				continue
			}
			if err := session.Click(ctx, el); err != nil {
				continue
			}
			clicked = true
			break
		}
		if clicked {
			break
		}
	}
	if !clicked {
		err := fmt.Errorf("manage users tab not found on admin console")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := s.clock.Sleep(ctx, s.cfg.StepWait); err != nil {
		return nil, err
	}

	doc, err := s.pageDocument(ctx, session)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read roster page")
		return nil, err
	}
	roster := ParseRoster(doc)
	span.SetAttributes(attribute.Int("roster_size", len(roster)))
	return roster, nil
}

func (s *Service) scrapeStudent(ctx context.Context, session browser.Session, entry RosterEntry) (StudentData, error) {
	ctx, span := tracer.Start(ctx, "acely:scrapeStudent")
	defer span.End()
	span.SetAttributes(attribute.String("email", entry.Email))

	dashboardURL, err := s.resolveURL(entry.DashboardURL)
	if err != nil {
		return StudentData{}, err
	}
	if err := session.Navigate(ctx, dashboardURL); err != nil {
		return StudentData{}, err
	}
	if err := s.clock.Sleep(ctx, s.cfg.StepWait); err != nil {
		return StudentData{}, err
	}

	location, err := session.Location(ctx)
	if err == nil && !strings.Contains(location, "/student-dashboard/") {
		return StudentData{}, fmt.Errorf("unexpected location after opening dashboard: %s", location)
	}

	doc, err := s.pageDocument(ctx, session)
	if err != nil {
		return StudentData{}, err
	}

	entry.DashboardURL = dashboardURL
	return StudentData{
		RosterEntry: entry,
		Data:        ExtractDashboard(doc),
	}, nil
}

func (s *Service) pageDocument(ctx context.Context, session browser.Session) (*goquery.Document, error) {
	var source string
	err := session.RunScript(ctx, pageSourceScript, &source)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(source))
}

func (s *Service) resolveURL(href string) (string, error) {
	base, err := url.Parse(s.cfg.BaseUrl)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

// Daemon runs scheduled scrapes until ctx is cancelled.
func (s *Service) Daemon(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := s.Run(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "scheduled acely scrape", "err", err)
			}
		}
	}
}
