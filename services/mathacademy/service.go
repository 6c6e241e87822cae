package mathacademy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"classlens-backend/lib/authflow"
	"classlens-backend/lib/runstore"
	"classlens-backend/lib/textutil"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	platformName  = "mathacademy"
	studentsTable = "students"
)

// Uploader writes rows into a datastore table, merging on conflict.
type Uploader interface {
	Upsert(ctx context.Context, table, onConflict string, rows any) error
}

// Row mirrors the columns of the shared students table.
type Row struct {
	StudentID           string        `json:"student_id"`
	Name                string        `json:"name"`
	CourseName          string        `json:"course_name"`
	PercentComplete     string        `json:"percent_complete"`
	LastActivity        *string       `json:"last_activity"`
	DailyXP             string        `json:"daily_xp"`
	WeeklyXP            string        `json:"weekly_xp"`
	EstimatedCompletion string        `json:"estimated_completion,omitempty"`
	StudentURL          string        `json:"student_url"`
	DailyActivity       []DayActivity `json:"daily_activity"`
	Progress            []Unit        `json:"progress"`
}

type Config struct {
	Username string
	Password string
	// BaseUrl overrides the production origin, mainly for tests.
	BaseUrl string
	// TargetNames restricts scraping to students whose name matches one of
	// these, compared case- and punctuation-insensitively. Empty scrapes
	// everyone on the dashboard.
	TargetNames []string
	RunInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.RunInterval <= 0 {
		c.RunInterval = time.Hour * 24
	}
	return c
}

type Service struct {
	client   *Client
	uploader Uploader
	runs     *runstore.Store
	clock    authflow.Clock
	cfg      Config
}

// NewService wires the scraper together. uploader and runs may be nil to
// disable uploading and run bookkeeping respectively.
func NewService(client *Client, uploader Uploader, runs *runstore.Store, cfg Config) *Service {
	return &Service{
		client:   client,
		uploader: uploader,
		runs:     runs,
		clock:    authflow.SystemClock(),
		cfg:      cfg.withDefaults(),
	}
}

type Summary struct {
	Rows     []Row
	Missing  []string
	Uploaded int
}

// Run performs one full scrape: log in, walk the dashboard, pull each
// student's activity and progress pages, then upload.
func (s *Service) Run(ctx context.Context) (Summary, error) {
	ctx, span := tracer.Start(ctx, "mathacademy:Run")
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
	span.SetAttributes(attribute.Int("students_scraped", len(summary.Rows)))

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
			StudentsScraped: len(summary.Rows),
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

	err := s.client.Login(ctx, s.cfg.Username, s.cfg.Password)
	if err != nil {
		return summary, fmt.Errorf("login: %w", err)
	}

	doc, err := s.client.FetchDashboard(ctx)
	if err != nil {
		return summary, fmt.Errorf("fetch dashboard: %w", err)
	}
	students := ParseDashboard(doc)
	if len(students) == 0 {
		return summary, fmt.Errorf("no students found on dashboard")
	}

	targets, missing := filterStudents(students, s.cfg.TargetNames)
	summary.Missing = missing
	for _, name := range missing {
		slog.WarnContext(ctx, "student not on dashboard", "name", name)
	}

	for _, student := range targets {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		row, err := s.scrapeStudent(ctx, student)
		if err != nil {
			slog.WarnContext(ctx, "scrape student", "student_id", student.ID, "err", err)
			continue
		}
		summary.Rows = append(summary.Rows, row)

		if s.uploader != nil {
			err := s.uploader.Upsert(ctx, studentsTable, "student_id", []Row{row})
			if err != nil {
				slog.WarnContext(ctx, "upload student", "student_id", student.ID, "err", err)
				continue
			}
			summary.Uploaded++
		}
	}

	return summary, nil
}

func (s *Service) scrapeStudent(ctx context.Context, student Student) (Row, error) {
	ctx, span := tracer.Start(ctx, "mathacademy:scrapeStudent")
	defer span.End()
	span.SetAttributes(attribute.String("student_id", student.ID))

	activityDoc, err := s.client.FetchActivity(ctx, student.ID)
	if err != nil {
		return Row{}, err
	}
	activity := ParseActivity(activityDoc)

	progressDoc, err := s.client.FetchProgress(ctx, student.ID)
	if err != nil {
		return Row{}, err
	}
	progress := ParseProgress(progressDoc)

	row := Row{
		StudentID:           student.ID,
		Name:                student.Name,
		CourseName:          student.CourseName,
		PercentComplete:     student.PercentComplete,
		DailyXP:             student.DailyXP,
		WeeklyXP:            student.WeeklyXP,
		EstimatedCompletion: activity.EstimatedCompletion,
		StudentURL:          fmt.Sprintf("%s/students/%s/activity", s.client.BaseUrl, student.ID),
		DailyActivity:       activity.Days,
		Progress:            progress,
	}
	if at, ok := ParseLastActivity(student.LastActivity, s.clock.Now()); ok {
		iso := at.Format(time.RFC3339)
		row.LastActivity = &iso
	}
	return row, nil
}

// filterStudents keeps dashboard students whose flipped name matches one of
// the targets. Matching ignores case, punctuation and partial spellings the
// way roster names and console names tend to disagree.
func filterStudents(students []Student, targets []string) (kept []Student, missing []string) {
	if len(targets) == 0 {
		return students, nil
	}

	seen := make(map[string]bool, len(targets))
	keptIDs := make(map[string]bool, len(targets))
	for _, target := range targets {
		key := textutil.NormalizeName(target)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		found := false
		for _, s := range students {
			if !textutil.MatchName(s.Name, []string{key}) || keptIDs[s.ID] {
				continue
			}
			keptIDs[s.ID] = true
			kept = append(kept, s)
			found = true
			break
		}
		if !found {
			missing = append(missing, target)
		}
	}
	return kept, missing
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
				slog.ErrorContext(ctx, "scheduled mathacademy scrape", "err", err)
			}
		}
	}
}
