package acely

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"classlens-backend/lib/authflow"
	"classlens-backend/lib/browser"
	"classlens-backend/lib/runstore"
	"classlens-backend/lib/testutil"

	"github.com/stretchr/testify/require"
)

type stubClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStubClock() *stubClock {
	return &stubClock{now: time.Date(2026, time.March, 2, 6, 0, 0, 0, time.UTC)}
}

func (c *stubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stubClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return ctx.Err()
}

// consoleSession serves the roster page on the admin console and the
// dashboard fixture on every student dashboard URL.
type consoleSession struct {
	loc       string
	navigated []string
	clicked   int
	quit      bool
}

func (s *consoleSession) Navigate(ctx context.Context, url string) error {
	s.navigated = append(s.navigated, url)
	s.loc = url
	return nil
}

func (s *consoleSession) Location(ctx context.Context) (string, error) {
	return s.loc, nil
}

func (s *consoleSession) FindCandidates(ctx context.Context, loc browser.Locator) ([]browser.Element, error) {
	if strings.Contains(loc.XPath, "Manage Users") {
		return []browser.Element{"manage users tab"}, nil
	}
	return nil, nil
}

func (s *consoleSession) IsVisible(ctx context.Context, el browser.Element) (bool, error) {
	return true, nil
}

func (s *consoleSession) Click(ctx context.Context, el browser.Element) error {
	s.clicked++
	return nil
}

func (s *consoleSession) Type(ctx context.Context, el browser.Element, text string) error {
	return nil
}

func (s *consoleSession) RunScript(ctx context.Context, js string, out any) error {
	target, ok := out.(*string)
	if !ok {
		return nil
	}
	if strings.Contains(s.loc, "/student-dashboard/") {
		*target = dashboardHTML
	} else {
		*target = rosterHTML
	}
	return nil
}

func (s *consoleSession) Screenshot(ctx context.Context) ([]byte, error) {
	return nil, nil
}

func (s *consoleSession) Quit() error {
	s.quit = true
	return nil
}

type stubAuthenticator struct {
	result authflow.Result
	gotCfg authflow.SessionConfig
}

func (a *stubAuthenticator) Authenticate(ctx context.Context, cfg authflow.SessionConfig) authflow.Result {
	a.gotCfg = cfg
	return a.result
}

type recordingUploader struct {
	tables     []string
	conflicts  []string
	rows       []Row
	failEmails map[string]bool
}

func (u *recordingUploader) Upsert(ctx context.Context, table, onConflict string, rows any) error {
	batch := rows.([]Row)
	for _, row := range batch {
		if u.failEmails[row.Email] {
			return context.DeadlineExceeded
		}
	}
	u.tables = append(u.tables, table)
	u.conflicts = append(u.conflicts, onConflict)
	u.rows = append(u.rows, batch...)
	return nil
}

func newRunTestService(t *testing.T, auth Authenticator, uploader Uploader, cfg Config) (*Service, runstore.Store) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "acely",
		DbSchema: runstore.Schema,
	})
	t.Cleanup(cleanup)
	runs := runstore.NewStore(res.DB)

	svc := NewService(auth, uploader, &runs, cfg)
	svc.clock = newStubClock()
	return svc, runs
}

func TestRunScrapesWholeRoster(t *testing.T) {
	session := &consoleSession{}
	auth := &stubAuthenticator{result: authflow.Result{
		Outcome:      authflow.OutcomeAuthenticated,
		Session:      session,
		AttemptsUsed: 1,
	}}
	uploader := &recordingUploader{}
	svc, runs := newRunTestService(t, auth, uploader, Config{
		Identity: authflow.Identity{Email: "admin@school.test", Password: "pw"},
		BaseUrl:  "https://app.acely.test",
		StepWait: time.Second,
	})

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, "https://app.acely.test/sign-in", auth.gotCfg.EntryURL)
	require.Equal(t, "https://app.acely.test/team/admin-console", auth.gotCfg.VerificationURL)

	require.Len(t, summary.Students, 2)
	require.Empty(t, summary.Missing)
	require.Equal(t, 2, summary.Uploaded)
	require.True(t, session.quit)

	// relative dashboard hrefs resolve against the console origin
	require.Contains(t, session.navigated, "https://app.acely.test/student-dashboard/abc123")
	require.Contains(t, session.navigated, "https://app.acely.test/student-dashboard/def456")

	require.Equal(t, []string{studentsTable, studentsTable}, uploader.tables)
	require.Equal(t, []string{"email", "email"}, uploader.conflicts)
	require.Equal(t, "alice.johnson@school.test", uploader.rows[0].Email)

	history, err := runs.Recent(context.Background(), platformName, 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, runstore.OutcomeSucceeded, history[0].Outcome)
	require.Equal(t, 2, history[0].StudentsScraped)
	require.Equal(t, 1, history[0].AuthAttempts)
}

func TestRunFiltersToTargetStudents(t *testing.T) {
	session := &consoleSession{}
	auth := &stubAuthenticator{result: authflow.Result{
		Outcome: authflow.OutcomeAuthenticated,
		Session: session,
	}}
	uploader := &recordingUploader{}
	svc, _ := newRunTestService(t, auth, uploader, Config{
		Identity:     authflow.Identity{Email: "admin@school.test", Password: "pw"},
		BaseUrl:      "https://app.acely.test",
		TargetEmails: []string{"bob.lee@school.test", "nobody@school.test"},
		StepWait:     time.Second,
	})

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Students, 1)
	require.Equal(t, "bob.lee@school.test", summary.Students[0].Email)
	require.Equal(t, []string{"nobody@school.test"}, summary.Missing)
}

func TestRunRecordsAuthFailure(t *testing.T) {
	auth := &stubAuthenticator{result: authflow.Result{
		Outcome:      authflow.OutcomeExhaustedRetries,
		AttemptsUsed: 3,
	}}
	svc, runs := newRunTestService(t, auth, nil, Config{
		Identity: authflow.Identity{Email: "admin@school.test", Password: "pw"},
		BaseUrl:  "https://app.acely.test",
	})

	_, err := svc.Run(context.Background())
	require.Error(t, err)

	history, err := runs.Recent(context.Background(), platformName, 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, runstore.OutcomeFailed, history[0].Outcome)
	require.Equal(t, 3, history[0].AuthAttempts)
	require.Equal(t, 0, history[0].StudentsScraped)
}

func TestRunContinuesPastUploadFailures(t *testing.T) {
	session := &consoleSession{}
	auth := &stubAuthenticator{result: authflow.Result{
		Outcome: authflow.OutcomeAuthenticated,
		Session: session,
	}}
	uploader := &recordingUploader{failEmails: map[string]bool{"alice.johnson@school.test": true}}
	svc, _ := newRunTestService(t, auth, uploader, Config{
		Identity: authflow.Identity{Email: "admin@school.test", Password: "pw"},
		BaseUrl:  "https://app.acely.test",
	})

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Students, 2)
	require.Equal(t, 1, summary.Uploaded)
	require.Equal(t, "bob.lee@school.test", uploader.rows[0].Email)
}

func TestRunWritesSnapshot(t *testing.T) {
	session := &consoleSession{}
	auth := &stubAuthenticator{result: authflow.Result{
		Outcome: authflow.OutcomeAuthenticated,
		Session: session,
	}}
	svc, _ := newRunTestService(t, auth, nil, Config{
		Identity:    authflow.Identity{Email: "admin@school.test", Password: "pw"},
		BaseUrl:     "https://app.acely.test",
		SnapshotDir: t.TempDir(),
	})

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, summary.SnapshotPath)
	require.FileExists(t, summary.SnapshotPath)
}
