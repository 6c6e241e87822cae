package mathacademy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"classlens-backend/lib/runstore"
	"classlens-backend/lib/testutil"

	"github.com/stretchr/testify/require"
)

func newFakeConsole(t *testing.T, password string) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostFormValue("password") == password && r.PostFormValue("usernameOrEmail") != "" {
			http.Redirect(w, r, "/students", http.StatusFound)
			return
		}
		http.Redirect(w, r, "/login?error=1", http.StatusFound)
	})
	mux.HandleFunc("GET /login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>login page</body></html>"))
	})
	mux.HandleFunc("GET /students", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(dashboardHTML))
	})
	mux.HandleFunc("GET /students/{id}/activity", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(activityHTML))
	})
	mux.HandleFunc("GET /students/{id}/progress", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(progressHTML))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

type recordingUploader struct {
	tables    []string
	conflicts []string
	rows      []Row
}

func (u *recordingUploader) Upsert(ctx context.Context, table, onConflict string, rows any) error {
	batch := rows.([]Row)
	u.tables = append(u.tables, table)
	u.conflicts = append(u.conflicts, onConflict)
	u.rows = append(u.rows, batch...)
	return nil
}

func setupRunTest(t *testing.T, cfg Config) (*Service, *recordingUploader, runstore.Store) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "mathacademy",
		DbSchema: runstore.Schema,
	})
	t.Cleanup(cleanup)
	runs := runstore.NewStore(res.DB)

	client, err := NewClient(ClientOptions{BaseUrl: cfg.BaseUrl})
	require.NoError(t, err)

	uploader := &recordingUploader{}
	return NewService(client, uploader, &runs, cfg), uploader, runs
}

func TestLogin(t *testing.T) {
	server := newFakeConsole(t, "correct horse")
	client, err := NewClient(ClientOptions{BaseUrl: server.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	err = client.Login(ctx, "teacher@school.test", "wrong password")
	require.ErrorIs(t, err, InvalidCredentials)

	err = client.Login(ctx, "teacher@school.test", "correct horse")
	require.NoError(t, err)
}

func TestRunScrapesDashboard(t *testing.T) {
	server := newFakeConsole(t, "pw")
	svc, uploader, runs := setupRunTest(t, Config{
		Username: "teacher@school.test",
		Password: "pw",
		BaseUrl:  server.URL,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	summary, err := svc.Run(ctx)
	require.NoError(t, err)

	require.Len(t, summary.Rows, 2)
	require.Equal(t, 2, summary.Uploaded)
	require.Empty(t, summary.Missing)

	require.Equal(t, []string{studentsTable, studentsTable}, uploader.tables)
	require.Equal(t, []string{"student_id", "student_id"}, uploader.conflicts)

	alice := uploader.rows[0]
	require.Equal(t, "12345", alice.StudentID)
	require.Equal(t, "Alice Johnson", alice.Name)
	require.Equal(t, "Math Foundations II", alice.CourseName)
	require.Equal(t, "October 14, 2026", alice.EstimatedCompletion)
	require.NotNil(t, alice.LastActivity)
	require.Len(t, alice.DailyActivity, 2)
	require.Len(t, alice.Progress, 1)
	require.Contains(t, alice.StudentURL, "/students/12345/activity")

	history, err := runs.Recent(ctx, platformName, 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, runstore.OutcomeSucceeded, history[0].Outcome)
	require.Equal(t, 2, history[0].StudentsScraped)
}

func TestRunFiltersToTargetStudents(t *testing.T) {
	server := newFakeConsole(t, "pw")
	svc, uploader, _ := setupRunTest(t, Config{
		Username:    "teacher@school.test",
		Password:    "pw",
		BaseUrl:     server.URL,
		TargetNames: []string{"Bob Lee", "Carol Chen"},
	})

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Rows, 1)
	require.Equal(t, "67890", summary.Rows[0].StudentID)
	require.Equal(t, []string{"Carol Chen"}, summary.Missing)
	require.Len(t, uploader.rows, 1)
}

func TestRunRecordsLoginFailure(t *testing.T) {
	server := newFakeConsole(t, "pw")
	svc, _, runs := setupRunTest(t, Config{
		Username: "teacher@school.test",
		Password: "wrong",
		BaseUrl:  server.URL,
	})

	_, err := svc.Run(context.Background())
	require.ErrorIs(t, err, InvalidCredentials)

	history, err := runs.Recent(context.Background(), platformName, 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, runstore.OutcomeFailed, history[0].Outcome)
}
