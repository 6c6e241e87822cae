// Package runstore records scrape run history in a local sqlite database
// so failed runs can be audited after the fact.
package runstore

import (
	"context"
	"database/sql"
	"time"

	_ "embed"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

const (
	OutcomeRunning   = "running"
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

type Store struct {
	db *sql.DB
}

func NewStore(database *sql.DB) Store {
	return Store{db: database}
}

type Run struct {
	ID              int64
	Platform        string
	StartedAt       time.Time
	FinishedAt      time.Time
	AuthAttempts    int
	StudentsScraped int
	Outcome         string
	Error           string
}

func (s Store) Begin(ctx context.Context, platform string, startedAt time.Time) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`insert into scrape_run (platform, started_at, outcome) values (?, ?, ?)`,
		platform, startedAt.Unix(), OutcomeRunning,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

type FinishRequest struct {
	RunID           int64
	FinishedAt      time.Time
	AuthAttempts    int
	StudentsScraped int
	Outcome         string
	Error           string
}

func (s Store) Finish(ctx context.Context, req FinishRequest) error {
	var errText sql.NullString
	if req.Error != "" {
		errText = sql.NullString{String: req.Error, Valid: true}
	}
	_, err := s.db.ExecContext(
		ctx,
		`update scrape_run
		set finished_at = ?, auth_attempts = ?, students_scraped = ?, outcome = ?, error = ?
		where id = ?`,
		req.FinishedAt.Unix(), req.AuthAttempts, req.StudentsScraped,
		req.Outcome, errText, req.RunID,
	)
	return err
}

func (s Store) Recent(ctx context.Context, platform string, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`select id, platform, started_at, finished_at, auth_attempts, students_scraped, outcome, error
		from scrape_run
		where platform = ?
		order by started_at desc
		limit ?`,
		platform, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started int64
		var finished sql.NullInt64
		var errText sql.NullString
		err := rows.Scan(
			&r.ID, &r.Platform, &started, &finished,
			&r.AuthAttempts, &r.StudentsScraped, &r.Outcome, &errText,
		)
		if err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(started, 0)
		if finished.Valid {
			r.FinishedAt = time.Unix(finished.Int64, 0)
		}
		r.Error = errText.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LastSuccess reports the start time of the most recent succeeded run for
// the platform, or the zero time when none exists.
func (s Store) LastSuccess(ctx context.Context, platform string) (time.Time, error) {
	row := s.db.QueryRowContext(
		ctx,
		`select started_at from scrape_run
		where platform = ? and outcome = ?
		order by started_at desc
		limit 1`,
		platform, OutcomeSucceeded,
	)
	var started int64
	err := row.Scan(&started)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(started, 0), nil
}
