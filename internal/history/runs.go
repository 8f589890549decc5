package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Outcome is the verdict on one case in one run.
type Outcome string

const (
	OutcomePassed  Outcome = "passed"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Run summarizes one invocation of the suite.
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Passed     int       `json:"passed"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
}

// Total counts the cases that were executed and judged.
func (r Run) Total() int {
	return r.Passed + r.Failed
}

// CaseRecord is the outcome of one case within a run.
type CaseRecord struct {
	RunID      string   `json:"run_id,omitempty"`
	Suite      string   `json:"suite"`
	Case       string   `json:"case"`
	Outcome    Outcome  `json:"outcome"`
	ExitCode   *int     `json:"exit_code,omitempty"`
	Diagnostic []string `json:"diagnostic,omitempty"`
}

// ErrRunNotFound is returned by Cases for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SaveRun stores a run and its case outcomes in one transaction.
func (s *Store) SaveRun(ctx context.Context, run Run, cases []CaseRecord) error {
	if run.ID == "" {
		return fmt.Errorf("save run: empty run id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, passed, failed, skipped)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, formatTime(run.StartedAt), formatTime(run.FinishedAt), run.Passed, run.Failed, run.Skipped)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO case_results (run_id, seq, suite, name, outcome, exit_code, diagnostic)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare case insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range cases {
		var exitCode sql.NullInt64
		if c.ExitCode != nil {
			exitCode = sql.NullInt64{Int64: int64(*c.ExitCode), Valid: true}
		}
		_, err := stmt.ExecContext(ctx, run.ID, i, c.Suite, c.Case, string(c.Outcome), exitCode, strings.Join(c.Diagnostic, "\n"))
		if err != nil {
			return fmt.Errorf("insert case %s/%s: %w", c.Suite, c.Case, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", run.ID, err)
	}
	return nil
}

// Runs returns the most recent runs, newest first. A limit of zero or less
// returns every run.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, passed, failed, skipped
		FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished string
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Passed, &r.Failed, &r.Skipped); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if r.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Cases returns the case outcomes of one run in execution order.
func (s *Store) Cases(ctx context.Context, runID string) ([]CaseRecord, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs WHERE id = ?", runID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("query run %s: %w", runID, err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT suite, name, outcome, exit_code, diagnostic
		FROM case_results
		WHERE run_id = ?
		ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query cases of %s: %w", runID, err)
	}
	defer rows.Close()

	return scanCases(rows, runID)
}

// CaseHistory returns the latest outcomes of one case, newest first.
func (s *Store) CaseHistory(ctx context.Context, suite, name string, limit int) ([]CaseRecord, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.run_id, c.suite, c.name, c.outcome, c.exit_code, c.diagnostic
		FROM case_results c
		JOIN runs r ON r.id = c.run_id
		WHERE c.suite = ? AND c.name = ?
		ORDER BY r.started_at DESC, r.id DESC
		LIMIT ?
	`, suite, name, limit)
	if err != nil {
		return nil, fmt.Errorf("query history of %s/%s: %w", suite, name, err)
	}
	defer rows.Close()

	var records []CaseRecord
	for rows.Next() {
		rec, err := scanCase(rows, true)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate case history: %w", err)
	}
	return records, nil
}

func scanCases(rows *sql.Rows, runID string) ([]CaseRecord, error) {
	var records []CaseRecord
	for rows.Next() {
		rec, err := scanCase(rows, false)
		if err != nil {
			return nil, err
		}
		rec.RunID = runID
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cases: %w", err)
	}
	return records, nil
}

func scanCase(rows *sql.Rows, withRun bool) (CaseRecord, error) {
	var (
		rec        CaseRecord
		outcome    string
		exitCode   sql.NullInt64
		diagnostic string
		dest       []any
	)
	if withRun {
		dest = append(dest, &rec.RunID)
	}
	dest = append(dest, &rec.Suite, &rec.Case, &outcome, &exitCode, &diagnostic)

	if err := rows.Scan(dest...); err != nil {
		return CaseRecord{}, fmt.Errorf("scan case: %w", err)
	}

	rec.Outcome = Outcome(outcome)
	if exitCode.Valid {
		code := int(exitCode.Int64)
		rec.ExitCode = &code
	}
	if diagnostic != "" {
		rec.Diagnostic = strings.Split(diagnostic, "\n")
	}
	return rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
