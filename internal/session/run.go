package session

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/regress/internal/harness"
	"github.com/roach88/regress/internal/history"
	"github.com/roach88/regress/internal/testdb"
)

// CaseReport is the verdict on one case.
type CaseReport struct {
	Suite      string              `json:"suite"`
	Case       string              `json:"case"`
	Source     string              `json:"source"`
	Outcome    history.Outcome     `json:"outcome"`
	ExitCode   *int                `json:"exit_code,omitempty"`
	Diagnostic *harness.Diagnostic `json:"diagnostic,omitempty"`
}

// Report summarizes a test run.
type Report struct {
	RunID      string       `json:"run_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Cases      []CaseReport `json:"cases"`
	Passed     int          `json:"passed"`
	Failed     int          `json:"failed"`
	Skipped    int          `json:"skipped"`
}

// Total counts the executed cases. Skipped cases are not included.
func (r *Report) Total() int {
	return r.Passed + r.Failed
}

// Percent is the integer pass rate, rounded down. An empty run reports 0.
func (r *Report) Percent() int {
	if r.Total() == 0 {
		return 0
	}
	return 100 * r.Passed / r.Total()
}

// OK reports whether no case failed.
func (r *Report) OK() bool {
	return r.Failed == 0
}

// Run executes every target, compares it with its expectation and prints a
// per-case verdict followed by the summary line. Events are captured only
// for cases whose expectation has them.
//
// Mismatches are part of the report. An execution error aborts the run and
// is returned together with the partial report.
func (s *Session) Run(ctx context.Context, targets []testdb.Target) (*Report, error) {
	w := s.out()
	cmp := s.comparator()
	report := &Report{
		RunID:     s.newID(),
		StartedAt: s.now(),
		Cases:     []CaseReport{},
	}

	var suite *testdb.Suite
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if t.Suite != suite {
			suite = t.Suite
			fmt.Fprintf(w, "Testing suite %s\n", suite.Name)
		}
		fmt.Fprintf(w, "  Testing case %s  ", t.Case.Name)

		source := s.Layout.SourcePath(t)
		cr := CaseReport{Suite: t.Suite.Name, Case: t.Case.Name, Source: source}

		if s.skipped(t.Case) {
			fmt.Fprintln(w, "skipped")
			cr.Outcome = history.OutcomeSkipped
			report.Cases = append(report.Cases, cr)
			report.Skipped++
			continue
		}

		actual, err := s.Executor.Execute(ctx, source, t.Case.Stdin, t.Case.CapturesEvents())
		if err != nil {
			fmt.Fprintln(w, "ERROR")
			return report, fmt.Errorf("test %s: %w", t, err)
		}
		exitCode := actual.ExitCode
		cr.ExitCode = &exitCode

		if cmp.Matches(t.Case.Result, *actual) {
			fmt.Fprintln(w, "ok")
			cr.Outcome = history.OutcomePassed
			report.Passed++
		} else {
			diag := cmp.Explain(t.Case.Result, *actual)
			fmt.Fprintln(w, "FAILED")
			fmt.Fprintf(w, "File: %s\n", source)
			for _, line := range diag.Lines() {
				fmt.Fprintln(w, line)
			}
			cr.Outcome = history.OutcomeFailed
			cr.Diagnostic = &diag
			report.Failed++
		}
		s.logger().Debug("case finished", "case", t.String(), "outcome", cr.Outcome)
		report.Cases = append(report.Cases, cr)
	}

	report.FinishedAt = s.now()
	s.printSummary(report)
	s.saveHistory(ctx, report)

	return report, nil
}

func (s *Session) printSummary(r *Report) {
	p := s.printer()
	w := s.out()

	p.Fprintf(w, "Passed %d out of %d (%d%%)", r.Passed, r.Total(), r.Percent())
	if r.Skipped > 0 {
		p.Fprintf(w, ", skipped %d", r.Skipped)
	}
	fmt.Fprintln(w)
}

// saveHistory stores the run. A history failure never changes the verdict,
// so it is only logged.
func (s *Session) saveHistory(ctx context.Context, r *Report) {
	if s.History == nil {
		return
	}

	run := history.Run{
		ID:         r.RunID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Passed:     r.Passed,
		Failed:     r.Failed,
		Skipped:    r.Skipped,
	}
	records := make([]history.CaseRecord, 0, len(r.Cases))
	for _, c := range r.Cases {
		rec := history.CaseRecord{
			Suite:    c.Suite,
			Case:     c.Case,
			Outcome:  c.Outcome,
			ExitCode: c.ExitCode,
		}
		if c.Diagnostic != nil {
			rec.Diagnostic = c.Diagnostic.Lines()
		}
		records = append(records, rec)
	}

	if err := s.History.SaveRun(ctx, run, records); err != nil {
		s.logger().Warn("failed to save run history", "run", r.RunID, "error", err)
		return
	}
	s.logger().Debug("run saved to history", "run", r.RunID)
}
