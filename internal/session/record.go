package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/regress/internal/testdb"
)

// Recorded is the outcome of recording one case.
type Recorded struct {
	Suite   string   `json:"suite"`
	Case    string   `json:"case"`
	Changes []string `json:"changes"`
}

// RecordReport lists what Record did.
type RecordReport struct {
	Recorded []Recorded `json:"recorded"`
	Skipped  []string   `json:"skipped"`
}

// Record executes every target and stores the observed behavior as its new
// expectation. Events are captured when the case already expects them or
// when ForceCapture is set.
//
// An execution error aborts the loop. Cases recorded before it keep their
// new expectation in memory; saving is up to the caller.
func (s *Session) Record(ctx context.Context, targets []testdb.Target) (*RecordReport, error) {
	w := s.out()
	report := &RecordReport{Recorded: []Recorded{}, Skipped: []string{}}

	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if s.skipped(t.Case) {
			fmt.Fprintf(w, "Skipping case %s (expects MIDI events)\n", t.Case.Name)
			report.Skipped = append(report.Skipped, t.String())
			continue
		}

		fmt.Fprintf(w, "Recording case %s\n", t.Case.Name)

		capture := t.Case.CapturesEvents() || s.ForceCapture
		res, err := s.Executor.Execute(ctx, s.Layout.SourcePath(t), t.Case.Stdin, capture)
		if err != nil {
			return report, fmt.Errorf("record %s: %w", t, err)
		}

		changes := s.DB.Record(t.Case, *res)
		if changes == nil {
			changes = []string{}
		}
		if len(changes) > 0 {
			fmt.Fprintf(w, "  changed: %s\n", strings.Join(changes, ", "))
		}
		s.logger().Debug("case recorded", "case", t.String(), "changes", changes)

		report.Recorded = append(report.Recorded, Recorded{
			Suite:   t.Suite.Name,
			Case:    t.Case.Name,
			Changes: changes,
		})
	}

	return report, nil
}
