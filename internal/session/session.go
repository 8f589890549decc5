// Package session runs the record and test workflows over a loaded test
// database: cases are executed one at a time, in suite order, and progress
// is written as plain text.
package session

import (
	"context"
	"io"
	"log/slog"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/regress/internal/harness"
	"github.com/roach88/regress/internal/history"
	"github.com/roach88/regress/internal/testdb"
)

// Executor runs one case. *harness.Driver implements it.
type Executor interface {
	Execute(ctx context.Context, source string, stdin []string, capture bool) (*harness.Result, error)
}

// RunRecorder persists finished runs. *history.Store implements it.
type RunRecorder interface {
	SaveRun(ctx context.Context, run history.Run, cases []history.CaseRecord) error
}

// Session binds a database to the executor and output used by Record and
// Run. The zero values of the optional fields are usable.
type Session struct {
	DB       *testdb.Database
	Layout   testdb.Layout
	Executor Executor

	// Comparator defaults to harness.DefaultComparator when zero.
	Comparator harness.Comparator

	// Out receives progress text. Nil discards it.
	Out io.Writer

	Logger *slog.Logger

	// SkipEvents leaves cases that expect events untouched and reports
	// them as skipped.
	SkipEvents bool

	// ForceCapture records events even for cases that never had any.
	ForceCapture bool

	// History, when set, receives every completed run.
	History RunRecorder
	IDs     history.IDGenerator
	Now     func() time.Time
}

func (s *Session) out() io.Writer {
	if s.Out == nil {
		return io.Discard
	}
	return s.Out
}

func (s *Session) printer() *message.Printer {
	return message.NewPrinter(language.English)
}

func (s *Session) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}

func (s *Session) comparator() harness.Comparator {
	if s.Comparator == (harness.Comparator{}) {
		return harness.DefaultComparator
	}
	return s.Comparator
}

func (s *Session) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Session) newID() string {
	if s.IDs == nil {
		return history.UUIDv7Generator{}.Generate()
	}
	return s.IDs.Generate()
}

// skipped reports whether c is left out because event capture is disabled.
func (s *Session) skipped(c *testdb.Case) bool {
	return s.SkipEvents && c.CapturesEvents()
}
