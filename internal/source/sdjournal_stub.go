//go:build !(linux && cgo && sdjournal)

package source

import (
	"context"
	"fmt"
)

// SDJournalSupported reports whether NewSDJournal is available in this
// build. Build with -tags sdjournal, cgo and the libsystemd headers to
// enable it.
const SDJournalSupported = false

// SDJournal is unavailable in this build.
type SDJournal struct{}

// NewSDJournal always fails in this build.
func NewSDJournal(JournalOptions) (*SDJournal, error) {
	return nil, fmt.Errorf("%w: built without sd-journal support", ErrSourceUnavailable)
}

func (*SDJournal) Next(context.Context) (Entry, error) { return Entry{}, ErrSourceUnavailable }

func (*SDJournal) Close() error { return nil }
