//go:build linux && cgo && sdjournal

package source

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/sdjournal"
)

// SDJournalSupported reports whether NewSDJournal is available in this
// build.
const SDJournalSupported = true

// SDJournal reads the systemd journal through libsystemd, starting at its
// tail, with the same filtering as Journal.
type SDJournal struct {
	feed *feed
	j    *sdjournal.Journal
	wait time.Duration
}

// NewSDJournal opens the local journal.
func NewSDJournal(opts JournalOptions) (*SDJournal, error) {
	j, err := sdjournal.NewJournal()
	if err != nil {
		return nil, fmt.Errorf("%w: sd-journal: %v", ErrSourceUnavailable, err)
	}
	for _, m := range JournalMatches(opts.Units) {
		if err := j.AddMatch(m); err != nil {
			_ = j.Close()
			return nil, fmt.Errorf("%w: sd-journal match %s: %v", ErrSourceUnavailable, m, err)
		}
	}
	if err := j.SeekTail(); err != nil {
		_ = j.Close()
		return nil, fmt.Errorf("%w: sd-journal seek: %v", ErrSourceUnavailable, err)
	}
	// SeekTail points after the last entry; step back so Next yields only
	// new ones.
	if _, err := j.Previous(); err != nil {
		_ = j.Close()
		return nil, fmt.Errorf("%w: sd-journal seek: %v", ErrSourceUnavailable, err)
	}

	s := &SDJournal{feed: newFeed(256), j: j, wait: opts.PollInterval}
	if s.wait <= 0 {
		s.wait = 500 * time.Millisecond
	}
	log := opts.Log.With().Str("component", "source.sdjournal").Logger()
	go s.read(func(err error) { log.Warn().Err(err).Msg("skipping unreadable journal entry") })
	return s, nil
}

func (s *SDJournal) read(warn func(error)) {
	defer s.feed.finish()
	for {
		select {
		case <-s.feed.stop:
			return
		default:
		}
		n, err := s.j.Next()
		if err != nil {
			s.feed.push(item{err: fmt.Errorf("%w: sd-journal: %v", ErrSourceUnavailable, err)})
			return
		}
		if n == 0 {
			s.j.Wait(s.wait)
			continue
		}
		je, err := s.j.GetEntry()
		if err != nil {
			warn(err)
			continue
		}
		e := journalEntry(je.Fields[sdjournal.SD_JOURNAL_FIELD_MESSAGE],
			je.Fields[sdjournal.SD_JOURNAL_FIELD_SYSTEMD_UNIT], je.RealtimeTimestamp)
		if !s.feed.push(item{entry: e}) {
			return
		}
	}
}

func (s *SDJournal) Next(ctx context.Context) (Entry, error) { return s.feed.next(ctx) }

// Close stops reading, within one poll interval, and releases the journal.
func (s *SDJournal) Close() error {
	s.feed.signal()
	<-s.feed.done
	return s.j.Close()
}
