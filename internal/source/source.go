package source

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

// ErrSourceUnavailable is returned when a source cannot be opened or dies
// while being read.
var ErrSourceUnavailable = errors.New("log source unavailable")

// Entry is one log record.
type Entry struct {
	Message string
	Unit    string
	Origin  string
	Time    time.Time
}

// Source yields entries in arrival order. Next blocks until an entry is
// available, ctx ends, or the source is exhausted (io.EOF).
type Source interface {
	Next(ctx context.Context) (Entry, error)
	Close() error
}

type item struct {
	entry Entry
	err   error
}

// feed is the channel plumbing shared by the sources: a producer goroutine
// pushes items until stopped.
type feed struct {
	items chan item
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func newFeed(buffer int) *feed {
	return &feed{
		items: make(chan item, buffer),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// push delivers it unless the feed is stopping. It reports whether the
// producer should keep going.
func (f *feed) push(it item) bool {
	select {
	case f.items <- it:
		return true
	case <-f.stop:
		return false
	}
}

// finish is called by the producer when it returns.
func (f *feed) finish() {
	close(f.items)
	close(f.done)
}

func (f *feed) next(ctx context.Context) (Entry, error) {
	select {
	case it, ok := <-f.items:
		if !ok {
			return Entry{}, io.EOF
		}
		return it.entry, it.err
	case <-f.stop:
		return Entry{}, io.EOF
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	}
}

// signal tells the producer to stop without waiting for it.
func (f *feed) signal() {
	f.once.Do(func() { close(f.stop) })
}
