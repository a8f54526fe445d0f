package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"
)

const maxLineSize = 1 << 20

// Reader reads newline separated entries from an io.Reader (stdin, test
// fixtures). It returns io.EOF once r is exhausted.
type Reader struct {
	feed   *feed
	closer io.Closer
}

// NewReader starts reading r. origin is reported on every entry. If r is
// an io.Closer, Close closes it.
func NewReader(r io.Reader, origin string) *Reader {
	s := &Reader{feed: newFeed(64)}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	go s.scan(r, origin)
	return s
}

func (s *Reader) scan(r io.Reader, origin string) {
	defer s.feed.finish()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		e := Entry{Message: sc.Text(), Origin: origin, Time: time.Now()}
		if !s.feed.push(item{entry: e}) {
			return
		}
	}
	if err := sc.Err(); err != nil {
		s.feed.push(item{err: fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, origin, err)})
	}
}

func (s *Reader) Next(ctx context.Context) (Entry, error) { return s.feed.next(ctx) }

// Close stops delivering entries and closes the underlying reader. It does
// not wait for the scanning goroutine: a blocking descriptor such as a tty
// stdin is not woken up by close, so the goroutine exits on its next read.
func (s *Reader) Close() error {
	s.feed.signal()
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
