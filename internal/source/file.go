package source

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hpcloud/tail"
	"github.com/rs/zerolog"
)

// FileOptions configures NewFile.
type FileOptions struct {
	// FromStart reads the files from the beginning and stops at their end
	// instead of following them.
	FromStart bool
	Log       zerolog.Logger
}

// File follows one or more log files, surviving rotations.
type File struct {
	feed  *feed
	tails []*tail.Tail
	log   zerolog.Logger
}

// NewFile opens every path. All paths must exist.
func NewFile(paths []string, opts FileOptions) (*File, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no file to follow", ErrSourceUnavailable)
	}
	cfg := tail.Config{
		Location: &tail.SeekInfo{
			Offset: 0,
			Whence: io.SeekEnd,
		},
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	}
	if opts.FromStart {
		cfg.Location = nil
		cfg.Follow = false
		cfg.ReOpen = false
	}

	f := &File{feed: newFeed(256), log: opts.Log.With().Str("component", "source.file").Logger()}
	for _, p := range paths {
		t, err := tail.TailFile(p, cfg)
		if err != nil {
			f.stopTails()
			return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, p, err)
		}
		f.tails = append(f.tails, t)
	}
	go f.run()
	return f, nil
}

func (f *File) run() {
	defer f.feed.finish()
	merged := make(chan item)
	done := make(chan struct{})
	for _, t := range f.tails {
		go func(t *tail.Tail) {
			defer func() { done <- struct{}{} }()
			for line := range t.Lines {
				it := item{entry: Entry{Message: line.Text, Origin: t.Filename, Time: line.Time}}
				if line.Err != nil {
					f.log.Warn().Str("file", t.Filename).Err(line.Err).Msg("tail error")
					continue
				}
				if it.entry.Time.IsZero() {
					it.entry.Time = time.Now()
				}
				select {
				case merged <- it:
				case <-f.feed.stop:
					return
				}
			}
		}(t)
	}
	running := len(f.tails)
	for running > 0 {
		select {
		case it := <-merged:
			if !f.feed.push(it) {
				f.drain(done, running)
				return
			}
		case <-done:
			running--
		}
	}
}

// drain waits for the per-file goroutines after a stop.
func (f *File) drain(done chan struct{}, running int) {
	for ; running > 0; running-- {
		<-done
	}
}

func (f *File) stopTails() {
	for _, t := range f.tails {
		_ = t.Stop()
		t.Cleanup()
	}
}

func (f *File) Next(ctx context.Context) (Entry, error) { return f.feed.next(ctx) }

// Close stops following the files.
func (f *File) Close() error {
	f.feed.signal()
	f.stopTails()
	<-f.feed.done
	return nil
}
