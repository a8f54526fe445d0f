package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// JournalOptions configures NewJournal.
type JournalOptions struct {
	// Units restricts the entries to these systemd units. Empty reads
	// everything.
	Units []string
	// Command is the journalctl binary, "journalctl" when empty.
	Command string
	// PollInterval bounds each wait for new entries of the sd-journal
	// reader, 500ms when zero.
	PollInterval time.Duration
	Log     zerolog.Logger
}

// Journal follows the systemd journal through journalctl, starting at its
// tail, with priority info or more important.
type Journal struct {
	feed *feed
	cmd  *exec.Cmd
	out  io.ReadCloser
	log  zerolog.Logger
}

// JournalArgs returns the journalctl arguments used for units.
func JournalArgs(units []string) []string {
	args := []string{"--follow", "--lines=0", "--output=json", "--priority=info"}
	for _, u := range units {
		args = append(args, "--unit="+u)
	}
	return args
}

func NewJournal(opts JournalOptions) (*Journal, error) {
	bin := opts.Command
	if bin == "" {
		bin = "journalctl"
	}
	cmd := exec.Command(bin, JournalArgs(opts.Units)...)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, bin, err)
	}
	j := newJournal(out, opts.Log)
	j.cmd = cmd
	return j, nil
}

func newJournal(out io.ReadCloser, log zerolog.Logger) *Journal {
	j := &Journal{feed: newFeed(256), out: out, log: log.With().Str("component", "source.journal").Logger()}
	go j.scan()
	return j
}

func (j *Journal) scan() {
	defer j.feed.finish()
	sc := bufio.NewScanner(j.out)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		e, err := DecodeJournalEntry(sc.Bytes())
		if err != nil {
			j.log.Warn().Err(err).Msg("skipping undecodable journal entry")
			continue
		}
		if !j.feed.push(item{entry: e}) {
			return
		}
	}
	err := sc.Err()
	if j.cmd != nil {
		if werr := j.cmd.Wait(); err == nil {
			err = werr
		}
	}
	select {
	case <-j.feed.stop:
		return
	default:
	}
	if err != nil {
		j.feed.push(item{err: fmt.Errorf("%w: journalctl: %v", ErrSourceUnavailable, err)})
		return
	}
	j.feed.push(item{err: fmt.Errorf("%w: journalctl exited", ErrSourceUnavailable)})
}

func (j *Journal) Next(ctx context.Context) (Entry, error) { return j.feed.next(ctx) }

// Close terminates journalctl.
func (j *Journal) Close() error {
	j.feed.signal()
	if j.cmd != nil && j.cmd.Process != nil {
		_ = j.cmd.Process.Kill()
	}
	_ = j.out.Close()
	<-j.feed.done
	return nil
}

// DecodeJournalEntry decodes one line of `journalctl --output=json`.
// Binary MESSAGE fields, serialized as arrays of bytes, are decoded too.
func DecodeJournalEntry(b []byte) (Entry, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return Entry{}, err
	}
	msg, err := journalField(raw["MESSAGE"])
	if err != nil {
		return Entry{}, fmt.Errorf("MESSAGE: %w", err)
	}
	unit, _ := journalField(raw["_SYSTEMD_UNIT"])
	var us uint64
	if ts, _ := journalField(raw["__REALTIME_TIMESTAMP"]); ts != "" {
		us, _ = strconv.ParseUint(ts, 10, 64)
	}
	return journalEntry(msg, unit, us), nil
}

// journalEntry builds an entry from journal fields. realtime is in
// microseconds since the epoch, 0 when unknown.
func journalEntry(message, unit string, realtime uint64) Entry {
	e := Entry{Message: message, Unit: unit, Origin: "journal", Time: time.Now()}
	if realtime > 0 {
		e.Time = time.UnixMicro(int64(realtime))
	}
	return e
}

// JournalMatches returns the sd-journal matches equivalent to JournalArgs:
// matches on one field are alternatives, matches on different fields must
// all hold.
func JournalMatches(units []string) []string {
	var out []string
	for _, u := range units {
		out = append(out, "_SYSTEMD_UNIT="+u)
	}
	for p := 0; p <= 6; p++ {
		out = append(out, "PRIORITY="+strconv.Itoa(p))
	}
	return out
}

func journalField(v json.RawMessage) (string, error) {
	if len(v) == 0 || string(v) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, nil
	}
	var bs []byte
	var ints []int
	if err := json.Unmarshal(v, &ints); err != nil {
		return "", err
	}
	for _, i := range ints {
		if i < 0 || i > 255 {
			return "", fmt.Errorf("byte value %d out of range", i)
		}
		bs = append(bs, byte(i))
	}
	return string(bs), nil
}
