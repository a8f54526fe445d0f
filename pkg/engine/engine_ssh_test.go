package engine

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PhucNguyen204/logwarden/internal/pool"
	"github.com/PhucNguyen204/logwarden/internal/source"
	"github.com/PhucNguyen204/logwarden/pkg/action"
	"github.com/PhucNguyen204/logwarden/pkg/matches"
	"github.com/PhucNguyen204/logwarden/pkg/rule"
)

type banRecorder struct {
	mu   sync.Mutex
	bans []action.Args
}

func (b *banRecorder) ban(_ context.Context, args action.Args) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bans = append(b.bans, args)
	return nil
}

func (b *banRecorder) snapshot() []action.Args {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]action.Args(nil), b.bans...)
}

const sshFailFilter = `Failed password for (?:invalid user )?\S+ from (?P<ip><IP>) port <PORT>`

func sshLines(ip string, n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteString("sshd[1234]: Failed password for root from " + ip + " port 50022 ssh2\n")
	}
	return sb.String()
}

func newSSHEngine(t *testing.T, rec *banRecorder, exec action.Executor, search *pool.Pool) *Engine {
	t.Helper()
	reg := action.NewRegistry().Register("ipset", "ban", rec.ban)
	rules, err := rule.Load([]rule.Config{{
		Name:   "sshd",
		Filter: sshFailFilter,
		Action: "ipset.ban(timeout=600)",
		Limit:  3,
	}}, reg, zerolog.Nop(), rule.WithExecutor(exec))
	require.NoError(t, err)
	var submitter interface {
		Submit(context.Context, func(context.Context)) error
	}
	if search != nil {
		submitter = search
	}
	return New(rules, matches.New(zerolog.Nop()), submitter, WithMaxInFlight(8))
}

func TestEngine_SSHFailBansOnce(t *testing.T) {
	searchPool := pool.New(2, 16, zerolog.Nop())
	defer searchPool.Close()
	actionPool := pool.New(1, 16, zerolog.Nop())

	rec := &banRecorder{}
	e := newSSHEngine(t, rec, actionPool, searchPool)

	input := sshLines("198.51.100.7", 3) + "sshd[1]: Accepted publickey for alice from 192.0.2.10 port 2222 ssh2\n"
	err := e.Run(context.Background(), source.NewReader(strings.NewReader(input), "test"))
	require.NoError(t, err)
	actionPool.Close()

	bans := rec.snapshot()
	require.Len(t, bans, 1)
	assert.Equal(t, action.Args{"ip": action.String("198.51.100.7"), "timeout": action.Int(600)}, bans[0])

	st := e.Stats()
	assert.Equal(t, int64(4), st.Entries)
	assert.Equal(t, int64(3), st.Matches)
	assert.Equal(t, int64(1), st.Triggers)
	assert.Equal(t, int64(0), st.Errors)
}

func TestEngine_CountsPerAddress(t *testing.T) {
	rec := &banRecorder{}
	e := newSSHEngine(t, rec, nil, nil)

	input := sshLines("192.0.2.1", 2) + sshLines("192.0.2.2", 7)
	require.NoError(t, e.Run(context.Background(), source.NewReader(strings.NewReader(input), "test")))

	bans := rec.snapshot()
	require.Len(t, bans, 2)
	for _, b := range bans {
		assert.Equal(t, action.String("192.0.2.2"), b["ip"])
	}
	assert.Equal(t, int64(2), e.Matches().Count("sshd", map[string]string{"ip": "192.0.2.1"}))
	assert.Equal(t, int64(7), e.Matches().Count("sshd", map[string]string{"ip": "192.0.2.2"}))
}

func TestEngine_UnitFiltering(t *testing.T) {
	rec := &banRecorder{}
	reg := action.NewRegistry().Register("ipset", "ban", rec.ban)
	r, err := rule.New("sshd", sshFailFilter, 1, "ipset.ban", reg, rule.WithUnit("sshd"))
	require.NoError(t, err)
	e := New([]*rule.Rule{r}, matches.New(zerolog.Nop()), nil)

	line := "Failed password for root from 192.0.2.1 port 22 ssh2"
	hits, err := e.Process(context.Background(), source.Entry{Message: line, Unit: "nginx.service"})
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = e.Process(context.Background(), source.Entry{Message: line, Unit: "sshd.service"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "192.0.2.1", hits[0].Result.Captures["ip"])
	assert.Len(t, rec.snapshot(), 1)
}

func TestEngine_EvaluateDoesNotCount(t *testing.T) {
	rec := &banRecorder{}
	e := newSSHEngine(t, rec, nil, nil)
	line := "Failed password for root from 192.0.2.1 port 22 ssh2"
	for i := 0; i < 5; i++ {
		hits, err := e.Evaluate(context.Background(), source.Entry{Message: line})
		require.NoError(t, err)
		require.Len(t, hits, 1)
	}
	assert.Empty(t, rec.snapshot())
	assert.Equal(t, int64(0), e.Matches().Count("sshd", map[string]string{"ip": "192.0.2.1"}))
}

type blockingSource struct{ closed chan struct{} }

func (b *blockingSource) Next(ctx context.Context) (source.Entry, error) {
	<-ctx.Done()
	return source.Entry{}, ctx.Err()
}

func (b *blockingSource) Close() error {
	close(b.closed)
	return nil
}

type brokenSource struct{ closed bool }

func (b *brokenSource) Next(context.Context) (source.Entry, error) {
	return source.Entry{}, source.ErrSourceUnavailable
}

func (b *brokenSource) Close() error {
	b.closed = true
	return nil
}

func TestEngine_RunStopsOnCancel(t *testing.T) {
	e := newSSHEngine(t, &banRecorder{}, nil, nil)
	src := &blockingSource{closed: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, src) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	select {
	case <-src.closed:
	default:
		t.Fatal("source was not closed")
	}
}

func TestEngine_RunReportsBrokenSource(t *testing.T) {
	e := newSSHEngine(t, &banRecorder{}, nil, nil)
	src := &brokenSource{}
	err := e.Run(context.Background(), src)
	assert.ErrorIs(t, err, source.ErrSourceUnavailable)
	assert.True(t, src.closed)
}

func TestEngine_TwoPatternsOneLineCountTwice(t *testing.T) {
	rec := &banRecorder{}
	reg := action.NewRegistry().Register("ipset", "ban", rec.ban)
	rules, err := rule.Load([]rule.Config{{
		Name:   "multi",
		Filter: "from (?P<ip>\\S+)\nuser (?P<ip>\\S+)",
		Action: "ipset.ban",
		Limit:  2,
	}}, reg, zerolog.Nop())
	require.NoError(t, err)
	e := New(rules, matches.New(zerolog.Nop()), nil)

	hits, err := e.Process(context.Background(), source.Entry{Message: "user a from a"})
	require.NoError(t, err)
	assert.Len(t, hits, 2)
	assert.Equal(t, int64(2), e.Matches().Count("multi", map[string]string{"ip": "a"}))

	bans := rec.snapshot()
	require.Len(t, bans, 1)
	assert.Equal(t, action.String("a"), bans[0]["ip"])
	assert.Equal(t, int64(1), e.Stats().Triggers)
}
