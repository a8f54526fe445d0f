package search

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PhucNguyen204/logwarden/internal/pool"
	"github.com/PhucNguyen204/logwarden/pkg/filter"
)

const sshdFilter = `Failed password for (?P<user>\S+) from (?P<ip><IP>)
Invalid user (?P<user>\S+) from (?P<ip><IP>)
from (?P<ip><IP>) port <PORT>`

func TestScheduler_InlineOrder(t *testing.T) {
	f, err := filter.Compile(sshdFilter, 2)
	require.NoError(t, err)

	line := "Failed password for root from 198.51.100.7 port 22 ssh2"
	s := New(f, line, nil)
	assert.Equal(t, 3, s.Remaining())

	r, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.True(t, r.Matched)
	assert.Equal(t, map[string]string{"user": "root", "ip": "198.51.100.7"}, r.Captures)

	r, err = s.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, r.Matched)

	r, err = s.Next(context.Background())
	require.NoError(t, err)
	assert.True(t, r.Matched)
	assert.Equal(t, map[string]string{"ip": "198.51.100.7"}, r.Captures)

	_, err = s.Next(context.Background())
	assert.ErrorIs(t, err, ErrExhausted)
	_, err = s.Next(context.Background())
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestScheduler_AllOnPool(t *testing.T) {
	p := pool.New(2, 4, zerolog.Nop())
	defer p.Close()

	f, err := filter.Compile(sshdFilter, 2)
	require.NoError(t, err)
	res, err := New(f, "Invalid user admin from 203.0.113.5 port 4242", p).All(context.Background())
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "admin", res[0].Captures["user"])
	assert.Equal(t, "203.0.113.5", res[1].Captures["ip"])
}

func TestScheduler_PrefilterMiss(t *testing.T) {
	f, err := filter.Compile(sshdFilter, 2, filter.WithKeywords("sshd"))
	require.NoError(t, err)
	s := New(f, "nginx: Failed password for root from 1.2.3.4", nil)
	assert.Equal(t, 0, s.Remaining())
	res, err := s.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res)
}

type failingSubmitter struct{}

func (failingSubmitter) Submit(context.Context, func(context.Context)) error {
	return pool.ErrClosed
}

type stalledSubmitter struct{}

func (stalledSubmitter) Submit(context.Context, func(context.Context)) error { return nil }

func TestScheduler_Errors(t *testing.T) {
	f, err := filter.Compile(sshdFilter, 2)
	require.NoError(t, err)

	_, err = New(f, "x", failingSubmitter{}).Next(context.Background())
	assert.ErrorIs(t, err, pool.ErrClosed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New(f, "x", stalledSubmitter{}).All(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}
