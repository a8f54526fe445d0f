package actions

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/PhucNguyen204/logwarden/pkg/action"
)

// ErrDummy is what dummy.fail returns.
var ErrDummy = errors.New("catch me if you can")

// Dummy actions help testing rules without side effects.
type Dummy struct {
	Log zerolog.Logger
}

// Print logs its arguments.
func (d *Dummy) Print(_ context.Context, args action.Args) error {
	ev := d.Log.Info()
	for _, k := range args.Keys() {
		ev = ev.Str(k, args[k].String())
	}
	ev.Msg("dummy action")
	return nil
}

// Fail always fails.
func (d *Dummy) Fail(context.Context, action.Args) error { return ErrDummy }

// Wait sleeps sec seconds (default 5) or until ctx ends.
func (d *Dummy) Wait(ctx context.Context, args action.Args) error {
	sec, err := args.IntOr("sec", 5)
	if err != nil {
		return err
	}
	t := time.NewTimer(time.Duration(sec) * time.Second)
	defer t.Stop()
	select {
	case <-t.C:
		d.Log.Info().Int64("sec", sec).Msg("done waiting")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
