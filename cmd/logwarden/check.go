package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/PhucNguyen204/logwarden/internal/actions"
	"github.com/PhucNguyen204/logwarden/internal/source"
	"github.com/PhucNguyen204/logwarden/pkg/action"
	"github.com/PhucNguyen204/logwarden/pkg/engine"
	"github.com/PhucNguyen204/logwarden/pkg/matches"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [FILE...]",
		Short: "Validate the rules and replay log files against them",
		Long: `check loads the configuration and lists the valid rules. Every line of
the given files ("-" for stdin) is then replayed through the rules with
actions in dry-run mode, printing each trigger.`,
		RunE: runCheck,
	}
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	acfg := cfg.Actions
	acfg.DryRun = true
	reg := actions.Register(action.NewRegistry(), acfg, nil, log)
	rules, err := loadRules(cfg, reg, log)
	if err != nil {
		return err
	}
	for _, r := range rules {
		fmt.Fprintln(out, r.String())
	}
	if len(args) == 0 {
		return nil
	}

	m := matches.New(log)
	m.OnTrigger(func(t matches.Trigger) {
		fmt.Fprintf(out, "trigger %s %s count=%d action=%s\n", t.Rule, t.Key, t.Count, t.Action)
	})
	eng := engine.New(rules, m, nil, engine.WithLogger(log))

	for _, name := range args {
		var r io.Reader = cmd.InOrStdin()
		if name != "-" {
			f, err := os.Open(name)
			if err != nil {
				return err
			}
			r = f
		}
		if err := replay(cmd, eng, source.NewReader(r, name)); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	stats := eng.Stats()
	fmt.Fprintf(out, "%d lines, %d matches, %d triggers\n", stats.Entries, stats.Matches, stats.Triggers)
	return nil
}

func replay(cmd *cobra.Command, eng *engine.Engine, src source.Source) error {
	defer src.Close()
	ctx := cmd.Context()
	for {
		entry, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := eng.Process(ctx, entry); err != nil {
			return err
		}
	}
}
