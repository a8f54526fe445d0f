package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/PhucNguyen204/logwarden/internal/actions"
	"github.com/PhucNguyen204/logwarden/internal/config"
	"github.com/PhucNguyen204/logwarden/internal/history"
	"github.com/PhucNguyen204/logwarden/internal/pool"
	"github.com/PhucNguyen204/logwarden/internal/server"
	"github.com/PhucNguyen204/logwarden/internal/source"
	"github.com/PhucNguyen204/logwarden/internal/store"
	"github.com/PhucNguyen204/logwarden/pkg/action"
	"github.com/PhucNguyen204/logwarden/pkg/engine"
	"github.com/PhucNguyen204/logwarden/pkg/matches"
	"github.com/PhucNguyen204/logwarden/pkg/rule"
)

const shutdownTimeout = 10 * time.Second

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Watch the configured source and fire actions",
		Args:  cobra.NoArgs,
		RunE:  runDaemon,
	}
	cmd.Flags().Bool("dry-run", false, "log commands and mails instead of running them")
	cmd.Flags().String("http-addr", "", "serve the status API on this address")
	cmd.Flags().String("source", "", "entry source (journal, file or stdin)")
	cmd.Flags().Bool("from-start", false, "read files from their beginning and stop at their end")
	return cmd
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	fromStart, _ := cmd.Flags().GetBool("from-start")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	actionPool := pool.New(cfg.Workers, 0, log.With().Str("pool", "actions").Logger())
	searchPool := pool.New(cfg.Workers, 0, log.With().Str("pool", "search").Logger())

	reg := actions.Register(action.NewRegistry(), cfg.Actions, nil, log)
	rules, err := loadRules(cfg, reg, log, rule.WithExecutor(actionPool))
	if err != nil {
		return err
	}

	m := matches.New(log)
	hist := history.New(cfg.History.Size)
	m.OnTrigger(hist.Record)

	var triggers server.TriggerStore
	var sink *store.Sink
	if cfg.Database.DSN != "" {
		st, err := store.Open(ctx, cfg.Database.DSN, log)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		sink = store.NewSink(st, 0)
		m.OnTrigger(sink.Record)
		triggers = st
	}

	eng := engine.New(rules, m, searchPool,
		engine.WithMaxInFlight(cfg.MaxInFlight),
		engine.WithLogger(log),
	)

	src, err := openSource(cfg, rules, fromStart, log)
	if err != nil {
		return err
	}
	log.Info().
		Int("rules", len(rules)).
		Str("source", cfg.Source.Kind).
		Bool("dry_run", cfg.Actions.DryRun).
		Msg("logwarden started")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel()
		return eng.Run(gctx, src)
	})
	if cfg.HTTP.Addr != "" {
		api := server.NewAppServer(eng, hist, triggers, log)
		g.Go(func() error { return api.ListenAndServe(gctx, cfg.HTTP.Addr) })
	}
	runErr := g.Wait()

	searchPool.Close()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := actionPool.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("actions still running at shutdown were cancelled")
	}
	if sink != nil {
		sink.Close()
	}

	stats := eng.Stats()
	log.Info().
		Int64("entries", stats.Entries).
		Int64("matches", stats.Matches).
		Int64("triggers", stats.Triggers).
		Int64("errors", stats.Errors).
		Msg("logwarden stopped")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func loadRules(cfg *config.Config, reg *action.Registry, log zerolog.Logger, opts ...rule.Option) ([]*rule.Rule, error) {
	rcs, err := cfg.RuleConfigs()
	if err != nil {
		return nil, err
	}
	rules, err := rule.Load(rcs, reg, log, opts...)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return rules, nil
}

// openSource builds the configured entry source. The journal is restricted
// to the rules' units when every rule names one.
func openSource(cfg *config.Config, rules []*rule.Rule, fromStart bool, log zerolog.Logger) (source.Source, error) {
	switch cfg.Source.Kind {
	case config.SourceFile:
		return source.NewFile(cfg.Source.Files, source.FileOptions{FromStart: fromStart, Log: log})
	case config.SourceStdin:
		return source.NewReader(os.Stdin, "stdin"), nil
	case config.SourceJournal:
		opts := source.JournalOptions{Units: rule.Units(rules), Log: log}
		if cfg.Source.JournalBackend == config.SDJournal {
			return source.NewSDJournal(opts)
		}
		return source.NewJournal(opts)
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source.Kind)
	}
}
