package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/PhucNguyen204/logwarden/internal/config"
	"github.com/PhucNguyen204/logwarden/internal/logging"
)

// flagKeys binds command line flags to configuration keys.
var flagKeys = map[string]string{
	"log-level":  "log.level",
	"log-format": "log.format",
	"dry-run":    "actions.dry_run",
	"http-addr":  "http.addr",
	"source":     "source.kind",
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "logwarden",
		Short: "Watch logs and act on repeated offences",
		Long: `logwarden reads log entries from the systemd journal, files or stdin,
matches them against rules and runs the rule's action, such as banning an
address, every time a rule has matched often enough for the same values.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "config file (default: ./logwarden.yaml, /etc/logwarden/logwarden.yaml or /etc/logwarden.yaml)")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "", "log format (console or json)")

	root.AddCommand(newRunCmd(), newCheckCmd(), newVersionCmd())
	return root
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration, flags taking precedence over environment
// and file, and builds the logger.
func setup(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	v := config.New(path)
	if err := bindFlags(cmd, v); err != nil {
		return nil, zerolog.Nop(), err
	}
	cfg, err := config.FromViper(v, path != "")
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if cfg.File != "" {
		log.Debug().Str("file", cfg.File).Msg("using config file")
	}
	for _, err := range cfg.SkippedRules {
		log.Warn().Err(err).Msg("inline rule cannot be decoded, it will be skipped")
	}
	return cfg, log, nil
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	for flag, key := range flagKeys {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind --%s: %w", flag, err)
		}
	}
	return nil
}
