package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/PhucNguyen204/logwarden/internal/actions"
	"github.com/PhucNguyen204/logwarden/internal/rules"
	"github.com/PhucNguyen204/logwarden/pkg/rule"
)

// Source kinds.
const (
	SourceJournal = "journal"
	SourceFile    = "file"
	SourceStdin   = "stdin"
)

// EnvPrefix prefixes environment overrides: LOGWARDEN_LOG_LEVEL sets
// log.level.
const EnvPrefix = "LOGWARDEN"

// SearchPaths are the directories searched for logwarden.yaml when no file
// is given, in order.
var SearchPaths = []string{".", "/etc/logwarden", "/etc"}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Journal backends.
const (
	JournalCtl = "journalctl"
	SDJournal  = "sdjournal"
)

type SourceConfig struct {
	Kind  string   `mapstructure:"kind"`
	Files []string `mapstructure:"files"`
	// JournalBackend selects how the journal is read: by following
	// journalctl or through libsystemd.
	JournalBackend string `mapstructure:"journal_backend"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type HistoryConfig struct {
	Size int `mapstructure:"size"`
}

// Config is the whole logwarden configuration.
type Config struct {
	Log         LogConfig      `mapstructure:"log"`
	Workers     int            `mapstructure:"workers"`
	MaxInFlight int            `mapstructure:"max_in_flight"`
	Source      SourceConfig   `mapstructure:"source"`
	HTTP        HTTPConfig     `mapstructure:"http"`
	Database    DatabaseConfig `mapstructure:"database"`
	History     HistoryConfig  `mapstructure:"history"`
	RulesDir    string         `mapstructure:"rules_dir"`
	Actions     actions.Config `mapstructure:"actions"`

	// Rules declared inline, under the "rules" key.
	Rules []rule.Config `mapstructure:"-"`
	// SkippedRules holds the inline rules that could not be decoded.
	SkippedRules []error `mapstructure:"-"`

	// File is the configuration file used, empty when none was found.
	File string `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("max_in_flight", 64)
	v.SetDefault("source.kind", SourceJournal)
	v.SetDefault("source.files", []string{})
	v.SetDefault("source.journal_backend", JournalCtl)
	v.SetDefault("http.addr", "")
	v.SetDefault("database.dsn", "")
	v.SetDefault("history.size", 100)
	v.SetDefault("rules_dir", "")
	v.SetDefault("actions.dry_run", false)
	v.SetDefault("actions.set_prefix", actions.DefaultSetPrefix)
	v.SetDefault("actions.nftables_table", "filter")
	v.SetDefault("actions.sendmail_path", "sendmail")
	v.SetDefault("actions.smtp_addr", "localhost:25")
	v.SetDefault("actions.smtp_username", "")
	v.SetDefault("actions.smtp_password", "")
}

// New returns a viper instance with defaults, env overrides and the
// configuration file set up. path may be empty to search SearchPaths.
func New(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("logwarden")
		v.SetConfigType("yaml")
		for _, p := range SearchPaths {
			v.AddConfigPath(p)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration. A missing file is only an error when path
// is given explicitly.
func Load(path string) (*Config, error) {
	return FromViper(New(path), path != "")
}

// FromViper reads the configuration held by v.
func FromViper(v *viper.Viper, mustExist bool) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if mustExist || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if raw := v.Get("rules"); raw != nil {
		rs, skipped, err := DecodeRules(raw)
		if err != nil {
			return nil, err
		}
		cfg.Rules, cfg.SkippedRules = rs, skipped
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DecodeRules decodes the loosely typed "rules" list. A single string
// keyword is accepted where a list is expected. Entries that cannot be
// decoded are left out and reported in skipped; only a value that is not a
// list at all is an error.
func DecodeRules(raw any) (out []rule.Config, skipped []error, err error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, nil, fmt.Errorf("decode rules: expected a list, got %T", raw)
	}
	for i, elem := range list {
		var rc rule.Config
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &rc,
			TagName:          "mapstructure",
			WeaklyTypedInput: true,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := dec.Decode(elem); err != nil {
			skipped = append(skipped, fmt.Errorf("rule %d: %w", i+1, err))
			continue
		}
		out = append(out, rc)
	}
	return out, skipped, nil
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case SourceJournal:
		switch c.Source.JournalBackend {
		case "":
			c.Source.JournalBackend = JournalCtl
		case JournalCtl, SDJournal:
		default:
			return fmt.Errorf("unknown source.journal_backend %q (journalctl or sdjournal)", c.Source.JournalBackend)
		}
	case SourceStdin:
	case SourceFile:
		if len(c.Source.Files) == 0 {
			return errors.New("source.files is required with source.kind=file")
		}
	default:
		return fmt.Errorf("unknown source.kind %q (journal, file or stdin)", c.Source.Kind)
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 64
	}
	return nil
}

// RuleConfigs returns the inline rules followed by the ones found below
// RulesDir.
func (c *Config) RuleConfigs() ([]rule.Config, error) {
	out := append([]rule.Config(nil), c.Rules...)
	if c.RulesDir == "" {
		return out, nil
	}
	fromDir, err := rules.LoadDirRecursive(c.RulesDir)
	if err != nil {
		return nil, fmt.Errorf("rules_dir: %w", err)
	}
	return append(out, fromDir...), nil
}
