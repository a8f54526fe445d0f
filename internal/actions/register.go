package actions

import (
	"net/smtp"

	"github.com/rs/zerolog"

	"github.com/PhucNguyen204/logwarden/pkg/action"
)

// Config holds the settings of the built-in actions.
type Config struct {
	DryRun       bool   `mapstructure:"dry_run"`
	SetPrefix    string `mapstructure:"set_prefix"`
	NFTTable     string `mapstructure:"nftables_table"`
	SendmailPath string `mapstructure:"sendmail_path"`
	SMTPAddr     string `mapstructure:"smtp_addr"`
	SMTPUsername string `mapstructure:"smtp_username"`
	SMTPPassword string `mapstructure:"smtp_password"`
}

// DefaultSetPrefix names the blacklists logwarden_blacklist4 and
// logwarden_blacklist6.
const DefaultSetPrefix = "logwarden_blacklist"

// Register adds the built-in actions to reg. runner may be nil, in which
// case commands are executed, or only logged when cfg.DryRun is set.
func Register(reg *action.Registry, cfg Config, runner Runner, log zerolog.Logger) *action.Registry {
	log = log.With().Str("component", "actions").Logger()
	if runner == nil {
		if cfg.DryRun {
			runner = DryRunner{Log: log}
		} else {
			runner = ExecRunner{Log: log}
		}
	}
	prefix := cfg.SetPrefix
	if prefix == "" {
		prefix = DefaultSetPrefix
	}

	ipset := &IPSet{Runner: runner, SetPrefix: prefix, Log: log}
	nft := &NFTables{Runner: runner, SetPrefix: prefix, DefaultTable: cfg.NFTTable, Log: log}
	sendmail := &Sendmail{Runner: runner, Path: cfg.SendmailPath, Log: log}
	mail := &SMTP{Addr: cfg.SMTPAddr, Username: cfg.SMTPUsername, Password: cfg.SMTPPassword, Log: log}
	if cfg.DryRun {
		mail.Send = dryRunSend(log)
	}
	dummy := &Dummy{Log: log}

	return reg.
		Register("ipset", "ban", ipset.Ban).
		Register("nftables", "ban", nft.Ban).
		Register("sendmail", "send", sendmail.Send).
		Register("mail", "send", mail.SendMail).
		Register("dummy", "print", dummy.Print).
		Register("dummy", "fail", dummy.Fail).
		Register("dummy", "wait", dummy.Wait)
}

func dryRunSend(log zerolog.Logger) SendFunc {
	return func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		log.Info().Str("relay", addr).Str("from", from).Strs("to", to).Int("bytes", len(msg)).
			Msg("dry run, mail not sent")
		return nil
	}
}
