package actions

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/PhucNguyen204/logwarden/pkg/action"
)

const defaultSubject = "logwarden"

var mailKeys = map[string]bool{
	"from_addr": true,
	"to_addr":   true,
	"to_addrs":  true,
	"subject":   true,
	"msg":       true,
}

// body renders msg followed by every argument that is not a mail field.
func body(msg string, args action.Args) string {
	var extra []string
	for _, k := range args.Keys() {
		if mailKeys[k] {
			continue
		}
		extra = append(extra, k+": "+args[k].String())
	}
	if len(extra) == 0 {
		return msg
	}
	return msg + "\n\nThe following variables have been caught:\n" + strings.Join(extra, "\n")
}

// Sendmail hands messages to the local MTA with `sendmail -t -oi`.
type Sendmail struct {
	Runner Runner
	Path   string
	Log    zerolog.Logger
}

// Send is sendmail.send(from_addr, to_addr, subject="logwarden", msg="").
func (s *Sendmail) Send(ctx context.Context, args action.Args) error {
	from := args.Str("from_addr", "")
	to := args.Str("to_addr", "")
	if from == "" || to == "" {
		return fmt.Errorf("sendmail.send: %w: from_addr and to_addr are required", ErrMissingArgument)
	}
	subject := args.Str("subject", defaultSubject)
	msg := fmt.Sprintf("To: %s\nFrom: %s\nSubject: %s\n\n%s", to, from, subject, body(args.Str("msg", ""), args))

	path := s.Path
	if path == "" {
		path = "sendmail"
	}
	s.Log.Info().Str("to", to).Str("subject", subject).Msg("sending mail")
	return s.Runner.Run(ctx, path, []string{"-t", "-oi"}, []byte(msg))
}

// SendFunc delivers a message over SMTP; smtp.SendMail fits.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTP sends mail through an SMTP relay.
type SMTP struct {
	Addr     string
	Username string
	Password string
	Send     SendFunc
	Log      zerolog.Logger
}

// SendMail is mail.send(from_addr, to_addrs, subject="logwarden", msg="").
// to_addrs is a comma separated list.
func (m *SMTP) SendMail(ctx context.Context, args action.Args) error {
	from := args.Str("from_addr", "")
	rawTo := args.Str("to_addrs", args.Str("to_addr", ""))
	var to []string
	for _, a := range strings.Split(rawTo, ",") {
		if a = strings.TrimSpace(a); a != "" {
			to = append(to, a)
		}
	}
	if from == "" || len(to) == 0 {
		return fmt.Errorf("mail.send: %w: from_addr and to_addrs are required", ErrMissingArgument)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	subject := args.Str("subject", defaultSubject)
	msg := fmt.Sprintf("To: %s\r\nFrom: %s\r\nSubject: %s\r\n\r\n%s",
		strings.Join(to, ", "), from, subject, body(args.Str("msg", ""), args))

	addr := m.Addr
	if addr == "" {
		addr = "localhost:25"
	}
	var auth smtp.Auth
	if m.Username != "" {
		host := addr
		if i := strings.LastIndex(addr, ":"); i >= 0 {
			host = addr[:i]
		}
		auth = smtp.PlainAuth("", m.Username, m.Password, host)
	}
	send := m.Send
	if send == nil {
		send = smtp.SendMail
	}
	m.Log.Info().Strs("to", to).Str("subject", subject).Str("relay", addr).Msg("sending mail")
	if err := send(addr, auth, from, to, []byte(msg)); err != nil {
		return fmt.Errorf("mail.send: %w", err)
	}
	return nil
}
