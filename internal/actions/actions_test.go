package actions

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PhucNguyen204/logwarden/pkg/action"
)

type call struct {
	name  string
	args  []string
	stdin string
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (f *fakeRunner) Run(_ context.Context, name string, args []string, stdin []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{name: name, args: args, stdin: string(stdin)})
	return f.err
}

func TestChooseBlacklist(t *testing.T) {
	tests := []struct {
		in      string
		addr    string
		set     string
		wantErr error
	}{
		{"192.0.2.10", "192.0.2.10", "bl4", nil},
		{" 10.0.0.1 ", "10.0.0.1", "bl4", nil},
		{"2a01:4f8::1", "2a01:4f8::1", "bl6", nil},
		{"::ffff:198.51.100.7", "198.51.100.7", "bl4", nil},
		{"2002:c000:020a::1", "192.0.2.10", "bl4", nil},
		{"fe80::1%eth0", "", "", ErrPrivateAddress},
		{"fd00::1", "", "", ErrPrivateAddress},
		{"::1", "", "", ErrPrivateAddress},
		{"2001:db8::5", "", "", ErrPrivateAddress},
		{"not-an-ip", "", "", ErrInvalidAddress},
		{"", "", "", ErrInvalidAddress},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			addr, set, err := chooseBlacklist(tt.in, "bl")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.addr, addr.String())
			assert.Equal(t, tt.set, set)
		})
	}
}

func TestIPSetBan(t *testing.T) {
	r := &fakeRunner{}
	s := &IPSet{Runner: r, SetPrefix: DefaultSetPrefix, Log: zerolog.Nop()}

	require.NoError(t, s.Ban(context.Background(), action.Args{
		"ip": action.String("198.51.100.7"), "timeout": action.Int(600),
	}))
	require.NoError(t, s.Ban(context.Background(), action.Args{"ip": action.String("2a01:4f8::1")}))

	require.Len(t, r.calls, 2)
	assert.Equal(t, "ipset", r.calls[0].name)
	assert.Equal(t, []string{"add", "-exist", "logwarden_blacklist4", "198.51.100.7", "timeout", "600"}, r.calls[0].args)
	assert.Equal(t, []string{"add", "-exist", "logwarden_blacklist6", "2a01:4f8::1", "timeout", "0"}, r.calls[1].args)

	assert.ErrorIs(t, s.Ban(context.Background(), action.Args{}), ErrMissingArgument)
	assert.ErrorIs(t, s.Ban(context.Background(), action.Args{"ip": action.String("fd00::1")}), ErrPrivateAddress)
	assert.Error(t, s.Ban(context.Background(), action.Args{"ip": action.String("192.0.2.1"), "timeout": action.String("soon")}))
	assert.Len(t, r.calls, 2)
}

func TestNFTablesBan(t *testing.T) {
	r := &fakeRunner{}
	n := &NFTables{Runner: r, SetPrefix: DefaultSetPrefix, Log: zerolog.Nop()}

	require.NoError(t, n.Ban(context.Background(), action.Args{"ip": action.String("192.0.2.10")}))
	require.NoError(t, n.Ban(context.Background(), action.Args{
		"ip": action.String("192.0.2.11"), "table": action.String("firewall"), "timeout": action.Int(30),
	}))

	require.Len(t, r.calls, 2)
	assert.Equal(t, "nft", r.calls[0].name)
	assert.Equal(t, []string{"add", "element", "inet", "filter", "logwarden_blacklist4", "{ 192.0.2.10 timeout 600s }"}, r.calls[0].args)
	assert.Equal(t, []string{"add", "element", "inet", "firewall", "logwarden_blacklist4", "{ 192.0.2.11 timeout 30s }"}, r.calls[1].args)
}

func TestSendmailSend(t *testing.T) {
	r := &fakeRunner{}
	s := &Sendmail{Runner: r, Log: zerolog.Nop()}

	err := s.Send(context.Background(), action.Args{
		"from_addr": action.String("warden@example.org"),
		"to_addr":   action.String("admin@example.org"),
		"msg":       action.String("Banned."),
		"ip":        action.String("198.51.100.7"),
		"user":      action.String("root"),
	})
	require.NoError(t, err)
	require.Len(t, r.calls, 1)
	assert.Equal(t, "sendmail", r.calls[0].name)
	assert.Equal(t, []string{"-t", "-oi"}, r.calls[0].args)
	assert.Equal(t, "To: admin@example.org\nFrom: warden@example.org\nSubject: logwarden\n\nBanned."+
		"\n\nThe following variables have been caught:\nip: 198.51.100.7\nuser: root", r.calls[0].stdin)

	assert.ErrorIs(t, s.Send(context.Background(), action.Args{"to_addr": action.String("x")}), ErrMissingArgument)
}

func TestSMTPSendMail(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg string
	var gotAuth smtp.Auth
	m := &SMTP{
		Addr:     "relay.example.org:587",
		Username: "u",
		Password: "p",
		Log:      zerolog.Nop(),
		Send: func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotAuth, gotFrom, gotTo, gotMsg = addr, a, from, to, string(msg)
			return nil
		},
	}
	err := m.SendMail(context.Background(), action.Args{
		"from_addr": action.String("warden@example.org"),
		"to_addrs":  action.String("a@example.org, b@example.org"),
		"subject":   action.String("ban"),
	})
	require.NoError(t, err)
	assert.Equal(t, "relay.example.org:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, "warden@example.org", gotFrom)
	assert.Equal(t, []string{"a@example.org", "b@example.org"}, gotTo)
	assert.True(t, strings.HasPrefix(gotMsg, "To: a@example.org, b@example.org\r\n"))
	assert.Contains(t, gotMsg, "Subject: ban\r\n")

	m.Send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("refused") }
	err = m.SendMail(context.Background(), action.Args{
		"from_addr": action.String("w@example.org"), "to_addr": action.String("a@example.org"),
	})
	assert.ErrorContains(t, err, "refused")

	assert.ErrorIs(t, m.SendMail(context.Background(), action.Args{}), ErrMissingArgument)
}

func TestDummy(t *testing.T) {
	d := &Dummy{Log: zerolog.Nop()}
	assert.NoError(t, d.Print(context.Background(), action.Args{"a": action.Int(1)}))
	assert.ErrorIs(t, d.Fail(context.Background(), nil), ErrDummy)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Wait(ctx, action.Args{"sec": action.Int(60)}), context.DeadlineExceeded)
	assert.NoError(t, d.Wait(context.Background(), action.Args{"sec": action.Int(0)}))
}

func TestRegister(t *testing.T) {
	r := &fakeRunner{}
	reg := Register(action.NewRegistry(), Config{}, r, zerolog.Nop())
	assert.Equal(t, []string{
		"dummy.fail", "dummy.print", "dummy.wait",
		"ipset.ban", "mail.send", "nftables.ban", "sendmail.send",
	}, reg.Names())

	spec, err := action.New("ipset.ban(timeout=600)", reg)
	require.NoError(t, err)
	require.NoError(t, spec.Invoke(context.Background(), map[string]string{"ip": "198.51.100.7"}))
	require.Len(t, r.calls, 1)
	assert.Equal(t, []string{"add", "-exist", "logwarden_blacklist4", "198.51.100.7", "timeout", "600"}, r.calls[0].args)
}

func TestRegister_DryRun(t *testing.T) {
	reg := Register(action.NewRegistry(), Config{DryRun: true}, nil, zerolog.Nop())
	spec, err := action.New(`mail.send(from_addr="a@example.org", to_addrs="b@example.org")`, reg)
	require.NoError(t, err)
	assert.NoError(t, spec.Invoke(context.Background(), nil))

	ban, err := action.New("nftables.ban", reg)
	require.NoError(t, err)
	assert.NoError(t, ban.Invoke(context.Background(), map[string]string{"ip": "192.0.2.1"}))
}

func TestExecRunner(t *testing.T) {
	r := ExecRunner{Log: zerolog.Nop()}
	err := r.Run(context.Background(), "logwarden-command-that-does-not-exist", []string{"x"}, nil)
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Contains(t, cmdErr.Command, "logwarden-command-that-does-not-exist x")
}
