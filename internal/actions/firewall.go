package actions

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/PhucNguyen204/logwarden/pkg/action"
)

// IPSet bans addresses by adding them to an ipset:
//
//	ipset add -exist logwarden_blacklist4 192.0.2.10 timeout 14400
type IPSet struct {
	Runner    Runner
	SetPrefix string
	Log       zerolog.Logger
}

// Ban is the ipset.ban(ip, timeout=0) action. A zero timeout keeps the
// address in the set forever.
func (s *IPSet) Ban(ctx context.Context, args action.Args) error {
	ip := args.Str("ip", "")
	if ip == "" {
		return fmt.Errorf("ipset.ban: %w: ip", ErrMissingArgument)
	}
	timeout, err := args.IntOr("timeout", 0)
	if err != nil {
		return fmt.Errorf("ipset.ban: %w", err)
	}
	addr, set, err := chooseBlacklist(ip, s.SetPrefix)
	if err != nil {
		return fmt.Errorf("ipset.ban: %w", err)
	}
	s.Log.Info().Str("ip", addr.String()).Str("set", set).Int64("timeout", timeout).Msg("banning address")
	argv := []string{"add", "-exist", set, addr.String(), "timeout", strconv.FormatInt(timeout, 10)}
	return s.Runner.Run(ctx, "ipset", argv, nil)
}

// NFTables bans addresses by adding them to an nftables set of an inet
// table:
//
//	nft add element inet filter logwarden_blacklist4 { 192.0.2.10 timeout 600s }
type NFTables struct {
	Runner       Runner
	SetPrefix    string
	DefaultTable string
	Log          zerolog.Logger
}

// Ban is the nftables.ban(ip, table="filter", timeout=600) action.
func (n *NFTables) Ban(ctx context.Context, args action.Args) error {
	ip := args.Str("ip", "")
	if ip == "" {
		return fmt.Errorf("nftables.ban: %w: ip", ErrMissingArgument)
	}
	table := args.Str("table", n.DefaultTable)
	if table == "" {
		table = "filter"
	}
	timeout, err := args.IntOr("timeout", 600)
	if err != nil {
		return fmt.Errorf("nftables.ban: %w", err)
	}
	addr, set, err := chooseBlacklist(ip, n.SetPrefix)
	if err != nil {
		return fmt.Errorf("nftables.ban: %w", err)
	}
	n.Log.Info().Str("ip", addr.String()).Str("table", table).Str("set", set).Int64("timeout", timeout).Msg("banning address")
	element := fmt.Sprintf("{ %s timeout %ds }", addr, timeout)
	return n.Runner.Run(ctx, "nft", []string{"add", "element", "inet", table, set, element}, nil)
}
