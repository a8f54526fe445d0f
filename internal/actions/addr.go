package actions

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

var (
	ErrMissingArgument = errors.New("missing argument")
	ErrInvalidAddress  = errors.New("invalid address")
	ErrPrivateAddress  = errors.New("refusing to ban a private address")
)

// Non-global IPv6 ranges that are never banned.
var privateV6 = []netip.Prefix{
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("::/128"),
	netip.MustParsePrefix("100::/64"),
	netip.MustParsePrefix("2001::/23"),
	netip.MustParsePrefix("2001:db8::/32"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

var sixToFour = netip.MustParsePrefix("2002::/16")

// chooseBlacklist returns the address to ban and the name of the set it
// goes to: prefix+"4" or prefix+"6". IPv4 addresses embedded in IPv6 ones
// (v4-mapped and 6to4) are banned as IPv4.
func chooseBlacklist(ip, prefix string) (netip.Addr, string, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return netip.Addr{}, "", fmt.Errorf("%w: %q", ErrInvalidAddress, ip)
	}
	addr = addr.WithZone("")
	if addr.Is4In6() {
		addr = addr.Unmap()
	} else if addr.Is6() {
		if sixToFour.Contains(addr) {
			b := addr.As16()
			addr = netip.AddrFrom4([4]byte{b[2], b[3], b[4], b[5]})
		} else {
			for _, p := range privateV6 {
				if p.Contains(addr) {
					return netip.Addr{}, "", fmt.Errorf("%w (%s given)", ErrPrivateAddress, addr)
				}
			}
		}
	}
	if addr.Is4() {
		return addr, prefix + "4", nil
	}
	return addr, prefix + "6", nil
}
