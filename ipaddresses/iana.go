package ipaddresses

import (
	"fmt"
	"net/netip"
)

// Blocks from the IANA IPv4 and IPv6 special-purpose address registries,
// plus multicast, none of which should show up as the peer of a public request.
var specialPurposeIPv4 = []string{
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.0.0.0/24",
	"192.0.2.0/24",
	"192.88.99.0/24",
	"192.168.0.0/16",
	"198.18.0.0/15",
	"198.51.100.0/24",
	"203.0.113.0/24",
	"224.0.0.0/4",
	"240.0.0.0/4",
	"255.255.255.255/32",
}

var specialPurposeIPv6 = []string{
	"::/128",
	"::1/128",
	"::ffff:0:0/96",
	"64:ff9b::/96",
	"100::/64",
	"2001::/23",
	"2001:db8::/32",
	"fc00::/7",
	"fe80::/10",
	"ff00::/8",
}

// IsSpecialPurposeAddress reports whether ipAddr belongs to a reserved or special-purpose block.
func IsSpecialPurposeAddress(ipAddr string) (special bool, err error) {
	addr, err := netip.ParseAddr(ipAddr)
	if err != nil {
		err = fmt.Errorf(errInvalidIPAddrFmt, ipAddr)
		return
	}

	if addr.Is4() {
		special = InAnySubnet(addr.String(), specialPurposeIPv4)
		return
	}

	special = InAnySubnet(addr.WithZone("").String(), specialPurposeIPv6)
	return
}
