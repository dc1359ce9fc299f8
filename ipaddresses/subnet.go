package ipaddresses

import (
	"net/netip"
	"strconv"
	"strings"
)

// Prefix lengths applied to subnets written without a "/bits" suffix.
const (
	DefaultIPv4Prefix = 32
	DefaultIPv6Prefix = 64
)

// InSubnet reports whether ipAddr lies inside subnet ("range[/prefix]").
// The address family is decided by the presence of a colon. Mixed families and
// malformed input never match.
func InSubnet(ipAddr string, subnet string) bool {
	if isIPv6Notation(ipAddr) {
		if !isIPv6Notation(subnet) {
			return false
		}
		return inIPv6Range(ipAddr, subnet)
	}

	if isIPv6Notation(subnet) {
		return false
	}
	return inIPv4Range(ipAddr, subnet)
}

// InAnySubnet reports whether ipAddr lies inside any of the given subnets.
// Only subnets of the address's own family are tested, in order, and the first
// match wins.
func InAnySubnet(ipAddr string, subnets []string) bool {
	v6 := isIPv6Notation(ipAddr)
	for _, subnet := range subnets {
		if isIPv6Notation(subnet) != v6 {
			continue
		}

		var match bool
		if v6 {
			match = inIPv6Range(ipAddr, subnet)
		} else {
			match = inIPv4Range(ipAddr, subnet)
		}
		if match {
			return true
		}
	}
	return false
}

// ValidSubnet reports whether subnet is a well formed IPv4 or IPv6 "range[/prefix]".
func ValidSubnet(subnet string) bool {
	if isIPv6Notation(subnet) {
		_, _, ok := parseIPv6Subnet(subnet)
		return ok
	}

	_, _, err := ParseCIDR(subnet)
	return err == nil
}

func isIPv6Notation(s string) bool {
	return strings.IndexByte(s, ':') >= 0
}

func inIPv4Range(ipAddr string, subnet string) bool {
	ok, err := InAddressSpace(ipAddr, subnet)
	return err == nil && ok
}

func inIPv6Range(ipAddr string, subnet string) bool {
	addr, err := netip.ParseAddr(ipAddr)
	if err != nil || !addr.Is6() {
		return false
	}

	network, mask, ok := parseIPv6Subnet(subnet)
	if !ok {
		return false
	}

	ip := addr.As16()
	for i := range ip {
		if ip[i]&mask[i] != network[i]&mask[i] {
			return false
		}
	}
	return true
}

func parseIPv6Subnet(subnet string) (network [16]byte, mask [16]byte, ok bool) {
	rangeAddr, suffix, hasSuffix := strings.Cut(subnet, "/")

	bits := DefaultIPv6Prefix
	if hasSuffix {
		var err error
		bits, err = strconv.Atoi(suffix)
		if err != nil || bits < 0 || bits > 128 {
			return
		}
	}

	addr, err := netip.ParseAddr(rangeAddr)
	if err != nil || !addr.Is6() {
		return
	}

	return addr.As16(), ipv6Mask(bits), true
}

// ipv6Mask sets the first bits bits of a 16 byte mask, most significant first.
func ipv6Mask(bits int) (mask [16]byte) {
	for i := range mask {
		switch {
		case bits >= 8:
			mask[i] = 0xff
			bits -= 8
		case bits > 0:
			mask[i] = byte(0xff << uint(8-bits))
			bits = 0
		}
	}
	return
}
