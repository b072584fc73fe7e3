package utils

import (
	"fmt"
	"net"
	"strings"
)

// ParseCIDRs parses a comma separated list of subnets. Bare addresses are
// accepted as single-host subnets.
func ParseCIDRs(list string) ([]*net.IPNet, error) {
	var nets []*net.IPNet
	for _, raw := range strings.Split(list, ",") {
		cidr := strings.TrimSpace(raw)
		if cidr == "" {
			continue
		}
		if !strings.Contains(cidr, "/") {
			ip := net.ParseIP(cidr)
			if ip == nil {
				return nil, fmt.Errorf("invalid address %q", cidr)
			}
			bits := 128
			if ip.To4() != nil {
				bits = 32
			}
			cidr = fmt.Sprintf("%s/%d", cidr, bits)
		}
		_, netblock, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid subnet %q: %w", cidr, err)
		}
		nets = append(nets, netblock)
	}
	return nets, nil
}

// IsAllowedIP reports whether ip falls into one of the subnets.
func IsAllowedIP(ip string, allowed []*net.IPNet) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}

	for _, netblock := range allowed {
		if netblock.Contains(parsed) {
			return true
		}
	}
	return false
}
