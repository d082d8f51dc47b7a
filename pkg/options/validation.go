package options

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation"
)

// ValidateAddress takes an address as "host:port" and checks that the host is
// an IP or DNS name and the port a valid number. An empty host means all
// interfaces.
func ValidateAddress(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if host != "" {
		if err := ValidateHost(host); err != nil {
			return fmt.Errorf("invalid address %q: %w", addr, err)
		}
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("invalid address %q: port is not a number", addr)
	}
	// Port 0 lets the kernel choose, which tests rely on.
	if p != 0 {
		if errs := validation.IsValidPortNum(p); len(errs) > 0 {
			return fmt.Errorf("invalid address %q: %s", addr, strings.Join(errs, ", "))
		}
	}
	return nil
}

// ValidateHost checks that host is an IP address or a DNS-1123 subdomain.
func ValidateHost(host string) error {
	if net.ParseIP(host) != nil {
		return nil
	}
	if errs := validation.IsDNS1123Subdomain(strings.ToLower(host)); len(errs) > 0 {
		return fmt.Errorf("invalid host %q: %s", host, strings.Join(errs, ", "))
	}
	return nil
}
