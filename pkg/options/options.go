package options

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/pflag"
)

// IOptions is implemented by every option group so they can be aggregated,
// validated and bound to flags uniformly.
type IOptions interface {
	// Validate checks the option values and returns all problems found.
	Validate() []error

	// AddFlags binds the options to the given FlagSet.
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}

// ValidateAddress checks that addr is a valid "host:port" listen address.
func ValidateAddress(addr string) error {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port in address %q", addr)
	}

	if host != "" && host != "0.0.0.0" {
		if ip := net.ParseIP(host); ip == nil {
			// Allow hostnames; only reject the clearly malformed.
			if _, err := net.LookupPort("tcp", portStr); err != nil {
				return fmt.Errorf("invalid host in address %q", addr)
			}
		}
	}

	return nil
}
