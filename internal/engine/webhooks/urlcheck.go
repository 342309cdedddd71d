package webhooks

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

// validateTargetURL enforces the delivery-target policy: syntactically valid,
// HTTPS only (plain HTTP tolerated for loopback hosts when allowLoopback is
// set, for local development), and no private address ranges. This is a
// literal-hostname blocklist; it does not resolve DNS, so a rebinding-style
// SSRF still needs to be caught at the egress proxy.
func validateTargetURL(raw string, allowLoopback bool) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if u.Host == "" {
		return fmt.Errorf("url has no host")
	}

	host := u.Hostname()
	loopback := isLoopbackHost(host)

	switch u.Scheme {
	case "https":
	case "http":
		if !loopback || !allowLoopback {
			return fmt.Errorf("plain http is only allowed for loopback hosts")
		}
	default:
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if addr.IsLoopback() {
			if !allowLoopback {
				return fmt.Errorf("loopback address %s is not allowed", host)
			}
			return nil
		}
		if addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsUnspecified() {
			return fmt.Errorf("private address %s is not allowed", host)
		}
	} else if loopback && !allowLoopback {
		return fmt.Errorf("loopback host %s is not allowed", host)
	}

	return nil
}

func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	addr, err := netip.ParseAddr(host)
	return err == nil && addr.IsLoopback()
}
