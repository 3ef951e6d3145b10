package ssl

import (
	"context"
	"net"
	"time"
)

// DNSChecker verifies a domain resolves before a certificate is requested.
// The HTTP-01 challenge fails with an opaque certbot error when DNS is not
// pointed at this host yet, so the deploy path checks first and turns that
// case into a clear warning.
type DNSChecker struct {
	resolvers []string
}

// NewDNSChecker creates a checker querying well-known public resolvers.
func NewDNSChecker() *DNSChecker {
	return &DNSChecker{
		resolvers: []string{
			"1.1.1.1:53", // Cloudflare
			"8.8.8.8:53", // Google
			"9.9.9.9:53", // Quad9
		},
	}
}

// Resolves reports whether any resolver returns an A/AAAA record for domain.
func (c *DNSChecker) Resolves(ctx context.Context, domain string) bool {
	for _, resolver := range c.resolvers {
		if addrs, err := c.lookup(ctx, domain, resolver); err == nil && len(addrs) > 0 {
			return true
		}
	}
	return false
}

// ResolvesTo reports whether domain resolves to the given IP on any resolver.
func (c *DNSChecker) ResolvesTo(ctx context.Context, domain, ip string) bool {
	for _, resolver := range c.resolvers {
		addrs, err := c.lookup(ctx, domain, resolver)
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if addr.String() == ip {
				return true
			}
		}
	}
	return false
}

func (c *DNSChecker) lookup(ctx context.Context, domain, resolver string) ([]net.IP, error) {
	r := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
			d := net.Dialer{Timeout: 5 * time.Second}
			return d.DialContext(ctx, "udp", resolver)
		},
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	addrs, err := r.LookupIP(ctx, "ip", domain)
	if err != nil {
		return nil, err
	}
	return addrs, nil
}
