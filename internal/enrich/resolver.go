package enrich

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// Resolver looks up the PTR name of an address against one DNS server.
type Resolver struct {
	server string
	client *dns.Client
}

// NewResolver returns a resolver for server ("host" or "host:port").
func NewResolver(server string, timeout time.Duration) *Resolver {
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	return &Resolver{
		server: server,
		client: &dns.Client{Net: "udp", Timeout: timeout},
	}
}

// Lookup fills FieldPTR. A missing PTR record is not an error.
func (r *Resolver) Lookup(ctx context.Context, address string) (map[string]string, error) {
	name, err := dns.ReverseAddr(address)
	if err != nil {
		return nil, fmt.Errorf("ptr %s: %w", address, err)
	}

	msg := new(dns.Msg)
	msg.SetQuestion(name, dns.TypePTR)
	msg.RecursionDesired = true

	in, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		return nil, fmt.Errorf("ptr %s: %w", address, err)
	}

	switch in.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return map[string]string{}, nil
	default:
		return nil, fmt.Errorf("ptr %s: server answered %s", address, dns.RcodeToString[in.Rcode])
	}

	for _, rr := range in.Answer {
		if ptr, ok := rr.(*dns.PTR); ok {
			return map[string]string{FieldPTR: strings.TrimSuffix(ptr.Ptr, ".")}, nil
		}
	}
	return map[string]string{}, nil
}
