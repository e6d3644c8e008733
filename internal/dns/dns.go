// Package dns resolves the relay host, falling back to querying public
// resolvers directly when the system resolver fails (captive portals, broken
// resolv.conf on some Android/Termux setups).
package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	mdns "github.com/miekg/dns"
)

var publicResolvers = []string{
	"1.1.1.1",         // Cloudflare
	"1.0.0.1",         // Cloudflare
	"2606:4700::1111", // Cloudflare
	"8.8.8.8",         // Google
	"8.8.4.4",         // Google
	"2001:4860::8888", // Google
	"9.9.9.9",         // Quad9
	"149.112.112.112", // Quad9
	"208.67.222.222",  // OpenDNS
}

const (
	localTimeout  = time.Second
	publicTimeout = 2 * time.Second
)

// ErrNoAddress is returned when a resolver answers without any address.
var ErrNoAddress = errors.New("no IP addresses found")

// LookupFunc resolves host to a list of addresses.
type LookupFunc func(ctx context.Context, host string) ([]string, error)

// ExchangeFunc asks one DNS server for the addresses of host.
type ExchangeFunc func(ctx context.Context, server, host string) ([]string, error)

// Resolver looks up hosts with the system resolver first and then races the
// public resolvers.
type Resolver struct {
	System   LookupFunc
	Exchange ExchangeFunc
	Servers  []string
}

// Default is the resolver used by DialContext.
var Default = &Resolver{
	System:   net.DefaultResolver.LookupHost,
	Exchange: Exchange,
	Servers:  publicResolvers,
}

// Lookup resolves host to a single IP address, preferring IPv4.
func (r *Resolver) Lookup(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	lctx, cancel := context.WithTimeout(ctx, localTimeout)
	ips, err := r.System(lctx, host)
	cancel()
	if err == nil {
		if ip, err := preferIPv4(ips); err == nil {
			return ip, nil
		}
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return r.race(ctx, host)
}

func (r *Resolver) race(ctx context.Context, host string) (string, error) {
	if len(r.Servers) == 0 || r.Exchange == nil {
		return "", fmt.Errorf("failed to resolve %s: no public resolvers configured", host)
	}

	type result struct {
		ip  string
		err error
	}

	ctx, cancel := context.WithTimeout(ctx, publicTimeout)
	defer cancel()

	results := make(chan result, len(r.Servers))
	for _, server := range r.Servers {
		go func(server string) {
			ips, err := r.Exchange(ctx, server, host)
			if err != nil {
				results <- result{err: err}
				return
			}
			ip, err := preferIPv4(ips)
			results <- result{ip: ip, err: err}
		}(server)
	}

	for range r.Servers {
		select {
		case res := <-results:
			if res.err == nil {
				return res.ip, nil
			}
		case <-ctx.Done():
			return "", fmt.Errorf("failed to resolve %s: %w", host, ctx.Err())
		}
	}
	return "", fmt.Errorf("failed to resolve %s: all %d public resolvers failed", host, len(r.Servers))
}

// Exchange queries server for A records of host, then AAAA if there are none.
func Exchange(ctx context.Context, server, host string) ([]string, error) {
	client := &mdns.Client{Timeout: publicTimeout}
	addr := net.JoinHostPort(server, "53")

	var ips []string
	for _, qtype := range []uint16{mdns.TypeA, mdns.TypeAAAA} {
		msg := new(mdns.Msg)
		msg.SetQuestion(mdns.Fqdn(host), qtype)

		in, _, err := client.ExchangeContext(ctx, msg, addr)
		if err != nil {
			return nil, err
		}
		if in.Rcode != mdns.RcodeSuccess {
			return nil, fmt.Errorf("%s answered %s", server, mdns.RcodeToString[in.Rcode])
		}

		for _, rr := range in.Answer {
			switch rec := rr.(type) {
			case *mdns.A:
				ips = append(ips, rec.A.String())
			case *mdns.AAAA:
				ips = append(ips, rec.AAAA.String())
			}
		}
		if len(ips) > 0 {
			return ips, nil
		}
	}
	return nil, ErrNoAddress
}

func preferIPv4(ips []string) (string, error) {
	if len(ips) == 0 {
		return "", ErrNoAddress
	}
	for _, ip := range ips {
		if parsed := net.ParseIP(ip); parsed != nil && parsed.To4() != nil {
			return ip, nil
		}
	}
	return ips[0], nil
}

// DialContext resolves addr with Default and dials the resulting IP. It is
// plugged into the websocket and HTTP dialers.
func DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	ip, err := Default.Lookup(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("dns lookup failed: %w", err)
	}

	d := net.Dialer{Timeout: 10 * time.Second}
	return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
}
