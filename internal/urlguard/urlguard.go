// Package urlguard validates URLs against an allow/deny policy before any
// network access and re-validates every redirect hop.
package urlguard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/dgallion1/versegest/internal/faults"
)

// Policy is the allow/deny configuration for outbound fetches.
type Policy struct {
	AllowedSchemes []string       // default: http, https
	AllowedHosts   []string       // empty allows any host; "*.example.org" matches subdomains
	BlockedHosts   []string       // same syntax as AllowedHosts; checked first
	BlockedCIDRs   []netip.Prefix // always refused
	AllowPrivate   bool           // permit loopback, private and link-local addresses
	MaxRedirects   int            // default 5
}

// HostResolver resolves host names. *net.Resolver satisfies it.
type HostResolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// Guard applies a Policy.
type Guard struct {
	policy   Policy
	resolver HostResolver
}

// New creates a guard. A nil resolver uses net.DefaultResolver.
func New(p Policy, resolver HostResolver) *Guard {
	if len(p.AllowedSchemes) == 0 {
		p.AllowedSchemes = []string{"http", "https"}
	}
	if p.MaxRedirects <= 0 {
		p.MaxRedirects = 5
	}
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Guard{policy: p, resolver: resolver}
}

// Policy returns the effective policy.
func (g *Guard) Policy() Policy { return g.policy }

// Check parses raw and validates scheme, host and every resolved address.
// Rejections are *faults.UnsupportedSourceError.
func (g *Guard) Check(ctx context.Context, raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, faults.Unsupported(raw, "malformed url", err)
	}
	if err := g.checkURL(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (g *Guard) checkURL(ctx context.Context, u *url.URL) error {
	raw := u.String()
	scheme := strings.ToLower(u.Scheme)
	if !slices.Contains(g.policy.AllowedSchemes, scheme) {
		return faults.Unsupported(raw, fmt.Sprintf("scheme %q not allowed", u.Scheme), nil)
	}
	if u.User != nil {
		return faults.Unsupported(raw, "credentials in url", nil)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return faults.Unsupported(raw, "missing host", nil)
	}
	if matchAny(g.policy.BlockedHosts, host) {
		return faults.Unsupported(raw, fmt.Sprintf("host %s is blocked", host), nil)
	}
	if len(g.policy.AllowedHosts) > 0 && !matchAny(g.policy.AllowedHosts, host) {
		return faults.Unsupported(raw, fmt.Sprintf("host %s is not allowed", host), nil)
	}

	addrs, err := g.lookup(ctx, host)
	if err != nil {
		return faults.Unsupported(raw, "resolve host", err)
	}
	for _, a := range addrs {
		if err := g.checkAddr(a); err != nil {
			return faults.Unsupported(raw, err.Error(), nil)
		}
	}
	return nil
}

func (g *Guard) lookup(ctx context.Context, host string) ([]netip.Addr, error) {
	if a, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{a}, nil
	}
	addrs, err := g.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no addresses for %s", host)
	}
	return addrs, nil
}

func (g *Guard) checkAddr(a netip.Addr) error {
	a = a.Unmap()
	for _, p := range g.policy.BlockedCIDRs {
		if p.Contains(a) {
			return fmt.Errorf("address %s is in blocked range %s", a, p)
		}
	}
	if g.policy.AllowPrivate {
		return nil
	}
	if a.IsLoopback() || a.IsPrivate() || a.IsLinkLocalUnicast() || a.IsLinkLocalMulticast() ||
		a.IsUnspecified() || a.IsMulticast() || a.IsInterfaceLocalMulticast() {
		return fmt.Errorf("address %s is not publicly routable", a)
	}
	return nil
}

func matchAny(patterns []string, host string) bool {
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(p, "*."); ok {
			if host == rest || strings.HasSuffix(host, "."+rest) {
				return true
			}
			continue
		}
		if host == p {
			return true
		}
	}
	return false
}

// ErrRedirectLoop is returned when a redirect revisits a URL.
var ErrRedirectLoop = errors.New("redirect loop")

// CheckRedirect is an http.Client CheckRedirect hook: it enforces the hop
// limit, detects loops and re-validates the next URL.
func (g *Guard) CheckRedirect(req *http.Request, via []*http.Request) error {
	if len(via) > g.policy.MaxRedirects {
		return faults.Unsupported(req.URL.String(), fmt.Sprintf("more than %d redirects", g.policy.MaxRedirects), nil)
	}
	next := req.URL.String()
	for _, prev := range via {
		if prev.URL.String() == next {
			return faults.Unsupported(next, "redirect loop", ErrRedirectLoop)
		}
	}
	return g.checkURL(req.Context(), req.URL)
}

// Client returns an HTTP client that re-validates redirects and refuses to
// dial addresses the policy forbids, even if DNS changed since Check.
func (g *Guard) Client(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		if ap, err := netip.ParseAddrPort(conn.RemoteAddr().String()); err == nil {
			if err := g.checkAddr(ap.Addr()); err != nil {
				conn.Close()
				return nil, faults.Unsupported(addr, err.Error(), nil)
			}
		}
		return conn, nil
	}
	return &http.Client{
		Timeout:       timeout,
		Transport:     transport,
		CheckRedirect: g.CheckRedirect,
	}
}
