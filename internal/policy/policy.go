// Package policy evaluates the outbound allow-list for a guest instance.
//
// An allow-list is an ordered set of entries of the form
// "scheme://host[:port]". The scheme may be "*", the host may be exact, the
// wildcard "*", or a suffix pattern "*.example.com", and the port falls back
// to the scheme's conventional port when unspecified. The special host
// "self" permits relative requests against the instance's own origin.
// Default policy is deny.
package policy

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ErrDenied indicates the destination is not permitted by the allow-list.
var ErrDenied = errors.New("destination not permitted")

// ErrInvalidAddress indicates the destination string could not be parsed.
// It is deliberately distinct from ErrDenied so that malformed input is
// never reported as a policy decision.
var ErrInvalidAddress = errors.New("invalid destination address")

// schemePorts maps schemes to their conventional ports, used when an
// allow-list entry or a destination omits the port.
var schemePorts = map[string]int{
	"http":  80,
	"https": 443,
	"redis": 6379,
	"mysql": 3306,
}

const (
	anyPort  = -1
	selfHost = "self"
)

type hostPattern struct {
	exact  string // lower-case exact host
	suffix string // lower-case suffix for "*.example.com" entries
	any    bool   // bare "*"
}

func (p hostPattern) matches(host string) bool {
	if p.any {
		return true
	}
	if p.suffix != "" {
		return strings.HasSuffix(host, p.suffix) && host != p.suffix[1:]
	}
	return host == p.exact
}

type rule struct {
	scheme string // "" means any scheme
	host   hostPattern
	port   int // explicit port, scheme default, or anyPort
}

// AllowedHosts is the parsed, immutable allow-list for one guest instance.
// It is safe for concurrent use.
type AllowedHosts struct {
	rules []rule

	allowSelf   bool
	selfSchemes map[string]bool // nil means any scheme when allowSelf is set
}

// ParseAllowedHosts builds an AllowedHosts from declarative entries. A
// malformed entry is a configuration bug and fails construction.
func ParseAllowedHosts(entries []string) (*AllowedHosts, error) {
	allowed := &AllowedHosts{}

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		scheme, rest, found := strings.Cut(entry, "://")
		if !found {
			return nil, fmt.Errorf("allow-list entry %q: missing scheme", entry)
		}
		scheme = strings.ToLower(scheme)
		if scheme == "*" {
			scheme = ""
		}

		host, portText := splitHostPort(rest)
		if host == "" {
			return nil, fmt.Errorf("allow-list entry %q: missing host", entry)
		}
		host = strings.ToLower(host)

		if host == selfHost {
			if portText != "" {
				return nil, fmt.Errorf("allow-list entry %q: self takes no port", entry)
			}
			allowed.permitSelf(scheme)
			continue
		}

		port := anyPort
		switch {
		case portText == "":
			if p, ok := schemePorts[scheme]; ok {
				port = p
			}
		case portText == "*":
			port = anyPort
		default:
			p, err := strconv.Atoi(portText)
			if err != nil || p < 1 || p > 65535 {
				return nil, fmt.Errorf("allow-list entry %q: invalid port %q", entry, portText)
			}
			port = p
		}

		pattern, err := parseHostPattern(host)
		if err != nil {
			return nil, fmt.Errorf("allow-list entry %q: %w", entry, err)
		}

		allowed.rules = append(allowed.rules, rule{scheme: scheme, host: pattern, port: port})
	}

	return allowed, nil
}

func (a *AllowedHosts) permitSelf(scheme string) {
	if a.allowSelf && a.selfSchemes == nil {
		return // already permitted for every scheme
	}
	a.allowSelf = true
	if scheme == "" {
		a.selfSchemes = nil
		return
	}
	if a.selfSchemes == nil {
		a.selfSchemes = make(map[string]bool)
	}
	a.selfSchemes[scheme] = true
}

func parseHostPattern(host string) (hostPattern, error) {
	if host == "*" {
		return hostPattern{any: true}, nil
	}
	if rest, ok := strings.CutPrefix(host, "*."); ok {
		if rest == "" || strings.Contains(rest, "*") {
			return hostPattern{}, fmt.Errorf("invalid host pattern %q", host)
		}
		return hostPattern{suffix: "." + rest}, nil
	}
	if strings.Contains(host, "*") {
		return hostPattern{}, fmt.Errorf("invalid host pattern %q", host)
	}
	return hostPattern{exact: host}, nil
}

// splitHostPort splits "host[:port]" without requiring a port, keeping
// bracketed IPv6 literals intact.
func splitHostPort(hostport string) (host, port string) {
	if strings.HasPrefix(hostport, "[") {
		if end := strings.LastIndex(hostport, "]"); end >= 0 {
			host = hostport[1:end]
			if rest := hostport[end+1:]; strings.HasPrefix(rest, ":") {
				port = rest[1:]
			}
			return host, port
		}
	}
	if i := strings.LastIndex(hostport, ":"); i >= 0 && !strings.Contains(hostport[i+1:], ":") {
		return hostport[:i], hostport[i+1:]
	}
	return hostport, ""
}

// Authorize checks an absolute destination against the allow-list.
// defaultScheme is assumed when the address carries no scheme (for example
// "127.0.0.1:6379" checked by the key-value adapter). It returns nil when
// permitted, ErrDenied when no rule matches, and ErrInvalidAddress when the
// destination cannot be parsed.
func (a *AllowedHosts) Authorize(address, defaultScheme string) error {
	u, err := parseDestination(address, defaultScheme)
	if err != nil {
		return err
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("%w: %q has no host", ErrInvalidAddress, address)
	}

	port := anyPort
	if text := u.Port(); text != "" {
		p, err := strconv.Atoi(text)
		if err != nil {
			return fmt.Errorf("%w: %q has invalid port", ErrInvalidAddress, address)
		}
		port = p
	} else if p, ok := schemePorts[scheme]; ok {
		port = p
	}

	// Evaluation is total: every rule is checked so that equivalent
	// configurations always produce the same decision.
	allowed := false
	for _, r := range a.rules {
		allowed = r.matches(scheme, host, port) || allowed
	}
	if !allowed {
		return fmt.Errorf("%w: %s", ErrDenied, address)
	}
	return nil
}

// AuthorizeRelative checks whether a relative ("self") request is permitted
// for at least one of the candidate schemes.
func (a *AllowedHosts) AuthorizeRelative(schemes []string) error {
	if a.allowSelf {
		if a.selfSchemes == nil {
			return nil
		}
		for _, scheme := range schemes {
			if a.selfSchemes[strings.ToLower(scheme)] {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: relative request", ErrDenied)
}

// AllowsSelf reports whether any "self" entry is present, regardless of
// scheme restrictions.
func (a *AllowedHosts) AllowsSelf() bool {
	return a.allowSelf
}

func (r rule) matches(scheme, host string, port int) bool {
	if r.scheme != "" && r.scheme != scheme {
		return false
	}
	if !r.host.matches(host) {
		return false
	}
	if r.port == anyPort || port == anyPort {
		return r.port == anyPort
	}
	return r.port == port
}

func parseDestination(address, defaultScheme string) (*url.URL, error) {
	u, err := url.Parse(address)
	if err != nil || u.Scheme == "" || u.Host == "" {
		// Addresses like "127.0.0.1:6379" parse with the port as a scheme;
		// retry with the adapter's scheme prepended.
		u, err = url.Parse(defaultScheme + "://" + address)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
		}
	}
	return u, nil
}
