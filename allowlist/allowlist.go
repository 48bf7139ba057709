// Package allowlist decides which download source URLs the service accepts.
package allowlist

import (
	"errors"
	"net"
	"net/url"
	"strings"
)

var (
	ErrBadURL         = errors.New("URL could not be parsed")
	ErrBadScheme      = errors.New("URL scheme must be http or https")
	ErrHostNotAllowed = errors.New("host is not on the allow-list")
)

// List is a fixed set of permitted source hostnames. A candidate host
// matches an entry exactly or as a subdomain of it.
type List struct {
	hosts []string
}

func New(hosts []string) *List {
	normalized := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(strings.TrimSuffix(h, ".")))
		if h != "" {
			normalized = append(normalized, h)
		}
	}
	return &List{hosts: normalized}
}

// Check validates rawURL and returns the matched hostname.
// Userinfo and IP-literal hosts are always rejected.
func (l *List) Check(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", ErrBadURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrBadScheme
	}
	if u.User != nil {
		return "", ErrHostNotAllowed
	}

	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return "", ErrBadURL
	}
	if net.ParseIP(host) != nil {
		return "", ErrHostNotAllowed
	}

	for _, allowed := range l.hosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return host, nil
		}
	}
	return "", ErrHostNotAllowed
}

// Hosts returns the normalized allow-list entries.
func (l *List) Hosts() []string {
	out := make([]string, len(l.hosts))
	copy(out, l.hosts)
	return out
}
