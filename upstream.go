package sciproxy

import (
	"fmt"
	"net/url"
)

// Upstream holds the configuration of an authenticated HTTP proxy that
// institutional downloaders tunnel through.
type Upstream struct {
	proxyURL *url.URL
	username string
	password string
}

// ParseUpstream parses a proxy URL and attaches the given credentials.
// Credentials embedded in the URL itself are used when the explicit ones
// are empty.
func ParseUpstream(rawURL, username, password string) (*Upstream, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing upstream proxy url %s : %w", rawURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported upstream proxy scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("upstream proxy url %s has no host", rawURL)
	}

	if username == "" && parsed.User != nil {
		username = parsed.User.Username()
		password, _ = parsed.User.Password()
	}
	parsed.User = nil

	return &Upstream{
		proxyURL: parsed,
		username: username,
		password: password,
	}, nil
}

// URL returns the proxy URL with credentials attached, suitable for
// http.Transport.Proxy.
func (u *Upstream) URL() *url.URL {
	proxyURL := *u.proxyURL
	if u.username != "" {
		proxyURL.User = url.UserPassword(u.username, u.password)
	}
	return &proxyURL
}

// String returns the proxy URL with the password redacted, for logs.
func (u *Upstream) String() string {
	proxyURL := *u.proxyURL
	if u.username != "" {
		proxyURL.User = url.User(u.username)
	}
	return proxyURL.Redacted()
}
