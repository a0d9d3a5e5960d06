package beanstalk

import (
	"errors"
	"fmt"
	"net"
	"net/url"
)

// DefaultURL is used when no broker URL is configured.
const DefaultURL = "beanstalk://localhost:11300/"

const defaultPort = "11300"

// ErrBadURL is returned by ParseURL for anything but a beanstalk:// URL.
var ErrBadURL = errors.New("jobs: bad beanstalk url")

// ParseURL turns "beanstalk://host:port/" into a dialable "host:port".
// The host defaults to localhost and the port to 11300.
func ParseURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadURL, err)
	}
	if u.Scheme != "beanstalk" {
		return "", fmt.Errorf("%w: %q", ErrBadURL, raw)
	}

	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := u.Port()
	if port == "" {
		port = defaultPort
	}
	return net.JoinHostPort(host, port), nil
}
