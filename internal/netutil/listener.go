// Package netutil provides small address-formatting helpers shared by the
// connection layer and the admin plane.
package netutil

import (
	"fmt"
	"net"
	"strings"
)

// ListenerURL returns a human-friendly scheme://host:port string for a bind
// address, normalising wildcard hosts to "localhost" so operators reading a
// startup log line see something they can actually open. Generalised from
// the teacher's listenerURL (server_url.go), which did the same thing for a
// single HTTP listener; here it is used for both the MD's TCP listener and
// the admin HTTP listener.
func ListenerURL(scheme, address string) string {
	return fmt.Sprintf("%s://%s", scheme, NormaliseHostPort(address))
}

// NormaliseHostPort rewrites an address so an unspecified or wildcard host
// becomes "localhost", leaving the port untouched.
func NormaliseHostPort(address string) string {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return "localhost"
	}
	host, port, err := net.SplitHostPort(trimmed)
	if err != nil {
		if strings.HasPrefix(trimmed, ":") {
			return "localhost" + trimmed
		}
		return trimmed
	}
	host = strings.TrimSpace(host)
	switch host {
	case "", "0.0.0.0", "::", "[::]":
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
