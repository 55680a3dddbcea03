package netutil

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
)

// Listen binds the preferred address, or the first free candidate when
// autoFallback is set. The returned listener is ready for http.Server.Serve.
func Listen(preferred string, candidates []string, autoFallback bool) (net.Listener, error) {
	if preferred != "" {
		ln, err := net.Listen("tcp", preferred)
		if err == nil {
			return ln, nil
		}
		if !autoFallback {
			return nil, fmt.Errorf("preferred bind address in use: %s: %w", preferred, err)
		}
		slog.Warn("preferred bind address unavailable, trying candidates", "addr", preferred, "error", err)
	}

	for _, addr := range candidates {
		if addr == preferred {
			continue
		}
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			slog.Debug("bind candidate unavailable", "addr", addr, "error", err)
			continue
		}
		return ln, nil
	}

	return nil, errors.New("no available bind addresses")
}

// ParseCandidates splits a comma separated address list. Bare ports are
// bound on host.
func ParseCandidates(list, host string) []string {
	var out []string
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if !strings.Contains(item, ":") {
			item = net.JoinHostPort(host, item)
		}
		out = append(out, item)
	}
	return out
}
