package conf

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ErrLogTargetFormat is returned when a log target has no port separator.
var ErrLogTargetFormat = errors.New("--log-target must be <ip:port>")

// LogTarget is a parsed <host:port> UDP destination.
type LogTarget struct {
	Host string
	Port int
}

// String returns the target in host:port form, bracketing IPv6 hosts.
func (t LogTarget) String() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// ParseLogTarget splits s at its last ':' into host and port.
// The host may be bracketed ([::1]:9999); the port must be in 1..65535.
func ParseLogTarget(s string) (LogTarget, error) {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return LogTarget{}, ErrLogTargetFormat
	}

	host := s[:idx]
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = host[1 : len(host)-1]
	}
	if host == "" {
		return LogTarget{}, fmt.Errorf("%w: missing host in %q", ErrLogTargetFormat, s)
	}

	portStr := s[idx+1:]
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return LogTarget{}, fmt.Errorf("%w: invalid port %q", ErrLogTargetFormat, portStr)
	}
	if port < 1 || port > 65535 {
		return LogTarget{}, fmt.Errorf("%w: port %d out of range", ErrLogTargetFormat, port)
	}

	return LogTarget{Host: host, Port: port}, nil
}
