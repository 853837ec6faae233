// Package receiver listens for the datagrams a detector forwards with
// --log-target and dispatches each line to handlers registered by pattern.
package receiver

import (
	"context"
	"net"
	"regexp"
	"strings"
	"sync"

	"github.com/elan-lab/ultravox-elan/internal/errors"
	"github.com/elan-lab/ultravox-elan/internal/logger"
)

// DefaultPort is the port the detector's documentation uses for --log-target.
const DefaultPort = 9999

const maxDatagramSize = 65536

var (
	// CSVPattern matches the CSV header and numbered call rows.
	CSVPattern = regexp.MustCompile(`^\d+;|^Call;`)
	// CallPattern captures the seven fields of a call row without the duration column.
	CallPattern = regexp.MustCompile(`^(\d+);([^;]+);([^;]+);([^;]+);([^;]+);([^;]+);([^;]+)$`)
	// AnyLine matches every non-empty datagram in full, embedded newlines included.
	AnyLine = regexp.MustCompile(`(?s).+`)
)

// IsCSV reports whether line is part of the CSV stream.
func IsCSV(line string) bool {
	return CSVPattern.MatchString(line)
}

// Handler receives the submatches of a line; groups[0] is the whole match.
type Handler func(groups []string)

type route struct {
	pattern *regexp.Regexp
	handler Handler
}

// Receiver reads datagrams from a packet connection.
type Receiver struct {
	conn net.PacketConn
	log  logger.Logger

	mu     sync.RWMutex
	routes []route
}

// Listen binds a UDP socket on addr, e.g. "0.0.0.0:9999".
func Listen(addr string) (*Receiver, error) {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, errors.New(err).
			Component("receiver").
			Category(errors.CategoryNetwork).
			Context("listen", addr).
			Build()
	}
	return New(conn), nil
}

// New wraps an existing packet connection. The receiver owns conn from now on.
func New(conn net.PacketConn) *Receiver {
	return &Receiver{conn: conn, log: GetLogger()}
}

// Addr returns the local address the receiver reads from.
func (r *Receiver) Addr() net.Addr {
	return r.conn.LocalAddr()
}

// On registers handler for lines matching pattern. Handlers run in
// registration order and every matching handler is called.
func (r *Receiver) On(pattern *regexp.Regexp, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route{pattern: pattern, handler: handler})
}

// Dispatch passes one datagram to the matching handlers. The trailing newline
// is trimmed and empty lines are ignored.
func (r *Receiver) Dispatch(datagram string) {
	line := strings.TrimRight(datagram, "\r\n")
	if line == "" {
		return
	}

	r.mu.RLock()
	routes := r.routes
	r.mu.RUnlock()

	for _, rt := range routes {
		if groups := rt.pattern.FindStringSubmatch(line); groups != nil {
			rt.handler(groups)
		}
	}
}

// Run reads datagrams until ctx is cancelled and closes the connection on return.
func (r *Receiver) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = r.conn.Close() })
	defer func() {
		if stop() {
			_ = r.conn.Close()
		}
	}()

	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := r.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.New(err).
				Component("receiver").
				Category(errors.CategoryNetwork).
				Context("operation", "read").
				Build()
		}
		r.log.Trace("datagram received", logger.Int("bytes", n), logger.String("from", from.String()))
		r.Dispatch(string(buf[:n]))
	}
}

// GetLogger returns the receiver module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("receiver")
}
