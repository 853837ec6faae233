package logger

import (
	"fmt"
	"net"
	"sync"
)

// UDPWriter sends every Write as a single datagram to a fixed target.
// Delivery is best effort: the receiver may be absent.
type UDPWriter struct {
	mu     sync.Mutex
	conn   *net.UDPConn
	target string
}

// NewUDPWriter resolves host:port and opens a UDP socket for it.
func NewUDPWriter(target string) (*UDPWriter, error) {
	addr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return nil, fmt.Errorf("resolve log target %s: %w", target, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("open log target %s: %w", target, err)
	}
	return &UDPWriter{conn: conn, target: target}, nil
}

// Write sends p as one datagram.
func (w *UDPWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return 0, net.ErrClosed
	}
	return w.conn.Write(p)
}

// Target returns the configured host:port.
func (w *UDPWriter) Target() string {
	return w.target
}

// Close releases the socket. Subsequent writes fail with net.ErrClosed.
func (w *UDPWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return nil
	}
	err := w.conn.Close()
	w.conn = nil
	return err
}
