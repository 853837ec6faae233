// Package dhcpd is a single-lease DHCPv4 server for bench setups where the
// detector is connected straight to a workstation through a PoE injector.
package dhcpd

import (
	"fmt"
	"net"
	"time"

	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/insomniacslk/dhcp/dhcpv4/server4"

	"github.com/elan-lab/ultravox-elan/internal/errors"
	"github.com/elan-lab/ultravox-elan/internal/logger"
)

// Defaults matching the workstation address documented for the detector.
const (
	DefaultServerIP = "10.0.0.1"
	DefaultOfferIP  = "10.0.0.100"
	DefaultNetmask  = "255.255.255.0"
	DefaultLease    = time.Hour
)

// Config describes the one lease handed out.
type Config struct {
	ServerIP  net.IP
	OfferIP   net.IP
	Netmask   net.IPMask
	Lease     time.Duration
	Interface string // bind to this interface, empty for all
}

// ParseConfig builds a Config from dotted-quad strings.
func ParseConfig(serverIP, offerIP, netmask string, lease time.Duration, iface string) (Config, error) {
	server := net.ParseIP(serverIP).To4()
	offer := net.ParseIP(offerIP).To4()
	mask := net.ParseIP(netmask).To4()

	var problems []string
	if server == nil {
		problems = append(problems, fmt.Sprintf("invalid server IP %q", serverIP))
	}
	if offer == nil {
		problems = append(problems, fmt.Sprintf("invalid offer IP %q", offerIP))
	}
	if mask == nil {
		problems = append(problems, fmt.Sprintf("invalid netmask %q", netmask))
	}
	if lease < time.Second {
		problems = append(problems, fmt.Sprintf("lease must be at least 1s, got %s", lease))
	}
	if len(problems) > 0 {
		return Config{}, errors.Newf("dhcp config: %v", problems).
			Component("dhcpd").
			Category(errors.CategoryValidation).
			Build()
	}

	return Config{
		ServerIP:  server,
		OfferIP:   offer,
		Netmask:   net.IPMask(mask),
		Lease:     lease,
		Interface: iface,
	}, nil
}

// BuildReply answers DISCOVER with OFFER and REQUEST with ACK. It returns nil
// for every other message type.
func BuildReply(cfg *Config, req *dhcpv4.DHCPv4) (*dhcpv4.DHCPv4, error) {
	var replyType dhcpv4.MessageType
	switch req.MessageType() {
	case dhcpv4.MessageTypeDiscover:
		replyType = dhcpv4.MessageTypeOffer
	case dhcpv4.MessageTypeRequest:
		replyType = dhcpv4.MessageTypeAck
	default:
		return nil, nil
	}

	return dhcpv4.NewReplyFromRequest(req,
		dhcpv4.WithMessageType(replyType),
		dhcpv4.WithYourIP(cfg.OfferIP),
		dhcpv4.WithServerIP(cfg.ServerIP),
		dhcpv4.WithOption(dhcpv4.OptServerIdentifier(cfg.ServerIP)),
		dhcpv4.WithLeaseTime(uint32(cfg.Lease/time.Second)),
		dhcpv4.WithNetmask(cfg.Netmask),
		dhcpv4.WithRouter(cfg.ServerIP),
	)
}

// broadcastAddr is where every reply goes; the client has no address yet.
var broadcastAddr = &net.UDPAddr{IP: net.IPv4bcast, Port: dhcpv4.ClientPort}

// Handler returns the server4 handler for cfg.
func Handler(cfg *Config) server4.Handler {
	log := GetLogger()
	return func(conn net.PacketConn, _ net.Addr, req *dhcpv4.DHCPv4) {
		reply, err := BuildReply(cfg, req)
		if err != nil {
			log.Error("failed to build reply", logger.String("client", req.ClientHWAddr.String()), logger.Error(err))
			return
		}
		if reply == nil {
			log.Debug("ignoring message", logger.String("type", req.MessageType().String()),
				logger.String("client", req.ClientHWAddr.String()))
			return
		}

		log.Info(fmt.Sprintf("%s from %s", req.MessageType(), req.ClientHWAddr),
			logger.String("reply", reply.MessageType().String()),
			logger.String("address", cfg.OfferIP.String()))
		if _, err := conn.WriteTo(reply.ToBytes(), broadcastAddr); err != nil {
			log.Error("failed to send reply", logger.String("reply", reply.MessageType().String()), logger.Error(err))
		}
	}
}

// Server wraps a server4.Server bound to port 67.
type Server struct {
	srv *server4.Server
}

// NewServer binds the DHCP port. It needs the privileges to do so.
func NewServer(cfg *Config) (*Server, error) {
	addr := &net.UDPAddr{IP: net.IPv4zero, Port: dhcpv4.ServerPort}
	srv, err := server4.NewServer(cfg.Interface, addr, Handler(cfg), server4.WithLogger(serverLogger{GetLogger()}))
	if err != nil {
		return nil, errors.New(err).
			Component("dhcpd").
			Category(errors.CategoryNetwork).
			Context("interface", cfg.Interface).
			Build()
	}
	return &Server{srv: srv}, nil
}

// Serve handles requests until Close is called.
func (s *Server) Serve() error {
	return s.srv.Serve()
}

// Close stops Serve.
func (s *Server) Close() error {
	return s.srv.Close()
}

// serverLogger routes server4 diagnostics to the dhcpd module at debug level.
type serverLogger struct {
	log logger.Logger
}

func (l serverLogger) Printf(format string, v ...any) {
	l.log.Debug(fmt.Sprintf(format, v...))
}

func (l serverLogger) PrintMessage(prefix string, message *dhcpv4.DHCPv4) {
	l.log.Debug(prefix, logger.String("message", message.Summary()))
}

// GetLogger returns the dhcpd module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("dhcpd")
}
