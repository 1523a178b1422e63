package udp

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/berfenger/speedwire2mqtt/internal/core/port"
	"github.com/berfenger/speedwire2mqtt/pkg/speedwire"

	"go.uber.org/zap"
	"golang.org/x/net/ipv4"
)

const maxDatagramSize = 1500

var (
	ErrSocketClosed   = errors.New("udp: socket is not open")
	ErrInvalidAddress = errors.New("udp: invalid ipv4 address")
)

type Options struct {
	// Interfaces are the local ipv4 addresses to join the multicast group on; empty selects all multicast capable interfaces.
	Interfaces []string
	ListenPort int
	RemotePort int
}

func DefaultOptions(interfaces []string) Options {
	return Options{
		Interfaces: interfaces,
		ListenPort: speedwire.PORT,
		RemotePort: speedwire.PORT,
	}
}

// Socket is the shared speedwire udp socket. It is created closed, opened by the udp actor and used
// by every component that sends speedwire datagrams.
type Socket struct {
	opts   Options
	group  *net.UDPAddr
	mu     sync.Mutex
	conn   *net.UDPConn
	packet *ipv4.PacketConn
	joined []net.Interface
	logger *zap.Logger
}

func NewSocket(opts Options, logger *zap.Logger) *Socket {
	return &Socket{
		opts:   opts,
		group:  &net.UDPAddr{IP: net.ParseIP(speedwire.MULTICAST_GROUP), Port: opts.RemotePort},
		logger: logger,
	}
}

func (s *Socket) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return nil
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: s.opts.ListenPort})
	if err != nil {
		return fmt.Errorf("udp: listen on port %d: %w", s.opts.ListenPort, err)
	}
	packet := ipv4.NewPacketConn(conn)

	ifaces, err := s.multicastInterfaces()
	if err != nil {
		conn.Close()
		return err
	}
	s.joined = nil
	for _, ifi := range ifaces {
		if err := packet.JoinGroup(&ifi, s.group); err != nil {
			s.logger.Warn("udp: cannot join multicast group", zap.String("interface", ifi.Name), zap.Error(err))
			continue
		}
		s.joined = append(s.joined, ifi)
	}
	if err := packet.SetMulticastTTL(1); err != nil {
		s.logger.Warn("udp: cannot set multicast ttl", zap.Error(err))
	}
	if err := packet.SetMulticastLoopback(false); err != nil {
		s.logger.Warn("udp: cannot disable multicast loopback", zap.Error(err))
	}

	s.conn = conn
	s.packet = packet
	s.logger.Info("udp: socket open", zap.Stringer("local", conn.LocalAddr()), zap.Int("multicast_interfaces", len(s.joined)))
	return nil
}

func (s *Socket) multicastInterfaces() ([]net.Interface, error) {
	all, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("udp: list interfaces: %w", err)
	}
	var selected []net.Interface
	for _, ifi := range all {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagMulticast == 0 {
			continue
		}
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		if matchesInterface(s.opts.Interfaces, addrs) {
			selected = append(selected, ifi)
		}
	}
	return selected, nil
}

// matchesInterface reports whether one of addrs is a wanted local address; no wanted addresses
// selects every interface carrying an ipv4 address.
func matchesInterface(wanted []string, addrs []net.Addr) bool {
	for _, a := range addrs {
		prefix, err := netip.ParsePrefix(a.String())
		if err != nil || !prefix.Addr().Is4() {
			continue
		}
		if len(wanted) == 0 {
			return true
		}
		for _, w := range wanted {
			if prefix.Addr().String() == w {
				return true
			}
		}
	}
	return false
}

func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	for _, ifi := range s.joined {
		_ = s.packet.LeaveGroup(&ifi, s.group)
	}
	err := s.conn.Close()
	s.conn = nil
	s.packet = nil
	s.joined = nil
	return err
}

func (s *Socket) LocalAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// ReadLoop blocks reading datagrams until the socket is closed.
func (s *Socket) ReadLoop(handler func(data []byte, src netip.Addr)) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrSocketClosed
	}
	buf := make([]byte, maxDatagramSize)
	for {
		n, src, err := conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("udp: read: %w", err)
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		handler(data, src.Addr().Unmap())
	}
}

func (s *Socket) SendTo(ip string, datagram []byte) error {
	addr, err := netip.ParseAddr(ip)
	if err != nil || !addr.Is4() {
		return fmt.Errorf("%w: %s", ErrInvalidAddress, ip)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrSocketClosed
	}
	_, err = s.conn.WriteToUDPAddrPort(datagram, netip.AddrPortFrom(addr, uint16(s.opts.RemotePort)))
	return err
}

// Broadcast sends datagram to the speedwire multicast group on every joined interface.
func (s *Socket) Broadcast(datagram []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrSocketClosed
	}
	if len(s.joined) == 0 {
		_, err := s.conn.WriteToUDP(datagram, s.group)
		return err
	}
	var errs []error
	for _, ifi := range s.joined {
		if err := s.packet.SetMulticastInterface(&ifi); err != nil {
			errs = append(errs, fmt.Errorf("udp: interface %s: %w", ifi.Name, err))
			continue
		}
		if _, err := s.packet.WriteTo(datagram, nil, s.group); err != nil {
			errs = append(errs, fmt.Errorf("udp: interface %s: %w", ifi.Name, err))
		}
	}
	return errors.Join(errs...)
}

// InterfaceIP returns the first configured local address, used to tag discovered devices.
func (s *Socket) InterfaceIP() string {
	if len(s.opts.Interfaces) > 0 {
		return s.opts.Interfaces[0]
	}
	return ""
}

// ensure interface compliance
var _ port.PacketSender = (*Socket)(nil)
