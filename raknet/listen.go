package raknet

import (
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
)

// ListenConfig tunes a Listener.
type ListenConfig struct {
	// GUID is the server's stable 64-bit identifier. Zero picks one
	// derived from the bind address.
	GUID int64

	// Pong is the initial status answered to unconnected pings.
	Pong Pong
}

// A Listener accepts RakNet sessions on one UDP socket. Offline
// discovery is answered statelessly; a session is created on
// open-connection-request-2 and surfaced by Accept once the
// connected handshake completes.
type Listener struct {
	pc   net.PacketConn
	guid int64

	pong atomic.Pointer[Pong]

	incoming chan *Conn
	errs     chan error
	closed   chan struct{}
	once     sync.Once

	mu    sync.Mutex
	conns map[netip.AddrPort]*Conn
	guids map[int64]netip.AddrPort
}

// Listen starts serving RakNet on pc. The listener owns pc and
// closes it when the listener closes.
func Listen(pc net.PacketConn, cfg ListenConfig) *Listener {
	guid := cfg.GUID
	if guid == 0 {
		// Derive a stable-ish id from the bind address.
		for _, b := range []byte(pc.LocalAddr().String()) {
			guid = guid*31 + int64(b)
		}
	}
	l := &Listener{
		pc:       pc,
		guid:     guid,
		incoming: make(chan *Conn, 16),
		errs:     make(chan error, 8),
		closed:   make(chan struct{}),
		conns:    make(map[netip.AddrPort]*Conn),
		guids:    make(map[int64]netip.AddrPort),
	}
	pong := cfg.Pong
	l.pong.Store(&pong)
	go l.read()
	return l
}

// Accept waits for the next fully connected peer. Keep calling it
// until it returns ErrConnClosed.
func (l *Listener) Accept() (*Conn, error) {
	select {
	case c := <-l.incoming:
		return c, nil
	case err := <-l.errs:
		return nil, err
	case <-l.closed:
		return nil, ErrConnClosed
	}
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.pc.LocalAddr() }

// GUID returns the server identifier sent in offline replies.
func (l *Listener) GUID() int64 { return l.guid }

// SetPong replaces the unconnected-ping status, e.g. on player count
// changes.
func (l *Listener) SetPong(p Pong) {
	p.ServerGUID = l.guid
	l.pong.Store(&p)
}

// Close tears down the listener and every session on it.
func (l *Listener) Close() error {
	l.once.Do(func() {
		close(l.closed)
		l.mu.Lock()
		conns := make([]*Conn, 0, len(l.conns))
		for _, c := range l.conns {
			conns = append(conns, c)
		}
		l.mu.Unlock()
		for _, c := range conns {
			c.closeWith(nil, true)
		}
		l.pc.Close()
	})
	return nil
}

func (l *Listener) writeTo(data []byte, addr netip.AddrPort) {
	l.pc.WriteTo(data, net.UDPAddrFromAddrPort(addr))
}

func (l *Listener) read() {
	buf := make([]byte, MaxMTU+128)
	for {
		n, addr, err := l.pc.ReadFrom(buf)
		if err != nil {
			select {
			case <-l.closed:
			default:
				l.Close()
			}
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		if err := l.processDatagram(data, udpAddrPort(addr)); err != nil {
			select {
			case l.errs <- fmt.Errorf("%v: %w", addr, err):
			default:
			}
		}
	}
}

func (l *Listener) processDatagram(data []byte, addr netip.AddrPort) error {
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case idUnconnectedPing, idUnconnectedPingOpen:
		ping, err := decodeUnconnectedPing(data)
		if err != nil {
			return fmt.Errorf("unconnected ping: %w", err)
		}
		l.writeTo(encodeUnconnectedPong(ping.sendTime, l.guid, l.pong.Load().String()), addr)
		return nil

	case idOpenConnectionRequest1:
		req, err := decodeOpenConnectionRequest1(data)
		if err != nil {
			return fmt.Errorf("open connection request 1: %w", err)
		}
		if req.protocol != ProtocolVersion {
			l.writeTo(encodeIncompatibleProtocol(l.guid), addr)
			return nil
		}
		l.writeTo(encodeOpenConnectionReply1(l.guid, req.mtu), addr)
		return nil

	case idOpenConnectionRequest2:
		req, err := decodeOpenConnectionRequest2(data)
		if err != nil {
			return fmt.Errorf("open connection request 2: %w", err)
		}
		mtu := req.mtu
		if mtu > MaxMTU {
			mtu = MaxMTU
		}
		if mtu < MinMTU {
			mtu = MinMTU
		}
		if err := l.openSession(addr, req.clientGUID, mtu); err != nil {
			return err
		}
		l.writeTo(encodeOpenConnectionReply2(l.guid, addr, mtu), addr)
		return nil

	default:
		l.mu.Lock()
		c, ok := l.conns[addr]
		l.mu.Unlock()
		if !ok {
			// Unknown peer; RakNet quietly ignores stray traffic.
			return nil
		}
		select {
		case c.in <- data:
		case <-c.closed:
		default:
			return fmt.Errorf("dropping datagram for %v: receive queue full", addr)
		}
		return nil
	}
}

func (l *Listener) openSession(addr netip.AddrPort, guid int64, mtu uint16) error {
	l.mu.Lock()

	if c, ok := l.conns[addr]; ok {
		// A retransmitted request 2 for the live session is fine;
		// anything else means the peer restarted.
		if c.guid == guid {
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()
		c.closeWith(ErrAddrChanged, false)
		l.mu.Lock()
	}
	if prev, ok := l.guids[guid]; ok && prev != addr {
		// Same GUID from a new endpoint: the old session aborts and
		// the peer must reconnect from scratch.
		if c, live := l.conns[prev]; live {
			l.mu.Unlock()
			c.closeWith(ErrAddrChanged, false)
			l.mu.Lock()
		}
	}

	c := newConn(l, addr, guid, mtu)
	l.conns[addr] = c
	l.guids[guid] = addr
	l.mu.Unlock()
	return nil
}

func (l *Listener) queueAccept(c *Conn) {
	select {
	case l.incoming <- c:
	case <-l.closed:
	case <-c.closed:
	}
}

func (l *Listener) removeConn(c *Conn) {
	l.mu.Lock()
	if cur, ok := l.conns[c.raddr]; ok && cur == c {
		delete(l.conns, c.raddr)
	}
	if addr, ok := l.guids[c.guid]; ok && addr == c.raddr {
		delete(l.guids, c.guid)
	}
	l.mu.Unlock()
}
