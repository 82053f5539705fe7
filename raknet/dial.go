package raknet

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"net"
	"net/netip"
	"time"
)

// Dial performs the offline handshake against a server and returns
// a connected Conn once the connection request is accepted.
func Dial(addr string, timeout time.Duration) (*Conn, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	uc, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	deadline := time.Now().Add(timeout)
	guid := rand.Int63()

	mtu, err := offlineHandshake(uc, guid, deadline)
	if err != nil {
		uc.Close()
		return nil, err
	}

	d := &dialer{uc: uc, accepted: make(chan *Conn, 1)}
	c := newConn(d, udpAddrPort(raddr), guid, mtu)
	d.conn = c
	go d.read()

	c.writeConnected(encodeConnectionRequest(guid, c.clock()), ReliableOrdered)

	select {
	case <-c.connected:
		return c, nil
	case <-c.closed:
		return nil, ErrConnClosed
	case <-time.After(time.Until(deadline)):
		c.closeWith(ErrTimedOut, false)
		return nil, ErrTimedOut
	}
}

// offlineHandshake runs open-connection request/reply 1 and 2,
// returning the negotiated MTU.
func offlineHandshake(uc *net.UDPConn, guid int64, deadline time.Time) (uint16, error) {
	uc.SetDeadline(deadline)
	defer uc.SetDeadline(time.Time{})

	// Request 1 is zero-padded to probe the path MTU.
	req1 := make([]byte, MaxMTU-28)
	req1[0] = idOpenConnectionRequest1
	copy(req1[1:], magic[:])
	req1[17] = ProtocolVersion
	if _, err := uc.Write(req1); err != nil {
		return 0, fmt.Errorf("open connection request 1: %w", err)
	}

	buf := make([]byte, 2048)
	var mtu uint16
	for {
		n, err := uc.Read(buf)
		if err != nil {
			return 0, fmt.Errorf("open connection reply 1: %w", err)
		}
		if n >= 28 && buf[0] == idOpenConnectionReply1 {
			mtu = binary.BigEndian.Uint16(buf[26:28])
			break
		}
		if n >= 2 && buf[0] == 0x19 {
			return 0, fmt.Errorf("server speaks raknet protocol %d, not %d", buf[1], ProtocolVersion)
		}
	}

	req2 := make([]byte, 0, 46)
	req2 = append(req2, idOpenConnectionRequest2)
	req2 = append(req2, magic[:]...)
	req2 = putAddr(req2, udpAddrPort(uc.RemoteAddr()))
	req2 = binary.BigEndian.AppendUint16(req2, mtu)
	req2 = binary.BigEndian.AppendUint64(req2, uint64(guid))
	if _, err := uc.Write(req2); err != nil {
		return 0, fmt.Errorf("open connection request 2: %w", err)
	}

	for {
		n, err := uc.Read(buf)
		if err != nil {
			return 0, fmt.Errorf("open connection reply 2: %w", err)
		}
		if n >= 1 && buf[0] == idOpenConnectionReply2 {
			return mtu, nil
		}
	}
}

// dialer is the client-side connHost: one socket, one Conn.
type dialer struct {
	uc       *net.UDPConn
	conn     *Conn
	accepted chan *Conn
}

func (d *dialer) writeTo(data []byte, _ netip.AddrPort) {
	d.uc.Write(data)
}

func (d *dialer) removeConn(*Conn) {
	d.uc.Close()
}

func (d *dialer) queueAccept(c *Conn) {
	select {
	case d.accepted <- c:
	default:
	}
}

func (d *dialer) read() {
	buf := make([]byte, MaxMTU+128)
	for {
		n, err := d.uc.Read(buf)
		if err != nil {
			d.conn.closeWith(nil, false)
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case d.conn.in <- data:
		case <-d.conn.closed:
			return
		}
	}
}
