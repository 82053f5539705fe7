package raknet

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/netip"
)

// putAddr encodes a socket address in RakNet wire form. IPv4 octets
// are written complemented; IPv6 carries the AF_INET6 family value.
func putAddr(buf []byte, addr netip.AddrPort) []byte {
	if addr.Addr().Is4() || addr.Addr().Is4In6() {
		a4 := addr.Addr().As4()
		buf = append(buf, 4)
		for _, b := range a4 {
			buf = append(buf, ^b)
		}
		return binary.BigEndian.AppendUint16(buf, addr.Port())
	}
	buf = append(buf, 6)
	buf = binary.LittleEndian.AppendUint16(buf, 23) // AF_INET6
	buf = binary.BigEndian.AppendUint16(buf, addr.Port())
	buf = binary.BigEndian.AppendUint32(buf, 0) // flow info
	a16 := addr.Addr().As16()
	buf = append(buf, a16[:]...)
	return binary.BigEndian.AppendUint32(buf, 0) // scope id
}

func readAddr(r *frameReader) (netip.AddrPort, error) {
	ver, err := r.take(1)
	if err != nil {
		return netip.AddrPort{}, err
	}
	switch ver[0] {
	case 4:
		b, err := r.take(6)
		if err != nil {
			return netip.AddrPort{}, err
		}
		var a4 [4]byte
		for i := range a4 {
			a4[i] = ^b[i]
		}
		port := binary.BigEndian.Uint16(b[4:6])
		return netip.AddrPortFrom(netip.AddrFrom4(a4), port), nil
	case 6:
		b, err := r.take(28)
		if err != nil {
			return netip.AddrPort{}, err
		}
		port := binary.BigEndian.Uint16(b[2:4])
		var a16 [16]byte
		copy(a16[:], b[8:24])
		return netip.AddrPortFrom(netip.AddrFrom16(a16), port), nil
	default:
		return netip.AddrPort{}, fmt.Errorf("address version %d: %w", ver[0], io.ErrUnexpectedEOF)
	}
}

// udpAddrPort converts a net.Addr from a UDP socket to netip form.
func udpAddrPort(addr net.Addr) netip.AddrPort {
	if ua, ok := addr.(*net.UDPAddr); ok {
		return ua.AddrPort()
	}
	ap, _ := netip.ParseAddrPort(addr.String())
	return ap
}

// emptyV4 fills the system-address arrays of connection packets.
var emptyV4 = netip.AddrPortFrom(netip.AddrFrom4([4]byte{}), 0)
