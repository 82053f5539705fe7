package raknet

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// A Pong is the server status answered to unconnected pings. It is
// rendered as the semicolon-separated MOTD string of the
// unconnected-pong packet.
type Pong struct {
	ServerName      string
	ProtocolVersion int
	GameVersion     string
	PlayerCount     int
	MaxPlayers      int
	ServerGUID      int64
	WorldName       string
	GameMode        string
	GameModeNumeric int
	PortV4          uint16
	PortV6          uint16
}

// String renders the 12-field MOTD form, leading "MCPE" included.
func (p Pong) String() string {
	fields := []string{
		"MCPE",
		p.ServerName,
		strconv.Itoa(p.ProtocolVersion),
		p.GameVersion,
		strconv.Itoa(p.PlayerCount),
		strconv.Itoa(p.MaxPlayers),
		strconv.FormatInt(p.ServerGUID, 10),
		p.WorldName,
		p.GameMode,
		strconv.Itoa(p.GameModeNumeric),
		strconv.Itoa(int(p.PortV4)),
		strconv.Itoa(int(p.PortV6)),
	}
	return strings.Join(fields, ";")
}

// ParsePong parses a MOTD string back into its fields.
func ParsePong(s string) (Pong, error) {
	fields := strings.Split(s, ";")
	if len(fields) < 12 {
		return Pong{}, fmt.Errorf("motd has %d fields, want 12", len(fields))
	}
	if fields[0] != "MCPE" {
		return Pong{}, fmt.Errorf("motd marker %q, want MCPE", fields[0])
	}
	var p Pong
	var err error
	p.ServerName = fields[1]
	if p.ProtocolVersion, err = strconv.Atoi(fields[2]); err != nil {
		return Pong{}, fmt.Errorf("protocol version: %w", err)
	}
	p.GameVersion = fields[3]
	if p.PlayerCount, err = strconv.Atoi(fields[4]); err != nil {
		return Pong{}, fmt.Errorf("player count: %w", err)
	}
	if p.MaxPlayers, err = strconv.Atoi(fields[5]); err != nil {
		return Pong{}, fmt.Errorf("max players: %w", err)
	}
	if p.ServerGUID, err = strconv.ParseInt(fields[6], 10, 64); err != nil {
		return Pong{}, fmt.Errorf("server guid: %w", err)
	}
	p.WorldName = fields[7]
	p.GameMode = fields[8]
	if p.GameModeNumeric, err = strconv.Atoi(fields[9]); err != nil {
		return Pong{}, fmt.Errorf("gamemode numeric: %w", err)
	}
	v4, err := strconv.Atoi(fields[10])
	if err != nil {
		return Pong{}, fmt.Errorf("ipv4 port: %w", err)
	}
	v6, err := strconv.Atoi(fields[11])
	if err != nil {
		return Pong{}, fmt.Errorf("ipv6 port: %w", err)
	}
	p.PortV4, p.PortV6 = uint16(v4), uint16(v6)
	return p, nil
}

func checkMagic(r *frameReader) error {
	b, err := r.take(16)
	if err != nil {
		return err
	}
	if [16]byte(b) != magic {
		return fmt.Errorf("bad offline magic: %x", b)
	}
	return nil
}

type unconnectedPing struct {
	sendTime   int64
	clientGUID int64
}

func decodeUnconnectedPing(data []byte) (unconnectedPing, error) {
	r := &frameReader{data: data, off: 1}
	ts, err := r.take(8)
	if err != nil {
		return unconnectedPing{}, err
	}
	if err := checkMagic(r); err != nil {
		return unconnectedPing{}, err
	}
	guid, err := r.take(8)
	if err != nil {
		return unconnectedPing{}, err
	}
	return unconnectedPing{
		sendTime:   int64(binary.BigEndian.Uint64(ts)),
		clientGUID: int64(binary.BigEndian.Uint64(guid)),
	}, nil
}

func encodeUnconnectedPong(sendTime, serverGUID int64, motd string) []byte {
	buf := make([]byte, 0, 35+len(motd))
	buf = append(buf, idUnconnectedPong)
	buf = binary.BigEndian.AppendUint64(buf, uint64(sendTime))
	buf = binary.BigEndian.AppendUint64(buf, uint64(serverGUID))
	buf = append(buf, magic[:]...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(motd)))
	return append(buf, motd...)
}

type openConnectionRequest1 struct {
	protocol uint8
	mtu      uint16 // inferred from the padded datagram length
}

func decodeOpenConnectionRequest1(data []byte) (openConnectionRequest1, error) {
	r := &frameReader{data: data, off: 1}
	if err := checkMagic(r); err != nil {
		return openConnectionRequest1{}, err
	}
	proto, err := r.take(1)
	if err != nil {
		return openConnectionRequest1{}, err
	}
	// The request is zero-padded to the MTU the client wants,
	// counting the 28-byte UDP/IP overhead.
	mtu := len(data) + 28
	if mtu > MaxMTU {
		mtu = MaxMTU
	}
	if mtu < MinMTU {
		return openConnectionRequest1{}, fmt.Errorf("mtu %d below minimum %d", mtu, MinMTU)
	}
	return openConnectionRequest1{protocol: proto[0], mtu: uint16(mtu)}, nil
}

func encodeOpenConnectionReply1(serverGUID int64, mtu uint16) []byte {
	buf := make([]byte, 0, 28)
	buf = append(buf, idOpenConnectionReply1)
	buf = append(buf, magic[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(serverGUID))
	buf = append(buf, 0) // no security
	return binary.BigEndian.AppendUint16(buf, mtu)
}

type openConnectionRequest2 struct {
	serverAddr netip.AddrPort
	mtu        uint16
	clientGUID int64
}

func decodeOpenConnectionRequest2(data []byte) (openConnectionRequest2, error) {
	r := &frameReader{data: data, off: 1}
	if err := checkMagic(r); err != nil {
		return openConnectionRequest2{}, err
	}
	addr, err := readAddr(r)
	if err != nil {
		return openConnectionRequest2{}, err
	}
	rest, err := r.take(10)
	if err != nil {
		return openConnectionRequest2{}, err
	}
	return openConnectionRequest2{
		serverAddr: addr,
		mtu:        binary.BigEndian.Uint16(rest[0:2]),
		clientGUID: int64(binary.BigEndian.Uint64(rest[2:10])),
	}, nil
}

func encodeOpenConnectionReply2(serverGUID int64, client netip.AddrPort, mtu uint16) []byte {
	buf := make([]byte, 0, 35)
	buf = append(buf, idOpenConnectionReply2)
	buf = append(buf, magic[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(serverGUID))
	buf = putAddr(buf, client)
	buf = binary.BigEndian.AppendUint16(buf, mtu)
	return append(buf, 0) // no encryption at the RakNet layer
}

// encodeIncompatibleProtocol answers an open-connection-request-1 whose
// RakNet protocol version the listener does not speak.
func encodeIncompatibleProtocol(serverGUID int64) []byte {
	buf := make([]byte, 0, 26)
	buf = append(buf, 0x19)
	buf = append(buf, ProtocolVersion)
	buf = append(buf, magic[:]...)
	return binary.BigEndian.AppendUint64(buf, uint64(serverGUID))
}
