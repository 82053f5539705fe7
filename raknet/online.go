package raknet

import (
	"encoding/binary"
	"net/netip"
)

// Connected (post-handshake) packets travel inside frames, not as
// bare datagrams.

const systemAddressCount = 20

func encodeConnectedPing(t int64) []byte {
	buf := make([]byte, 0, 9)
	buf = append(buf, idConnectedPing)
	return binary.BigEndian.AppendUint64(buf, uint64(t))
}

func decodeConnectedPing(data []byte) (int64, error) {
	r := &frameReader{data: data, off: 1}
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

func encodeConnectedPong(pingTime, pongTime int64) []byte {
	buf := make([]byte, 0, 17)
	buf = append(buf, idConnectedPong)
	buf = binary.BigEndian.AppendUint64(buf, uint64(pingTime))
	return binary.BigEndian.AppendUint64(buf, uint64(pongTime))
}

func decodeConnectedPong(data []byte) (pingTime, pongTime int64, err error) {
	r := &frameReader{data: data, off: 1}
	b, err := r.take(16)
	if err != nil {
		return 0, 0, err
	}
	return int64(binary.BigEndian.Uint64(b[0:8])), int64(binary.BigEndian.Uint64(b[8:16])), nil
}

type connectionRequest struct {
	clientGUID int64
	sendTime   int64
}

func encodeConnectionRequest(clientGUID, sendTime int64) []byte {
	buf := make([]byte, 0, 18)
	buf = append(buf, idConnectionRequest)
	buf = binary.BigEndian.AppendUint64(buf, uint64(clientGUID))
	buf = binary.BigEndian.AppendUint64(buf, uint64(sendTime))
	return append(buf, 0) // no security
}

func decodeConnectionRequest(data []byte) (connectionRequest, error) {
	r := &frameReader{data: data, off: 1}
	b, err := r.take(16)
	if err != nil {
		return connectionRequest{}, err
	}
	return connectionRequest{
		clientGUID: int64(binary.BigEndian.Uint64(b[0:8])),
		sendTime:   int64(binary.BigEndian.Uint64(b[8:16])),
	}, nil
}

func encodeConnectionRequestAccepted(client netip.AddrPort, requestTime, acceptTime int64) []byte {
	buf := make([]byte, 0, 166)
	buf = append(buf, idConnectionRequestOK)
	buf = putAddr(buf, client)
	buf = binary.BigEndian.AppendUint16(buf, 0) // system index
	for i := 0; i < systemAddressCount; i++ {
		buf = putAddr(buf, emptyV4)
	}
	buf = binary.BigEndian.AppendUint64(buf, uint64(requestTime))
	return binary.BigEndian.AppendUint64(buf, uint64(acceptTime))
}

// decodeConnectionRequestAccepted pulls the timestamps back out of
// the server's acceptance; the client echoes them in its
// new-incoming-connection.
func decodeConnectionRequestAccepted(data []byte) (requestTime, acceptTime int64, err error) {
	r := &frameReader{data: data, off: 1}
	if _, err = readAddr(r); err != nil {
		return 0, 0, err
	}
	if _, err = r.take(2); err != nil { // system index
		return 0, 0, err
	}
	for i := 0; i < systemAddressCount; i++ {
		if len(r.data)-r.off <= 16 {
			break
		}
		if _, err = readAddr(r); err != nil {
			return 0, 0, err
		}
	}
	b, err := r.take(16)
	if err != nil {
		return 0, 0, err
	}
	return int64(binary.BigEndian.Uint64(b[0:8])), int64(binary.BigEndian.Uint64(b[8:16])), nil
}

func encodeNewIncomingConnection(server netip.AddrPort, requestTime, acceptTime int64) []byte {
	buf := make([]byte, 0, 166)
	buf = append(buf, idNewIncomingConnection)
	buf = putAddr(buf, server)
	for i := 0; i < systemAddressCount; i++ {
		buf = putAddr(buf, emptyV4)
	}
	buf = binary.BigEndian.AppendUint64(buf, uint64(requestTime))
	return binary.BigEndian.AppendUint64(buf, uint64(acceptTime))
}

type newIncomingConnection struct {
	requestTime int64
	acceptTime  int64
}

func decodeNewIncomingConnection(data []byte) (newIncomingConnection, error) {
	r := &frameReader{data: data, off: 1}
	if _, err := readAddr(r); err != nil {
		return newIncomingConnection{}, err
	}
	// The 20 system addresses are variable length; timestamps are
	// the trailing 16 bytes.
	for i := 0; i < systemAddressCount; i++ {
		if len(r.data)-r.off <= 16 {
			break
		}
		if _, err := readAddr(r); err != nil {
			return newIncomingConnection{}, err
		}
	}
	var nic newIncomingConnection
	if b, err := r.take(8); err == nil {
		nic.requestTime = int64(binary.BigEndian.Uint64(b))
	}
	if b, err := r.take(8); err == nil {
		nic.acceptTime = int64(binary.BigEndian.Uint64(b))
	}
	return nic, nil
}
