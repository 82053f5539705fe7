package proto

import "fmt"

// Login carries the client's protocol version and the JWT chain that
// authenticates it. The chain JSON and client-data JWT are kept raw;
// ParseLoginChain verifies the chain and extracts the identity.
type Login struct {
	ClientProtocol int32
	// ChainData is the raw JSON carrying the certificate chain.
	ChainData []byte
	// ClientData is the raw JWT with skin and device information.
	ClientData []byte
}

func (*Login) ID() uint32 { return IDLogin }

func (pk *Login) Marshal(w *Writer) {
	w.I32BE(pk.ClientProtocol)
	w.Uvarint32(uint32(4 + len(pk.ChainData) + 4 + len(pk.ClientData)))
	w.I32LE(int32(len(pk.ChainData)))
	w.Raw(pk.ChainData)
	w.I32LE(int32(len(pk.ClientData)))
	w.Raw(pk.ClientData)
}

func (pk *Login) Unmarshal(r *Reader) error {
	var err error
	if pk.ClientProtocol, err = r.I32BE(); err != nil {
		return err
	}
	payload, err := r.ByteSlice()
	if err != nil {
		return fmt.Errorf("connection request payload: %w", err)
	}
	pr := NewReader(payload)
	chainLen, err := pr.I32LE()
	if err != nil {
		return err
	}
	if chainLen < 0 || int(chainLen) > pr.Remaining() {
		return fmt.Errorf("chain length %d: %w", chainLen, ErrLengthOverflow)
	}
	if pk.ChainData, err = pr.Bytes(int(chainLen)); err != nil {
		return err
	}
	clientLen, err := pr.I32LE()
	if err != nil {
		return err
	}
	if clientLen < 0 || int(clientLen) > pr.Remaining() {
		return fmt.Errorf("client data length %d: %w", clientLen, ErrLengthOverflow)
	}
	pk.ClientData, err = pr.Bytes(int(clientLen))
	return err
}

// PlayStatus result codes.
const (
	PlayStatusLoginSuccess int32 = iota
	PlayStatusLoginFailedClient
	PlayStatusLoginFailedServer
	PlayStatusPlayerSpawn
	PlayStatusLoginFailedInvalidTenant
	PlayStatusLoginFailedVanillaEdu
	PlayStatusLoginFailedIncompatible
	PlayStatusLoginFailedServerFull
)

// PlayStatus reports login results and spawn readiness.
type PlayStatus struct {
	Status int32
}

func (*PlayStatus) ID() uint32 { return IDPlayStatus }

func (pk *PlayStatus) Marshal(w *Writer) { w.I32BE(pk.Status) }

func (pk *PlayStatus) Unmarshal(r *Reader) error {
	var err error
	pk.Status, err = r.I32BE()
	return err
}

// ServerToClientHandshake starts the encryption handshake: a JWT
// signed with the server's ephemeral key, carrying its public key
// and the salt.
type ServerToClientHandshake struct {
	JWT string
}

func (*ServerToClientHandshake) ID() uint32 { return IDServerToClientHandshake }

func (pk *ServerToClientHandshake) Marshal(w *Writer) { w.String(pk.JWT) }

func (pk *ServerToClientHandshake) Unmarshal(r *Reader) error {
	var err error
	pk.JWT, err = r.String()
	return err
}

// ClientToServerHandshake is the client's empty acknowledgement that
// encryption is active in both directions.
type ClientToServerHandshake struct{}

func (*ClientToServerHandshake) ID() uint32 { return IDClientToServerHandshake }

func (*ClientToServerHandshake) Marshal(*Writer) {}

func (*ClientToServerHandshake) Unmarshal(*Reader) error { return nil }

// Disconnect tells the peer the session is over. The message shows
// on the client's disconnect screen unless hidden.
type Disconnect struct {
	Reason          int32
	HideScreen      bool
	Message         string
	FilteredMessage string
}

func (*Disconnect) ID() uint32 { return IDDisconnect }

func (pk *Disconnect) Marshal(w *Writer) {
	w.Varint32(pk.Reason)
	w.Bool(pk.HideScreen)
	if !pk.HideScreen {
		w.String(pk.Message)
		w.String(pk.FilteredMessage)
	}
}

func (pk *Disconnect) Unmarshal(r *Reader) error {
	var err error
	if pk.Reason, err = r.Varint32(); err != nil {
		return err
	}
	if pk.HideScreen, err = r.Bool(); err != nil {
		return err
	}
	if pk.HideScreen {
		return nil
	}
	if pk.Message, err = r.String(); err != nil {
		return err
	}
	pk.FilteredMessage, err = r.String()
	return err
}

// RequestNetworkSettings is the first game packet on the wire: the
// client announces its protocol version before anything is
// compressed.
type RequestNetworkSettings struct {
	ClientProtocol int32
}

func (*RequestNetworkSettings) ID() uint32 { return IDRequestNetworkSettings }

func (pk *RequestNetworkSettings) Marshal(w *Writer) { w.I32BE(pk.ClientProtocol) }

func (pk *RequestNetworkSettings) Unmarshal(r *Reader) error {
	var err error
	pk.ClientProtocol, err = r.I32BE()
	return err
}

// Compression algorithm values of the NetworkSettings packet.
const (
	CompressionFlate  uint16 = 0
	CompressionSnappy uint16 = 1
	CompressionNone   uint16 = 0xffff
)

// NetworkSettings activates compression for everything after it.
type NetworkSettings struct {
	CompressionThreshold    uint16
	CompressionAlgorithm    uint16
	ClientThrottleEnabled   bool
	ClientThrottleThreshold uint8
	ClientThrottleScalar    float32
}

func (*NetworkSettings) ID() uint32 { return IDNetworkSettings }

func (pk *NetworkSettings) Marshal(w *Writer) {
	w.U16LE(pk.CompressionThreshold)
	w.U16LE(pk.CompressionAlgorithm)
	w.Bool(pk.ClientThrottleEnabled)
	w.U8(pk.ClientThrottleThreshold)
	w.F32LE(pk.ClientThrottleScalar)
}

func (pk *NetworkSettings) Unmarshal(r *Reader) error {
	var err error
	if pk.CompressionThreshold, err = r.U16LE(); err != nil {
		return err
	}
	if pk.CompressionAlgorithm, err = r.U16LE(); err != nil {
		return err
	}
	if pk.ClientThrottleEnabled, err = r.Bool(); err != nil {
		return err
	}
	if pk.ClientThrottleThreshold, err = r.U8(); err != nil {
		return err
	}
	pk.ClientThrottleScalar, err = r.F32LE()
	return err
}
