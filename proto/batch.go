package proto

import "fmt"

// A BatchCodec applies the per-session outbound pipeline — batch
// assembly, compression past the threshold, authenticated encryption
// — and its inverse. Compression settings appear after the
// network-settings exchange; the cipher after the encryption
// handshake. Not safe for concurrent use: the cipher state must
// evolve strictly in send/receive order.
type BatchCodec struct {
	compression uint16
	threshold   int
	compressOn  bool
	cipher      *Cipher
}

// EnableCompression activates the negotiated algorithm for all
// following batches.
func (b *BatchCodec) EnableCompression(algorithm uint16, threshold int) {
	b.compression = algorithm
	b.threshold = threshold
	b.compressOn = true
}

// EnableEncryption activates the cipher for all following batches.
func (b *BatchCodec) EnableEncryption(c *Cipher) { b.cipher = c }

// Encrypted reports whether the encryption handshake has completed.
func (b *BatchCodec) Encrypted() bool { return b.cipher != nil }

// Encode packs the already-marshalled packets (uvarint id + body
// each) into one reliable-frame payload, envelope byte included.
func (b *BatchCodec) Encode(packets [][]byte) ([]byte, error) {
	batch := NewWriter()
	for _, pk := range packets {
		batch.ByteSlice(pk)
	}
	payload := batch.Bytes()

	if b.compressOn {
		algorithm := b.compression
		if len(payload) < b.threshold {
			algorithm = CompressionNone
		}
		compressed, err := compress(payload, algorithm)
		if err != nil {
			return nil, err
		}
		payload = append([]byte{algorithmByte(algorithm)}, compressed...)
	}

	if b.cipher != nil {
		payload = b.cipher.Encrypt(payload)
	}

	return append([]byte{GamePacketEnvelope}, payload...), nil
}

// Decode reverses Encode, returning the raw sub-packets of the
// batch. Any failure in the pipeline is a protocol violation.
func (b *BatchCodec) Decode(data []byte) ([][]byte, error) {
	if len(data) == 0 || data[0] != GamePacketEnvelope {
		return nil, fmt.Errorf("missing 0x%02x envelope: %w", GamePacketEnvelope, ErrProtocolViolation)
	}
	payload := data[1:]

	if b.cipher != nil {
		var err error
		if payload, err = b.cipher.Decrypt(payload); err != nil {
			return nil, fmt.Errorf("%w: %w", err, ErrProtocolViolation)
		}
	}

	if b.compressOn {
		if len(payload) == 0 {
			return nil, fmt.Errorf("empty batch: %w", ErrProtocolViolation)
		}
		algorithm, err := algorithmFromByte(payload[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", err, ErrProtocolViolation)
		}
		if payload, err = decompress(payload[1:], algorithm); err != nil {
			return nil, fmt.Errorf("%w: %w", err, ErrProtocolViolation)
		}
	}

	r := NewReader(payload)
	var packets [][]byte
	for r.Remaining() > 0 {
		pk, err := r.ByteSlice()
		if err != nil {
			return nil, fmt.Errorf("batch entry %d: %w: %w", len(packets), err, ErrProtocolViolation)
		}
		packets = append(packets, pk)
	}
	return packets, nil
}
