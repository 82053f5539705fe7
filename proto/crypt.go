package proto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// DeriveKey turns the handshake salt and the ECDH shared secret into
// the session key material: key = SHA-256(salt || secret), with the
// first 16 key bytes doubling as the initial vector.
func DeriveKey(salt, sharedSecret []byte) (key [32]byte, iv [16]byte) {
	h := sha256.New()
	h.Write(salt)
	h.Write(sharedSecret)
	copy(key[:], h.Sum(nil))
	copy(iv[:], key[:16])
	return key, iv
}

// NewSalt returns a fresh 16-byte handshake salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("handshake salt: %w", err)
	}
	return salt, nil
}

// SharedSecret computes the ECDH P-384 shared secret between the
// server's ephemeral key and the client's authenticated public key.
func SharedSecret(priv *ecdsa.PrivateKey, pub *ecdsa.PublicKey) ([]byte, error) {
	ep, err := priv.ECDH()
	if err != nil {
		return nil, fmt.Errorf("ecdh private key: %w", err)
	}
	eq, err := pub.ECDH()
	if err != nil {
		return nil, fmt.Errorf("ecdh public key: %w", err)
	}
	secret, err := ep.ECDH(eq)
	if err != nil {
		return nil, fmt.Errorf("ecdh: %w", err)
	}
	return secret, nil
}

// cfb8 is AES in 8-bit cipher feedback mode: one evolving shift
// register per direction, advanced a byte at a time. The standard
// library only ships the 128-bit feedback variant.
type cfb8 struct {
	block cipher.Block
	shift [16]byte
}

func newCFB8(block cipher.Block, iv [16]byte) *cfb8 {
	c := &cfb8{block: block}
	c.shift = iv
	return c
}

func (c *cfb8) encrypt(dst, src []byte) {
	var ks [16]byte
	for i, b := range src {
		c.block.Encrypt(ks[:], c.shift[:])
		ct := b ^ ks[0]
		dst[i] = ct
		copy(c.shift[:], c.shift[1:])
		c.shift[15] = ct
	}
}

func (c *cfb8) decrypt(dst, src []byte) {
	var ks [16]byte
	for i, b := range src {
		c.block.Encrypt(ks[:], c.shift[:])
		copy(c.shift[:], c.shift[1:])
		c.shift[15] = b
		dst[i] = b ^ ks[0]
	}
}

// A Cipher is the per-session packet encryption state: AES-256-CFB8
// in each direction plus the send/receive counters behind the 8-byte
// integrity tag. Decryption of packet N requires packets 0..N-1 to
// have been decrypted first, which the reliable-ordered channel
// guarantees.
type Cipher struct {
	key  [32]byte
	enc  *cfb8
	dec  *cfb8
	sent uint64
	rcvd uint64
}

// NewCipher builds both directions from the derived key material.
func NewCipher(key [32]byte, iv [16]byte) (*Cipher, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	return &Cipher{
		key: key,
		enc: newCFB8(block, iv),
		dec: newCFB8(block, iv),
	}, nil
}

func (c *Cipher) tag(counter uint64, payload []byte) [8]byte {
	h := sha256.New()
	var ctr [8]byte
	binary.LittleEndian.PutUint64(ctr[:], counter)
	h.Write(ctr[:])
	h.Write(payload)
	h.Write(c.key[:])
	var tag [8]byte
	copy(tag[:], h.Sum(nil))
	return tag
}

// Encrypt appends the integrity tag and encrypts in one pass.
func (c *Cipher) Encrypt(payload []byte) []byte {
	tag := c.tag(c.sent, payload)
	c.sent++
	out := make([]byte, len(payload)+8)
	copy(out, payload)
	copy(out[len(payload):], tag[:])
	c.enc.encrypt(out, out)
	return out
}

// Decrypt reverses Encrypt and verifies the tag. A mismatch is
// session-fatal: the stream cipher is out of step or the data was
// tampered with.
func (c *Cipher) Decrypt(data []byte) ([]byte, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("encrypted payload of %d bytes: %w", len(data), ErrChecksumMismatch)
	}
	out := make([]byte, len(data))
	c.dec.decrypt(out, data)
	payload, got := out[:len(out)-8], out[len(out)-8:]
	want := c.tag(c.rcvd, payload)
	c.rcvd++
	if [8]byte(got) != want {
		return nil, ErrChecksumMismatch
	}
	return payload, nil
}
