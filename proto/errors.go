package proto

import "errors"

// Errors shared across the codec. Decode paths wrap these so callers
// can classify failures with errors.Is.
var (
	// ErrVarintTooLong reports a variable-length integer whose
	// continuation bits exceed the maximum width.
	ErrVarintTooLong = errors.New("varint too long")

	// ErrLengthOverflow reports a length prefix extending past the
	// input or an implausibly large allocation request.
	ErrLengthOverflow = errors.New("length overflows input")

	// ErrProtocolViolation is the session-fatal class: malformed
	// fixed fields, unexpected packets, failed decode of a known id.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrChecksumMismatch reports a failed packet integrity tag,
	// meaning cipher desync or tampering.
	ErrChecksumMismatch = errors.New("packet checksum mismatch")

	// ErrUnknownPacket reports a packet id with no registered
	// decoder. Unknown packets are logged and dropped, never fatal.
	ErrUnknownPacket = errors.New("unknown packet id")
)
