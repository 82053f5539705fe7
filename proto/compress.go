package proto

import (
	"bytes"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/flate"
)

// Compression algorithm marker bytes, prefixed to every batch once
// compression has been negotiated.
const (
	compressionByteFlate  = 0x00
	compressionByteSnappy = 0x01
	compressionByteNone   = 0xff
)

func compress(data []byte, algorithm uint16) ([]byte, error) {
	switch algorithm {
	case CompressionFlate:
		var buf bytes.Buffer
		fw, err := flate.NewWriter(&buf, 6)
		if err != nil {
			return nil, fmt.Errorf("flate: %w", err)
		}
		if _, err := fw.Write(data); err != nil {
			return nil, fmt.Errorf("flate: %w", err)
		}
		if err := fw.Close(); err != nil {
			return nil, fmt.Errorf("flate: %w", err)
		}
		return buf.Bytes(), nil
	case CompressionSnappy:
		return snappy.Encode(nil, data), nil
	case CompressionNone:
		return data, nil
	default:
		return nil, fmt.Errorf("compression algorithm %d unknown", algorithm)
	}
}

func decompress(data []byte, algorithm uint16) ([]byte, error) {
	switch algorithm {
	case CompressionFlate:
		fr := flate.NewReader(bytes.NewReader(data))
		out, err := io.ReadAll(io.LimitReader(fr, 64<<20))
		if err != nil {
			return nil, fmt.Errorf("flate: %w", err)
		}
		return out, fr.Close()
	case CompressionSnappy:
		out, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("snappy: %w", err)
		}
		return out, nil
	case CompressionNone:
		return data, nil
	default:
		return nil, fmt.Errorf("compression algorithm %d unknown", algorithm)
	}
}

func algorithmByte(algorithm uint16) uint8 {
	switch algorithm {
	case CompressionSnappy:
		return compressionByteSnappy
	case CompressionNone:
		return compressionByteNone
	default:
		return compressionByteFlate
	}
}

func algorithmFromByte(b uint8) (uint16, error) {
	switch b {
	case compressionByteFlate:
		return CompressionFlate, nil
	case compressionByteSnappy:
		return CompressionSnappy, nil
	case compressionByteNone:
		return CompressionNone, nil
	default:
		return 0, fmt.Errorf("compression marker 0x%02x unknown", b)
	}
}
