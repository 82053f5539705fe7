package nbt

import (
	"fmt"
	"io"
)

type reader struct {
	data []byte
	off  int
	enc  Encoding
}

// Unmarshal decodes a root compound in the given variant. It returns
// the root's name, the compound and the number of bytes consumed.
func Unmarshal(data []byte, enc Encoding) (string, *Compound, int, error) {
	r := &reader{data: data, enc: enc}
	t, err := r.u8()
	if err != nil {
		return "", nil, 0, err
	}
	if TagType(t) != TagCompound {
		return "", nil, 0, fmt.Errorf("root tag %s: %w", TagType(t), ErrMalformed)
	}
	name, err := r.str()
	if err != nil {
		return "", nil, 0, err
	}
	c, err := r.compound(0)
	if err != nil {
		return "", nil, 0, err
	}
	return name, c, r.off, nil
}

func (r *reader) u8() (uint8, error) {
	if r.off >= len(r.data) {
		return 0, fmt.Errorf("%w: %w", ErrUnterminated, io.ErrUnexpectedEOF)
	}
	b := r.data[r.off]
	r.off++
	return b, nil
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || len(r.data)-r.off < n {
		return nil, ErrLengthOverflow
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) u16le() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return uint16(b[0]) | uint16(b[1])<<8, nil
}

func (r *reader) u32le() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

func (r *reader) u64le() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v, nil
}

func (r *reader) uvarint32() (uint32, error) {
	var v uint32
	for i := 0; i < 5; i++ {
		b, err := r.u8()
		if err != nil {
			return 0, err
		}
		v |= uint32(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return v, nil
		}
	}
	return 0, fmt.Errorf("varint too long: %w", ErrMalformed)
}

func (r *reader) uvarint64() (uint64, error) {
	var v uint64
	for i := 0; i < 10; i++ {
		b, err := r.u8()
		if err != nil {
			return 0, err
		}
		v |= uint64(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return v, nil
		}
	}
	return 0, fmt.Errorf("varint too long: %w", ErrMalformed)
}

// i32 reads an Int field: fixed LE32 on disk, ZigZag varint on the net.
func (r *reader) i32() (int32, error) {
	if r.enc == Network {
		v, err := r.uvarint32()
		return int32(v>>1) ^ -int32(v&1), err
	}
	v, err := r.u32le()
	return int32(v), err
}

func (r *reader) i64() (int64, error) {
	if r.enc == Network {
		v, err := r.uvarint64()
		return int64(v>>1) ^ -int64(v&1), err
	}
	v, err := r.u64le()
	return int64(v), err
}

// length reads an array/list length.
func (r *reader) length() (int, error) {
	n, err := r.i32()
	if err != nil {
		return 0, err
	}
	if n < 0 || int(n) > len(r.data)-r.off {
		return 0, ErrLengthOverflow
	}
	return int(n), nil
}

func (r *reader) str() (string, error) {
	var n int
	if r.enc == Network {
		v, err := r.uvarint32()
		if err != nil {
			return "", err
		}
		n = int(v)
	} else {
		v, err := r.u16le()
		if err != nil {
			return "", err
		}
		n = int(v)
	}
	b, err := r.take(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) compound(depth int) (*Compound, error) {
	if depth > maxDepth {
		return nil, ErrTooDeep
	}
	c := NewCompound()
	for {
		t, err := r.u8()
		if err != nil {
			return nil, err
		}
		if TagType(t) == TagEnd {
			return c, nil
		}
		name, err := r.str()
		if err != nil {
			return nil, err
		}
		tag, err := r.tag(TagType(t), depth+1)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", name, err)
		}
		c.Set(name, tag)
	}
}

func (r *reader) tag(t TagType, depth int) (Tag, error) {
	if depth > maxDepth {
		return nil, ErrTooDeep
	}
	switch t {
	case TagByte:
		v, err := r.u8()
		return Byte(v), err
	case TagShort:
		v, err := r.u16le()
		return Short(v), err
	case TagInt:
		v, err := r.i32()
		return Int(v), err
	case TagLong:
		v, err := r.i64()
		return Long(v), err
	case TagFloat:
		v, err := r.u32le()
		return Float(f32frombits(v)), err
	case TagDouble:
		v, err := r.u64le()
		return Double(f64frombits(v)), err
	case TagByteArray:
		n, err := r.length()
		if err != nil {
			return nil, err
		}
		b, err := r.take(n)
		if err != nil {
			return nil, err
		}
		arr := make(ByteArray, n)
		copy(arr, b)
		return arr, nil
	case TagString:
		s, err := r.str()
		return String(s), err
	case TagList:
		et, err := r.u8()
		if err != nil {
			return nil, err
		}
		n, err := r.length()
		if err != nil {
			return nil, err
		}
		if TagType(et) == TagEnd && n > 0 {
			return nil, ErrListMismatch
		}
		l := List{Elem: TagType(et)}
		for i := 0; i < n; i++ {
			el, err := r.tag(TagType(et), depth+1)
			if err != nil {
				return nil, err
			}
			l.Tags = append(l.Tags, el)
		}
		return l, nil
	case TagCompound:
		return r.compound(depth)
	case TagIntArray:
		n, err := r.length()
		if err != nil {
			return nil, err
		}
		arr := make(IntArray, n)
		for i := range arr {
			if arr[i], err = r.i32(); err != nil {
				return nil, err
			}
		}
		return arr, nil
	case TagLongArray:
		n, err := r.length()
		if err != nil {
			return nil, err
		}
		arr := make(LongArray, n)
		for i := range arr {
			v, err := r.u64le()
			if err != nil {
				return nil, err
			}
			arr[i] = int64(v)
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("tag %d: %w", t, ErrUnknownTag)
	}
}
