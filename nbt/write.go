package nbt

import "math"

func f32frombits(v uint32) float32 { return math.Float32frombits(v) }
func f64frombits(v uint64) float64 { return math.Float64frombits(v) }

type writer struct {
	buf []byte
	enc Encoding
}

// Marshal encodes a root compound with the given name in the chosen
// variant. Compound keys are written in their stored order.
func Marshal(name string, c *Compound, enc Encoding) []byte {
	w := &writer{enc: enc}
	w.u8(uint8(TagCompound))
	w.str(name)
	w.compound(c)
	return w.buf
}

func (w *writer) u8(v uint8)  { w.buf = append(w.buf, v) }
func (w *writer) raw(b []byte) { w.buf = append(w.buf, b...) }

func (w *writer) u16le(v uint16) {
	w.buf = append(w.buf, byte(v), byte(v>>8))
}

func (w *writer) u32le(v uint32) {
	w.buf = append(w.buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func (w *writer) u64le(v uint64) {
	for i := 0; i < 8; i++ {
		w.buf = append(w.buf, byte(v>>(8*i)))
	}
}

func (w *writer) uvarint32(v uint32) {
	for v&^0x7f != 0 {
		w.u8(byte(v&0x7f | 0x80))
		v >>= 7
	}
	w.u8(byte(v))
}

func (w *writer) uvarint64(v uint64) {
	for v&^0x7f != 0 {
		w.u8(byte(v&0x7f | 0x80))
		v >>= 7
	}
	w.u8(byte(v))
}

func (w *writer) i32(v int32) {
	if w.enc == Network {
		w.uvarint32(uint32(v<<1) ^ uint32(v>>31))
		return
	}
	w.u32le(uint32(v))
}

func (w *writer) i64(v int64) {
	if w.enc == Network {
		w.uvarint64(uint64(v<<1) ^ uint64(v>>63))
		return
	}
	w.u64le(uint64(v))
}

func (w *writer) str(s string) {
	if w.enc == Network {
		w.uvarint32(uint32(len(s)))
	} else {
		w.u16le(uint16(len(s)))
	}
	w.buf = append(w.buf, s...)
}

func (w *writer) compound(c *Compound) {
	for _, k := range c.Keys() {
		t, _ := c.Get(k)
		w.u8(uint8(t.Type()))
		w.str(k)
		w.tag(t)
	}
	w.u8(uint8(TagEnd))
}

func (w *writer) tag(t Tag) {
	switch v := t.(type) {
	case Byte:
		w.u8(uint8(v))
	case Short:
		w.u16le(uint16(v))
	case Int:
		w.i32(int32(v))
	case Long:
		w.i64(int64(v))
	case Float:
		w.u32le(math.Float32bits(float32(v)))
	case Double:
		w.u64le(math.Float64bits(float64(v)))
	case ByteArray:
		w.i32(int32(len(v)))
		w.raw(v)
	case String:
		w.str(string(v))
	case List:
		w.u8(uint8(v.Elem))
		w.i32(int32(len(v.Tags)))
		for _, el := range v.Tags {
			w.tag(el)
		}
	case *Compound:
		w.compound(v)
	case IntArray:
		w.i32(int32(len(v)))
		for _, n := range v {
			w.i32(n)
		}
	case LongArray:
		w.i32(int32(len(v)))
		for _, n := range v {
			w.u64le(uint64(n))
		}
	}
}
