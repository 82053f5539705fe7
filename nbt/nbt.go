// Package nbt implements the Bedrock named binary tag format in its
// two wire variants: the little-endian disk form with fixed-width
// integer fields, and the network form with ZigZag variable-length
// integers and variable-length string lengths.
package nbt

import (
	"errors"
	"fmt"
	"sort"
)

// Encoding selects the wire variant. It is always an explicit
// parameter; the variant is never inferred from the bytes.
type Encoding int

const (
	// LittleEndian is the disk variant: fixed-width little-endian
	// integers and 16-bit string lengths.
	LittleEndian Encoding = iota

	// Network is the protocol variant: ZigZag varints for Int, Long
	// and array lengths, uvarint string lengths.
	Network
)

// TagType identifies a tag on the wire.
type TagType uint8

const (
	TagEnd TagType = iota
	TagByte
	TagShort
	TagInt
	TagLong
	TagFloat
	TagDouble
	TagByteArray
	TagString
	TagList
	TagCompound
	TagIntArray
	TagLongArray
)

func (t TagType) String() string {
	names := [...]string{
		"End", "Byte", "Short", "Int", "Long", "Float", "Double",
		"ByteArray", "String", "List", "Compound", "IntArray", "LongArray",
	}
	if int(t) < len(names) {
		return names[t]
	}
	return fmt.Sprintf("TagType(%d)", uint8(t))
}

// maxDepth bounds compound/list nesting.
const maxDepth = 512

// ErrMalformed is the base class of every parse failure.
var ErrMalformed = errors.New("malformed nbt")

var (
	ErrUnknownTag     = fmt.Errorf("unknown tag: %w", ErrMalformed)
	ErrUnterminated   = fmt.Errorf("unterminated compound: %w", ErrMalformed)
	ErrListMismatch   = fmt.Errorf("list element tag mismatch: %w", ErrMalformed)
	ErrLengthOverflow = fmt.Errorf("length overflows input: %w", ErrMalformed)
	ErrTooDeep        = fmt.Errorf("nesting too deep: %w", ErrMalformed)
)

// A Tag is one node of the value tree.
type Tag interface {
	Type() TagType
}

type (
	Byte      int8
	Short     int16
	Int       int32
	Long      int64
	Float     float32
	Double    float64
	ByteArray []byte
	String    string
	IntArray  []int32
	LongArray []int64
)

// List is a homogeneous sequence. Elem must match every element's
// type; for an empty list Elem is TagEnd.
type List struct {
	Elem TagType
	Tags []Tag
}

func (Byte) Type() TagType      { return TagByte }
func (Short) Type() TagType     { return TagShort }
func (Int) Type() TagType       { return TagInt }
func (Long) Type() TagType      { return TagLong }
func (Float) Type() TagType     { return TagFloat }
func (Double) Type() TagType    { return TagDouble }
func (ByteArray) Type() TagType { return TagByteArray }
func (String) Type() TagType    { return TagString }
func (List) Type() TagType      { return TagList }
func (IntArray) Type() TagType  { return TagIntArray }
func (LongArray) Type() TagType { return TagLongArray }

// A Compound is an ordered map of name to tag. Order is preserved as
// parsed so that decode-then-encode reproduces the input bytes.
type Compound struct {
	keys []string
	vals map[string]Tag
}

func (*Compound) Type() TagType { return TagCompound }

// NewCompound returns an empty compound.
func NewCompound() *Compound {
	return &Compound{vals: make(map[string]Tag)}
}

// Set inserts or replaces a key. A new key is appended to the order.
func (c *Compound) Set(key string, tag Tag) *Compound {
	if _, ok := c.vals[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.vals[key] = tag
	return c
}

// Get returns the tag stored under key.
func (c *Compound) Get(key string) (Tag, bool) {
	t, ok := c.vals[key]
	return t, ok
}

// Keys returns the key order. The slice must not be mutated.
func (c *Compound) Keys() []string { return c.keys }

// Len returns the number of entries.
func (c *Compound) Len() int { return len(c.keys) }

// SortKeys reorders the compound's keys into ascending byte order.
// Block state property compounds are hashed in this order.
func (c *Compound) SortKeys() *Compound {
	sort.Strings(c.keys)
	return c
}

// Equal reports whether two compounds hold the same entries in the
// same order.
func (c *Compound) Equal(o *Compound) bool {
	if len(c.keys) != len(o.keys) {
		return false
	}
	for i, k := range c.keys {
		if o.keys[i] != k {
			return false
		}
		if !tagEqual(c.vals[k], o.vals[k]) {
			return false
		}
	}
	return true
}

func tagEqual(a, b Tag) bool {
	if a.Type() != b.Type() {
		return false
	}
	switch at := a.(type) {
	case *Compound:
		return at.Equal(b.(*Compound))
	case List:
		bt := b.(List)
		if at.Elem != bt.Elem || len(at.Tags) != len(bt.Tags) {
			return false
		}
		for i := range at.Tags {
			if !tagEqual(at.Tags[i], bt.Tags[i]) {
				return false
			}
		}
		return true
	case ByteArray:
		bt := b.(ByteArray)
		if len(at) != len(bt) {
			return false
		}
		for i := range at {
			if at[i] != bt[i] {
				return false
			}
		}
		return true
	case IntArray:
		bt := b.(IntArray)
		if len(at) != len(bt) {
			return false
		}
		for i := range at {
			if at[i] != bt[i] {
				return false
			}
		}
		return true
	case LongArray:
		bt := b.(LongArray)
		if len(at) != len(bt) {
			return false
		}
		for i := range at {
			if at[i] != bt[i] {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
